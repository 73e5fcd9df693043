package engine

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// Column is the summary of one frame column.
type Column struct {
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Mins    []Float  `json:"mins"`
	Maxs    []Float  `json:"maxs"`
	Mean    Float    `json:"mean"`
	Missing int64    `json:"missing_count"`
	Domain  []string `json:"domain"`
}

// Float is a number the engine may also send as "NaN", "Infinity" or
// "-Infinity".
type Float float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN", "":
			*f = Float(math.NaN())
		case "Infinity", "Inf":
			*f = Float(math.Inf(1))
		case "-Infinity", "-Inf":
			*f = Float(math.Inf(-1))
		default:
			return errors.Newf("invalid number %q", s)
		}
		return nil
	}
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Min returns the smallest value of a numeric column.
func (c Column) Min() float64 {
	if len(c.Mins) == 0 {
		return math.NaN()
	}
	return float64(c.Mins[0])
}

// Max returns the largest value of a numeric column.
func (c Column) Max() float64 {
	if len(c.Maxs) == 0 {
		return math.NaN()
	}
	return float64(c.Maxs[0])
}

// IsCategorical reports whether the column is an enum.
func (c Column) IsCategorical() bool {
	return c.Type == "enum"
}

// FrameInfo is the summary of a remote frame.
type FrameInfo struct {
	Key     string
	Rows    int64
	Columns []Column
}

// ColumnNames returns the labels of all columns in order.
func (f *FrameInfo) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Label
	}
	return names
}

// Column looks up a column by label.
func (f *FrameInfo) Column(name string) (Column, bool) {
	for _, c := range f.Columns {
		if c.Label == name {
			return c, true
		}
	}
	return Column{}, false
}

// ImportFile loads a file visible to the engine into a parsed frame named
// destKey and returns the frame key.
func (c *Client) ImportFile(ctx context.Context, path, destKey string) (string, error) {
	logger := c.logger.With(log.OperationKey, log.OperationImport, log.FrameKey, destKey)

	var imported struct {
		Files             []string `json:"files"`
		DestinationFrames []string `json:"destination_frames"`
		Fails             []string `json:"fails"`
	}
	q := url.Values{"path": {path}}
	if err := c.call(ctx, http.MethodGet, "/3/ImportFiles", q, nil, &imported); err != nil {
		return "", errors.Wrapf(err, "import %s", path)
	}
	if len(imported.Fails) > 0 || len(imported.DestinationFrames) == 0 {
		return "", errors.NewValidationError("path", "engine could not import file", path)
	}

	// ParseSetup guesses the layout; its answer is sent back verbatim to Parse.
	var setup map[string]json.RawMessage
	form := url.Values{"source_frames": {ListParam(imported.DestinationFrames)}}
	if err := c.call(ctx, http.MethodPost, "/3/ParseSetup", nil, form, &setup); err != nil {
		return "", errors.Wrapf(err, "parse setup %s", path)
	}

	parse := url.Values{
		"destination_frame": {destKey},
		"source_frames":     {ListParam(imported.DestinationFrames)},
		"delete_on_done":    {"true"},
	}
	for _, field := range []string{
		"parse_type", "separator", "number_columns", "single_quotes",
		"column_names", "column_types", "check_header", "chunk_size",
	} {
		raw, ok := setup[field]
		if !ok || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			parse.Set(field, s)
		} else {
			parse.Set(field, string(raw))
		}
	}

	var started struct {
		Job              jobDTO `json:"job"`
		DestinationFrame keyRef `json:"destination_frame"`
	}
	if err := c.call(ctx, http.MethodPost, "/3/Parse", nil, parse, &started); err != nil {
		return "", errors.Wrapf(err, "parse %s", path)
	}
	if _, err := c.WaitJob(ctx, started.Job.Key.Name); err != nil {
		return "", errors.Wrapf(err, "parse %s", path)
	}

	key := started.DestinationFrame.Name
	if key == "" {
		key = destKey
	}
	logger.Info("Imported file", "path", path, log.FrameKey, key)
	return key, nil
}

type frameDTO struct {
	FrameID    keyRef   `json:"frame_id"`
	Rows       int64    `json:"rows"`
	NumColumns int      `json:"num_columns"`
	Columns    []Column `json:"columns"`
}

// Frame returns the summary of a frame.
func (c *Client) Frame(ctx context.Context, key string) (*FrameInfo, error) {
	var resp struct {
		Frames []frameDTO `json:"frames"`
	}
	if err := c.call(ctx, http.MethodGet, "/3/Frames/"+escapeKey(key)+"/summary", nil, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "frame %s", key)
	}
	if len(resp.Frames) == 0 {
		return nil, errors.Newf("frame %s: engine returned no frame", key)
	}
	f := resp.Frames[0]
	return &FrameInfo{Key: f.FrameID.Name, Rows: f.Rows, Columns: f.Columns}, nil
}

// DeleteFrame removes a frame from the cluster.
func (c *Client) DeleteFrame(ctx context.Context, key string) error {
	if err := c.call(ctx, http.MethodDelete, "/3/Frames/"+escapeKey(key), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "delete frame %s", key)
	}
	return nil
}

// DownloadCSV streams a frame as CSV. The caller closes the reader.
func (c *Client) DownloadCSV(ctx context.Context, key string) (io.ReadCloser, error) {
	q := url.Values{"frame_id": {key}, "hex_string": {"false"}}
	body, err := c.raw(ctx, http.MethodGet, "/3/DownloadDataset", q, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", key)
	}
	return body, nil
}
