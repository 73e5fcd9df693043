// Package frame provides a handle to a columnar frame stored on the remote
// engine.
//
// A Frame is immutable from the caller's point of view: every operation
// evaluates a Rapids expression into a new engine key and returns a new handle.
// The handle caches the column names and row count reported by the engine.
package frame

import (
	"bufio"
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/engine/rapids"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// Frame is a handle to a remote frame.
type Frame struct {
	client  *engine.Client
	key     string
	columns []string
	rows    int64
	logger  log.Logger
}

// NewKey returns a fresh engine key with the given prefix.
func NewKey(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Import loads a file visible to the engine and returns its frame.
func Import(ctx context.Context, c *engine.Client, path, key string) (*Frame, error) {
	k, err := c.ImportFile(ctx, path, key)
	if err != nil {
		return nil, err
	}
	return Get(ctx, c, k)
}

// Get returns a handle to an existing frame.
func Get(ctx context.Context, c *engine.Client, key string) (*Frame, error) {
	info, err := c.Frame(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Frame{
		client:  c,
		key:     key,
		columns: info.ColumnNames(),
		rows:    info.Rows,
		logger:  log.GetLoggerWithName("frame").With(log.FrameKey, key),
	}, nil
}

// Key returns the engine key.
func (f *Frame) Key() string { return f.key }

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

// Rows returns the number of rows.
func (f *Frame) Rows() int64 { return f.rows }

// Client returns the engine client the frame belongs to.
func (f *Frame) Client() *engine.Client { return f.client }

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	return f.columnIndex(name) >= 0
}

func (f *Frame) columnIndex(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (f *Frame) require(names ...string) error {
	for _, n := range names {
		if !f.Has(n) {
			return errors.Wrapf(errors.ErrColumnNotFound, "frame %s: column %q", f.key, n)
		}
	}
	return nil
}

func (f *Frame) ref() rapids.Expr { return rapids.Key(f.key) }

// derive evaluates expr into a new key and returns its handle.
func (f *Frame) derive(ctx context.Context, prefix string, expr rapids.Expr) (*Frame, error) {
	key := NewKey(prefix)
	if _, err := f.client.Assign(ctx, key, expr); err != nil {
		return nil, err
	}
	return Get(ctx, f.client, key)
}

// Describe returns the engine's summary of the frame.
func (f *Frame) Describe(ctx context.Context) (*engine.FrameInfo, error) {
	return f.client.Frame(ctx, f.key)
}

// Delete removes the frame from the engine.
func (f *Frame) Delete(ctx context.Context) error {
	return f.client.DeleteFrame(ctx, f.key)
}

// Cols returns a frame with only the named columns, in the given order.
func (f *Frame) Cols(ctx context.Context, names []string) (*Frame, error) {
	if err := f.require(names...); err != nil {
		return nil, err
	}
	return f.derive(ctx, "cols", rapids.Cols(f.ref(), names))
}

// Filter keeps the rows whose categorical column col equals value.
func (f *Frame) Filter(ctx context.Context, col, value string) (*Frame, error) {
	if err := f.require(col); err != nil {
		return nil, err
	}
	pred := rapids.Eq(rapids.Col(f.ref(), col), rapids.Str(value))
	return f.derive(ctx, "filter", rapids.Rows(f.ref(), pred))
}

// Rbind appends the rows of others below f. All frames must share columns.
func (f *Frame) Rbind(ctx context.Context, others ...*Frame) (*Frame, error) {
	args := []rapids.Expr{f.ref()}
	for _, o := range others {
		if len(o.columns) != len(f.columns) {
			return nil, errors.NewDimensionError("Rbind", len(f.columns), len(o.columns), 1)
		}
		args = append(args, o.ref())
	}
	return f.derive(ctx, "rbind", rapids.Rbind(args...))
}

// Cbind appends the columns of others to the right of f. All frames must
// have the same number of rows.
func (f *Frame) Cbind(ctx context.Context, others ...*Frame) (*Frame, error) {
	args := []rapids.Expr{f.ref()}
	for _, o := range others {
		if o.rows != f.rows {
			return nil, errors.NewDimensionError("Cbind", int(f.rows), int(o.rows), 0)
		}
		args = append(args, o.ref())
	}
	return f.derive(ctx, "cbind", rapids.Cbind(args...))
}

// AsFactor converts column col to categorical in place of the original.
func (f *Frame) AsFactor(ctx context.Context, col string) (*Frame, error) {
	if err := f.require(col); err != nil {
		return nil, err
	}
	src := rapids.AsFactor(rapids.Col(f.ref(), col))
	return f.derive(ctx, "factor", rapids.SetCol(f.ref(), src, f.columnIndex(col)))
}

// Refactor rebuilds the levels of a categorical column from its current
// values, dropping levels that no longer occur.
func (f *Frame) Refactor(ctx context.Context, col string) (*Frame, error) {
	if err := f.require(col); err != nil {
		return nil, err
	}
	src := rapids.AsFactor(rapids.AsCharacter(rapids.Col(f.ref(), col)))
	return f.derive(ctx, "factor", rapids.SetCol(f.ref(), src, f.columnIndex(col)))
}

// Cut appends newName, the bucketed copy of col. Values fall into the
// right-closed interval (breaks[i], breaks[i+1]] and are labeled labels[i].
func (f *Frame) Cut(ctx context.Context, col string, breaks []float64, labels []string, newName string) (*Frame, error) {
	if err := f.require(col); err != nil {
		return nil, err
	}
	if len(labels) != len(breaks)-1 {
		return nil, errors.NewDimensionError("Cut", len(breaks)-1, len(labels), 1)
	}
	if f.Has(newName) {
		return nil, errors.NewValidationError("newName", "column already exists", newName)
	}
	cut := rapids.Cut(rapids.Col(f.ref(), col), breaks, labels)
	return f.derive(ctx, "cut", rapids.Append(f.ref(), cut, newName))
}

// Interaction asks the engine for interaction columns of the given factor
// columns and returns a frame holding only the new columns.
func (f *Frame) Interaction(ctx context.Context, factors []string, pairwise bool, maxFactors, minOccurrence int) (*Frame, error) {
	if err := f.require(factors...); err != nil {
		return nil, err
	}
	dest, err := f.client.Interaction(ctx, engine.InteractionRequest{
		Source:        f.key,
		FactorColumns: factors,
		Pairwise:      pairwise,
		MaxFactors:    maxFactors,
		MinOccurrence: minOccurrence,
		Dest:          NewKey("inter"),
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, f.client, dest)
}

// Column downloads a numeric column. Missing and non-numeric cells are NaN.
func (f *Frame) Column(ctx context.Context, name string) ([]float64, error) {
	if err := f.require(name); err != nil {
		return nil, err
	}
	tmp := NewKey("col")
	if _, err := f.client.Assign(ctx, tmp, rapids.Col(f.ref(), name)); err != nil {
		return nil, err
	}
	defer func() {
		if err := f.client.DeleteFrame(context.WithoutCancel(ctx), tmp); err != nil {
			f.logger.Warn("Failed to delete temporary frame", log.FrameKey, tmp, "error", err.Error())
		}
	}()

	body, err := f.client.DownloadCSV(ctx, tmp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	values, err := readColumn(body)
	if err != nil {
		return nil, errors.Wrapf(err, "column %s of %s", name, f.key)
	}
	f.logger.Debug("Column materialized", log.ColumnKey, name, log.SamplesKey, len(values))
	return values, nil
}

// readColumn parses a single-column CSV download. The engine writes a missing
// cell as a blank line, so the body is read line by line to keep row alignment.
func readColumn(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	var out []float64
	for sc.Scan() {
		cell := strings.Trim(strings.TrimSpace(sc.Text()), `"`)
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			v = math.NaN()
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
