package engine

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/YuminosukeSato/remoteglm/metrics"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

type builderMessage struct {
	Type    string `json:"message_type"`
	Field   string `json:"field_name"`
	Message string `json:"message"`
}

func joinErrors(msgs []builderMessage) string {
	var parts []string
	for _, m := range msgs {
		if m.Type != "ERRR" {
			continue
		}
		if m.Field != "" {
			parts = append(parts, m.Field+": "+m.Message)
		} else {
			parts = append(parts, m.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// BuildModel starts a model builder for algo (e.g. "glm") with the given
// parameters, waits for it and returns the finished job. The model key is
// job.Dest.
//
// Parameter errors reported by the builder are returned as ValidationError.
func (c *Client) BuildModel(ctx context.Context, algo string, params url.Values) (*Job, error) {
	path := "/3/ModelBuilders/" + escapeKey(algo)
	var started struct {
		Job        jobDTO           `json:"job"`
		Messages   []builderMessage `json:"messages"`
		ErrorCount int              `json:"error_count"`
	}
	if err := c.call(ctx, http.MethodPost, path, nil, params, &started); err != nil {
		var re *errors.RemoteError
		if errors.As(err, &re) && re.StatusCode == http.StatusPreconditionFailed {
			return nil, errors.NewValidationError(algo, re.Message, params.Get("model_id"))
		}
		return nil, errors.Wrapf(err, "build %s", algo)
	}
	if started.ErrorCount > 0 {
		return nil, errors.NewValidationError(algo, joinErrors(started.Messages), params.Get("model_id"))
	}
	for _, m := range started.Messages {
		if m.Type == "WARN" {
			errors.Warn(errors.NewConvergenceWarning(algo, params.Get("model_id"), m.Field+": "+m.Message))
		}
	}

	job, err := c.WaitJob(ctx, started.Job.Key.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", algo)
	}
	if job.Dest == "" {
		job.Dest = started.Job.Dest.Name
	}
	c.logger.Info("Model built",
		log.ModelNameKey, job.Dest,
		log.AlgorithmKey, algo,
	)
	return job, nil
}

// ModelMetrics holds one set of scoring results (training or validation).
type ModelMetrics struct {
	Category          string
	NObs              int64
	MSE               float64
	LogLoss           float64
	AUC               float64
	MeanPerClassError float64
	// ConfusionMatrix, HitRatios and MaxCriteria are nil when the engine did
	// not report them for this model category.
	ConfusionMatrix *metrics.Table
	HitRatios       *metrics.Table
	MaxCriteria     *metrics.Table
}

// Model is a trained model as reported by /3/Models.
type Model struct {
	Key        string
	Algo       string
	Category   string
	Summary    *metrics.Table
	Training   *ModelMetrics
	Validation *ModelMetrics
}

// Model fetches a model and its metrics.
func (c *Client) Model(ctx context.Context, key string) (*Model, error) {
	body, err := c.raw(ctx, http.MethodGet, "/3/Models/"+escapeKey(key), nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", key)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", key)
	}
	doc, err := oj.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s: decode", key)
	}
	return parseModel(doc)
}

func parseModel(doc interface{}) (*Model, error) {
	root := first(doc, "$.models[0]")
	if root == nil {
		return nil, errors.NewModelError("Model", "engine returned no model", errors.ErrEmptyData)
	}

	m := &Model{
		Key:      stringAt(root, "$.model_id.name"),
		Algo:     stringAt(root, "$.algo"),
		Category: stringAt(root, "$.output.model_category"),
	}
	var err error
	if m.Summary, err = tableAt(root, "$.output.model_summary"); err != nil {
		return nil, err
	}
	if m.Training, err = parseMetrics(first(root, "$.output.training_metrics")); err != nil {
		return nil, errors.Wrap(err, "training metrics")
	}
	if m.Validation, err = parseMetrics(first(root, "$.output.validation_metrics")); err != nil {
		return nil, errors.Wrap(err, "validation metrics")
	}
	return m, nil
}

func parseMetrics(node interface{}) (*ModelMetrics, error) {
	if node == nil {
		return nil, nil
	}
	mm := &ModelMetrics{
		Category:          stringAt(node, "$.model_category"),
		NObs:              int64(numberAt(node, "$.nobs")),
		MSE:               numberAt(node, "$.MSE"),
		LogLoss:           numberAt(node, "$.logloss"),
		AUC:               numberAt(node, "$.AUC"),
		MeanPerClassError: numberAt(node, "$.mean_per_class_error"),
	}
	var err error
	if mm.ConfusionMatrix, err = tableAt(node, "$.cm.table"); err != nil {
		return nil, err
	}
	if mm.HitRatios, err = tableAt(node, "$.hit_ratio_table"); err != nil {
		return nil, err
	}
	if mm.MaxCriteria, err = tableAt(node, "$.max_criteria_and_metric_scores"); err != nil {
		return nil, err
	}
	return mm, nil
}

func first(data interface{}, path string) interface{} {
	x := jp.MustParseString(path)
	results := x.Get(data)
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

func stringAt(data interface{}, path string) string {
	s, _ := first(data, path).(string)
	return s
}

func numberAt(data interface{}, path string) float64 {
	return toFloat(first(data, path))
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
		if n == "Infinity" {
			return math.Inf(1)
		}
		if n == "-Infinity" {
			return math.Inf(-1)
		}
	}
	return math.NaN()
}

// tableAt converts the engine TwoDimTable found at path. A missing or null
// table yields nil without error.
func tableAt(data interface{}, path string) (*metrics.Table, error) {
	node, ok := first(data, path).(map[string]interface{})
	if !ok {
		return nil, nil
	}

	var columns, types []string
	for _, c := range asSlice(node["columns"]) {
		col, _ := c.(map[string]interface{})
		name, _ := col["name"].(string)
		typ, _ := col["type"].(string)
		columns = append(columns, name)
		types = append(types, typ)
	}

	cells := asSlice(node["data"])
	data2 := make([][]interface{}, len(cells))
	for i, col := range cells {
		data2[i] = asSlice(col)
	}

	name, _ := node["name"].(string)
	t, err := metrics.NewTable(name, columns, data2)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", path)
	}
	t.Description, _ = node["description"].(string)
	t.Types = types
	return t, nil
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}
