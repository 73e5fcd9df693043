package experiment

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/metrics"
	"github.com/YuminosukeSato/remoteglm/preprocessing"
)

// ModelResult is the validation result of one binomial model.
type ModelResult struct {
	ModelID  string
	Params   map[string]interface{}
	Features int
	Accuracy float64
}

// Report collects the results of a run.
type Report struct {
	Cloud    *engine.Cloud
	Dataset  string
	Response string
	Rows     int64

	SplitRows         []int64
	BinomialSplitRows []int64

	// HitRatios are the validation hit ratios of glm_v1.
	HitRatios *metrics.HitRatioTable
	// Confusion is the validation confusion matrix of glm_v2.
	Confusion *metrics.ConfusionMatrix

	Plans          []*preprocessing.BinningPlan
	FeatureColumns int

	// Binomial holds glm_binom_v1 followed by the feature-engineered models.
	Binomial []ModelResult
}

// Best returns the binomial model with the highest validation accuracy.
func (r *Report) Best() (ModelResult, bool) {
	if len(r.Binomial) == 0 {
		return ModelResult{}, false
	}
	best := r.Binomial[0]
	for _, m := range r.Binomial[1:] {
		if m.Accuracy > best.Accuracy {
			best = m
		}
	}
	return best, true
}

// Render writes the report as ASCII tables.
func (r *Report) Render(w io.Writer) {
	if r.Cloud != nil {
		fmt.Fprintf(w, "engine: %s %s, %d node(s), %s free\n",
			r.Cloud.Name, r.Cloud.Version, r.Cloud.Size, engine.FormatBytes(r.Cloud.FreeMem()))
	}
	fmt.Fprintf(w, "dataset: %s (%d rows, response %s)\n", r.Dataset, r.Rows, r.Response)
	fmt.Fprintf(w, "splits: %s; binomial splits: %s\n\n", joinRows(r.SplitRows), joinRows(r.BinomialSplitRows))

	if r.HitRatios != nil {
		fmt.Fprintln(w, "glm_v1 validation hit ratios")
		metrics.RenderHitRatios(w, r.HitRatios)
		fmt.Fprintln(w)
	}
	if r.Confusion != nil {
		fmt.Fprintln(w, "glm_v2 validation confusion matrix")
		metrics.RenderConfusionMatrix(w, r.Confusion)
		fmt.Fprintln(w)
	}

	if len(r.Plans) > 0 {
		fmt.Fprintln(w, "bucketed columns")
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"column", "buckets", "boundaries"})
		table.SetAutoFormatHeaders(false)
		for _, p := range r.Plans {
			table.Append([]string{p.CutName(), strconv.Itoa(p.Buckets()), formatBoundaries(p.Boundaries)})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	if len(r.Binomial) > 0 {
		fmt.Fprintln(w, "binomial models")
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"model", "features", "params", "validation accuracy"})
		table.SetAutoFormatHeaders(false)
		for _, m := range r.Binomial {
			table.Append([]string{m.ModelID, strconv.Itoa(m.Features), formatParams(m.Params),
				strconv.FormatFloat(m.Accuracy, 'f', 4, 64)})
		}
		if best, ok := r.Best(); ok {
			table.SetFooter([]string{"", "", "best", best.ModelID})
		}
		table.Render()
	}
}

func joinRows(rows []int64) string {
	parts := make([]string, len(rows))
	for i, n := range rows {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, "/")
}

func formatBoundaries(b []float64) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return strings.Join(parts, " ")
}

// formatParams prints the tuning parameters that differ between models.
func formatParams(p map[string]interface{}) string {
	var keys []string
	for k := range p {
		switch k {
		case "model_id", "family":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, " ")
}
