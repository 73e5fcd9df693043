package enginetest

import (
	"fmt"
	"net/url"
	"strings"
)

// TwoDimTable renders a table the way the engine serializes it: a list of
// column descriptors and column-major data.
func TwoDimTable(name string, columns []string, data [][]interface{}) map[string]interface{} {
	cols := make([]map[string]string, len(columns))
	for i, c := range columns {
		typ := "double"
		if i < len(data) && len(data[i]) > 0 {
			if _, ok := data[i][0].(string); ok {
				typ = "string"
			}
		}
		cols[i] = map[string]string{"name": c, "type": typ, "format": "%s", "description": c}
	}
	rows := 0
	if len(data) > 0 {
		rows = len(data[0])
	}
	return map[string]interface{}{
		"__meta":      map[string]string{"schema_type": "TwoDimTable"},
		"name":        name,
		"description": "",
		"columns":     cols,
		"rowcount":    rows,
		"data":        data,
	}
}

// ConfusionTable builds an engine confusion matrix table. counts[i][j] is the
// number of rows of actual class i predicted as class j.
func ConfusionTable(labels []string, counts [][]float64) map[string]interface{} {
	k := len(labels)
	columns := append([]string{""}, labels...)
	columns = append(columns, "Error", "Rate")

	data := make([][]interface{}, 0, k+3)
	header := make([]interface{}, 0, k+1)
	for _, l := range labels {
		header = append(header, l)
	}
	data = append(data, append(header, "Totals"))

	var total, wrong float64
	for j := 0; j < k; j++ {
		col := make([]interface{}, 0, k+1)
		var sum float64
		for i := 0; i < k; i++ {
			col = append(col, counts[i][j])
			sum += counts[i][j]
		}
		data = append(data, append(col, sum))
	}

	errs := make([]interface{}, 0, k+1)
	rates := make([]interface{}, 0, k+1)
	for i := 0; i < k; i++ {
		var row float64
		for j := 0; j < k; j++ {
			row += counts[i][j]
		}
		miss := row - counts[i][i]
		total += row
		wrong += miss
		errs = append(errs, ratio(miss, row))
		rates = append(rates, fmt.Sprintf("%g / %g", miss, row))
	}
	data = append(data,
		append(errs, ratio(wrong, total)),
		append(rates, fmt.Sprintf("%g / %g", wrong, total)),
	)
	return map[string]interface{}{"table": TwoDimTable("Confusion Matrix", columns, data)}
}

func ratio(a, b float64) interface{} {
	if b == 0 {
		return "NaN"
	}
	return a / b
}

// ClassMetrics builds classification metrics for a confusion matrix. Hit
// ratios start at the accuracy for k=1 and reach 1 at the last k. Binomial
// metrics carry a max-criteria table whose "max accuracy" row holds the
// accuracy.
func ClassMetrics(category string, labels []string, counts [][]float64) map[string]interface{} {
	var total, correct float64
	for i := range counts {
		for j := range counts[i] {
			total += counts[i][j]
		}
		correct += counts[i][i]
	}
	acc := 0.0
	if total > 0 {
		acc = correct / total
	}

	out := map[string]interface{}{
		"model_category":       category,
		"nobs":                 int64(total),
		"MSE":                  1 - acc,
		"logloss":              1 - acc,
		"mean_per_class_error": 1 - acc,
		"cm":                   ConfusionTable(labels, counts),
	}

	switch category {
	case "Multinomial":
		k := len(labels)
		if k > 10 {
			k = 10
		}
		ks := make([]interface{}, k)
		hits := make([]interface{}, k)
		blank := make([]interface{}, k)
		for i := 0; i < k; i++ {
			ks[i] = float64(i + 1)
			h := 1.0
			if k > 1 {
				h = acc + (1-acc)*float64(i)/float64(k-1)
			}
			hits[i] = h
			blank[i] = ""
		}
		out["hit_ratio_table"] = TwoDimTable(fmt.Sprintf("Top-%d Hit Ratios", k),
			[]string{"", "k", "hit_ratio"}, [][]interface{}{blank, ks, hits})
	case "Binomial":
		out["AUC"] = acc
		out["max_criteria_and_metric_scores"] = TwoDimTable("Maximum Metrics",
			[]string{"", "metric", "threshold", "value", "idx"},
			[][]interface{}{
				{"", "", ""},
				{"max f1", "max accuracy", "max precision"},
				{0.5, 0.5, 0.9},
				{acc, acc, 1.0},
				{100.0, 100.0, 0.0},
			})
	}
	return out
}

// responseLabels returns the class labels and the label of every row.
func responseLabels(f *Frame, y string) ([]string, []string) {
	c := f.Col(y)
	if c == nil {
		return nil, nil
	}
	rows := make([]string, c.Len())
	for i := range rows {
		rows[i] = c.cell(i)
	}
	tmp := &Column{Str: rows}
	return tmp.Domain(), rows
}

func category(params url.Values, labels []string) string {
	switch strings.ToLower(params.Get("family")) {
	case "binomial":
		return "Binomial"
	case "multinomial":
		return "Multinomial"
	case "gaussian", "poisson", "gamma", "tweedie":
		return "Regression"
	}
	if len(labels) == 2 {
		return "Binomial"
	}
	return "Multinomial"
}

// perfect scores a frame as if every row were classified correctly.
func perfect(params url.Values, f *Frame) map[string]interface{} {
	labels, rows := responseLabels(f, params.Get("response_column"))
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	counts := make([][]float64, len(labels))
	for i := range counts {
		counts[i] = make([]float64, len(labels))
	}
	for _, r := range rows {
		if i, ok := index[r]; ok {
			counts[i][i]++
		}
	}
	return ClassMetrics(category(params, labels), labels, counts)
}

// DefaultModel reports a perfect classifier on both frames.
func DefaultModel(params url.Values, train, valid *Frame) map[string]interface{} {
	out := map[string]interface{}{
		"training_metrics": perfect(params, train),
		"model_summary": TwoDimTable("GLM Model",
			[]string{"", "family", "link", "regularization", "number_of_iterations"},
			[][]interface{}{{""}, {params.Get("family")}, {"logit"}, {"Ridge"}, {10.0}}),
	}
	labels, _ := responseLabels(train, params.Get("response_column"))
	out["model_category"] = category(params, labels)
	if valid != nil {
		out["validation_metrics"] = perfect(params, valid)
	}
	return out
}
