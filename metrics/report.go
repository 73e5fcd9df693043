package metrics

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// RenderConfusionMatrix writes cm as an ASCII table with per-class error rates.
func RenderConfusionMatrix(w io.Writer, cm *ConfusionMatrix) {
	table := tablewriter.NewWriter(w)
	header := append([]string{"actual \\ predicted"}, cm.Labels...)
	header = append(header, "Error")
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)

	errs := cm.ClassErrors()
	for i, label := range cm.Labels {
		row := []string{label}
		for j := range cm.Labels {
			row = append(row, strconv.FormatFloat(cm.Counts.At(i, j), 'f', 0, 64))
		}
		row = append(row, formatFloat(errs[i]))
		table.Append(row)
	}
	table.SetFooter(footer(len(header), "accuracy", formatFloat(cm.Accuracy())))
	table.Render()
}

// RenderHitRatios writes a k / hit ratio table.
func RenderHitRatios(w io.Writer, h *HitRatioTable) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"k", "hit_ratio"})
	for i, k := range h.K {
		table.Append([]string{strconv.Itoa(k), formatFloat(h.Ratios[i])})
	}
	table.Render()
}

// RenderTable writes an engine table as-is.
func RenderTable(w io.Writer, t *Table) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Columns)
	table.SetAutoFormatHeaders(false)
	if t.Name != "" {
		table.SetCaption(true, t.Name)
	}
	for i := 0; i < t.Rows(); i++ {
		row := make([]string, len(t.Columns))
		for j := range t.Columns {
			row[j] = t.String(i, j)
		}
		table.Append(row)
	}
	table.Render()
}

func footer(width int, label, value string) []string {
	f := make([]string, width)
	f[width-2] = label
	f[width-1] = value
	return f
}
