package enginetest

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Column is an in-memory column. Numeric columns use Num (NaN is missing);
// string and categorical columns use Str ("" is missing).
type Column struct {
	Name   string
	Num    []float64
	Str    []string
	Factor bool
	// Levels fixes the domain of a factor regardless of which values occur.
	Levels []string
}

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.Num != nil {
		return len(c.Num)
	}
	return len(c.Str)
}

// Numeric reports whether the column holds numbers.
func (c *Column) Numeric() bool {
	return c.Str == nil
}

// Domain returns Levels when set, otherwise the sorted distinct non-missing
// values of a string column.
func (c *Column) Domain() []string {
	if c.Levels != nil {
		return append([]string{}, c.Levels...)
	}
	seen := map[string]bool{}
	for _, s := range c.Str {
		if s != "" {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Column) clone(name string) *Column {
	out := &Column{Name: name, Factor: c.Factor, Levels: c.Levels}
	if c.Numeric() {
		out.Num = append([]float64{}, c.Num...)
	} else {
		out.Str = append([]string{}, c.Str...)
	}
	return out
}

func (c *Column) pick(rows []int) *Column {
	out := &Column{Name: c.Name, Factor: c.Factor, Levels: c.Levels}
	if c.Numeric() {
		out.Num = make([]float64, len(rows))
		for i, r := range rows {
			out.Num[i] = c.Num[r]
		}
		return out
	}
	out.Str = make([]string, len(rows))
	for i, r := range rows {
		out.Str[i] = c.Str[r]
	}
	return out
}

func (c *Column) cell(row int) string {
	if c.Numeric() {
		v := c.Num[row]
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return c.Str[row]
}

// Frame is an in-memory frame.
type Frame struct {
	Cols []*Column
}

// Rows returns the number of rows.
func (f *Frame) Rows() int {
	if len(f.Cols) == 0 {
		return 0
	}
	return f.Cols[0].Len()
}

// Names returns the column names.
func (f *Frame) Names() []string {
	out := make([]string, len(f.Cols))
	for i, c := range f.Cols {
		out[i] = c.Name
	}
	return out
}

// Col finds a column by name.
func (f *Frame) Col(name string) *Column {
	for _, c := range f.Cols {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *Frame) clone() *Frame {
	out := &Frame{Cols: make([]*Column, len(f.Cols))}
	for i, c := range f.Cols {
		out.Cols[i] = c.clone(c.Name)
	}
	return out
}

func (f *Frame) pick(rows []int) *Frame {
	out := &Frame{Cols: make([]*Column, len(f.Cols))}
	for i, c := range f.Cols {
		out.Cols[i] = c.pick(rows)
	}
	return out
}

// WriteCSV writes the frame with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return err
	}
	rec := make([]string, len(f.Cols))
	for r := 0; r < f.Rows(); r++ {
		for i, c := range f.Cols {
			rec[i] = c.cell(r)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSV reads a CSV with a header row. Columns whose non-empty cells all
// parse as numbers become numeric; the others become categorical.
func ParseCSV(r io.Reader) (*Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Frame{}, nil
	}
	header, body := records[0], records[1:]
	f := &Frame{}
	for j, name := range header {
		raw := make([]string, len(body))
		numeric := true
		for i, rec := range body {
			raw[i] = strings.TrimSpace(rec[j])
			if raw[i] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(raw[i], 64); err != nil {
				numeric = false
			}
		}
		col := &Column{Name: name}
		if numeric {
			col.Num = make([]float64, len(raw))
			for i, s := range raw {
				if s == "" {
					col.Num[i] = math.NaN()
					continue
				}
				col.Num[i], _ = strconv.ParseFloat(s, 64)
			}
		} else {
			col.Str = raw
			col.Factor = true
		}
		f.Cols = append(f.Cols, col)
	}
	return f, nil
}

func (c *Column) summary() map[string]interface{} {
	out := map[string]interface{}{"label": c.Name}
	var missing int
	switch {
	case c.Numeric():
		lo, hi, sum, n := math.Inf(1), math.Inf(-1), 0.0, 0
		for _, v := range c.Num {
			if math.IsNaN(v) {
				missing++
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			sum += v
			n++
		}
		out["type"] = "real"
		if n == 0 {
			out["mins"], out["maxs"], out["mean"] = []interface{}{"NaN"}, []interface{}{"NaN"}, "NaN"
		} else {
			out["mins"], out["maxs"], out["mean"] = []float64{lo}, []float64{hi}, sum/float64(n)
		}
	default:
		for _, s := range c.Str {
			if s == "" {
				missing++
			}
		}
		out["type"] = "string"
		if c.Factor {
			out["type"] = "enum"
			out["domain"] = c.Domain()
		}
		out["mins"], out["maxs"], out["mean"] = []interface{}{"NaN"}, []interface{}{"NaN"}, "NaN"
	}
	out["missing_count"] = missing
	return out
}
