package metrics

import (
	"fmt"
	"strconv"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// Table は エンジンが返す二次元表（TwoDimTable）のローカル表現
// Data は列優先で保持する: Data[col][row]
type Table struct {
	Name        string
	Description string
	Columns     []string
	Types       []string
	Data        [][]interface{}
}

// NewTable は列名と列優先データから Table を作成する
func NewTable(name string, columns []string, data [][]interface{}) (*Table, error) {
	if len(columns) != len(data) {
		return nil, errors.NewDimensionError("NewTable", len(columns), len(data), 1)
	}
	rows := -1
	for j, col := range data {
		if rows >= 0 && len(col) != rows {
			return nil, errors.NewValueError("NewTable",
				fmt.Sprintf("column %q has %d rows, expected %d", columns[j], len(col), rows))
		}
		rows = len(col)
	}
	return &Table{Name: name, Columns: columns, Data: data}, nil
}

// Rows は行数を返す
func (t *Table) Rows() int {
	if t == nil || len(t.Data) == 0 {
		return 0
	}
	return len(t.Data[0])
}

// ColumnIndex は名前に一致する最初の列の位置を返す。見つからなければ -1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell は (row, col) の値をそのまま返す
func (t *Table) Cell(row, col int) interface{} {
	if col < 0 || col >= len(t.Data) || row < 0 || row >= len(t.Data[col]) {
		return nil
	}
	return t.Data[col][row]
}

// Float は (row, col) の値を float64 として返す
// 数値文字列も受け付ける。"NaN" などエンジンが文字列で返す値もここで解釈する
func (t *Table) Float(row, col int) (float64, bool) {
	switch v := t.Cell(row, col).(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String は (row, col) の値を文字列として返す
func (t *Table) String(row, col int) string {
	switch v := t.Cell(row, col).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', 6, 64)
	default:
		return fmt.Sprint(v)
	}
}
