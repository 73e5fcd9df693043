package metrics

import (
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// 混同行列の表で集計行・集計列として扱う名前
const (
	cmErrorColumn = "Error"
	cmRateColumn  = "Rate"
	cmTotalsRow   = "Totals"
)

// ConfusionMatrix は多クラス混同行列
// Counts の行が実際のクラス、列が予測クラス
type ConfusionMatrix struct {
	Labels []string
	Counts *mat.Dense
}

// NewConfusionMatrix はラベルと行優先の件数から混同行列を作成する
func NewConfusionMatrix(labels []string, counts []float64) (*ConfusionMatrix, error) {
	k := len(labels)
	if k == 0 {
		return nil, errors.NewModelError("NewConfusionMatrix", "no labels", errors.ErrEmptyData)
	}
	if len(counts) != k*k {
		return nil, errors.NewDimensionError("NewConfusionMatrix", k*k, len(counts), 1)
	}
	return &ConfusionMatrix{Labels: labels, Counts: mat.NewDense(k, k, counts)}, nil
}

// ConfusionMatrixFromTable はエンジンの混同行列表を変換する
//
// エンジンの表は先頭に行見出し列、末尾に "Error" と "Rate" 列、最終行に "Totals" を持つ。
// 行見出し列の名前は空文字列。
func ConfusionMatrixFromTable(t *Table) (*ConfusionMatrix, error) {
	if t == nil || t.Rows() == 0 {
		return nil, errors.NewModelError("ConfusionMatrixFromTable", "empty table", errors.ErrEmptyData)
	}

	var labels []string
	var cols []int
	for j, name := range t.Columns {
		if name == "" || name == cmErrorColumn || name == cmRateColumn {
			continue
		}
		labels = append(labels, name)
		cols = append(cols, j)
	}
	k := len(labels)

	rows := t.Rows()
	if last := t.ColumnIndex(""); last >= 0 && t.String(rows-1, last) == cmTotalsRow {
		rows--
	}
	if rows != k {
		return nil, errors.NewDimensionError("ConfusionMatrixFromTable", k, rows, 0)
	}

	counts := make([]float64, 0, k*k)
	for i := 0; i < k; i++ {
		for _, j := range cols {
			v, ok := t.Float(i, j)
			if !ok {
				return nil, errors.NewValueError("ConfusionMatrixFromTable", "non-numeric cell in "+t.Columns[j])
			}
			counts = append(counts, v)
		}
	}
	return NewConfusionMatrix(labels, counts)
}

// Total は全件数を返す
func (cm *ConfusionMatrix) Total() float64 {
	return mat.Sum(cm.Counts)
}

// Correct は対角成分の合計を返す
func (cm *ConfusionMatrix) Correct() float64 {
	return mat.Trace(cm.Counts)
}

// Accuracy は正解率 trace/total を返す
// 合計が0の場合は UndefinedMetricWarning を出して 0 を返す
func (cm *ConfusionMatrix) Accuracy() float64 {
	total := cm.Total()
	if total == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("accuracy", "empty confusion matrix", 0))
		return 0
	}
	return cm.Correct() / total
}

// ClassErrors はクラスごとの誤り率を返す（行 = 実際のクラス）
func (cm *ConfusionMatrix) ClassErrors() []float64 {
	k := len(cm.Labels)
	out := make([]float64, k)
	for i := 0; i < k; i++ {
		row := mat.Sum(cm.Counts.RowView(i))
		if row == 0 {
			continue
		}
		out[i] = 1 - cm.Counts.At(i, i)/row
	}
	return out
}
