package metrics

import (
	"strings"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// HitRatioTable は top-k ヒット率の表
// Ratios[i] は k = K[i] のときに正解クラスが上位 k 個の予測に含まれる割合
type HitRatioTable struct {
	K      []int
	Ratios []float64
}

// HitRatioTableFromTable はエンジンの "Top-N Hit Ratios" 表を変換する
func HitRatioTableFromTable(t *Table) (*HitRatioTable, error) {
	if t == nil || t.Rows() == 0 {
		return nil, errors.NewModelError("HitRatioTableFromTable", "empty table", errors.ErrEmptyData)
	}
	kCol, hCol := t.ColumnIndex("k"), t.ColumnIndex("hit_ratio")
	if kCol < 0 || hCol < 0 {
		return nil, errors.NewValueError("HitRatioTableFromTable", "missing k or hit_ratio column")
	}

	out := &HitRatioTable{}
	for i := 0; i < t.Rows(); i++ {
		k, okK := t.Float(i, kCol)
		h, okH := t.Float(i, hCol)
		if !okK || !okH {
			return nil, errors.NewValueError("HitRatioTableFromTable", "non-numeric row")
		}
		out.K = append(out.K, int(k))
		out.Ratios = append(out.Ratios, h)
	}
	return out, nil
}

// At は k に対応するヒット率を返す
func (h *HitRatioTable) At(k int) (float64, bool) {
	for i, kk := range h.K {
		if kk == k {
			return h.Ratios[i], true
		}
	}
	return 0, false
}

// MaxCriterion は二値分類の閾値別最良値の1行
type MaxCriterion struct {
	Metric    string
	Threshold float64
	Value     float64
}

// MaxCriteriaFromTable はエンジンの "Maximum Metrics" 表を変換する
func MaxCriteriaFromTable(t *Table) ([]MaxCriterion, error) {
	if t == nil || t.Rows() == 0 {
		return nil, errors.NewModelError("MaxCriteriaFromTable", "empty table", errors.ErrEmptyData)
	}
	mCol, tCol, vCol := t.ColumnIndex("metric"), t.ColumnIndex("threshold"), t.ColumnIndex("value")
	if mCol < 0 || tCol < 0 || vCol < 0 {
		return nil, errors.NewValueError("MaxCriteriaFromTable", "missing metric, threshold or value column")
	}

	out := make([]MaxCriterion, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		th, _ := t.Float(i, tCol)
		v, _ := t.Float(i, vCol)
		out = append(out, MaxCriterion{Metric: t.String(i, mCol), Threshold: th, Value: v})
	}
	return out, nil
}

// FindCriterion は "max accuracy" のような名前で行を探す
func FindCriterion(criteria []MaxCriterion, metric string) (MaxCriterion, bool) {
	for _, c := range criteria {
		if strings.EqualFold(c.Metric, metric) {
			return c, true
		}
	}
	return MaxCriterion{}, false
}
