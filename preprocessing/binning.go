package preprocessing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/remoteglm/core/parallel"
	"github.com/YuminosukeSato/remoteglm/frame"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// ビン分割の既定値
const (
	DefaultBins       = 20
	DefaultMinSupport = 1000
	// CutSuffix は分割後の列名に付ける接尾辞
	CutSuffix = "_cut"
)

// SupportBinner は連続値の列を、十分なサンプル数を持つ区間に分割する
//
// 値域を Bins 個の等幅ビンに分け、隣接する両方のビンが MinSupport を超える
// サンプルを持つ境界だけを残す。両端には観測値の最小値-1 と最大値+1 を番兵として置く。
type SupportBinner struct {
	// Bins は最初に作る等幅ビンの数 (デフォルト: 20)
	Bins int

	// MinSupport は境界を残すために隣接ビンが超えるべきサンプル数 (デフォルト: 1000)
	MinSupport float64

	// Workers は FitColumns で境界計算に使うワーカー数。0 以下なら CPU 数
	Workers int

	logger log.Logger
}

// BinnerOption は SupportBinner の設定関数
type BinnerOption func(*SupportBinner)

// WithBins は等幅ビンの数を設定する
func WithBins(n int) BinnerOption {
	return func(b *SupportBinner) {
		b.Bins = n
	}
}

// WithMinSupport は境界を残すための最小サンプル数を設定する
func WithMinSupport(n float64) BinnerOption {
	return func(b *SupportBinner) {
		b.MinSupport = n
	}
}

// WithWorkers は並列ワーカー数を設定する
func WithWorkers(n int) BinnerOption {
	return func(b *SupportBinner) {
		b.Workers = n
	}
}

// NewSupportBinner は新しい SupportBinner を作成する
//
// 使用例:
//
//	binner := preprocessing.NewSupportBinner(preprocessing.WithMinSupport(500))
//	plan, err := binner.Fit("Elevation", values)
//	labels := plan.Transform(values)
func NewSupportBinner(opts ...BinnerOption) *SupportBinner {
	b := &SupportBinner{
		Bins:       DefaultBins,
		MinSupport: DefaultMinSupport,
		logger:     log.GetLoggerWithName("preprocessing.binning"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BinningPlan は1列分の区間境界とラベル
//
// 区間 i は右閉区間 (Boundaries[i], Boundaries[i+1]] で、ラベルは Labels[i]。
type BinningPlan struct {
	Column     string
	Boundaries []float64
	Labels     []string
	// Counts は参照サンプルでの各区間の件数
	Counts []float64
}

// CutName は分割後の列名を返す
func (p *BinningPlan) CutName() string {
	return p.Column + CutSuffix
}

// Buckets は区間の数を返す
func (p *BinningPlan) Buckets() int {
	return len(p.Labels)
}

// Bucket は値 v が属する区間の番号を返す。欠損値や値域外なら -1
func (p *BinningPlan) Bucket(v float64) int {
	b := p.Boundaries
	if math.IsNaN(v) || len(b) < 2 || v <= b[0] || v > b[len(b)-1] {
		return -1
	}
	// v 以上となる最初の境界が区間の右端
	return sort.SearchFloat64s(b, v) - 1
}

// Transform は各値をラベルに変換する。欠損値や値域外の値は空文字列 (NA) になる
func (p *BinningPlan) Transform(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if k := p.Bucket(v); k >= 0 {
			out[i] = p.Labels[k]
		}
	}
	return out
}

// Fit は列のサンプルから区間境界を計算する
//
// パラメータ:
//   - column: 列名 (ラベルの接頭辞になる)
//   - values: 列のサンプル。NaN は無視する
//
// 戻り値:
//   - *BinningPlan: 境界、ラベル、区間ごとの件数
//   - error: 有限値が一つもない場合や設定が不正な場合
func (b *SupportBinner) Fit(column string, values []float64) (*BinningPlan, error) {
	boundaries, err := ComputeBoundaries(values, b.Bins, b.MinSupport)
	if err != nil {
		return nil, errors.NewBinningError(column, "compute boundaries", err)
	}

	plan := &BinningPlan{
		Column:     column,
		Boundaries: boundaries,
		Labels:     make([]string, len(boundaries)-1),
		Counts:     make([]float64, len(boundaries)-1),
	}
	for i := range plan.Labels {
		plan.Labels[i] = fmt.Sprintf("%s_%d", column, i)
	}
	for _, v := range values {
		if k := plan.Bucket(v); k >= 0 {
			plan.Counts[k]++
		}
	}

	b.logger.Debug("Column binned",
		log.ColumnKey, column,
		log.SamplesKey, len(values),
		log.BucketsKey, plan.Buckets(),
	)
	return plan, nil
}

// ComputeBoundaries は等幅ヒストグラムから、サンプル数の少ない境界を落とした境界列を返す
//
// 戻り値は [min-1, 残った内部境界..., max+1] で、狭義単調増加。
// 値が大きく ±1 が丸めで消える場合、両端は min の直前と max の直後の浮動小数点数になる。
// 内部境界 e[i+1] は、両隣のビン i と i+1 がどちらも minSupport を超える件数を持つ場合だけ残る。
// すべての値が等しい場合は [v-0.5, v+0.5] を値域とみなす。
func ComputeBoundaries(values []float64, bins int, minSupport float64) ([]float64, error) {
	if bins < 1 {
		return nil, errors.NewValidationError("bins", "must be at least 1", bins)
	}

	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	sort.Float64s(finite)

	lo, hi := floats.Min(finite), floats.Max(finite)
	vmin, vmax := lo, hi
	if lo == hi {
		lo, hi = below(lo, 0.5), above(hi, 0.5)
	}

	edges := make([]float64, bins+1)
	floats.Span(edges, lo, hi)

	// stat.Histogram は右端を含まないので、最大値が最後のビンに入るよう右端をずらす
	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, finite, nil)

	boundaries := []float64{below(vmin, 1)}
	for i := 0; i+1 < bins; i++ {
		e := edges[i+1]
		if counts[i] > minSupport && counts[i+1] > minSupport && e > boundaries[len(boundaries)-1] && e < vmax {
			boundaries = append(boundaries, e)
		}
	}
	return append(boundaries, above(vmax, 1)), nil
}

// below は v-d を返す。|v| が大きく v-d が v に丸められる場合は v の直前の浮動小数点数を返す
func below(v, d float64) float64 {
	if w := v - d; w < v {
		return w
	}
	return math.Nextafter(v, math.Inf(-1))
}

// above は v+d を返す。丸めで v と等しくなる場合は v の直後の浮動小数点数を返す
func above(v, d float64) float64 {
	if w := v + d; w > v {
		return w
	}
	return math.Nextafter(v, math.Inf(1))
}

// FitColumns は参照フレームの各列を取得し、列ごとの区間境界を計算する
//
// 列の取得はエンジンへ順番に行い、境界の計算は Workers 個のゴルーチンで並列に行う。
func (b *SupportBinner) FitColumns(ctx context.Context, ref *frame.Frame, columns []string) ([]*BinningPlan, error) {
	samples := make([][]float64, len(columns))
	for i, col := range columns {
		v, err := ref.Column(ctx, col)
		if err != nil {
			return nil, errors.NewBinningError(col, "materialize column", err)
		}
		samples[i] = v
	}

	plans := make([]*BinningPlan, len(columns))
	err := parallel.ForEachWithThreshold(ctx, len(columns), 1, b.Workers, func(_ context.Context, i int) error {
		plan, err := b.Fit(columns[i], samples[i])
		if err != nil {
			return err
		}
		plans[i] = plan
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("Binning plans computed",
		log.OperationKey, log.OperationCut,
		log.FrameKey, ref.Key(),
		"columns", len(columns),
	)
	return plans, nil
}

// CutColumns は同じ区間境界を各フレームに適用し、列ごとに "<列名>_cut" のカテゴリ列を追加する
//
// 境界を一度だけ計算して全フレームに使うので、train/valid/test で同じラベル集合になる。
func CutColumns(ctx context.Context, plans []*BinningPlan, frames ...*frame.Frame) ([]*frame.Frame, error) {
	out := make([]*frame.Frame, len(frames))
	for i, f := range frames {
		cur := f
		for _, p := range plans {
			next, err := cur.Cut(ctx, p.Column, p.Boundaries, p.Labels, p.CutName())
			if err != nil {
				return nil, errors.NewBinningError(p.Column, "cut "+cur.Key(), err)
			}
			cur = next
		}
		out[i] = cur
	}
	return out, nil
}
