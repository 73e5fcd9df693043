package preprocessing

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// PlotHistogram は列の等幅ヒストグラムに、残った区間境界を縦線で重ねた PNG を保存する
//
// パラメータ:
//   - values: 列のサンプル。NaN は無視する
//   - plan: 境界。両端の番兵も描く
//   - bins: ヒストグラムのビン数
//   - path: 保存先。拡張子で形式が決まる (.png, .svg, .pdf)
func PlotHistogram(values []float64, plan *BinningPlan, bins int, path string) error {
	finite := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return errors.NewBinningError(plan.Column, "plot", errors.ErrEmptyData)
	}

	p := plot.New()
	p.Title.Text = plan.Column
	p.X.Label.Text = plan.Column
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(finite, bins)
	if err != nil {
		return errors.Wrapf(err, "histogram of %s", plan.Column)
	}
	p.Add(h)

	var top float64
	for _, b := range h.Bins {
		top = math.Max(top, b.Weight)
	}
	for _, x := range plan.Boundaries {
		l, err := plotter.NewLine(plotter.XYs{{X: x, Y: 0}, {X: x, Y: top}})
		if err != nil {
			return errors.Wrapf(err, "boundary line of %s", plan.Column)
		}
		l.LineStyle.Width = vg.Points(1)
		l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(l)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
