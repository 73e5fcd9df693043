// Package linear はリモートエンジン上で学習する線形モデルを提供する
package linear

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/YuminosukeSato/remoteglm/core/model"
	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/metrics"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// algo はモデルビルダーのアルゴリズム名
const algo = "glm"

var (
	_ model.Classifier       = (*GLM)(nil)
	_ model.HitRatioReporter = (*GLM)(nil)
)

// GLM はエンジン上で学習する一般化線形モデル
//
// ハイパーパラメータは Option で設定し、Fit でエンジンのモデルビルダーに送る。
// 学習後は学習・検証フレームの評価指標をエンジンから読み込んで保持する。
type GLM struct {
	state  *model.StateManager
	client *engine.Client
	logger log.Logger

	family        string
	solver        string
	lambda        *float64
	alpha         *float64
	lambdaSearch  bool
	modelID       string
	seed          *int64
	maxIterations int

	trained *engine.Model
}

// NewGLM は新しい GLM を作成する
//
// 使用例:
//
//	glm := linear.NewGLM(client,
//		linear.WithFamily(linear.FamilyMultinomial),
//		linear.WithSolver(linear.SolverLBFGS),
//		linear.WithModelID("glm_v1"),
//	)
//	err := glm.Fit(ctx, x, "Cover_Type", train, valid)
func NewGLM(c *engine.Client, opts ...Option) *GLM {
	g := &GLM{
		state:  model.NewStateManager(),
		client: c,
		family: FamilyGaussian,
		logger: log.GetLoggerWithName("linear.glm"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fit はエンジン上でモデルを学習させ、評価指標を読み込む
//
// パラメータ:
//   - x: 説明変数の列。空なら y 以外の全列
//   - y: 目的変数の列
//   - train: 学習フレーム
//   - valid: 検証フレーム。nil なら検証なし
//
// 戻り値:
//   - error: 列が見つからない場合、エンジンがパラメータを拒否した場合、ジョブが失敗した場合
func (g *GLM) Fit(ctx context.Context, x []string, y string, train, valid model.FrameRef) error {
	if g.client == nil {
		return errors.NewValueError("GLM.Fit", "no engine client")
	}
	if train == nil {
		return errors.NewValidationError("train", "training frame is required", nil)
	}
	x, err := selectColumns(train.Columns(), x, y)
	if err != nil {
		return err
	}

	g.state.Reset()
	g.trained = nil

	params := g.params(x, y, train, valid)
	start := time.Now()
	job, err := g.client.BuildModel(ctx, algo, params)
	if err != nil {
		return err
	}
	m, err := g.client.Model(ctx, job.Dest)
	if err != nil {
		return err
	}

	g.trained = m
	g.state.SetFitted(job.Dest)
	var nobs int
	if m.Training != nil {
		nobs = int(m.Training.NObs)
	}
	g.state.SetDimensions(len(x), nobs)

	g.logger.Info("GLM fitted",
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, job.Dest,
		log.FamilyKey, g.family,
		log.SolverKey, g.solver,
		log.FeaturesKey, len(x),
		log.SamplesKey, nobs,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// selectColumns は説明変数を検証し、未指定なら y 以外の全列を返す
func selectColumns(columns, x []string, y string) ([]string, error) {
	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}
	if !has[y] {
		return nil, errors.Wrapf(errors.ErrColumnNotFound, "response column %q", y)
	}
	if len(x) == 0 {
		for _, c := range columns {
			if c != y {
				x = append(x, c)
			}
		}
		return x, nil
	}
	for _, c := range x {
		if !has[c] {
			return nil, errors.Wrapf(errors.ErrColumnNotFound, "predictor %q", c)
		}
		if c == y {
			return nil, errors.NewValidationError("x", "response column listed as predictor", c)
		}
	}
	return x, nil
}

// params はモデルビルダーに送るフォームを組み立てる
func (g *GLM) params(x []string, y string, train, valid model.FrameRef) url.Values {
	p := url.Values{}
	p.Set("training_frame", train.Key())
	if valid != nil {
		p.Set("validation_frame", valid.Key())
	}
	p.Set("response_column", y)

	keep := make(map[string]bool, len(x)+1)
	for _, c := range x {
		keep[c] = true
	}
	keep[y] = true
	var ignored []string
	for _, c := range train.Columns() {
		if !keep[c] {
			ignored = append(ignored, c)
		}
	}
	if len(ignored) > 0 {
		p.Set("ignored_columns", engine.ListParam(ignored))
	}

	for k, v := range g.GetParams() {
		switch val := v.(type) {
		case string:
			p.Set(k, val)
		case bool:
			p.Set(k, strconv.FormatBool(val))
		case int:
			p.Set(k, strconv.Itoa(val))
		case int64:
			p.Set(k, strconv.FormatInt(val, 10))
		case float64:
			p.Set(k, "["+strconv.FormatFloat(val, 'g', -1, 64)+"]")
		}
	}
	return p
}

// GetParams はエンジンのパラメータ名をキーとしたハイパーパラメータを返す。未設定の値は含まない
func (g *GLM) GetParams() map[string]interface{} {
	out := map[string]interface{}{
		"family":        g.family,
		"lambda_search": g.lambdaSearch,
	}
	if g.solver != "" {
		out["solver"] = g.solver
	}
	if g.modelID != "" {
		out["model_id"] = g.modelID
	}
	if g.lambda != nil {
		out["lambda"] = *g.lambda
	}
	if g.alpha != nil {
		out["alpha"] = *g.alpha
	}
	if g.seed != nil {
		out["seed"] = *g.seed
	}
	if g.maxIterations > 0 {
		out["max_iterations"] = g.maxIterations
	}
	return out
}

// IsFitted はモデルが学習済みかどうかを返す
func (g *GLM) IsFitted() bool {
	return g.state.IsFitted()
}

// ModelKey はエンジン上のモデルキーを返す。学習前は空文字列
func (g *GLM) ModelKey() string {
	return g.state.Key()
}

// Model はエンジンから読み込んだ学習済みモデルを返す
func (g *GLM) Model() (*engine.Model, error) {
	if err := g.state.RequireFitted("GLM", "Model"); err != nil {
		return nil, err
	}
	return g.trained, nil
}

func (g *GLM) scores(valid bool, method string) (*engine.ModelMetrics, error) {
	if err := g.state.RequireFitted("GLM", method); err != nil {
		return nil, err
	}
	if valid {
		if g.trained.Validation == nil {
			return nil, errors.NewValueError("GLM."+method, "model has no validation metrics")
		}
		return g.trained.Validation, nil
	}
	if g.trained.Training == nil {
		return nil, errors.NewValueError("GLM."+method, "model has no training metrics")
	}
	return g.trained.Training, nil
}

// HitRatioTable は top-k ヒット率の表を返す。多クラス分類のみ
func (g *GLM) HitRatioTable(valid bool) (*metrics.HitRatioTable, error) {
	mm, err := g.scores(valid, "HitRatioTable")
	if err != nil {
		return nil, err
	}
	if mm.HitRatios == nil {
		return nil, errors.NewValueError("GLM.HitRatioTable", "no hit ratios for "+mm.Category+" model")
	}
	return metrics.HitRatioTableFromTable(mm.HitRatios)
}

// HitRatios は k=1.. のヒット率を返す
func (g *GLM) HitRatios(valid bool) ([]float64, error) {
	h, err := g.HitRatioTable(valid)
	if err != nil {
		return nil, err
	}
	return h.Ratios, nil
}

// ConfusionMatrix は混同行列を返す
func (g *GLM) ConfusionMatrix(valid bool) (*metrics.ConfusionMatrix, error) {
	mm, err := g.scores(valid, "ConfusionMatrix")
	if err != nil {
		return nil, err
	}
	if mm.ConfusionMatrix == nil {
		return nil, errors.NewValueError("GLM.ConfusionMatrix", "no confusion matrix for "+mm.Category+" model")
	}
	return metrics.ConfusionMatrixFromTable(mm.ConfusionMatrix)
}

// Accuracy は正解率を返す
//
// 二値分類ではエンジンの "max accuracy" 行を使い、それ以外は混同行列の trace/total。
func (g *GLM) Accuracy(valid bool) (float64, error) {
	mm, err := g.scores(valid, "Accuracy")
	if err != nil {
		return 0, err
	}
	if mm.MaxCriteria != nil {
		criteria, err := metrics.MaxCriteriaFromTable(mm.MaxCriteria)
		if err != nil {
			return 0, err
		}
		if c, ok := metrics.FindCriterion(criteria, "max accuracy"); ok {
			return c.Value, nil
		}
	}
	cm, err := g.ConfusionMatrix(valid)
	if err != nil {
		return 0, err
	}
	return cm.Accuracy(), nil
}
