// Package experiment runs the forest cover type GLM walkthrough end to end
// against a remote engine: import, split, multinomial and binomial GLMs, and
// a feature-engineered binomial GLM on bucketed and interacted columns.
package experiment

import (
	"context"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/frame"
	"github.com/YuminosukeSato/remoteglm/linear"
	"github.com/YuminosukeSato/remoteglm/pkg/config"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
	"github.com/YuminosukeSato/remoteglm/preprocessing"
)

// DatasetKey is the engine key of the imported dataset.
const DatasetKey = "covtype.hex"

// ContinuousColumns are bucketed during feature engineering.
var ContinuousColumns = []string{
	"Elevation", "Aspect", "Slope",
	"Horizontal_Distance_To_Hydrology", "Vertical_Distance_To_Hydrology",
	"Horizontal_Distance_To_Roadways",
	"Hillshade_9am", "Hillshade_Noon", "Hillshade_3pm",
	"Horizontal_Distance_To_Fire_Points",
}

// FactorColumns are converted to categorical during feature engineering.
var FactorColumns = []string{"Wilderness_Area", "Soil_Type"}

// BinomialClasses are the two response classes kept for the binomial models.
var BinomialClasses = []string{"class_1", "class_2"}

// Runner drives one experiment run.
type Runner struct {
	client *engine.Client
	cfg    *config.Config
	logger log.Logger
}

// NewRunner creates a Runner. cfg must already be validated.
func NewRunner(c *engine.Client, cfg *config.Config) *Runner {
	return &Runner{
		client: c,
		cfg:    cfg,
		logger: log.GetLoggerWithName("experiment"),
	}
}

// Run executes every step and returns the collected results. The engine
// session stays open; the caller ends it.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{Dataset: r.cfg.DataPath}

	cloud, err := r.client.Connect(ctx, r.cfg.MemLimitBytes())
	if err != nil {
		return nil, err
	}
	rep.Cloud = cloud
	if err := r.client.RemoveAll(ctx); err != nil {
		return nil, err
	}

	r.phase(log.PhaseLoading)
	data, err := frame.Import(ctx, r.client, r.cfg.DataPath, DatasetKey)
	if err != nil {
		return nil, err
	}
	rep.Rows = data.Rows()

	y := r.cfg.Response
	if y == "" {
		cols := data.Columns()
		y = cols[len(cols)-1]
	}
	rep.Response = y

	splits, err := data.Split(ctx, r.cfg.SplitRatios, r.cfg.Seed)
	if err != nil {
		return nil, err
	}
	rep.SplitRows = rowsOf(splits)
	train, valid := splits[0], splits[1]

	r.phase(log.PhaseTraining)
	if err := r.multinomial(ctx, rep, y, train, valid); err != nil {
		return nil, err
	}

	binom, err := r.binomialSplits(ctx, data, y)
	if err != nil {
		return nil, err
	}
	rep.BinomialSplitRows = rowsOf(binom)
	res, err := r.fit(ctx, y, binom[0], binom[1], "glm_binom_v1",
		linear.WithFamily(linear.FamilyBinomial),
		linear.WithSolver(linear.SolverLBFGS),
	)
	if err != nil {
		return nil, err
	}
	rep.Binomial = append(rep.Binomial, res)

	r.phase(log.PhaseFeatureEng)
	featured, plans, err := r.engineer(ctx, binom)
	if err != nil {
		return nil, err
	}
	rep.Plans = plans
	rep.FeatureColumns = len(featured[0].Columns()) - 1

	variants := []struct {
		id   string
		opts []linear.Option
	}{
		{"glm_binom_feat_1", []linear.Option{linear.WithSolver(linear.SolverLBFGS)}},
		{"glm_binom_feat_2", []linear.Option{linear.WithLambda(1e-3)}},
		{"glm_binom_feat_3", []linear.Option{linear.WithLambdaSearch(true)}},
	}
	for _, v := range variants {
		opts := append([]linear.Option{linear.WithFamily(linear.FamilyBinomial)}, v.opts...)
		res, err := r.fit(ctx, y, featured[0], featured[1], v.id, opts...)
		if err != nil {
			return nil, err
		}
		rep.Binomial = append(rep.Binomial, res)
	}

	r.phase(log.PhaseReporting)
	return rep, nil
}

func (r *Runner) phase(p string) {
	r.logger.Info("Phase started", log.PhaseKey, p)
}

// multinomial fits glm_v1 and glm_v2 on all classes.
func (r *Runner) multinomial(ctx context.Context, rep *Report, y string, train, valid *frame.Frame) error {
	v1 := linear.NewGLM(r.client,
		linear.WithFamily(linear.FamilyMultinomial),
		linear.WithSolver(linear.SolverLBFGS),
		linear.WithModelID("glm_v1"),
	)
	if err := v1.Fit(ctx, nil, y, train, valid); err != nil {
		return err
	}
	hits, err := v1.HitRatioTable(true)
	if err != nil {
		return err
	}
	rep.HitRatios = hits
	r.logger.Info("Validation hit ratios", log.ModelNameKey, "glm_v1", log.HitRatioKey, hits.Ratios[0])

	v2 := linear.NewGLM(r.client,
		linear.WithFamily(linear.FamilyMultinomial),
		linear.WithLambda(1e-4),
		linear.WithModelID("glm_v2"),
	)
	if err := v2.Fit(ctx, nil, y, train, valid); err != nil {
		return err
	}
	cm, err := v2.ConfusionMatrix(true)
	if err != nil {
		return err
	}
	rep.Confusion = cm
	r.logger.Info("Validation confusion matrix", log.ModelNameKey, "glm_v2", log.AccuracyKey, cm.Accuracy())
	return nil
}

// binomialSplits keeps the rows of the two binomial classes, drops the other
// response levels and splits again with the configured ratios and seed.
func (r *Runner) binomialSplits(ctx context.Context, data *frame.Frame, y string) ([]*frame.Frame, error) {
	parts := make([]*frame.Frame, len(BinomialClasses))
	for i, class := range BinomialClasses {
		p, err := data.Filter(ctx, y, class)
		if err != nil {
			return nil, err
		}
		parts[i] = p
	}
	subset, err := parts[0].Rbind(ctx, parts[1:]...)
	if err != nil {
		return nil, err
	}
	subset, err = subset.Refactor(ctx, y)
	if err != nil {
		return nil, err
	}
	return subset.Split(ctx, r.cfg.SplitRatios, r.cfg.Seed)
}

// engineer buckets the continuous columns with boundaries computed on the
// training split, converts the factor columns and adds interaction columns.
func (r *Runner) engineer(ctx context.Context, splits []*frame.Frame) ([]*frame.Frame, []*preprocessing.BinningPlan, error) {
	binner := preprocessing.NewSupportBinner(
		preprocessing.WithBins(r.cfg.Bins),
		preprocessing.WithMinSupport(r.cfg.MinSupport),
		preprocessing.WithWorkers(r.cfg.Workers),
	)
	plans, err := binner.FitColumns(ctx, splits[0], ContinuousColumns)
	if err != nil {
		return nil, nil, err
	}
	if r.cfg.PlotDir != "" {
		if err := r.plot(ctx, splits[0], plans); err != nil {
			return nil, nil, err
		}
	}

	out, err := preprocessing.CutColumns(ctx, plans, splits...)
	if err != nil {
		return nil, nil, err
	}
	for i, f := range out {
		for _, col := range FactorColumns {
			if f, err = f.AsFactor(ctx, col); err != nil {
				return nil, nil, err
			}
		}
		out[i] = f
	}

	pairwise, threeWay := preprocessing.DefaultPairwise(), preprocessing.DefaultThreeWay()
	for _, s := range []*preprocessing.InteractionSpec{&pairwise, &threeWay} {
		s.MaxFactors = r.cfg.MaxFactors
		s.MinOccurrence = r.cfg.MinOccurrence
	}
	out, err = preprocessing.AddInteractions(ctx, []preprocessing.InteractionSpec{pairwise, threeWay}, out...)
	if err != nil {
		return nil, nil, err
	}
	return out, plans, nil
}

func (r *Runner) plot(ctx context.Context, ref *frame.Frame, plans []*preprocessing.BinningPlan) error {
	if err := os.MkdirAll(r.cfg.PlotDir, 0o755); err != nil {
		return errors.Wrapf(err, "create plot dir %s", r.cfg.PlotDir)
	}
	for _, p := range plans {
		values, err := ref.Column(ctx, p.Column)
		if err != nil {
			return err
		}
		path := filepath.Join(r.cfg.PlotDir, p.Column+".png")
		if err := preprocessing.PlotHistogram(values, p, r.cfg.Bins, path); err != nil {
			return err
		}
		r.logger.Debug("Histogram saved", log.ColumnKey, p.Column, "path", path)
	}
	return nil
}

// fit trains one binomial GLM on all columns but y and records its
// validation accuracy.
func (r *Runner) fit(ctx context.Context, y string, train, valid *frame.Frame, id string, opts ...linear.Option) (ModelResult, error) {
	opts = append(opts, linear.WithModelID(id))
	glm := linear.NewGLM(r.client, opts...)
	if err := glm.Fit(ctx, nil, y, train, valid); err != nil {
		return ModelResult{}, err
	}
	acc, err := glm.Accuracy(true)
	if err != nil {
		return ModelResult{}, err
	}
	r.logger.Info("Validation accuracy", log.ModelNameKey, id, log.AccuracyKey, acc)
	return ModelResult{
		ModelID:  glm.ModelKey(),
		Params:   glm.GetParams(),
		Features: len(train.Columns()) - 1,
		Accuracy: acc,
	}, nil
}

func rowsOf(frames []*frame.Frame) []int64 {
	out := make([]int64, len(frames))
	for i, f := range frames {
		out[i] = f.Rows()
	}
	return out
}
