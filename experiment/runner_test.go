package experiment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/engine/enginetest"
	"github.com/YuminosukeSato/remoteglm/pkg/config"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// syntheticCovtype builds n rows with the covtype column layout.
func syntheticCovtype(n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(ContinuousColumns, ","))
	b.WriteString(",Wilderness_Area,Soil_Type,Cover_Type\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,area_%d,type_%d,class_%d\n",
			2000+(i*37)%1000, (i*13)%360, i%40,
			(i*7)%500, (i*11)%200-50,
			(i*53)%3000,
			150+(i*3)%100, 200+i%50, 100+(i*9)%120,
			(i*71)%4000,
			i%4, i%6, i%3+1,
		)
	}
	return b.String()
}

func setup(t *testing.T) (*Runner, *enginetest.Server, *config.Config) {
	t.Helper()
	srv := enginetest.NewServer()
	t.Cleanup(srv.Close)
	srv.Files["/covtype.csv"] = syntheticCovtype(600)

	cfg := config.Default()
	cfg.EngineURL = srv.URL
	cfg.DataPath = "/covtype.csv"
	cfg.MemLimit = "1G"
	cfg.MinSupport = 5
	cfg.MinOccurrence = 1
	cfg.PollInterval = time.Millisecond
	require.NoError(t, cfg.Validate())

	c, err := engine.New(cfg.EngineURL, engine.WithPollInterval(cfg.PollInterval))
	require.NoError(t, err)
	return NewRunner(c, cfg), srv, cfg
}

func sum(rows []int64) int64 {
	var s int64
	for _, r := range rows {
		s += r
	}
	return s
}

func TestRun(t *testing.T) {
	runner, srv, cfg := setup(t)
	cfg.PlotDir = filepath.Join(t.TempDir(), "plots")

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(600), rep.Rows)
	assert.Equal(t, "Cover_Type", rep.Response)
	require.Len(t, rep.SplitRows, 3)
	assert.Equal(t, int64(600), sum(rep.SplitRows))
	require.Len(t, rep.BinomialSplitRows, 3)
	assert.Equal(t, int64(400), sum(rep.BinomialSplitRows))

	require.NotNil(t, rep.HitRatios)
	assert.Equal(t, []int{1, 2, 3}, rep.HitRatios.K)
	require.NotNil(t, rep.Confusion)
	assert.Equal(t, []string{"class_1", "class_2", "class_3"}, rep.Confusion.Labels)

	require.Len(t, rep.Plans, len(ContinuousColumns))
	// 12 predictors + 10 bucketed columns + 45 pairwise + 1 three-way interaction
	assert.Equal(t, 68, rep.FeatureColumns)

	ids := make([]string, len(rep.Binomial))
	for i, m := range rep.Binomial {
		ids[i] = m.ModelID
		assert.Equal(t, 1.0, m.Accuracy)
	}
	assert.Equal(t, []string{"glm_binom_v1", "glm_binom_feat_1", "glm_binom_feat_2", "glm_binom_feat_3"}, ids)
	assert.Equal(t, 12, rep.Binomial[0].Features)
	assert.Equal(t, 68, rep.Binomial[1].Features)

	assert.Equal(t, "multinomial", srv.BuildParams("glm_v1").Get("family"))
	assert.Equal(t, "L_BFGS", srv.BuildParams("glm_v1").Get("solver"))
	assert.Equal(t, "[0.0001]", srv.BuildParams("glm_v2").Get("lambda"))
	assert.Equal(t, "binomial", srv.BuildParams("glm_binom_v1").Get("family"))
	assert.Equal(t, "[0.001]", srv.BuildParams("glm_binom_feat_2").Get("lambda"))
	assert.Equal(t, "true", srv.BuildParams("glm_binom_feat_3").Get("lambda_search"))
	assert.Contains(t, srv.Requests(), "DELETE /3/DKV")

	_, err = os.Stat(filepath.Join(cfg.PlotDir, "Elevation.png"))
	assert.NoError(t, err)

	var out bytes.Buffer
	rep.Render(&out)
	for _, want := range []string{"glm_v1 validation hit ratios", "class_3", "Elevation_cut", "glm_binom_feat_3", "lambda_search=true"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestRunSharesBucketVocabulary(t *testing.T) {
	runner, srv, _ := setup(t)
	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	train := srv.BuildParams("glm_binom_feat_1").Get("training_frame")
	valid := srv.BuildParams("glm_binom_feat_1").Get("validation_frame")
	for _, p := range rep.Plans {
		assert.Equal(t, p.Labels, srv.Frame(train).Col(p.CutName()).Domain())
		assert.Equal(t, p.Labels, srv.Frame(valid).Col(p.CutName()).Domain())
	}
}

func TestRunUnhealthyEngine(t *testing.T) {
	runner, srv, _ := setup(t)
	srv.Healthy = false
	_, err := runner.Run(context.Background())
	assert.Error(t, err)
}

func TestRunMissingDataset(t *testing.T) {
	runner, _, cfg := setup(t)
	cfg.DataPath = "/absent.csv"
	_, err := runner.Run(context.Background())
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestRunFailedJob(t *testing.T) {
	runner, srv, _ := setup(t)
	srv.FailJobs = "Java heap space"
	_, err := runner.Run(context.Background())
	var je *errors.JobError
	require.True(t, errors.As(err, &je))
	assert.Contains(t, je.Error(), "Java heap space")
}

func TestReportBest(t *testing.T) {
	rep := &Report{Binomial: []ModelResult{
		{ModelID: "a", Accuracy: 0.7},
		{ModelID: "b", Accuracy: 0.9},
		{ModelID: "c", Accuracy: 0.8},
	}}
	best, ok := rep.Best()
	require.True(t, ok)
	assert.Equal(t, "b", best.ModelID)

	_, ok = (&Report{}).Best()
	assert.False(t, ok)
}
