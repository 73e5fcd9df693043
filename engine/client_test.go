package engine_test

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/engine/enginetest"
	"github.com/YuminosukeSato/remoteglm/engine/rapids"
	"github.com/YuminosukeSato/remoteglm/metrics"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

const covCSV = `Elevation,Soil_Type,Cover_Type
2596,type_29,class_1
2590,type_29,class_2
2804,type_12,class_1
2785,type_30,class_2
2595,type_29,class_3
2579,type_29,class_1
`

func newClient(t *testing.T) (*engine.Client, *enginetest.Server) {
	t.Helper()
	srv := enginetest.NewServer()
	t.Cleanup(srv.Close)

	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	c, err := engine.New(srv.URL,
		engine.WithPollInterval(time.Millisecond),
		engine.WithLogger(provider.GetLoggerWithName("engine")),
	)
	require.NoError(t, err)
	return c, srv
}

func connected(t *testing.T) (*engine.Client, *enginetest.Server) {
	t.Helper()
	c, srv := newClient(t)
	_, err := c.Connect(context.Background(), 0)
	require.NoError(t, err)
	return c, srv
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := engine.New("localhost:54321")
	assert.Error(t, err)

	var ve *errors.ValidationError
	_, err = engine.New("ftp://engine")
	require.Error(t, err)
	assert.True(t, errors.As(err, &ve))
}

func TestConnect(t *testing.T) {
	c, srv := newClient(t)
	ctx := context.Background()

	assert.Empty(t, c.SessionID())
	cloud, err := c.Connect(ctx, 1<<30)
	require.NoError(t, err)
	assert.Equal(t, "fake", cloud.Name)
	assert.True(t, cloud.Healthy)
	assert.Equal(t, int64(4<<30), cloud.FreeMem())
	assert.NotEmpty(t, c.SessionID())

	require.NoError(t, c.EndSession(ctx))
	assert.Empty(t, c.SessionID())
	assert.Contains(t, srv.Requests(), "POST /4/sessions")
}

func TestConnectWarnsOnLowMemory(t *testing.T) {
	c, srv := newClient(t)
	srv.FreeMem = 1 << 20

	var warned []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })

	_, err := c.Connect(context.Background(), 2<<30)
	require.NoError(t, err)
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0].Error(), "2.0G")
}

func TestConnectUnhealthy(t *testing.T) {
	c, srv := newClient(t)
	srv.Healthy = false

	_, err := c.Connect(context.Background(), 0)
	assert.Error(t, err)
	assert.Empty(t, c.SessionID())
}

func TestImportFileAndSummary(t *testing.T) {
	c, srv := connected(t)
	srv.Files["/data/covtype.csv"] = covCSV
	srv.JobPolls = 3
	ctx := context.Background()

	key, err := c.ImportFile(ctx, "/data/covtype.csv", "covtype.hex")
	require.NoError(t, err)
	assert.Equal(t, "covtype.hex", key)

	info, err := c.Frame(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Rows)
	assert.Equal(t, []string{"Elevation", "Soil_Type", "Cover_Type"}, info.ColumnNames())

	elev, ok := info.Column("Elevation")
	require.True(t, ok)
	assert.Equal(t, 2579.0, elev.Min())
	assert.Equal(t, 2804.0, elev.Max())
	assert.False(t, elev.IsCategorical())

	cover, ok := info.Column("Cover_Type")
	require.True(t, ok)
	assert.True(t, cover.IsCategorical())
	assert.Equal(t, []string{"class_1", "class_2", "class_3"}, cover.Domain)
}

func TestImportFileMissing(t *testing.T) {
	c, _ := connected(t)
	_, err := c.ImportFile(context.Background(), "/nope.csv", "x.hex")

	var ve *errors.ValidationError
	require.Error(t, err)
	assert.True(t, errors.As(err, &ve))
}

func TestFrameNotFound(t *testing.T) {
	c, _ := connected(t)
	_, err := c.Frame(context.Background(), "missing")

	var re *errors.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 404, re.StatusCode)
	assert.Contains(t, re.Message, "missing")
}

func TestWaitJobFailed(t *testing.T) {
	c, srv := connected(t)
	srv.Files["/f.csv"] = covCSV
	srv.FailJobs = "java.lang.OutOfMemoryError"

	_, err := c.ImportFile(context.Background(), "/f.csv", "f.hex")
	var je *errors.JobError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, engine.JobFailed, je.Status)
	assert.Contains(t, je.Exception, "OutOfMemoryError")
}

func TestWaitJobCancelledContext(t *testing.T) {
	c, srv := connected(t)
	srv.Files["/f.csv"] = covCSV
	srv.JobPolls = 1000

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.ImportFile(ctx, "/f.csv", "f.hex")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRapidsRequiresSession(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Rapids(context.Background(), rapids.Key("x"))
	assert.True(t, errors.Is(err, errors.ErrNoSession))
}

func TestRapidsAssignAndDownload(t *testing.T) {
	c, srv := connected(t)
	srv.Files["/f.csv"] = covCSV
	ctx := context.Background()
	_, err := c.ImportFile(ctx, "/f.csv", "cov.hex")
	require.NoError(t, err)

	pred := rapids.Eq(rapids.Col(rapids.Key("cov.hex"), "Cover_Type"), rapids.Str("class_1"))
	res, err := c.Assign(ctx, "c1", rapids.Rows(rapids.Key("cov.hex"), pred))
	require.NoError(t, err)
	assert.Equal(t, "c1", res.Key)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, 3, res.Cols)

	body, err := c.DownloadCSV(ctx, "c1")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "Elevation,Soil_Type,Cover_Type", lines[0])

	require.NoError(t, c.DeleteFrame(ctx, "c1"))
	assert.Nil(t, srv.Frame("c1"))
}

func TestRapidsBadExpression(t *testing.T) {
	c, _ := connected(t)
	_, err := c.Rapids(context.Background(), rapids.Call("no_such_op", rapids.Key("x")))

	var re *errors.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 400, re.StatusCode)
}

func TestRemoveAll(t *testing.T) {
	c, srv := connected(t)
	srv.PutFrame("a", &enginetest.Frame{})
	require.NoError(t, c.RemoveAll(context.Background()))
	assert.Empty(t, srv.FrameKeys())
}

func TestInteraction(t *testing.T) {
	c, srv := connected(t)
	srv.PutFrame("src", &enginetest.Frame{Cols: []*enginetest.Column{
		{Name: "A", Str: []string{"a", "a", "b", "b"}, Factor: true},
		{Name: "B", Str: []string{"x", "x", "y", "x"}, Factor: true},
		{Name: "C", Str: []string{"p", "q", "p", "q"}, Factor: true},
	}})
	srv.JobPolls = 2

	dest, err := c.Interaction(context.Background(), engine.InteractionRequest{
		Source:        "src",
		FactorColumns: []string{"A", "B", "C"},
		Pairwise:      true,
		MaxFactors:    10,
		MinOccurrence: 1,
		Dest:          "inter",
	})
	require.NoError(t, err)
	assert.Equal(t, "inter", dest)
	assert.Equal(t, []string{"A_B", "A_C", "B_C"}, srv.Frame("inter").Names())
}

func TestInteractionValidate(t *testing.T) {
	req := engine.InteractionRequest{Source: "s", FactorColumns: []string{"a"}, MaxFactors: 1, MinOccurrence: 1, Dest: "d"}
	assert.Error(t, req.Validate())

	req.FactorColumns = []string{"a", "b"}
	assert.NoError(t, req.Validate())

	req.MinOccurrence = 0
	assert.Error(t, req.Validate())
}

func TestBuildModelAndMetrics(t *testing.T) {
	c, srv := connected(t)
	srv.Files["/f.csv"] = covCSV
	ctx := context.Background()
	_, err := c.ImportFile(ctx, "/f.csv", "cov.hex")
	require.NoError(t, err)

	job, err := c.BuildModel(ctx, "glm", url.Values{
		"model_id":         {"glm_v1"},
		"training_frame":   {"cov.hex"},
		"validation_frame": {"cov.hex"},
		"response_column":  {"Cover_Type"},
		"family":           {"multinomial"},
	})
	require.NoError(t, err)
	assert.Equal(t, "glm_v1", job.Dest)

	m, err := c.Model(ctx, "glm_v1")
	require.NoError(t, err)
	assert.Equal(t, "glm_v1", m.Key)
	assert.Equal(t, "glm", m.Algo)
	require.NotNil(t, m.Validation)
	assert.Equal(t, int64(6), m.Validation.NObs)

	cm, err := metrics.ConfusionMatrixFromTable(m.Validation.ConfusionMatrix)
	require.NoError(t, err)
	assert.Equal(t, []string{"class_1", "class_2", "class_3"}, cm.Labels)
	assert.Equal(t, 1.0, cm.Accuracy())

	hr, err := metrics.HitRatioTableFromTable(m.Validation.HitRatios)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, hr.K)
	assert.Nil(t, m.Validation.MaxCriteria)
}

func TestBuildModelValidationError(t *testing.T) {
	c, _ := connected(t)
	_, err := c.BuildModel(context.Background(), "glm", url.Values{
		"model_id":       {"bad"},
		"training_frame": {"does_not_exist"},
	})

	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Reason, "training_frame")
}

func TestModelNotFound(t *testing.T) {
	c, _ := connected(t)
	_, err := c.Model(context.Background(), "nope")

	var re *errors.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 404, re.StatusCode)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", engine.FormatBytes(512))
	assert.Equal(t, "1.0K", engine.FormatBytes(1024))
	assert.Equal(t, "2.0G", engine.FormatBytes(2<<30))
}
