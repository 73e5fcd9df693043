package preprocessing

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/engine"
	"github.com/YuminosukeSato/remoteglm/engine/enginetest"
	"github.com/YuminosukeSato/remoteglm/frame"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

func sequence(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestComputeBoundariesNoReduction(t *testing.T) {
	// 0..1999 puts exactly 100 values in each of the 20 bins
	b, err := ComputeBoundaries(sequence(2000), 20, 99)
	require.NoError(t, err)
	require.Len(t, b, 21)
	assert.Equal(t, -1.0, b[0])
	assert.Equal(t, 2000.0, b[20])
	assert.InDelta(t, 99.95, b[1], 1e-9)
}

func TestComputeBoundariesFullReduction(t *testing.T) {
	b, err := ComputeBoundaries(sequence(2000), 20, 100)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2000}, b)

	plan, err := NewSupportBinner(WithMinSupport(100)).Fit("x", sequence(2000))
	require.NoError(t, err)
	assert.Equal(t, []string{"x_0"}, plan.Labels)
	assert.Equal(t, []float64{2000}, plan.Counts)
}

func TestComputeBoundariesSparseTail(t *testing.T) {
	values := make([]float64, 0, 3005)
	for i := 0; i < 3000; i++ {
		values = append(values, float64(i%100)/10)
	}
	for i := 0; i < 5; i++ {
		values = append(values, 20)
	}

	b, err := ComputeBoundaries(values, 20, 250)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 21}, b)
}

func TestComputeBoundariesConstantColumn(t *testing.T) {
	b, err := ComputeBoundaries([]float64{7, 7, 7, 7}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 8}, b)
}

func TestComputeBoundariesErrors(t *testing.T) {
	_, err := ComputeBoundaries([]float64{math.NaN(), math.Inf(1)}, 20, 1)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = ComputeBoundaries([]float64{1, 2}, 0, 1)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = NewSupportBinner().Fit("Aspect", nil)
	var be *errors.BinningError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "Aspect", be.Column)
}

func TestComputeBoundariesIgnoresNaN(t *testing.T) {
	with := append(sequence(2000), math.NaN(), math.NaN())
	a, err := ComputeBoundaries(with, 20, 50)
	require.NoError(t, err)
	b, err := ComputeBoundaries(sequence(2000), 20, 50)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestComputeBoundariesLargeMagnitude(t *testing.T) {
	for _, values := range [][]float64{
		{1e17, 2e17},
		{-2e17, -1e17},
		{1e17, 1e17},
	} {
		lo, hi := math.Min(values[0], values[1]), math.Max(values[0], values[1])
		b, err := ComputeBoundaries(values, 20, 1000)
		require.NoError(t, err)
		require.Len(t, b, 2)
		assert.Less(t, b[0], lo)
		assert.Greater(t, b[1], hi)

		plan, err := NewSupportBinner().Fit("x", values)
		require.NoError(t, err)
		assert.Equal(t, 0, plan.Bucket(lo))
		assert.Equal(t, 0, plan.Bucket(hi))
		assert.Equal(t, []float64{2}, plan.Counts)
	}
}

// repeat returns n copies of each value in vs.
func repeat(n int, vs ...float64) []float64 {
	out := make([]float64, 0, n*len(vs))
	for _, v := range vs {
		for i := 0; i < n; i++ {
			out = append(out, v)
		}
	}
	return out
}

func TestComputeBoundariesMixedNeighbours(t *testing.T) {
	// bins [0,4/3) [4/3,8/3) [8/3,4] hold 2000, 10 and 2000 values
	values := append(repeat(2000, 0, 4), repeat(10, 2)...)
	b, err := ComputeBoundaries(values, 3, 1000)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 5}, b)

	// with support below the sparse bin both edges survive
	b, err = ComputeBoundaries(values, 3, 5)
	require.NoError(t, err)
	require.Len(t, b, 4)
	assert.InDelta(t, 4.0/3, b[1], 1e-12)
	assert.InDelta(t, 8.0/3, b[2], 1e-12)
}

func TestComputeBoundariesExactSupport(t *testing.T) {
	values := repeat(1000, 0, 1)

	b, err := ComputeBoundaries(values, 2, 1000)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2}, b, "a count equal to the support is not enough")

	b, err = ComputeBoundaries(values, 2, 999)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0.5, 2}, b)
}

// count returns how many values fall in [lo, hi).
func count(values []float64, lo, hi float64) int {
	n := 0
	for _, v := range values {
		if v >= lo && v < hi {
			n++
		}
	}
	return n
}

func TestBoundaryProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	distributions := map[string]func() float64{
		"normal":      rng.NormFloat64,
		"exponential": rng.ExpFloat64,
		"bimodal": func() float64 {
			if rng.Intn(4) == 0 {
				return 50 + rng.NormFloat64()
			}
			return rng.NormFloat64()
		},
	}

	for name, draw := range distributions {
		t.Run(name, func(t *testing.T) {
			values := make([]float64, 20000)
			for i := range values {
				values[i] = draw()
			}
			const bins, support = 20, 1000
			b, err := ComputeBoundaries(values, bins, support)
			require.NoError(t, err)

			lo, hi := values[0], values[0]
			for _, v := range values {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}

			for i := 1; i < len(b); i++ {
				assert.Less(t, b[i-1], b[i], "boundaries must increase")
			}
			assert.Less(t, b[0], lo)
			assert.Greater(t, b[len(b)-1], hi)

			width := (hi - lo) / bins
			for _, e := range b[1 : len(b)-1] {
				assert.Greater(t, count(values, e-width, e), support, "left of %v", e)
				assert.Greater(t, count(values, e, e+width), support, "right of %v", e)
			}
		})
	}
}

func TestTransformRightClosed(t *testing.T) {
	plan := &BinningPlan{
		Column:     "Slope",
		Boundaries: []float64{-1, 10, 20},
		Labels:     []string{"Slope_0", "Slope_1"},
	}
	got := plan.Transform([]float64{-1, -0.5, 10, 10.5, 20, 21, math.NaN()})
	assert.Equal(t, []string{"", "Slope_0", "Slope_0", "Slope_1", "Slope_1", "", ""}, got)
	assert.Equal(t, "Slope_cut", plan.CutName())
}

func TestSharedPlanVocabulary(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	split := func(n int, shift float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = rng.NormFloat64() + shift
		}
		return out
	}
	train, valid, test := split(20000, 0), split(3000, 0.2), split(3000, -0.2)

	plan, err := NewSupportBinner().Fit("Elevation", train)
	require.NoError(t, err)
	require.Greater(t, plan.Buckets(), 1)

	vocab := map[string]bool{}
	for _, l := range plan.Labels {
		vocab[l] = true
	}
	for _, data := range [][]float64{train, valid, test} {
		for _, l := range plan.Transform(data) {
			if l != "" {
				assert.True(t, vocab[l], "label %q outside the plan", l)
			}
		}
	}

	var total float64
	for _, c := range plan.Counts {
		total += c
	}
	assert.Equal(t, float64(len(train)), total)
}

func remoteSplits(t *testing.T) ([]*frame.Frame, *enginetest.Server) {
	t.Helper()
	srv := enginetest.NewServer()
	t.Cleanup(srv.Close)

	var b strings.Builder
	b.WriteString("Slope,Aspect,Soil_Type,Wilderness_Area,Climate\n")
	for i := 0; i < 600; i++ {
		fmt.Fprintf(&b, "%d,%d,soil_%d,area_%d,clim_%d\n", i%60, (i*7)%360, i%3, i%2, i%5)
	}
	srv.Files["/cov.csv"] = b.String()

	c, err := engine.New(srv.URL, engine.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = c.Connect(ctx, 0)
	require.NoError(t, err)

	f, err := frame.Import(ctx, c, "/cov.csv", "cov.hex")
	require.NoError(t, err)
	parts, err := f.Split(ctx, []float64{0.7, 0.15}, 1234)
	require.NoError(t, err)
	return parts, srv
}

func TestFitColumnsAndCutColumns(t *testing.T) {
	parts, srv := remoteSplits(t)
	ctx := context.Background()

	binner := NewSupportBinner(WithMinSupport(10), WithWorkers(2))
	plans, err := binner.FitColumns(ctx, parts[0], []string{"Slope", "Aspect"})
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Slope", plans[0].Column)
	assert.Greater(t, plans[0].Buckets(), 1)

	cut, err := CutColumns(ctx, plans, parts...)
	require.NoError(t, err)
	require.Len(t, cut, 3)

	for _, p := range plans {
		var vocab []string
		for i, f := range cut {
			require.True(t, f.Has(p.CutName()))
			domain := srv.Frame(f.Key()).Col(p.CutName()).Domain()
			if i == 0 {
				vocab = domain
				continue
			}
			assert.Equal(t, vocab, domain, "%s differs in split %d", p.CutName(), i)
		}
		assert.Equal(t, p.Labels, vocab)
	}
}

func TestFitColumnsMissingColumn(t *testing.T) {
	parts, _ := remoteSplits(t)
	_, err := NewSupportBinner().FitColumns(context.Background(), parts[0], []string{"Elevation"})
	var be *errors.BinningError
	require.True(t, errors.As(err, &be))
	assert.True(t, errors.Is(err, errors.ErrColumnNotFound))
}

func TestAddInteractions(t *testing.T) {
	parts, _ := remoteSplits(t)
	ctx := context.Background()

	factors := []string{"Soil_Type", "Wilderness_Area", "Climate"}
	specs := []InteractionSpec{
		{Factors: factors, Pairwise: true, MaxFactors: 100, MinOccurrence: 1},
		{Factors: factors, Pairwise: false, MaxFactors: 100, MinOccurrence: 1},
	}
	out, err := AddInteractions(ctx, specs, parts...)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, f := range out {
		assert.Equal(t, parts[i].Rows(), f.Rows())
		assert.Equal(t, len(parts[i].Columns())+4, len(f.Columns()))
		assert.True(t, f.Has("Soil_Type_Wilderness_Area"))
		assert.True(t, f.Has("Wilderness_Area_Climate"))
		assert.True(t, f.Has("Soil_Type_Wilderness_Area_Climate"))
	}
}

func TestInteractionSpec(t *testing.T) {
	p := DefaultPairwise()
	require.NoError(t, p.Validate())
	assert.Len(t, p.OutputColumns(), 45)
	assert.Equal(t, "Elevation_cut_Wilderness_Area", p.OutputColumns()[0])

	three := DefaultThreeWay()
	require.NoError(t, three.Validate())
	assert.Equal(t, []string{"Elevation_cut_Wilderness_Area_Soil_Type"}, three.OutputColumns())

	bad := InteractionSpec{Factors: []string{"a", "a"}, MaxFactors: 1, MinOccurrence: 1}
	assert.Error(t, bad.Validate())
	bad = InteractionSpec{Factors: []string{"a", "b"}, MaxFactors: 0, MinOccurrence: 1}
	assert.Error(t, bad.Validate())
}

func TestPlotHistogram(t *testing.T) {
	values := sequence(500)
	plan, err := NewSupportBinner(WithMinSupport(10)).Fit("x", values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, PlotHistogram(values, plan, 20, path))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))

	assert.Error(t, PlotHistogram([]float64{math.NaN()}, plan, 20, path))
}
