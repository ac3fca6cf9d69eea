package regression

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/climatrend/climatrend/internal/grid"
)

var (
	testRef    = grid.SpatialRef{Projection: "EPSG:3857", ResolutionM: 1000}
	testExtent = grid.Extent{Width: 1, Height: 1}
)

// yearTime returns a timestamp whose TimeValue is exactly y fractional
// years, so synthetic fits recover integer slopes without rounding.
func yearTime(y int) time.Time {
	return time.Unix(int64(y)*int64(SecondsPerYear), 0).UTC()
}

func sampleAt(t *testing.T, y int, responses map[string][]float64) Sample {
	t.Helper()
	bands := make([]grid.Band, 0, len(responses))
	// Fixed order keeps response ordering identical across samples.
	for _, name := range []string{"precip", "tmax"} {
		if vals, ok := responses[name]; ok {
			bands = append(bands, grid.Band{Name: name, Values: vals})
		}
	}
	g, err := grid.New(testRef, testExtent, yearTime(y), bands)
	if err != nil {
		t.Fatal(err)
	}
	s, err := AttachPredictors(g.WithYear(1970 + y))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTimeValue(t *testing.T) {
	if got := TimeValue(time.Unix(0, 0)); got != 0 {
		t.Errorf("TimeValue(epoch) = %v, want 0", got)
	}
	if got := TimeValue(yearTime(3)); got != 3 {
		t.Errorf("TimeValue(3 years) = %v, want 3", got)
	}
}

func TestAttachPredictors(t *testing.T) {
	g, err := grid.New(testRef, grid.Extent{Width: 2, Height: 1}, yearTime(2),
		[]grid.Band{{Name: "precip", Values: []float64{1, grid.NoData()}}})
	if err != nil {
		t.Fatal(err)
	}

	s, err := AttachPredictors(g)
	if err != nil {
		t.Fatal(err)
	}

	names := s.Grid.BandNames()
	if names[0] != PredictorConstant || names[1] != PredictorTime || names[2] != "precip" {
		t.Fatalf("band order = %v, want [constant time precip]", names)
	}
	if len(s.Responses) != 1 || s.Responses[0] != "precip" {
		t.Errorf("responses = %v, want [precip]", s.Responses)
	}

	constVals, _ := s.Grid.Band(PredictorConstant)
	timeVals, _ := s.Grid.Band(PredictorTime)
	for i := range constVals {
		if constVals[i] != 1 {
			t.Errorf("constant[%d] = %v, want 1 (never no-data)", i, constVals[i])
		}
		if timeVals[i] != 2 {
			t.Errorf("time[%d] = %v, want 2", i, timeVals[i])
		}
	}
}

func TestAttachPredictorsRejectsReservedBands(t *testing.T) {
	g, err := grid.New(testRef, testExtent, yearTime(0),
		[]grid.Band{{Name: "time", Values: []float64{1}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AttachPredictors(g); err == nil {
		t.Error("expected error for aggregate carrying a reserved band name")
	}
}

// Noiseless synthetic data must be recovered exactly: y = 3 + 2t over
// t = [0,1,2,3,4].
func TestFitTrendsExactRecovery(t *testing.T) {
	samples := make([]Sample, 0, 5)
	for y := 0; y < 5; y++ {
		samples = append(samples, sampleAt(t, y, map[string][]float64{
			"precip": {3 + 2*float64(y)},
		}))
	}

	coeff, err := FitTrends(context.Background(), samples, EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	labeled, err := LabelCoefficients(coeff, Predictors(), samples[0].Responses)
	if err != nil {
		t.Fatal(err)
	}

	intercept, _ := labeled.Band("constant_precip")
	slope, _ := labeled.Band("time_precip")
	if math.Abs(intercept[0]-3) > 1e-9 {
		t.Errorf("intercept = %v, want 3", intercept[0])
	}
	if math.Abs(slope[0]-2) > 1e-9 {
		t.Errorf("slope = %v, want 2", slope[0])
	}
}

// Three seasonal means [5,7,9] at t=[0,1,2] fit slope 2, intercept 5.
func TestFitTrendsThreeYearSeries(t *testing.T) {
	values := []float64{5, 7, 9}
	samples := make([]Sample, 0, 3)
	for y, v := range values {
		samples = append(samples, sampleAt(t, y, map[string][]float64{
			"precip": {v},
		}))
	}

	coeff, err := FitTrends(context.Background(), samples, EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	labeled, err := LabelCoefficients(coeff, Predictors(), samples[0].Responses)
	if err != nil {
		t.Fatal(err)
	}

	intercept, _ := labeled.Band("constant_precip")
	slope, _ := labeled.Band("time_precip")
	if math.Abs(slope[0]-2) > 1e-9 {
		t.Errorf("slope = %v, want 2", slope[0])
	}
	if math.Abs(intercept[0]-5) > 1e-9 {
		t.Errorf("intercept = %v, want 5", intercept[0])
	}
}

// One usable sample must yield no-data coefficients, not a crash or a
// divide-by-zero artifact.
func TestFitTrendsSingleUsableSample(t *testing.T) {
	samples := []Sample{
		sampleAt(t, 0, map[string][]float64{"precip": {4}}),
		sampleAt(t, 1, map[string][]float64{"precip": {grid.NoData()}}),
		sampleAt(t, 2, map[string][]float64{"precip": {grid.NoData()}}),
	}

	coeff, err := FitTrends(context.Background(), samples, EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	labeled, err := LabelCoefficients(coeff, Predictors(), samples[0].Responses)
	if err != nil {
		t.Fatal(err)
	}

	intercept, _ := labeled.Band("constant_precip")
	slope, _ := labeled.Band("time_precip")
	if !grid.IsNoData(intercept[0]) || !grid.IsNoData(slope[0]) {
		t.Errorf("coefficients = (%v, %v), want no-data", intercept[0], slope[0])
	}
}

// Identical timestamps leave zero variance in time: the design matrix
// is singular and the pixel must be no-data for that response.
func TestFitTrendsZeroTimeVariance(t *testing.T) {
	samples := []Sample{
		sampleAt(t, 1, map[string][]float64{"precip": {4}}),
		sampleAt(t, 1, map[string][]float64{"precip": {6}}),
	}

	coeff, err := FitTrends(context.Background(), samples, EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	labeled, err := LabelCoefficients(coeff, Predictors(), samples[0].Responses)
	if err != nil {
		t.Fatal(err)
	}

	slope, _ := labeled.Band("time_precip")
	if !grid.IsNoData(slope[0]) {
		t.Errorf("slope = %v, want no-data for singular design", slope[0])
	}
}

// Responses carry independent validity masks but share the time axis.
func TestFitTrendsPerResponseMasks(t *testing.T) {
	nan := grid.NoData()
	samples := []Sample{
		sampleAt(t, 0, map[string][]float64{"precip": {1}, "tmax": {10}}),
		sampleAt(t, 1, map[string][]float64{"precip": {2}, "tmax": {nan}}),
		sampleAt(t, 2, map[string][]float64{"precip": {3}, "tmax": {nan}}),
		sampleAt(t, 3, map[string][]float64{"precip": {4}, "tmax": {nan}}),
	}

	coeff, err := FitTrends(context.Background(), samples, EngineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	labeled, err := LabelCoefficients(coeff, Predictors(), samples[0].Responses)
	if err != nil {
		t.Fatal(err)
	}

	precipSlope, _ := labeled.Band("time_precip")
	if math.Abs(precipSlope[0]-1) > 1e-9 {
		t.Errorf("precip slope = %v, want 1", precipSlope[0])
	}
	// tmax has a single usable sample, so its fit is undefined while
	// precip's is not.
	tmaxSlope, _ := labeled.Band("time_tmax")
	if !grid.IsNoData(tmaxSlope[0]) {
		t.Errorf("tmax slope = %v, want no-data", tmaxSlope[0])
	}
}

func TestFitTrendsValidatesSamples(t *testing.T) {
	a := sampleAt(t, 0, map[string][]float64{"precip": {1}})
	b := sampleAt(t, 1, map[string][]float64{"tmax": {1}})
	if _, err := FitTrends(context.Background(), []Sample{a, b}, EngineOptions{}); err == nil {
		t.Error("expected error for mismatched response bands")
	}
	if _, err := FitTrends(context.Background(), nil, EngineOptions{}); err == nil {
		t.Error("expected error for empty sample set")
	}
}

// A larger raster exercises the tile decomposition: every pixel fits an
// independent line.
func TestFitTrendsTiled(t *testing.T) {
	ext := grid.Extent{Width: 5, Height: 7}
	pixels := ext.Pixels()

	samples := make([]Sample, 0, 4)
	for y := 0; y < 4; y++ {
		vals := make([]float64, pixels)
		for p := range vals {
			// Slope p, intercept 2p per pixel.
			vals[p] = float64(2*p) + float64(p)*float64(y)
		}
		g, err := grid.New(testRef, ext, yearTime(y),
			[]grid.Band{{Name: "v", Values: vals}})
		if err != nil {
			t.Fatal(err)
		}
		s, err := AttachPredictors(g)
		if err != nil {
			t.Fatal(err)
		}
		samples = append(samples, s)
	}

	coeff, err := FitTrends(context.Background(), samples, EngineOptions{TileRows: 2, Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	labeled, err := LabelCoefficients(coeff, Predictors(), samples[0].Responses)
	if err != nil {
		t.Fatal(err)
	}

	intercept, _ := labeled.Band("constant_v")
	slope, _ := labeled.Band("time_v")
	for p := 0; p < pixels; p++ {
		if math.Abs(slope[p]-float64(p)) > 1e-9 {
			t.Fatalf("pixel %d: slope = %v, want %d", p, slope[p], p)
		}
		if math.Abs(intercept[p]-float64(2*p)) > 1e-9 {
			t.Fatalf("pixel %d: intercept = %v, want %d", p, intercept[p], 2*p)
		}
	}
}

func TestLabelCoefficientsShapeMismatch(t *testing.T) {
	g, err := grid.New(testRef, testExtent, yearTime(0),
		[]grid.Band{
			{Name: "coef_0_0", Values: []float64{1}},
			{Name: "coef_1_0", Values: []float64{2}},
		})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := LabelCoefficients(g, Predictors(), []string{"a", "b"}); err == nil {
		t.Error("expected shape mismatch error (2 bands vs 2x2 declared)")
	}
	if _, err := LabelCoefficients(g, nil, nil); err == nil {
		t.Error("expected error for empty name sets")
	}

	labeled, err := LabelCoefficients(g, Predictors(), []string{"precip"})
	if err != nil {
		t.Fatal(err)
	}
	names := labeled.BandNames()
	if names[0] != "constant_precip" || names[1] != "time_precip" {
		t.Errorf("labeled bands = %v, want [constant_precip time_precip]", names)
	}
}
