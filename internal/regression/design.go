// Package regression fits ordinary least squares of each response band
// against time, independently at every pixel, producing coefficient
// grids (intercept and slope per response).
package regression

import (
	"fmt"
	"time"

	"github.com/climatrend/climatrend/internal/grid"
)

// SecondsPerYear converts the time predictor from Unix seconds to
// fractional Julian years (365.25 days). The scale is fixed: it only
// changes the numeric magnitude of fitted slopes ("per year" instead of
// "per second"), never their sign.
const SecondsPerYear = 365.25 * 24 * 60 * 60

// Predictor band names. The constant band is 1 everywhere and carries
// the intercept; the time band carries the slope.
const (
	PredictorConstant = "constant"
	PredictorTime     = "time"
)

// Predictors returns the predictor band names in design-matrix order.
func Predictors() []string {
	return []string{PredictorConstant, PredictorTime}
}

// TimeValue maps a timestamp onto the regression time axis: fractional
// years since the Unix epoch.
func TimeValue(t time.Time) float64 {
	return float64(t.Unix()) / SecondsPerYear
}

// Sample is one yearly or seasonal aggregate decorated with the
// predictor bands [constant, time] ahead of its response bands.
type Sample struct {
	Grid      *grid.Grid
	Responses []string
}

// AttachPredictors prepends the constant band (1 everywhere, never
// no-data) and the time band (the grid timestamp in fractional years,
// identical at every pixel) to the aggregate's bands. The aggregate's
// original bands become the sample's responses; year and timestamp
// metadata carry through for traceability.
func AttachPredictors(agg *grid.Grid) (Sample, error) {
	for _, name := range agg.BandNames() {
		if name == PredictorConstant || name == PredictorTime {
			return Sample{}, fmt.Errorf("aggregate already carries a %q band", name)
		}
	}

	pixels := agg.Extent().Pixels()
	constant := make([]float64, pixels)
	timeVals := make([]float64, pixels)
	tv := TimeValue(agg.Timestamp())
	for i := range constant {
		constant[i] = 1
		timeVals[i] = tv
	}

	bands := make([]grid.Band, 0, agg.NumBands()+2)
	bands = append(bands,
		grid.Band{Name: PredictorConstant, Values: constant},
		grid.Band{Name: PredictorTime, Values: timeVals},
	)
	for b := 0; b < agg.NumBands(); b++ {
		name, vals := agg.BandAt(b)
		bands = append(bands, grid.Band{Name: name, Values: vals})
	}

	g, err := grid.New(agg.Ref(), agg.Extent(), agg.Timestamp(), bands)
	if err != nil {
		return Sample{}, err
	}
	if agg.Year() != 0 {
		g = g.WithYear(agg.Year())
	}
	if agg.Scenario() != "" {
		g = g.WithScenario(agg.Scenario())
	}

	return Sample{Grid: g, Responses: agg.BandNames()}, nil
}
