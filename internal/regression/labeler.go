package regression

import (
	"fmt"

	"github.com/climatrend/climatrend/internal/grid"
)

// LabelCoefficients renames the engine's positional coefficient bands
// to the cross product predictor_response (e.g. time_precip,
// constant_precip), preserving the predictor-major pairing FitTrends
// produced. The declared shape must match the coefficient grid's band
// count exactly; a mismatch is a configuration error and fails fast.
func LabelCoefficients(coeff *grid.Grid, predictors, responses []string) (*grid.Grid, error) {
	want := len(predictors) * len(responses)
	if want == 0 {
		return nil, fmt.Errorf("coefficient labeling requires predictors and responses, got %d x %d",
			len(predictors), len(responses))
	}
	if coeff.NumBands() != want {
		return nil, fmt.Errorf("coefficient grid has %d bands, declared shape requires %d (%d predictors x %d responses)",
			coeff.NumBands(), want, len(predictors), len(responses))
	}

	bands := make([]grid.Band, 0, want)
	for i, p := range predictors {
		for j, r := range responses {
			_, vals := coeff.BandAt(i*len(responses) + j)
			bands = append(bands, grid.Band{Name: p + "_" + r, Values: vals})
		}
	}

	return grid.New(coeff.Ref(), coeff.Extent(), coeff.Timestamp(), bands)
}
