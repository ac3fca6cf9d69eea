package regression

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/climatrend/climatrend/internal/grid"
)

// EngineOptions tunes the data-parallel fit. Zero values pick defaults.
type EngineOptions struct {
	// TileRows is the number of raster rows handed to one worker at a
	// time. Tiles are independent; there is no cross-tile state.
	TileRows int

	// Workers bounds the number of concurrently evaluated tiles.
	Workers int
}

const defaultTileRows = 64

func (o EngineOptions) tileRows() int {
	if o.TileRows > 0 {
		return o.TileRows
	}
	return defaultTileRows
}

func (o EngineOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// FitTrends fits y = b0 + b1*t per pixel and per response band across
// the given samples, returning a coefficient grid with one band per
// (predictor, response) pair in predictor-major order. Band names are
// positional (coef_<p>_<r>); LabelCoefficients assigns the final
// predictor_response names.
//
// Per pixel and per response, samples where the predictors or the
// response are no-data are excluded. Fewer than two usable samples, or
// zero variance in the usable time values, yields no-data coefficients
// for that pixel and response only; it is never a whole-collection
// failure. The time vector is shared across responses at a pixel, only
// the response validity mask varies.
func FitTrends(ctx context.Context, samples []Sample, opts EngineOptions) (*grid.Grid, error) {
	if len(samples) == 0 {
		return nil, grid.ErrEmptyCollection
	}
	if err := validateSamples(samples); err != nil {
		return nil, err
	}

	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Grid.Timestamp().Before(ordered[j].Grid.Timestamp())
	})

	first := ordered[0]
	extent := first.Grid.Extent()
	responses := first.Responses
	n := len(ordered)
	k := len(responses)

	// Cache band storage up front so the per-pixel loop does no name
	// lookups.
	constBands := make([][]float64, n)
	timeBands := make([][]float64, n)
	respBands := make([][][]float64, n)
	for s, sample := range ordered {
		constBands[s], _ = sample.Grid.Band(PredictorConstant)
		timeBands[s], _ = sample.Grid.Band(PredictorTime)
		respBands[s] = make([][]float64, k)
		for j, name := range responses {
			vals, ok := sample.Grid.Band(name)
			if !ok {
				return nil, fmt.Errorf("%w: sample %d missing response %q",
					grid.ErrBandMismatch, s, name)
			}
			respBands[s][j] = vals
		}
	}

	out := make([][]float64, 2*k)
	for i := range out {
		out[i] = make([]float64, extent.Pixels())
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.workers())

	tileRows := opts.tileRows()
	for row := 0; row < extent.Height; row += tileRows {
		startRow := row
		endRow := startRow + tileRows
		if endRow > extent.Height {
			endRow = extent.Height
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fitTile(ordered, constBands, timeBands, respBands, out,
				extent.Width, startRow, endRow, k)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	bands := make([]grid.Band, 2*k)
	for i := 0; i < 2; i++ {
		for j := 0; j < k; j++ {
			bands[i*k+j] = grid.Band{
				Name:   fmt.Sprintf("coef_%d_%d", i, j),
				Values: out[i*k+j],
			}
		}
	}

	last := ordered[n-1]
	return grid.New(first.Grid.Ref(), extent, last.Grid.Timestamp(), bands)
}

// fitTile evaluates the rows [startRow, endRow). Each tile writes a
// disjoint slice of the output, so tiles need no synchronization.
func fitTile(samples []Sample, constBands, timeBands [][]float64, respBands [][][]float64,
	out [][]float64, width, startRow, endRow, k int) {

	n := len(samples)
	ts := make([]float64, 0, n)
	ys := make([]float64, 0, n)

	for row := startRow; row < endRow; row++ {
		for col := 0; col < width; col++ {
			p := row*width + col
			for j := 0; j < k; j++ {
				ts = ts[:0]
				ys = ys[:0]
				for s := 0; s < n; s++ {
					t := timeBands[s][p]
					c := constBands[s][p]
					y := respBands[s][j][p]
					if grid.IsNoData(t) || grid.IsNoData(c) || grid.IsNoData(y) {
						continue
					}
					ts = append(ts, t)
					ys = append(ys, y)
				}
				b0, b1 := fitPixel(ts, ys)
				out[j][p] = b0
				out[k+j][p] = b1
			}
		}
	}
}

// fitPixel solves the two-parameter least squares in closed form:
// b1 = cov(t,y)/var(t), b0 = mean(y) - b1*mean(t). Under two usable
// samples, or zero variance in t (singular design matrix), both
// coefficients are no-data.
func fitPixel(ts, ys []float64) (b0, b1 float64) {
	if len(ts) < 2 {
		return grid.NoData(), grid.NoData()
	}
	degenerate := true
	for _, t := range ts[1:] {
		if t != ts[0] {
			degenerate = false
			break
		}
	}
	if degenerate {
		return grid.NoData(), grid.NoData()
	}
	return stat.LinearRegression(ts, ys, nil, false)
}

func validateSamples(samples []Sample) error {
	first := samples[0]
	if len(first.Responses) == 0 {
		return fmt.Errorf("%w: samples declare no response bands", grid.ErrBandMismatch)
	}
	for i, s := range samples[1:] {
		if err := first.Grid.SameShape(s.Grid); err != nil {
			return fmt.Errorf("sample %d: %w", i+1, err)
		}
		if err := first.Grid.SameBands(s.Grid); err != nil {
			return fmt.Errorf("sample %d: %w", i+1, err)
		}
		if len(s.Responses) != len(first.Responses) {
			return fmt.Errorf("%w: sample %d declares %d responses, expected %d",
				grid.ErrBandMismatch, i+1, len(s.Responses), len(first.Responses))
		}
		for j, name := range first.Responses {
			if s.Responses[j] != name {
				return fmt.Errorf("%w: sample %d response order %v, expected %v",
					grid.ErrBandMismatch, i+1, s.Responses, first.Responses)
			}
		}
	}
	return nil
}
