// Package aggregate reduces groups of grids into single grids via
// pixelwise statistics, honoring no-data masks band for band.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/climatrend/climatrend/internal/grid"
)

// Statistic selects the pixelwise reduction applied to a group of grids.
type Statistic int

const (
	StatMean Statistic = iota
	StatMax
	StatMin
	// StatRange is max minus min, computed from the two reductions
	// rather than a separate pass over the raw inputs.
	StatRange
)

// String returns the statistic's suffix-friendly name.
func (s Statistic) String() string {
	switch s {
	case StatMean:
		return "mean"
	case StatMax:
		return "max"
	case StatMin:
		return "min"
	case StatRange:
		return "range"
	default:
		return fmt.Sprintf("statistic(%d)", int(s))
	}
}

// Reduce collapses a group of grids into one grid using the given
// statistic. A pixel's aggregate uses only inputs where that pixel is
// valid; if every input is no-data there, the output is no-data. Output
// band names are the input names with suffix appended, so per-season,
// per-statistic results stay distinguishable after concatenation.
//
// All grids must share spatial reference, extent, and band layout; a
// mismatch is a configuration error.
func Reduce(grids []*grid.Grid, stat Statistic, suffix string) (*grid.Grid, error) {
	if len(grids) == 0 {
		return nil, grid.ErrEmptyCollection
	}
	first := grids[0]
	for _, g := range grids[1:] {
		if err := first.SameShape(g); err != nil {
			return nil, err
		}
		if err := first.SameBands(g); err != nil {
			return nil, err
		}
	}

	if stat == StatRange {
		return reduceRange(grids, suffix)
	}

	pixels := first.Extent().Pixels()
	bands := make([]grid.Band, first.NumBands())
	for b := 0; b < first.NumBands(); b++ {
		name, _ := first.BandAt(b)
		out := make([]float64, pixels)
		switch stat {
		case StatMean:
			reduceMean(grids, b, out)
		case StatMax:
			reduceExtreme(grids, b, out, math.Max)
		case StatMin:
			reduceExtreme(grids, b, out, math.Min)
		default:
			return nil, fmt.Errorf("unsupported statistic %v", stat)
		}
		bands[b] = grid.Band{Name: name + suffix, Values: out}
	}

	return grid.New(first.Ref(), first.Extent(), groupTimestamp(grids), bands)
}

func reduceMean(grids []*grid.Grid, band int, out []float64) {
	counts := make([]int, len(out))
	for _, g := range grids {
		_, vals := g.BandAt(band)
		for i, v := range vals {
			if grid.IsNoData(v) {
				continue
			}
			out[i] += v
			counts[i]++
		}
	}
	for i := range out {
		if counts[i] == 0 {
			out[i] = grid.NoData()
		} else {
			out[i] /= float64(counts[i])
		}
	}
}

func reduceExtreme(grids []*grid.Grid, band int, out []float64, pick func(a, b float64) float64) {
	for i := range out {
		out[i] = grid.NoData()
	}
	for _, g := range grids {
		_, vals := g.BandAt(band)
		for i, v := range vals {
			if grid.IsNoData(v) {
				continue
			}
			if grid.IsNoData(out[i]) {
				out[i] = v
			} else {
				out[i] = pick(out[i], v)
			}
		}
	}
}

func reduceRange(grids []*grid.Grid, suffix string) (*grid.Grid, error) {
	// The suffixes here are internal; the final band names carry only
	// the caller's suffix.
	maxG, err := Reduce(grids, StatMax, "")
	if err != nil {
		return nil, err
	}
	minG, err := Reduce(grids, StatMin, "")
	if err != nil {
		return nil, err
	}

	first := grids[0]
	pixels := first.Extent().Pixels()
	bands := make([]grid.Band, first.NumBands())
	for b := 0; b < first.NumBands(); b++ {
		name, maxVals := maxG.BandAt(b)
		_, minVals := minG.BandAt(b)
		out := make([]float64, pixels)
		copy(out, maxVals)
		// NaN on either side propagates through the subtraction.
		floats.Sub(out, minVals)
		bands[b] = grid.Band{Name: name + suffix, Values: out}
	}

	return grid.New(first.Ref(), first.Extent(), groupTimestamp(grids), bands)
}

// EmptyLike builds an all-no-data aggregate with the given band names
// (suffix applied) over the reference shape. Used when a declared group
// has no members: the bands must still be present, fully no-data, so
// downstream regression sees an unusable sample rather than a missing
// band.
func EmptyLike(ref grid.SpatialRef, extent grid.Extent, timestamp time.Time, bandNames []string, suffix string) (*grid.Grid, error) {
	if len(bandNames) == 0 {
		return nil, errors.New("empty aggregate requires declared band names")
	}
	bands := make([]grid.Band, len(bandNames))
	for i, name := range bandNames {
		vals := make([]float64, extent.Pixels())
		for j := range vals {
			vals[j] = grid.NoData()
		}
		bands[i] = grid.Band{Name: name + suffix, Values: vals}
	}
	return grid.New(ref, extent, timestamp, bands)
}

// groupTimestamp picks the earliest input timestamp as the aggregate's
// timestamp, independent of input order.
func groupTimestamp(grids []*grid.Grid) time.Time {
	t := grids[0].Timestamp()
	for _, g := range grids[1:] {
		if g.Timestamp().Before(t) {
			t = g.Timestamp()
		}
	}
	return t
}
