package aggregate

import (
	"fmt"

	"github.com/climatrend/climatrend/internal/grid"
)

// ReducePerScenario reduces a group once per scenario tag and
// concatenates the per-tag aggregates band-wise into a single grid, so
// one day's (or season's) ensemble statistic stays separated by
// scenario instead of being averaged across tags.
//
// scenarios declares which tags must appear in the output. A declared
// tag with no member grids contributes fully no-data bands rather than
// omitting them: band presence is decided by declaration, never by data
// availability. When scenarios is nil the tags present in the group are
// used.
func ReducePerScenario(c *grid.Collection, scenarios []string, stat Statistic, suffixFor func(tag string) string) (*grid.Grid, error) {
	if c.Len() == 0 {
		return nil, grid.ErrEmptyCollection
	}
	if len(scenarios) == 0 {
		scenarios = c.Scenarios()
	}

	template := c.Grids()[0]
	parts := make([]*grid.Grid, 0, len(scenarios))
	for _, tag := range scenarios {
		sub := c.FilterByScenario(tag)
		var (
			agg *grid.Grid
			err error
		)
		if sub.Len() == 0 {
			agg, err = EmptyLike(template.Ref(), template.Extent(), template.Timestamp(),
				template.BandNames(), suffixFor(tag))
		} else {
			agg, err = Reduce(sub.Grids(), stat, suffixFor(tag))
		}
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", tag, err)
		}
		parts = append(parts, agg)
	}

	return Concat(parts...)
}

// Concat merges grids band-wise into a single grid. All inputs must
// share spatial reference and extent, and band names must stay unique
// across the result. The output carries the earliest input timestamp.
func Concat(grids ...*grid.Grid) (*grid.Grid, error) {
	if len(grids) == 0 {
		return nil, grid.ErrEmptyCollection
	}
	if len(grids) == 1 {
		return grids[0], nil
	}

	first := grids[0]
	var bands []grid.Band
	for i, g := range grids {
		if i > 0 {
			if err := first.SameShape(g); err != nil {
				return nil, err
			}
		}
		for b := 0; b < g.NumBands(); b++ {
			name, vals := g.BandAt(b)
			bands = append(bands, grid.Band{Name: name, Values: vals})
		}
	}

	out, err := grid.New(first.Ref(), first.Extent(), groupTimestamp(grids), bands)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	return out, nil
}
