package temporal

import (
	"time"

	"github.com/climatrend/climatrend/internal/grid"
)

// JoinSeason performs a one-to-many join from anchor years to the grids
// whose timestamp falls inside the season's window for that year. Every
// requested anchor year appears in the result; a year with no matching
// grids maps to an empty collection, which flows downstream as "no
// data" rather than an error.
func JoinSeason(c *grid.Collection, season SeasonDefinition, anchorYears []int) (map[int]*grid.Collection, error) {
	if err := season.Validate(); err != nil {
		return nil, err
	}

	out := make(map[int]*grid.Collection, len(anchorYears))
	for _, y := range anchorYears {
		year := y
		out[year] = c.Filter(func(g *grid.Grid) bool {
			return season.Contains(year, g.Timestamp())
		})
	}
	return out, nil
}

// AnchorYears returns the ascending anchor years whose season windows
// overlap the analysis range [start, end). A window anchored in the
// year before start can still reach into the range, so candidates begin
// one year early.
func AnchorYears(season SeasonDefinition, start, end time.Time) []int {
	var years []int
	for y := start.UTC().Year() - 1; y <= end.UTC().Year(); y++ {
		if season.WindowStart(y).Before(end) && season.WindowEnd(y).After(start) {
			years = append(years, y)
		}
	}
	return years
}
