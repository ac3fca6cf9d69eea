package temporal

import (
	"testing"
	"time"

	"github.com/climatrend/climatrend/internal/grid"
)

func testGrid(t *testing.T, ts time.Time) *grid.Grid {
	t.Helper()
	g, err := grid.New(
		grid.SpatialRef{Projection: "EPSG:3857", ResolutionM: 1000},
		grid.Extent{Width: 1, Height: 1},
		ts,
		[]grid.Band{{Name: "v", Values: []float64{1}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestJoinSeason(t *testing.T) {
	djf := SeasonDefinition{Name: "djf", StartMonth: 12, DurationMonths: 3}

	c, err := grid.NewCollection(
		testGrid(t, time.Date(2019, 12, 15, 0, 0, 0, 0, time.UTC)), // anchor 2019
		testGrid(t, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)),  // anchor 2019
		testGrid(t, time.Date(2020, 12, 15, 0, 0, 0, 0, time.UTC)), // anchor 2020
		testGrid(t, time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)),   // outside any djf window
	)
	if err != nil {
		t.Fatal(err)
	}

	joined, err := JoinSeason(c, djf, []int{2019, 2020, 2021})
	if err != nil {
		t.Fatal(err)
	}

	if got := joined[2019].Len(); got != 2 {
		t.Errorf("anchor 2019: %d grids, want 2", got)
	}
	if got := joined[2020].Len(); got != 1 {
		t.Errorf("anchor 2020: %d grids, want 1", got)
	}
	// A year with no matches is present and empty, not missing.
	if joined[2021] == nil {
		t.Fatal("anchor 2021 missing from join result")
	}
	if got := joined[2021].Len(); got != 0 {
		t.Errorf("anchor 2021: %d grids, want 0", got)
	}
}

func TestJoinSeasonRejectsBadDefinition(t *testing.T) {
	c, err := grid.NewCollection()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := JoinSeason(c, SeasonDefinition{StartMonth: 0, DurationMonths: 3}, []int{2020}); err == nil {
		t.Error("expected validation error for start month 0")
	}
}
