package grid

import (
	"fmt"
	"sort"
	"time"
)

// DayKeyFormat is the calendar-day key used for daily grouping, always
// evaluated in UTC so grouping is independent of source time zones.
const DayKeyFormat = "2006-01-02"

// Collection is an unordered multiset of Grids sharing one spatial
// reference. Collections are built once and transformed through pure
// stages; the underlying grids are never mutated.
type Collection struct {
	grids []*Grid
}

// NewCollection builds a Collection, validating that all grids share a
// spatial reference and extent.
func NewCollection(grids ...*Grid) (*Collection, error) {
	for i := 1; i < len(grids); i++ {
		if err := grids[0].SameShape(grids[i]); err != nil {
			return nil, fmt.Errorf("collection grid %d: %w", i, err)
		}
	}
	c := &Collection{grids: make([]*Grid, len(grids))}
	copy(c.grids, grids)
	return c, nil
}

// Len returns the number of grids in the collection.
func (c *Collection) Len() int { return len(c.grids) }

// Grids returns the grids in the collection. The slice is a copy; the
// grids themselves are shared.
func (c *Collection) Grids() []*Grid {
	out := make([]*Grid, len(c.grids))
	copy(out, c.grids)
	return out
}

// Filter returns the sub-collection of grids satisfying pred.
func (c *Collection) Filter(pred func(*Grid) bool) *Collection {
	out := &Collection{}
	for _, g := range c.grids {
		if pred(g) {
			out.grids = append(out.grids, g)
		}
	}
	return out
}

// FilterByDateRange returns grids whose timestamp falls in [start, end).
func (c *Collection) FilterByDateRange(start, end time.Time) *Collection {
	return c.Filter(func(g *Grid) bool {
		t := g.Timestamp()
		return !t.Before(start) && t.Before(end)
	})
}

// FilterByScenario returns grids carrying the given scenario tag.
func (c *Collection) FilterByScenario(tag string) *Collection {
	return c.Filter(func(g *Grid) bool { return g.Scenario() == tag })
}

// GroupBy partitions the collection by the given key function. Groups
// are keyed by value equality, so membership is identical regardless of
// the order grids were added.
func (c *Collection) GroupBy(keyFn func(*Grid) string) map[string]*Collection {
	groups := make(map[string]*Collection)
	for _, g := range c.grids {
		k := keyFn(g)
		if groups[k] == nil {
			groups[k] = &Collection{}
		}
		groups[k].grids = append(groups[k].grids, g)
	}
	return groups
}

// GroupByDay partitions the collection by UTC calendar day.
func (c *Collection) GroupByDay() map[string]*Collection {
	return c.GroupBy(func(g *Grid) string {
		return g.Timestamp().UTC().Format(DayKeyFormat)
	})
}

// GroupByYear partitions the collection by UTC calendar year.
func (c *Collection) GroupByYear() map[int]*Collection {
	groups := make(map[int]*Collection)
	for _, g := range c.grids {
		y := g.Timestamp().UTC().Year()
		if groups[y] == nil {
			groups[y] = &Collection{}
		}
		groups[y].grids = append(groups[y].grids, g)
	}
	return groups
}

// Scenarios returns the distinct scenario tags present, sorted.
func (c *Collection) Scenarios() []string {
	seen := make(map[string]bool)
	for _, g := range c.grids {
		seen[g.Scenario()] = true
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Days returns the distinct UTC day keys present, sorted.
func (c *Collection) Days() []string {
	seen := make(map[string]bool)
	for _, g := range c.grids {
		seen[g.Timestamp().UTC().Format(DayKeyFormat)] = true
	}
	days := make([]string, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// Years returns the distinct UTC calendar years present, sorted.
func (c *Collection) Years() []int {
	seen := make(map[int]bool)
	for _, g := range c.grids {
		seen[g.Timestamp().UTC().Year()] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// SortByTime returns a copy of the collection ordered by ascending
// timestamp. Ties keep a stable order by scenario tag so the result is
// deterministic for any enumeration order of the source.
func (c *Collection) SortByTime() *Collection {
	out := &Collection{grids: make([]*Grid, len(c.grids))}
	copy(out.grids, c.grids)
	sort.SliceStable(out.grids, func(i, j int) bool {
		ti, tj := out.grids[i].Timestamp(), out.grids[j].Timestamp()
		if ti.Equal(tj) {
			return out.grids[i].Scenario() < out.grids[j].Scenario()
		}
		return ti.Before(tj)
	})
	return out
}
