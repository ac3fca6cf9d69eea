// Package geo defines the region of interest used to clip coefficient
// grids before export: a polygon plus a buffer distance, evaluated in
// the grid's projected coordinate system.
package geo

import (
	"errors"
	"math"

	"github.com/climatrend/climatrend/internal/grid"
)

// Point is a location in projected coordinates (same units as the
// grid's origin and resolution).
type Point struct {
	X float64
	Y float64
}

// Region is a polygon with an associated buffer distance. A point
// belongs to the region when it lies inside the polygon or within
// BufferM of its boundary.
type Region struct {
	Polygon []Point
	BufferM float64
}

// Validate rejects degenerate polygons and negative buffers.
func (r Region) Validate() error {
	if len(r.Polygon) < 3 {
		return errors.New("region polygon requires at least 3 points")
	}
	if r.BufferM < 0 {
		return errors.New("region buffer must not be negative")
	}
	return nil
}

// Contains reports whether p lies inside the buffered region.
func (r Region) Contains(p Point) bool {
	if pointInPolygon(p, r.Polygon) {
		return true
	}
	if r.BufferM == 0 {
		return false
	}
	return distanceToBoundary(p, r.Polygon) <= r.BufferM
}

// Clip masks every cell whose center falls outside the buffered region,
// across all bands, returning a new grid. A pure geometric filter; the
// input is unchanged.
func Clip(g *grid.Grid, region Region) (*grid.Grid, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}

	ext := g.Extent()
	res := g.Ref().ResolutionM

	inside := make([]bool, ext.Pixels())
	for row := 0; row < ext.Height; row++ {
		cy := ext.OriginY + (float64(row)+0.5)*res
		for col := 0; col < ext.Width; col++ {
			cx := ext.OriginX + (float64(col)+0.5)*res
			inside[row*ext.Width+col] = region.Contains(Point{X: cx, Y: cy})
		}
	}

	bands := make([]grid.Band, g.NumBands())
	for b := 0; b < g.NumBands(); b++ {
		name, vals := g.BandAt(b)
		out := make([]float64, len(vals))
		for i, v := range vals {
			if inside[i] {
				out[i] = v
			} else {
				out[i] = grid.NoData()
			}
		}
		bands[b] = grid.Band{Name: name, Values: out}
	}

	clipped, err := grid.New(g.Ref(), ext, g.Timestamp(), bands)
	if err != nil {
		return nil, err
	}
	if g.Scenario() != "" {
		clipped = clipped.WithScenario(g.Scenario())
	}
	if g.Year() != 0 {
		clipped = clipped.WithYear(g.Year())
	}
	return clipped, nil
}

// pointInPolygon is the standard even-odd ray cast.
func pointInPolygon(p Point, poly []Point) bool {
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// distanceToBoundary returns the minimum distance from p to any polygon
// edge.
func distanceToBoundary(p Point, poly []Point) float64 {
	min := math.Inf(1)
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		if d := pointSegmentDistance(p, poly[j], poly[i]); d < min {
			min = d
		}
		j = i
	}
	return min
}

func pointSegmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := a.X+t*dx, a.Y+t*dy
	return math.Hypot(p.X-cx, p.Y-cy)
}
