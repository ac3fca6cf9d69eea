// Package grid provides the raster primitives for trend analysis: an
// immutable multi-band Grid snapshot and a Collection of Grids sharing
// one spatial reference.
package grid

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrSpatialMismatch indicates grids with different projections,
	// resolutions, or extents were combined. This is a configuration
	// error and is never recoverable.
	ErrSpatialMismatch = errors.New("grids do not share a spatial reference")

	// ErrBandMismatch indicates grids with different band names or band
	// ordering were combined.
	ErrBandMismatch = errors.New("grids do not share a band layout")

	// ErrEmptyCollection indicates an operation that requires at least one
	// grid was invoked on an empty collection.
	ErrEmptyCollection = errors.New("collection is empty")
)

// NoData returns the marker for a missing cell value. Missing values are
// NaN so they survive arithmetic without being mistaken for zero.
func NoData() float64 {
	return math.NaN()
}

// IsNoData reports whether v is the missing-value marker.
func IsNoData(v float64) bool {
	return math.IsNaN(v)
}

// SpatialRef identifies the projection and nominal cell size of a grid.
type SpatialRef struct {
	Projection  string  // e.g. "EPSG:4326"
	ResolutionM float64 // nominal cell size in projection units (meters)
}

// Extent describes the rectangular pixel layout of a grid and anchors it
// in projected coordinates. OriginX/OriginY is the minimum (lower-left)
// corner; cell centers are at Origin + (index+0.5)*ResolutionM.
type Extent struct {
	Width   int
	Height  int
	OriginX float64
	OriginY float64
}

// Pixels returns the number of cells in the extent.
func (e Extent) Pixels() int {
	return e.Width * e.Height
}

// Band is a named scalar channel with one value per cell, row-major.
type Band struct {
	Name   string
	Values []float64
}

// Grid is a single timestamped raster snapshot with one or more named
// bands. Grids are immutable once constructed; pipeline stages produce
// new Grids rather than modifying inputs.
type Grid struct {
	ref       SpatialRef
	extent    Extent
	timestamp time.Time
	scenario  string
	year      int

	bandNames []string
	bandData  [][]float64
}

// New constructs a Grid from its bands. Every band must have exactly
// Extent.Pixels() values and band names must be unique.
func New(ref SpatialRef, extent Extent, timestamp time.Time, bands []Band) (*Grid, error) {
	if extent.Width <= 0 || extent.Height <= 0 {
		return nil, fmt.Errorf("invalid extent %dx%d", extent.Width, extent.Height)
	}
	if len(bands) == 0 {
		return nil, errors.New("grid requires at least one band")
	}

	g := &Grid{
		ref:       ref,
		extent:    extent,
		timestamp: timestamp,
		bandNames: make([]string, 0, len(bands)),
		bandData:  make([][]float64, 0, len(bands)),
	}

	seen := make(map[string]bool, len(bands))
	for _, b := range bands {
		if b.Name == "" {
			return nil, errors.New("band name must not be empty")
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("duplicate band name %q", b.Name)
		}
		seen[b.Name] = true
		if len(b.Values) != extent.Pixels() {
			return nil, fmt.Errorf("band %q has %d values, extent requires %d",
				b.Name, len(b.Values), extent.Pixels())
		}
		g.bandNames = append(g.bandNames, b.Name)
		g.bandData = append(g.bandData, b.Values)
	}

	return g, nil
}

// WithScenario returns a copy of g tagged with a scenario/model label.
// Band data is shared, not copied; grids are never written after New.
func (g *Grid) WithScenario(scenario string) *Grid {
	c := *g
	c.scenario = scenario
	return &c
}

// WithYear returns a copy of g tagged with an anchor year.
func (g *Grid) WithYear(year int) *Grid {
	c := *g
	c.year = year
	return &c
}

// WithTimestamp returns a copy of g carrying a different timestamp.
// Aggregation stages use this to pin a group's result to the group key
// (e.g. a season window start) instead of an arbitrary member instant.
func (g *Grid) WithTimestamp(t time.Time) *Grid {
	c := *g
	c.timestamp = t
	return &c
}

// Ref returns the grid's spatial reference.
func (g *Grid) Ref() SpatialRef { return g.ref }

// Extent returns the grid's pixel layout.
func (g *Grid) Extent() Extent { return g.extent }

// Timestamp returns the observation instant of the grid.
func (g *Grid) Timestamp() time.Time { return g.timestamp }

// Scenario returns the scenario/model tag, or "" if untagged.
func (g *Grid) Scenario() string { return g.scenario }

// Year returns the anchor year, or 0 if untagged.
func (g *Grid) Year() int { return g.year }

// NumBands returns the number of bands.
func (g *Grid) NumBands() int { return len(g.bandNames) }

// BandNames returns the band names in declaration order.
func (g *Grid) BandNames() []string {
	names := make([]string, len(g.bandNames))
	copy(names, g.bandNames)
	return names
}

// Band returns the values of the named band. The returned slice is the
// grid's backing storage and must not be modified.
func (g *Grid) Band(name string) ([]float64, bool) {
	for i, n := range g.bandNames {
		if n == name {
			return g.bandData[i], true
		}
	}
	return nil, false
}

// BandAt returns the name and values of the band at index i.
func (g *Grid) BandAt(i int) (string, []float64) {
	return g.bandNames[i], g.bandData[i]
}

// Value returns the value of band index b at cell (row, col).
func (g *Grid) Value(b, row, col int) float64 {
	return g.bandData[b][row*g.extent.Width+col]
}

// SameShape returns nil when other shares g's spatial reference and
// extent, ErrSpatialMismatch otherwise.
func (g *Grid) SameShape(other *Grid) error {
	if g.ref != other.ref || g.extent != other.extent {
		return fmt.Errorf("%w: %v/%v vs %v/%v",
			ErrSpatialMismatch, g.ref, g.extent, other.ref, other.extent)
	}
	return nil
}

// SameBands returns nil when other has the same band names in the same
// order as g, ErrBandMismatch otherwise.
func (g *Grid) SameBands(other *Grid) error {
	if len(g.bandNames) != len(other.bandNames) {
		return fmt.Errorf("%w: %v vs %v", ErrBandMismatch, g.bandNames, other.bandNames)
	}
	for i, n := range g.bandNames {
		if other.bandNames[i] != n {
			return fmt.Errorf("%w: %v vs %v", ErrBandMismatch, g.bandNames, other.bandNames)
		}
	}
	return nil
}
