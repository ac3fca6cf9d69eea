// Package sink defines the export contract: persisting a coefficient
// grid clipped to a region of interest, at the source dataset's native
// resolution and spatial reference.
package sink

import (
	"context"

	"github.com/climatrend/climatrend/internal/geo"
	"github.com/climatrend/climatrend/internal/grid"
)

// Exporter persists a grid clipped to region under a destination name.
// Resolution and spatial reference are passed through from the source
// dataset's native grid so the export introduces no resampling. Errors
// surface to the caller; sinks never retry internally.
type Exporter interface {
	Export(ctx context.Context, g *grid.Grid, region geo.Region, resolutionM float64, ref grid.SpatialRef, name string) error
	Close() error
}
