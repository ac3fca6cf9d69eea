// Package source defines the raster source contract: a collaborator
// that yields timestamped grids for a dataset on request.
package source

import (
	"context"
	"time"

	"github.com/climatrend/climatrend/internal/grid"
)

// RasterSource yields the grids of one dataset for a band selection and
// date range. Implementations must return grids with a consistent
// spatial reference within one dataset and expose per-grid timestamp
// and scenario metadata. Query errors surface to the caller as-is; the
// pipeline performs no automatic retry.
type RasterSource interface {
	Query(ctx context.Context, datasetID string, bands []string, start, end time.Time) (*grid.Collection, error)
	Close() error
}
