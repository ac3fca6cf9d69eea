package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/climatrend/climatrend/internal/geo"
	"github.com/climatrend/climatrend/internal/grid"
)

// RasterDocument is the on-disk layout of an exported grid.
type RasterDocument struct {
	Name        string       `msgpack:"name"`
	ExportedAt  time.Time    `msgpack:"exported_at"`
	Timestamp   time.Time    `msgpack:"timestamp"`
	Projection  string       `msgpack:"projection"`
	ResolutionM float64      `msgpack:"resolution_m"`
	Width       int          `msgpack:"width"`
	Height      int          `msgpack:"height"`
	OriginX     float64      `msgpack:"origin_x"`
	OriginY     float64      `msgpack:"origin_y"`
	Bands       []RasterBand `msgpack:"bands"`
}

// RasterBand is one named channel of an exported grid.
type RasterBand struct {
	Name   string    `msgpack:"name"`
	Values []float64 `msgpack:"values"`
}

// FileSink writes clipped grids as msgpack raster documents under one
// output directory.
type FileSink struct {
	dir    string
	logger *zap.SugaredLogger
}

// NewFileSink creates the output directory if needed and returns the
// sink.
func NewFileSink(dir string, lg *zap.SugaredLogger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir, logger: lg}, nil
}

// Export clips the grid to the region and writes <dir>/<name>.msgpack.
func (f *FileSink) Export(ctx context.Context, g *grid.Grid, region geo.Region, resolutionM float64, ref grid.SpatialRef, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clipped, err := geo.Clip(g, region)
	if err != nil {
		return fmt.Errorf("clipping %s: %w", name, err)
	}

	ext := clipped.Extent()
	doc := RasterDocument{
		Name:        name,
		ExportedAt:  time.Now().UTC(),
		Timestamp:   clipped.Timestamp(),
		Projection:  ref.Projection,
		ResolutionM: resolutionM,
		Width:       ext.Width,
		Height:      ext.Height,
		OriginX:     ext.OriginX,
		OriginY:     ext.OriginY,
	}
	for b := 0; b < clipped.NumBands(); b++ {
		bandName, vals := clipped.BandAt(b)
		doc.Bands = append(doc.Bands, RasterBand{Name: bandName, Values: vals})
	}

	encoded, err := msgpack.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	path := filepath.Join(f.dir, name+".msgpack")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	f.logger.Infof("exported %s (%d bands, %dx%d) to %s",
		name, clipped.NumBands(), ext.Width, ext.Height, path)
	return nil
}

// Close is a no-op for the file sink.
func (f *FileSink) Close() error { return nil }
