// Package postgres implements the raster source against a Postgres (or
// TimescaleDB) database, one row per (dataset, timestamp, scenario,
// band) with msgpack-encoded cell values.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/climatrend/climatrend/internal/grid"
	"github.com/climatrend/climatrend/internal/log"
	"go.uber.org/zap"
)

const defaultTable = "raster_observations"

// RasterRecord is one band of one raster snapshot as stored in Postgres.
type RasterRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement;column:id"`
	DatasetID   string    `gorm:"column:dataset_id;index:idx_raster_lookup,priority:1"`
	Timestamp   time.Time `gorm:"column:timestamp;index:idx_raster_lookup,priority:2"`
	Scenario    string    `gorm:"column:scenario"`
	Band        string    `gorm:"column:band"`
	Width       int       `gorm:"column:width"`
	Height      int       `gorm:"column:height"`
	OriginX     float64   `gorm:"column:origin_x"`
	OriginY     float64   `gorm:"column:origin_y"`
	ResolutionM float64   `gorm:"column:resolution_m"`
	Projection  string    `gorm:"column:projection"`
	Cells       []byte    `gorm:"column:cells"` // msgpack-encoded []float64, NaN marks no-data
}

// Source holds the connection to the raster database
type Source struct {
	dsn    string
	tables map[string]string // dataset ID -> table, defaultTable when unset
	DB     *gorm.DB          // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// New creates a new Postgres raster source. tables maps dataset IDs to
// their backing tables; datasets not listed use the default table.
func New(dsn string, tables map[string]string, lg *zap.SugaredLogger) *Source {
	return &Source{
		dsn:    dsn,
		tables: tables,
		logger: lg,
	}
}

func (s *Source) tableFor(datasetID string) string {
	if t := s.tables[datasetID]; t != "" {
		return t
	}
	return defaultTable
}

// Connect connects to the raster database
func (s *Source) Connect() error {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: false,
			Colorful:                  true,
		},
	)

	var err error
	s.logger.Info("connecting to raster database...")
	s.DB, err = gorm.Open(postgres.Open(s.dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		s.logger.Warn("warning: unable to create a raster database connection:", err)
		return err
	}
	s.logger.Info("raster database connection successful")

	return nil
}

// Query assembles grids from the per-band rows of one dataset inside
// [start, end). Every (timestamp, scenario) pair must deliver all
// requested bands; a partial snapshot is a configuration error since
// band layout must be identical across the grids of one dataset.
func (s *Source) Query(ctx context.Context, datasetID string, bands []string, start, end time.Time) (*grid.Collection, error) {
	if s.DB == nil {
		if err := s.Connect(); err != nil {
			return nil, err
		}
	}

	var records []RasterRecord
	err := s.DB.WithContext(ctx).
		Table(s.tableFor(datasetID)).
		Where("dataset_id = ? AND band IN ? AND timestamp >= ? AND timestamp < ?",
			datasetID, bands, start, end).
		Order("timestamp, scenario, band").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("raster query for dataset %q: %w", datasetID, err)
	}

	type snapKey struct {
		ts       int64
		scenario string
	}
	snapshots := make(map[snapKey][]RasterRecord)
	var order []snapKey
	for _, rec := range records {
		k := snapKey{ts: rec.Timestamp.UnixNano(), scenario: rec.Scenario}
		if _, ok := snapshots[k]; !ok {
			order = append(order, k)
		}
		snapshots[k] = append(snapshots[k], rec)
	}

	grids := make([]*grid.Grid, 0, len(order))
	for _, k := range order {
		g, err := assembleGrid(snapshots[k], bands)
		if err != nil {
			return nil, fmt.Errorf("dataset %q at %s: %w",
				datasetID, time.Unix(0, k.ts).UTC().Format(time.RFC3339), err)
		}
		grids = append(grids, g)
	}

	s.logger.Debugf("assembled %d grids for dataset %s (%d band rows)",
		len(grids), datasetID, len(records))

	return grid.NewCollection(grids...)
}

// Close closes the underlying database connection
func (s *Source) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func assembleGrid(records []RasterRecord, bands []string) (*grid.Grid, error) {
	byBand := make(map[string]RasterRecord, len(records))
	for _, rec := range records {
		byBand[rec.Band] = rec
	}

	first := records[0]
	ext := grid.Extent{
		Width:   first.Width,
		Height:  first.Height,
		OriginX: first.OriginX,
		OriginY: first.OriginY,
	}
	ref := grid.SpatialRef{Projection: first.Projection, ResolutionM: first.ResolutionM}

	gridBands := make([]grid.Band, 0, len(bands))
	for _, name := range bands {
		rec, ok := byBand[name]
		if !ok {
			return nil, fmt.Errorf("%w: band %q missing from snapshot", grid.ErrBandMismatch, name)
		}
		var cells []float64
		if err := msgpack.Unmarshal(rec.Cells, &cells); err != nil {
			return nil, fmt.Errorf("decoding band %q cells: %w", name, err)
		}
		gridBands = append(gridBands, grid.Band{Name: name, Values: cells})
	}

	g, err := grid.New(ref, ext, first.Timestamp.UTC(), gridBands)
	if err != nil {
		return nil, err
	}
	if first.Scenario != "" {
		g = g.WithScenario(first.Scenario)
	}
	return g, nil
}
