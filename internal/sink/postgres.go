package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/climatrend/climatrend/internal/geo"
	"github.com/climatrend/climatrend/internal/grid"
	"github.com/climatrend/climatrend/internal/log"
)

// CoefficientRecord is one exported coefficient band in Postgres.
type CoefficientRecord struct {
	Name        string    `gorm:"column:name;primaryKey"`
	Band        string    `gorm:"column:band;primaryKey"`
	ExportedAt  time.Time `gorm:"column:exported_at"`
	Timestamp   time.Time `gorm:"column:timestamp"`
	Projection  string    `gorm:"column:projection"`
	ResolutionM float64   `gorm:"column:resolution_m"`
	Width       int       `gorm:"column:width"`
	Height      int       `gorm:"column:height"`
	OriginX     float64   `gorm:"column:origin_x"`
	OriginY     float64   `gorm:"column:origin_y"`
	Cells       []byte    `gorm:"column:cells"`
}

// TableName specifies the table name for CoefficientRecord
func (CoefficientRecord) TableName() string {
	return "trend_coefficients"
}

// PostgresSink upserts clipped coefficient grids into Postgres, one row
// per band keyed by (name, band) so re-running an analysis replaces its
// previous export.
type PostgresSink struct {
	dsn    string
	DB     *gorm.DB
	logger *zap.SugaredLogger
}

// NewPostgresSink creates a new Postgres export sink
func NewPostgresSink(dsn string, lg *zap.SugaredLogger) *PostgresSink {
	return &PostgresSink{dsn: dsn, logger: lg}
}

// Connect connects to the export database and migrates the table
func (p *PostgresSink) Connect() error {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)

	var err error
	p.logger.Info("connecting to export database...")
	p.DB, err = gorm.Open(postgres.Open(p.dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return fmt.Errorf("export database connection: %w", err)
	}
	if err := p.DB.AutoMigrate(&CoefficientRecord{}); err != nil {
		return fmt.Errorf("migrating trend_coefficients: %w", err)
	}
	p.logger.Info("export database connection successful")
	return nil
}

// Export clips the grid and upserts one row per coefficient band.
func (p *PostgresSink) Export(ctx context.Context, g *grid.Grid, region geo.Region, resolutionM float64, ref grid.SpatialRef, name string) error {
	if p.DB == nil {
		if err := p.Connect(); err != nil {
			return err
		}
	}

	clipped, err := geo.Clip(g, region)
	if err != nil {
		return fmt.Errorf("clipping %s: %w", name, err)
	}

	ext := clipped.Extent()
	now := time.Now().UTC()
	records := make([]CoefficientRecord, 0, clipped.NumBands())
	for b := 0; b < clipped.NumBands(); b++ {
		bandName, vals := clipped.BandAt(b)
		cells, err := msgpack.Marshal(vals)
		if err != nil {
			return fmt.Errorf("encoding %s band %s: %w", name, bandName, err)
		}
		records = append(records, CoefficientRecord{
			Name:        name,
			Band:        bandName,
			ExportedAt:  now,
			Timestamp:   clipped.Timestamp(),
			Projection:  ref.Projection,
			ResolutionM: resolutionM,
			Width:       ext.Width,
			Height:      ext.Height,
			OriginX:     ext.OriginX,
			OriginY:     ext.OriginY,
			Cells:       cells,
		})
	}

	err = p.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "band"}},
			UpdateAll: true,
		}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("upserting %s: %w", name, err)
	}

	p.logger.Infof("exported %s (%d bands) to trend_coefficients", name, len(records))
	return nil
}

// Close closes the underlying database connection
func (p *PostgresSink) Close() error {
	if p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
