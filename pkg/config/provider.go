// Package config defines the configuration surface of the trend
// pipeline and its pluggable providers (YAML files and SQLite
// databases).
package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDatasets() ([]DatasetData, error)
	GetAnalysis() (*AnalysisData, error)
	GetRegion() (*RegionData, error)
	GetExport() (*ExportData, error)

	// Configuration management
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Source   SourceData    `json:"source" yaml:"source"`
	Datasets []DatasetData `json:"datasets" yaml:"datasets"`
	Analysis AnalysisData  `json:"analysis" yaml:"analysis"`
	Region   RegionData    `json:"region" yaml:"region"`
	Export   ExportData    `json:"export" yaml:"export"`
	HTTP     *HTTPData     `json:"http,omitempty" yaml:"http,omitempty"`
}

// SourceData selects the raster source backend
type SourceData struct {
	Backend string `json:"backend" yaml:"backend"` // "postgres"
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// DatasetData identifies one gridded dataset to analyze
type DatasetData struct {
	ID          string   `json:"id" yaml:"id"`
	Table       string   `json:"table,omitempty" yaml:"table,omitempty"`
	Bands       []string `json:"bands" yaml:"bands"`
	Scenarios   []string `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
	Projection  string   `json:"projection" yaml:"projection"`
	ResolutionM float64  `json:"resolution_m" yaml:"resolution_m"`
}

// SeasonData defines one season window: a start month plus a duration,
// which may carry the window across the year boundary
type SeasonData struct {
	Name           string `json:"name" yaml:"name"`
	StartMonth     int    `json:"start_month" yaml:"start_month"`
	DurationMonths int    `json:"duration_months" yaml:"duration_months"`
}

// AnalysisData holds the date range, season windows and engine tuning
type AnalysisData struct {
	StartDate string       `json:"start_date" yaml:"start_date"` // YYYY-MM-DD
	EndDate   string       `json:"end_date" yaml:"end_date"`     // YYYY-MM-DD, exclusive
	Seasons   []SeasonData `json:"seasons" yaml:"seasons"`
	TileRows  int          `json:"tile_rows,omitempty" yaml:"tile_rows,omitempty"`
	Workers   int          `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// DateRange parses the analysis date range. Both dates are interpreted
// as UTC midnight; the end date is exclusive.
func (a *AnalysisData) DateRange() (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", a.StartDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q: %w", a.StartDate, err)
	}
	end, err := time.ParseInLocation("2006-01-02", a.EndDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q: %w", a.EndDate, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %s is not after start_date %s", a.EndDate, a.StartDate)
	}
	return start, end, nil
}

// PointData is one vertex of the region polygon, in the projected
// coordinates of the source grids
type PointData struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// RegionData defines the clipping region: a polygon plus a buffer
// distance in meters
type RegionData struct {
	Points  []PointData `json:"points" yaml:"points"`
	BufferM float64     `json:"buffer_m" yaml:"buffer_m"`
}

// ExportData configures the export sink
type ExportData struct {
	Backend    string `json:"backend" yaml:"backend"` // "file" or "postgres"
	Directory  string `json:"directory,omitempty" yaml:"directory,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	NamePrefix string `json:"name_prefix,omitempty" yaml:"name_prefix,omitempty"`
}

// HTTPData configures the optional status/metrics HTTP server
type HTTPData struct {
	Listen string `json:"listen" yaml:"listen"`
}

// Validate checks the cross-section invariants that must hold before
// any pipeline work starts.
func (c *ConfigData) Validate() error {
	if len(c.Datasets) == 0 {
		return fmt.Errorf("no datasets configured")
	}
	for _, ds := range c.Datasets {
		if ds.ID == "" {
			return fmt.Errorf("dataset with empty id")
		}
		if len(ds.Bands) == 0 {
			return fmt.Errorf("dataset %q has no bands", ds.ID)
		}
	}
	if len(c.Analysis.Seasons) == 0 {
		return fmt.Errorf("no seasons configured")
	}
	for _, s := range c.Analysis.Seasons {
		if s.StartMonth < 1 || s.StartMonth > 12 {
			return fmt.Errorf("season %q: start_month %d outside [1,12]", s.Name, s.StartMonth)
		}
		if s.DurationMonths < 1 || s.DurationMonths > 12 {
			return fmt.Errorf("season %q: duration_months %d outside [1,12]", s.Name, s.DurationMonths)
		}
	}
	if _, _, err := c.Analysis.DateRange(); err != nil {
		return err
	}
	return nil
}
