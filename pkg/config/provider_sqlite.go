package config

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database
// configuration. Scalar settings live in a key/value table; datasets,
// seasons and the region polygon have their own tables.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from the SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	datasets, err := s.GetDatasets()
	if err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}
	config.Datasets = datasets

	analysis, err := s.GetAnalysis()
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis config: %w", err)
	}
	config.Analysis = *analysis

	region, err := s.GetRegion()
	if err != nil {
		return nil, fmt.Errorf("failed to load region config: %w", err)
	}
	config.Region = *region

	export, err := s.GetExport()
	if err != nil {
		return nil, fmt.Errorf("failed to load export config: %w", err)
	}
	config.Export = *export

	config.Source.Backend = s.setting("source_backend", "postgres")
	config.Source.DSN = s.setting("source_dsn", "")
	if listen := s.setting("http_listen", ""); listen != "" {
		config.HTTP = &HTTPData{Listen: listen}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", s.dbPath, err)
	}
	return config, nil
}

// GetDatasets returns dataset configurations from the database
func (s *SQLiteProvider) GetDatasets() ([]DatasetData, error) {
	rows, err := s.db.Query(`
		SELECT id, table_name, bands, scenarios, projection, resolution_m
		FROM datasets
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []DatasetData
	for rows.Next() {
		var ds DatasetData
		var tableName, bands, scenarios sql.NullString
		if err := rows.Scan(&ds.ID, &tableName, &bands, &scenarios,
			&ds.Projection, &ds.ResolutionM); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		if tableName.Valid {
			ds.Table = tableName.String
		}
		ds.Bands = splitList(bands.String)
		ds.Scenarios = splitList(scenarios.String)
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

// GetAnalysis returns the analysis configuration from the database
func (s *SQLiteProvider) GetAnalysis() (*AnalysisData, error) {
	analysis := &AnalysisData{
		StartDate: s.setting("analysis_start_date", ""),
		EndDate:   s.setting("analysis_end_date", ""),
	}
	fmt.Sscanf(s.setting("engine_tile_rows", "0"), "%d", &analysis.TileRows)
	fmt.Sscanf(s.setting("engine_workers", "0"), "%d", &analysis.Workers)

	rows, err := s.db.Query(`
		SELECT name, start_month, duration_months
		FROM seasons
		ORDER BY start_month, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query seasons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var season SeasonData
		if err := rows.Scan(&season.Name, &season.StartMonth, &season.DurationMonths); err != nil {
			return nil, fmt.Errorf("failed to scan season row: %w", err)
		}
		analysis.Seasons = append(analysis.Seasons, season)
	}
	return analysis, rows.Err()
}

// GetRegion returns the region-of-interest configuration
func (s *SQLiteProvider) GetRegion() (*RegionData, error) {
	region := &RegionData{}
	fmt.Sscanf(s.setting("region_buffer_m", "0"), "%f", &region.BufferM)

	rows, err := s.db.Query(`SELECT x, y FROM region_points ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query region points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PointData
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("failed to scan region point: %w", err)
		}
		region.Points = append(region.Points, p)
	}
	return region, rows.Err()
}

// GetExport returns the export sink configuration
func (s *SQLiteProvider) GetExport() (*ExportData, error) {
	return &ExportData{
		Backend:    s.setting("export_backend", "file"),
		Directory:  s.setting("export_directory", "."),
		DSN:        s.setting("export_dsn", ""),
		NamePrefix: s.setting("export_name_prefix", ""),
	}, nil
}

// IsReadOnly returns false; SQLite configurations can be managed in
// place with external tooling
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

// setting reads one scalar from the settings key/value table, falling
// back to def when absent.
func (s *SQLiteProvider) setting(key, def string) string {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return def
	}
	return value
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
