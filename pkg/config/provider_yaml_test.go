package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
source:
  backend: postgres
  dsn: "host=localhost dbname=rasters"
datasets:
  - id: precip_ds
    table: precip_observations
    bands: [precip]
    scenarios: [rcp45, rcp85]
    projection: EPSG:3857
    resolution_m: 1000
analysis:
  start_date: "2000-01-01"
  end_date: "2021-01-01"
  seasons:
    - name: djf
      start_month: 12
      duration_months: 3
  tile_rows: 32
region:
  points:
    - {x: 0, y: 0}
    - {x: 1000, y: 0}
    - {x: 1000, y: 1000}
  buffer_m: 250
export:
  backend: file
  directory: /tmp/out
  name_prefix: "run1_"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestYAMLProviderLoadConfig(t *testing.T) {
	p := NewYAMLProvider(writeConfig(t, validYAML))
	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Source.Backend != "postgres" {
		t.Errorf("source backend = %q, want postgres", cfg.Source.Backend)
	}
	if len(cfg.Datasets) != 1 {
		t.Fatalf("datasets = %d, want 1", len(cfg.Datasets))
	}
	ds := cfg.Datasets[0]
	if ds.ID != "precip_ds" || ds.Table != "precip_observations" {
		t.Errorf("dataset = %+v", ds)
	}
	if len(ds.Scenarios) != 2 || ds.Scenarios[0] != "rcp45" {
		t.Errorf("scenarios = %v", ds.Scenarios)
	}
	if ds.ResolutionM != 1000 {
		t.Errorf("resolution_m = %v, want 1000", ds.ResolutionM)
	}
	if len(cfg.Analysis.Seasons) != 1 || cfg.Analysis.Seasons[0].StartMonth != 12 {
		t.Errorf("seasons = %+v", cfg.Analysis.Seasons)
	}
	if cfg.Analysis.TileRows != 32 {
		t.Errorf("tile_rows = %d, want 32", cfg.Analysis.TileRows)
	}
	if len(cfg.Region.Points) != 3 || cfg.Region.BufferM != 250 {
		t.Errorf("region = %+v", cfg.Region)
	}
	if cfg.Export.NamePrefix != "run1_" {
		t.Errorf("name_prefix = %q", cfg.Export.NamePrefix)
	}
	if !p.IsReadOnly() {
		t.Error("YAML provider should be read-only")
	}
}

func TestYAMLProviderSectionGetters(t *testing.T) {
	p := NewYAMLProvider(writeConfig(t, validYAML))

	datasets, err := p.GetDatasets()
	if err != nil {
		t.Fatal(err)
	}
	if len(datasets) != 1 {
		t.Errorf("GetDatasets = %d entries, want 1", len(datasets))
	}

	analysis, err := p.GetAnalysis()
	if err != nil {
		t.Fatal(err)
	}
	if analysis.StartDate != "2000-01-01" {
		t.Errorf("start_date = %q", analysis.StartDate)
	}

	export, err := p.GetExport()
	if err != nil {
		t.Fatal(err)
	}
	if export.Backend != "file" || export.Directory != "/tmp/out" {
		t.Errorf("export = %+v", export)
	}
}

func TestYAMLProviderRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"not yaml", "{{{"},
		{"no datasets", "analysis:\n  start_date: \"2000-01-01\"\n  end_date: \"2001-01-01\"\n  seasons: [{name: djf, start_month: 12, duration_months: 3}]\n"},
		{"dataset without bands", "datasets: [{id: x}]\nanalysis:\n  start_date: \"2000-01-01\"\n  end_date: \"2001-01-01\"\n  seasons: [{name: djf, start_month: 12, duration_months: 3}]\n"},
		{"bad season month", "datasets: [{id: x, bands: [v]}]\nanalysis:\n  start_date: \"2000-01-01\"\n  end_date: \"2001-01-01\"\n  seasons: [{name: bad, start_month: 0, duration_months: 3}]\n"},
		{"inverted date range", "datasets: [{id: x, bands: [v]}]\nanalysis:\n  start_date: \"2001-01-01\"\n  end_date: \"2000-01-01\"\n  seasons: [{name: djf, start_month: 12, duration_months: 3}]\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewYAMLProvider(writeConfig(t, tc.contents))
			if _, err := p.LoadConfig(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestYAMLProviderMissingFile(t *testing.T) {
	p := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := p.LoadConfig(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAnalysisDateRange(t *testing.T) {
	a := AnalysisData{StartDate: "2000-01-01", EndDate: "2021-01-01"}
	start, end, err := a.DateRange()
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}

	if _, _, err := (&AnalysisData{StartDate: "2000-1-1", EndDate: "2001-01-01"}).DateRange(); err == nil {
		t.Error("expected error for malformed start date")
	}
	if _, _, err := (&AnalysisData{StartDate: "2000-01-01", EndDate: "2000-01-01"}).DateRange(); err == nil {
		t.Error("expected error for empty range")
	}
}
