// Package memory provides an in-memory raster source for tests and
// synthetic pipelines.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/climatrend/climatrend/internal/grid"
)

// Source serves grids registered up front, keyed by dataset ID.
type Source struct {
	datasets map[string][]*grid.Grid
}

// New creates an empty in-memory source.
func New() *Source {
	return &Source{datasets: make(map[string][]*grid.Grid)}
}

// Add registers grids under a dataset ID.
func (s *Source) Add(datasetID string, grids ...*grid.Grid) {
	s.datasets[datasetID] = append(s.datasets[datasetID], grids...)
}

// Query returns the dataset's grids restricted to the requested bands
// and [start, end) range. Requesting a band a grid does not carry is an
// error, matching the fail-fast behavior of the real source.
func (s *Source) Query(_ context.Context, datasetID string, bands []string, start, end time.Time) (*grid.Collection, error) {
	stored, ok := s.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q", datasetID)
	}

	var selected []*grid.Grid
	for _, g := range stored {
		t := g.Timestamp()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		sub, err := selectBands(g, bands)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", datasetID, err)
		}
		selected = append(selected, sub)
	}

	return grid.NewCollection(selected...)
}

// Close is a no-op for the in-memory source.
func (s *Source) Close() error { return nil }

func selectBands(g *grid.Grid, bands []string) (*grid.Grid, error) {
	if len(bands) == 0 {
		return g, nil
	}
	selected := make([]grid.Band, 0, len(bands))
	for _, name := range bands {
		vals, ok := g.Band(name)
		if !ok {
			return nil, fmt.Errorf("grid at %s has no band %q", g.Timestamp().Format(time.RFC3339), name)
		}
		selected = append(selected, grid.Band{Name: name, Values: vals})
	}
	sub, err := grid.New(g.Ref(), g.Extent(), g.Timestamp(), selected)
	if err != nil {
		return nil, err
	}
	if g.Scenario() != "" {
		sub = sub.WithScenario(g.Scenario())
	}
	return sub, nil
}
