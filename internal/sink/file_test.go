package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/climatrend/climatrend/internal/geo"
	"github.com/climatrend/climatrend/internal/grid"
)

var wideRegion = geo.Region{Polygon: []geo.Point{
	{X: -1e7, Y: -1e7}, {X: 1e7, Y: -1e7}, {X: 1e7, Y: 1e7}, {X: -1e7, Y: 1e7},
}}

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	ref := grid.SpatialRef{Projection: "EPSG:3857", ResolutionM: 1000}
	ts := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)
	g, err := grid.New(ref, grid.Extent{Width: 2, Height: 2, OriginX: 100, OriginY: 200}, ts,
		[]grid.Band{
			{Name: "constant_precip_mean_djf", Values: []float64{1, 2, 3, 4}},
			{Name: "time_precip_mean_djf", Values: []float64{5, 6, 7, 8}},
		})
	require.NoError(t, err)

	require.NoError(t, fs.Export(context.Background(), g, wideRegion, 1000, ref, "precip_djf_trend"))

	raw, err := os.ReadFile(filepath.Join(dir, "precip_djf_trend.msgpack"))
	require.NoError(t, err)

	var doc RasterDocument
	require.NoError(t, msgpack.Unmarshal(raw, &doc))

	assert.Equal(t, "precip_djf_trend", doc.Name)
	assert.Equal(t, "EPSG:3857", doc.Projection)
	assert.Equal(t, 1000.0, doc.ResolutionM)
	assert.Equal(t, 2, doc.Width)
	assert.Equal(t, 2, doc.Height)
	assert.Equal(t, 100.0, doc.OriginX)
	assert.True(t, ts.Equal(doc.Timestamp))

	require.Len(t, doc.Bands, 2)
	assert.Equal(t, "constant_precip_mean_djf", doc.Bands[0].Name)
	assert.Equal(t, []float64{1, 2, 3, 4}, doc.Bands[0].Values)
	assert.Equal(t, "time_precip_mean_djf", doc.Bands[1].Name)
	assert.Equal(t, []float64{5, 6, 7, 8}, doc.Bands[1].Values)
}

func TestFileSinkClipsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	// Region covers only the first cell; center of cell 0 is (500, 500).
	region := geo.Region{Polygon: []geo.Point{
		{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 1000}, {X: 0, Y: 1000},
	}}

	ref := grid.SpatialRef{Projection: "EPSG:3857", ResolutionM: 1000}
	g, err := grid.New(ref, grid.Extent{Width: 2, Height: 1}, time.Unix(0, 0).UTC(),
		[]grid.Band{{Name: "slope", Values: []float64{1, 2}}})
	require.NoError(t, err)

	require.NoError(t, fs.Export(context.Background(), g, region, 1000, ref, "clip_test"))

	raw, err := os.ReadFile(filepath.Join(dir, "clip_test.msgpack"))
	require.NoError(t, err)
	var doc RasterDocument
	require.NoError(t, msgpack.Unmarshal(raw, &doc))

	require.Len(t, doc.Bands, 1)
	assert.Equal(t, 1.0, doc.Bands[0].Values[0])
	assert.True(t, grid.IsNoData(doc.Bands[0].Values[1]), "cell outside region must export as no-data")
}

func TestFileSinkRespectsCancellation(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	ref := grid.SpatialRef{Projection: "EPSG:3857", ResolutionM: 1000}
	g, err := grid.New(ref, grid.Extent{Width: 1, Height: 1}, time.Unix(0, 0).UTC(),
		[]grid.Band{{Name: "slope", Values: []float64{1}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, fs.Export(ctx, g, wideRegion, 1000, ref, "never_written"), context.Canceled)

	_, statErr := os.Stat(filepath.Join(dir, "never_written.msgpack"))
	assert.True(t, os.IsNotExist(statErr))
}
