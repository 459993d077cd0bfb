package service

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/db"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/pmtiles"
)

func testRegistry(t *testing.T) *composite.Registry {
	t.Helper()
	reg, err := config.Default().Registry(t.TempDir(), "")
	require.NoError(t, err)
	return reg
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	a, b := bus.Subscribe(), bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Resource: ResourceWeights, Action: "updated", ID: "1"})
	assert.Equal(t, "1", (<-a).ID)
	assert.Equal(t, "1", (<-b).ID)

	bus.Unsubscribe(a)
	bus.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, bus.Subscribers())

	// A full subscriber never blocks the publisher.
	for i := 0; i < 100; i++ {
		bus.Publish(Event{Resource: ResourceWeights})
	}
	bus.Unsubscribe(b)
}

func TestWeightServiceDefaults(t *testing.T) {
	reg := testRegistry(t)
	s := NewWeightService(reg, config.Default().DefaultWeights(), nil, nil)

	vec, rev := s.Snapshot()
	assert.Zero(t, rev)
	assert.InDelta(t, 1, vec.Sum(), 1e-9)

	state := s.State()
	require.Len(t, state.Weights, 7)
	for _, r := range state.Weights {
		assert.Equal(t, "0.14", r.Display)
	}
}

func TestWeightServicePublishesOnceOnSet(t *testing.T) {
	reg := testRegistry(t)
	bus := NewEventBus()
	events := bus.Subscribe()
	s := NewWeightService(reg, composite.RawWeights{}, bus, nil)

	old, _ := s.Snapshot()
	assert.Zero(t, old.Sum())

	state := s.Set(composite.RawWeights{"Incidents Heatmap": 3, "Land Use Risk": 1, "Not A Layer": 50})
	assert.Equal(t, uint64(1), state.Revision)
	assert.InDelta(t, 1, state.Sum, 1e-9)

	select {
	case e := <-events:
		assert.Equal(t, Event{Resource: ResourceWeights, Action: "updated", ID: "1"}, e)
	case <-time.After(time.Second):
		t.Fatal("no weights event")
	}
	select {
	case e := <-events:
		t.Fatalf("unexpected second event %+v", e)
	default:
	}

	vec, rev := s.Snapshot()
	assert.Equal(t, uint64(1), rev)
	assert.InDelta(t, 0.75, vec.Of("Incidents Heatmap"), 1e-12)
	assert.InDelta(t, 0.25, vec.Of("Land Use Risk"), 1e-12)
	assert.Zero(t, old.Sum(), "earlier snapshots are never mutated")
	assert.NotContains(t, s.Raw(), "Not A Layer")
}

func TestWeightServiceSetByKey(t *testing.T) {
	reg := testRegistry(t)
	s := NewWeightService(reg, config.Default().DefaultWeights(), nil, nil)

	state := s.SetByKey(map[string]float64{"fire_hydrants": 0, "road_mobility": -5, "nope": 2})
	assert.Equal(t, uint64(1), state.Revision)

	vec, _ := s.Snapshot()
	assert.Zero(t, vec.Of("Fire Hydrants"))
	assert.Zero(t, vec.Of("Road Mobility"))
	assert.InDelta(t, 0.2, vec.Of("Incidents Heatmap"), 1e-12)
}

func TestLayerService(t *testing.T) {
	cfg := config.Default()
	cfg.Rasters[9].Root = "archives/xgb.pmtiles"
	s := NewLayerService(cfg, "data", "42")

	layers := s.List()
	require.Len(t, layers, 11)
	assert.Equal(t, "/data/Incidents_Heatmap/{z}/{x}/{y}.png?v=42", layers[0].TileURL)
	assert.Equal(t, "local", layers[0].Source)
	assert.True(t, layers[0].Composite)

	xgb, ok := s.Get("xgboost_composite")
	require.True(t, ok)
	assert.Equal(t, "/tiles/layers/xgboost_composite/{z}/{x}/{y}.png?v=42", xgb.TileURL)
	assert.Equal(t, "pmtiles", xgb.Source)
	assert.Equal(t, "XGB", xgb.Coverage)

	comp := layers[len(layers)-1]
	assert.Equal(t, CompositeLayerID, comp.ID)
	assert.Equal(t, "/tiles/composite/{z}/{x}/{y}.png", comp.TileURL)
	assert.Equal(t, 0.9, comp.Opacity)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestLayerServiceTiles(t *testing.T) {
	dataDir := t.TempDir()
	tile := maptile.New(571, 745, 11)

	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "Trucks", "11", "571"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "Trucks", "11", "571", "745.png"), []byte("trucks"), 0o644))

	f, err := os.Create(filepath.Join(dataDir, "rf.pmtiles"))
	require.NoError(t, err)
	require.NoError(t, pmtiles.Write(f, map[maptile.Tile][]byte{tile: []byte("rf")}, pmtiles.WriteOptions{TileType: pmtiles.Png}))
	require.NoError(t, f.Close())

	cfg := config.Default()
	cfg.Rasters[8].Root = "rf.pmtiles"
	s := NewLayerService(cfg, dataDir, "")
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Tile("number_of_trucks_dispatched_to_incidents", tile)
	require.NoError(t, err)
	assert.Equal(t, []byte("trucks"), got)

	got, err = s.Tile("random_forest_composite", tile)
	require.NoError(t, err)
	assert.Equal(t, []byte("rf"), got)

	_, err = s.Tile("random_forest_composite", maptile.New(0, 0, 11))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = s.Tile("nope", tile)
	assert.ErrorIs(t, err, ErrLayerNotFound)
}

const coverageGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"Drive_Time":"0 - 4","Name":"inner"},"geometry":{"type":"Point","coordinates":[-79.64,43.59]}},
 {"type":"Feature","properties":{"Drive_Time":"6+","Name":"outer"},"geometry":{"type":"Point","coordinates":[-79.64,43.59]}},
 {"type":"Feature","properties":{"Drive_Time":"4 - 6","Name":"middle"},"geometry":{"type":"Point","coordinates":[-79.64,43.59]}},
 {"type":"Feature","properties":{"Drive_Time":"?","Name":"odd"},"geometry":{"type":"Point","coordinates":[-79.64,43.59]}},
 {"type":"Feature","properties":{"Drive_Time":"6+","Name":"outer2"},"geometry":{"type":"Point","coordinates":[-79.64,43.59]}}
]}`

func TestOverlayCoverage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CoverageFile), []byte(coverageGeoJSON), 0o644))

	fc, err := NewOverlayService(dir).Coverage()
	require.NoError(t, err)

	var names, fills []string
	for _, f := range fc.Features {
		names = append(names, f.Properties.MustString("Name"))
		fills = append(fills, f.Properties.MustString("fillColor"))
	}
	assert.Equal(t, []string{"outer", "odd", "outer2", "middle", "inner"}, names)
	assert.Equal(t, []string{"#ffd1e6", "#ccc", "#ffd1e6", "#ff7bbd", "#ff2f92"}, fills)
}

func TestOverlayStations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StationsFile), []byte(`{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"Station_ID":124},"geometry":{"type":"Point","coordinates":[-79.6,43.6]}},
 {"type":"Feature","properties":{"Station_ID":127},"geometry":{"type":"Point","coordinates":[-79.6,43.6]}},
 {"type":"Feature","properties":{"Station_ID":101},"geometry":{"type":"Point","coordinates":[-79.6,43.6]}},
 {"type":"Feature","properties":null,"geometry":{"type":"Point","coordinates":[-79.6,43.6]}}
]}`), 0o644))

	fc, err := NewOverlayService(dir).Stations()
	require.NoError(t, err)
	require.Len(t, fc.Features, 4)

	groups := []string{}
	for _, f := range fc.Features {
		groups = append(groups, f.Properties.MustString("group"))
	}
	assert.Equal(t, []string{"blue", "green", "default", "default"}, groups)
	assert.Equal(t, "#1e90ff", fc.Features[0].Properties["iconColor"])
	assert.Equal(t, true, fc.Features[1].Properties["flashing"])
	assert.Equal(t, false, fc.Features[2].Properties["flashing"])
}

func TestParseGeoJSONRejects(t *testing.T) {
	_, err := ParseGeoJSON([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyGeoJSON)

	_, err = ParseGeoJSON([]byte("\n<!DOCTYPE html><html></html>"))
	assert.ErrorIs(t, err, ErrHTMLGeoJSON)

	_, err = ParseGeoJSON([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = NewOverlayService(t.TempDir()).Stations()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func newCoverage(t *testing.T) *CoverageService {
	t.Helper()
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s, err := NewCoverageService(context.Background(), conn, nil)
	require.NoError(t, err)
	return s
}

func TestCoverageChartIndicator(t *testing.T) {
	s := newCoverage(t)

	charts, err := s.Chart(context.Background(), "Incidents Heatmap")
	require.NoError(t, err)
	assert.Equal(t, "Incidents Heatmap", charts.Key)
	require.Len(t, charts.Charts, 1)

	c := charts.Charts[0]
	assert.Equal(t, []string{"0–4", "4–6", "6+"}, c.Labels)
	require.Len(t, c.Datasets, 2)
	assert.Equal(t, "21–24 Stations", c.Datasets[0].Label)
	assert.Equal(t, []float64{13.88, 7.36, 7.02}, c.Datasets[0].Data)
	assert.Equal(t, "24–27 Stations", c.Datasets[1].Label)
	assert.Equal(t, []float64{9.43, 7.59, 4.51}, c.Datasets[1].Data)
}

func TestCoverageChartCompositeModel(t *testing.T) {
	s := newCoverage(t)

	charts, err := s.Chart(context.Background(), "Random Forest Composite")
	require.NoError(t, err)
	assert.Equal(t, "RF", charts.Key)
	require.Len(t, charts.Charts, 3)
	assert.Equal(t, "Random Forest – Drive-Time Coverage (minutes)", charts.Charts[0].Title)

	sev := charts.Charts[1]
	assert.Equal(t, "Random Forest – High vs Very High (21–24)", sev.Title)
	assert.Equal(t, []float64{13.44, 8.76, 5.4}, sev.Datasets[0].Data)
	assert.Equal(t, []float64{14.26, 7.2, 10.61}, sev.Datasets[1].Data)
	assert.Equal(t, "#1e90ff", sev.Datasets[1].Color)
}

func TestCoverageServiceCoverage(t *testing.T) {
	s := newCoverage(t)

	charts, err := s.Chart(context.Background(), CoverageKey)
	require.NoError(t, err)
	assert.Equal(t, "Service Coverage Drive-Time", charts.Charts[0].Title)

	_, err = s.Chart(context.Background(), "Fire Hydrants")
	assert.ErrorIs(t, err, ErrUnknownLayer)

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 7)
}

func TestCoverageSeedIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer conn.Close()

	_, err = NewCoverageService(context.Background(), conn, nil)
	require.NoError(t, err)
	_, err = NewCoverageService(context.Background(), conn, nil)
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM drive_time_coverage`).Scan(&n))
	assert.Equal(t, 7*2*3, n)
}

func TestConcurrentRendersUseOwnSnapshot(t *testing.T) {
	reg := composite.NewRegistry()
	for _, name := range []string{"A", "B"} {
		require.NoError(t, reg.Register(composite.NewSource(name, composite.TileURL(name, "png", ""))))
	}
	lum := map[string]uint8{"A": 204, "B": 102}
	fetcher := composite.FetcherFunc(func(_ context.Context, url string) (image.Image, error) {
		root, _, _ := strings.Cut(url, "/")
		v := lum[root]
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
		}
		return img, nil
	})

	mapper := composite.DefaultMapper()
	weights := NewWeightService(reg, composite.RawWeights{"A": 1, "B": 1}, nil, nil)
	producer := &composite.Producer{
		Renderer: composite.NewRenderer(fetcher, mapper, composite.WithTileSize(8)),
		Registry: reg,
		Weights:  weights,
	}

	const n = 50
	var mu sync.Mutex
	states := map[uint64]WeightsState{0: weights.State()}
	rendered := make([]composite.RenderedTile, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st := weights.Set(composite.RawWeights{"A": float64(i % 5), "B": float64(i % 3)})
			mu.Lock()
			states[st.Revision] = st
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			rendered[i] = producer.ProduceTile(context.Background(), maptile.New(0, 0, 1))
		}()
	}
	wg.Wait()

	_, last := weights.Snapshot()
	assert.Equal(t, uint64(n), last)
	for _, rt := range rendered {
		st, ok := states[rt.Revision]
		require.True(t, ok, "revision %d", rt.Revision)

		// Same order and arithmetic as the accumulator: registry order.
		var want float64
		for _, r := range st.Weights {
			if r.Weight > 0 {
				v := lum[r.Name]
				want += composite.Luminance(v, v, v) * r.Weight
			}
		}
		assert.Equal(t, mapper.Pixel(want), rt.Image.NRGBAAt(3, 3), "revision %d", rt.Revision)
	}
}
