package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	s, err := New(Config{Host: "localhost", Port: "8086", DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dataDir
}

func TestServerRoutes(t *testing.T) {
	s, dataDir := newTestServer(t)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusOK, get("/openapi.json").Code)

	var info struct {
		DB      bool `json:"db"`
		Sources int  `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(get("/api/v1/info").Body.Bytes(), &info))
	assert.True(t, info.DB)
	assert.Equal(t, 7, info.Sources)

	// No raster tiles on disk: every source is absent and the tile is transparent.
	rec := get("/tiles/composite/11/571/745.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "hello.txt"), []byte("hi"), 0o644))
	rec = get("/data/hello.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
	assert.Equal(t, http.StatusNotFound, get("/nope").Code)

	rec = get("/api/v1/coverage/RF")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerOpenAPI(t *testing.T) {
	s, _ := newTestServer(t)
	paths := s.OpenAPI().Paths
	for _, p := range []string{
		"/api/v1/weights",
		"/api/v1/editor/weights",
		"/api/v1/editor/events",
		"/tiles/composite/{z}/{x}/{y}",
		"/api/v1/coverage/{layer}",
	} {
		assert.Contains(t, paths, p)
	}
}

func TestServerRejectsBadLayerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rasters: []"), 0o644))
	_, err := New(Config{LayersFile: path})
	assert.Error(t, err)
}

func TestEngineRendersTransparentWithoutTiles(t *testing.T) {
	engine, err := NewEngine(config.Default(), EngineConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer engine.Archives.Close()

	rendered := engine.Render(context.Background(), config.Default().DefaultWeights(), maptile.New(571, 745, 11))
	assert.True(t, rendered.Transparent())
	assert.Len(t, rendered.Absent, 7)
}
