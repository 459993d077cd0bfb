package composite

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/pmtiles"
	"github.com/paulmach/orb/maptile"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tileServer(t *testing.T, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok/11/571/745.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		case "/garbage/11/571/745.png":
			_, _ = w.Write([]byte("<html>not a tile</html>"))
		case "/boom/11/571/745.png":
			http.Error(w, "upstream down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func host(t *testing.T, srv *httptest.Server) string {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func TestHTTPFetcher(t *testing.T) {
	srv, _ := tileServer(t, encodePNG(t, solid(256, gray(204))))
	f := NewHTTPFetcher(HTTPFetcherConfig{})
	ctx := context.Background()

	img, err := f.Fetch(ctx, TileURL(srv.URL+"/ok", "png", CacheBuster())(tile))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())

	_, err = f.Fetch(ctx, TileURL(srv.URL+"/missing", "png", "")(tile))
	assert.ErrorIs(t, err, ErrTileNotFound)

	_, err = f.Fetch(ctx, TileURL(srv.URL+"/garbage", "png", "")(tile))
	assert.Error(t, err)
}

func TestHTTPFetcherNotFoundKeepsBreakerClosed(t *testing.T) {
	srv, _ := tileServer(t, nil)
	f := NewHTTPFetcher(HTTPFetcherConfig{FailureThreshold: 2})

	for i := 0; i < 10; i++ {
		_, err := f.Fetch(context.Background(), TileURL(srv.URL+"/missing", "png", "")(tile))
		require.ErrorIs(t, err, ErrTileNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, f.BreakerState(host(t, srv)))
}

func TestHTTPFetcherBreakerOpens(t *testing.T) {
	srv, hits := tileServer(t, nil)
	f := NewHTTPFetcher(HTTPFetcherConfig{FailureThreshold: 2, OpenTimeout: time.Hour})
	u := TileURL(srv.URL+"/boom", "png", "")(tile)

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), u)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, f.BreakerState(host(t, srv)))

	_, err := f.Fetch(context.Background(), u)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the host")

	// The open breaker resolves to an absent image, not a failed render.
	out := NewFetchGroup(f, 256, nil).Fetch(context.Background(), []RasterSource{
		NewSource("Road Mobility", TileURL(srv.URL+"/boom", "png", "")),
	}, tile)
	require.Len(t, out, 1)
	assert.True(t, out[0].Absent())
}

func TestHTTPFetcherCanceledContext(t *testing.T) {
	srv, _ := tileServer(t, nil)
	f := NewHTTPFetcher(HTTPFetcherConfig{FailureThreshold: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, TileURL(srv.URL+"/ok", "png", "")(tile))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, f.BreakerState(host(t, srv)))
}

func TestFileFetcher(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "11", "571")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "745.png"), encodePNG(t, solid(64, gray(30))), 0o644))

	img, err := FileFetcher{}.Fetch(context.Background(), TileURL(root, "png", CacheBuster())(tile))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	_, err = FileFetcher{}.Fetch(context.Background(), TileURL(root, "png", "")(maptile.New(0, 0, 11)))
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestParsePMTilesURL(t *testing.T) {
	path, got, err := ParsePMTilesURL("pmtiles:///srv/data/rf.pmtiles/11/571/745.png?v=1")
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/rf.pmtiles", path)
	assert.Equal(t, tile, got)

	_, _, err = ParsePMTilesURL("pmtiles:///srv/data/rf/11/571/745.png")
	assert.Error(t, err)
	_, _, err = ParsePMTilesURL("pmtiles://rf.pmtiles/11/745.png")
	assert.Error(t, err)
	_, _, err = ParsePMTilesURL("https://example.com/rf.pmtiles/11/571/745.png")
	assert.Error(t, err)
}

func TestPMTilesFetcher(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "pop_density.pmtiles")
	var buf bytes.Buffer
	require.NoError(t, pmtiles.Write(&buf, map[maptile.Tile][]byte{
		tile: encodePNG(t, solid(256, gray(102))),
	}, pmtiles.WriteOptions{Name: "Population Density", TileType: pmtiles.Png}))
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	f := NewPMTilesFetcher()
	t.Cleanup(func() { _ = f.Close() })

	src := NewSource("Population Density", PMTilesURL(archive, "png"))
	img, err := f.Fetch(context.Background(), src.TileURL(tile))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	_, err = f.Fetch(context.Background(), src.TileURL(maptile.New(572, 745, 11)))
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestMultiFetcher(t *testing.T) {
	called := ""
	named := func(name string) Fetcher {
		return FetcherFunc(func(context.Context, string) (image.Image, error) {
			called = name
			return solid(1, gray(0)), nil
		})
	}
	m := MultiFetcher{HTTP: named("http"), File: named("file"), PMTiles: named("pmtiles")}

	for url, want := range map[string]string{
		"https://tiles.example.com/a/1/0/0.png": "http",
		"HTTP://tiles.example.com/a/1/0/0.png":  "http",
		"./data/Trucks/1/0/0.png":               "file",
		"file:///data/Trucks/1/0/0.png":         "file",
		"pmtiles://trucks.pmtiles/1/0/0.png":    "pmtiles",
	} {
		_, err := m.Fetch(context.Background(), url)
		require.NoError(t, err, url)
		assert.Equal(t, want, called, url)
	}

	_, err := m.Fetch(context.Background(), "s3://bucket/a/1/0/0.png")
	assert.Error(t, err)
}
