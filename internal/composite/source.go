// Package composite implements the weighted multi-raster composite tile engine.
//
// For every requested map tile the engine fetches one tile image per registered
// raster source, reduces the images to a scalar field by a normalized weight
// vector, and paints the field through a non-linear remap and a color ramp.
//
//	registry + weights + tile
//	        │
//	        ▼
//	FetchGroup ──► Accumulate ──► ColorMapper ──► RenderedTile
//
// Fetch failures never abort a render: a source that cannot be fetched is an
// absent image and simply contributes nothing.
package composite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
)

// DefaultTileSize is the edge length of rendered tiles in pixels.
const DefaultTileSize = 256

// processCacheBuster is fixed once per process so repeated fetches of the same
// tile within a session can reuse caches while different sessions never see
// stale tiles.
var processCacheBuster = strconv.FormatInt(time.Now().UnixMilli(), 10)

// CacheBuster returns the cache-busting token of this process.
func CacheBuster() string {
	return processCacheBuster
}

// URLTemplate resolves a tile coordinate to the URL of one tile image.
type URLTemplate func(tile maptile.Tile) string

// TileURL returns a template producing {root}/{z}/{x}/{y}.{ext}?v={cacheBuster}.
// An empty cacheBuster omits the query string.
func TileURL(root, ext, cacheBuster string) URLTemplate {
	root = strings.TrimRight(root, "/")
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return func(t maptile.Tile) string {
		u := fmt.Sprintf("%s/%d/%d/%d.%s", root, t.Z, t.X, t.Y, ext)
		if cacheBuster != "" {
			u += "?v=" + cacheBuster
		}
		return u
	}
}

// RasterSource is one independently served tiled image layer.
type RasterSource struct {
	Name string      // unique display name, the weight key
	Key  string      // URL-safe slug of Name, binds UI sliders
	URL  URLTemplate // tile address resolver
}

// NewSource creates a raster source keyed by the slug of its name.
func NewSource(name string, url URLTemplate) RasterSource {
	return RasterSource{Name: name, Key: Slug(name), URL: url}
}

// TileURL resolves the source's URL for a tile.
func (s RasterSource) TileURL(t maptile.Tile) string {
	return s.URL(t)
}

// Slug creates a URL-safe key from a name: lowercase, spaces to underscores,
// everything except [a-z0-9_] dropped.
func Slug(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.ReplaceAll(id, " ", "_")
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InRange reports whether x and y address a tile that exists at zoom z.
func InRange(t maptile.Tile) bool {
	if t.Z > 32 {
		return false
	}
	n := uint64(1) << uint64(t.Z)
	return uint64(t.X) < n && uint64(t.Y) < n
}

func tileString(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}
