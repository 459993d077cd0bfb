package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/pmtiles"
	"github.com/paulmach/orb/maptile"
)

// PMTilesScheme is the URL scheme served by PMTilesFetcher.
const PMTilesScheme = "pmtiles"

// PMTilesURL returns a template addressing tiles inside a local archive as
// pmtiles://{archive}/{z}/{x}/{y}.{ext}.
func PMTilesURL(archive, ext string) URLTemplate {
	return TileURL(PMTilesScheme+"://"+archive, ext, "")
}

// PMTilesFetcher reads raster tiles from local PMTiles archives. Each archive
// is opened once and kept until Close.
type PMTilesFetcher struct {
	mu       sync.Mutex
	archives map[string]*pmtiles.Archive
}

// NewPMTilesFetcher creates a fetcher with an empty archive cache.
func NewPMTilesFetcher() *PMTilesFetcher {
	return &PMTilesFetcher{archives: make(map[string]*pmtiles.Archive)}
}

// Fetch implements Fetcher.
func (f *PMTilesFetcher) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, tile, err := ParsePMTilesURL(rawURL)
	if err != nil {
		return nil, err
	}

	archive, err := f.archive(path)
	if err != nil {
		return nil, err
	}

	body, err := archive.Tile(uint8(tile.Z), tile.X, tile.Y)
	if errors.Is(err, pmtiles.ErrTileNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrTileNotFound, path, tileString(tile))
	}
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

func (f *PMTilesFetcher) archive(path string) (*pmtiles.Archive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.archives[path]; ok {
		return a, nil
	}
	a, err := pmtiles.Open(path)
	if err != nil {
		return nil, err
	}
	f.archives[path] = a
	return a, nil
}

// Close closes every cached archive.
func (f *PMTilesFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for path, a := range f.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(f.archives, path)
	}
	return errors.Join(errs...)
}

// ParsePMTilesURL splits pmtiles://{archive}.pmtiles/{z}/{x}/{y}.{ext} into the
// archive path and tile coordinate.
func ParsePMTilesURL(rawURL string) (string, maptile.Tile, error) {
	rest, ok := strings.CutPrefix(rawURL, PMTilesScheme+"://")
	if !ok {
		return "", maptile.Tile{}, fmt.Errorf("not a pmtiles url: %q", rawURL)
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}

	i := strings.LastIndex(rest, ".pmtiles/")
	if i < 0 {
		return "", maptile.Tile{}, fmt.Errorf("pmtiles url has no archive: %q", rawURL)
	}
	path := rest[:i+len(".pmtiles")]

	parts := strings.Split(rest[i+len(".pmtiles/"):], "/")
	if len(parts) != 3 {
		return "", maptile.Tile{}, fmt.Errorf("pmtiles url needs z/x/y: %q", rawURL)
	}
	y, _, _ := strings.Cut(parts[2], ".")

	z, errZ := strconv.ParseUint(parts[0], 10, 8)
	x, errX := strconv.ParseUint(parts[1], 10, 32)
	yy, errY := strconv.ParseUint(y, 10, 32)
	if err := errors.Join(errZ, errX, errY); err != nil {
		return "", maptile.Tile{}, fmt.Errorf("pmtiles url coordinates: %w", err)
	}

	return path, maptile.New(uint32(x), uint32(yy), maptile.Zoom(z)), nil
}
