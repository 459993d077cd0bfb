package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// ErrTileNotFound reports that a source has no tile at a coordinate. It is the
// most common reason for an absent image.
var ErrTileNotFound = errors.New("tile not found")

// Fetcher loads and decodes one tile image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (image.Image, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (image.Image, error) {
	return f(ctx, url)
}

// FetchedImage is the settled outcome of one source fetch. Pixels is nil when
// the tile could not be fetched or decoded.
type FetchedImage struct {
	SourceName string
	Pixels     *image.NRGBA
}

// Absent reports whether the fetch produced no image.
func (f FetchedImage) Absent() bool {
	return f.Pixels == nil
}

// FetchGroup fans out one fetch per source for a tile and fans the results
// back in. Failures resolve to absent images; the group returns only after
// every fetch has settled.
type FetchGroup struct {
	fetcher  Fetcher
	tileSize int
	logger   *slog.Logger
}

// NewFetchGroup creates a fetch group producing tileSize×tileSize images.
func NewFetchGroup(fetcher Fetcher, tileSize int, logger *slog.Logger) *FetchGroup {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FetchGroup{fetcher: fetcher, tileSize: tileSize, logger: logger}
}

// TileSize returns the edge length of fetched images.
func (g *FetchGroup) TileSize() int {
	return g.tileSize
}

// Fetch fetches the tile from every source concurrently. The result has one
// entry per source, in source order.
func (g *FetchGroup) Fetch(ctx context.Context, sources []RasterSource, tile maptile.Tile) []FetchedImage {
	results := make([]FetchedImage, len(sources))

	// Members recover and report absence in their result, so the group is a
	// barrier only and Wait never returns an error.
	var eg errgroup.Group
	for i, src := range sources {
		eg.Go(func() error {
			results[i] = g.fetchOne(ctx, src, tile)
			return nil
		})
	}
	eg.Wait()

	return results
}

func (g *FetchGroup) fetchOne(ctx context.Context, src RasterSource, tile maptile.Tile) (res FetchedImage) {
	res.SourceName = src.Name
	url := src.TileURL(tile)

	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("raster fetch panicked", "source", src.Name, "url", url, "panic", fmt.Sprint(r))
			res.Pixels = nil
		}
	}()

	img, err := g.fetcher.Fetch(ctx, url)
	if err != nil {
		g.logger.Debug("raster tile absent", "source", src.Name, "url", url, "error", err)
		return res
	}
	if img == nil {
		return res
	}

	res.Pixels = ToNRGBA(img, g.tileSize)
	return res
}

// ToNRGBA converts an image to a size×size non-premultiplied RGBA buffer
// anchored at the origin, scaling it when its bounds differ.
func ToNRGBA(src image.Image, size int) *image.NRGBA {
	b := src.Bounds()
	sameSize := b.Dx() == size && b.Dy() == size

	if n, ok := src.(*image.NRGBA); ok && sameSize && b.Min == (image.Point{}) {
		return n
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	if sameSize {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return dst
}
