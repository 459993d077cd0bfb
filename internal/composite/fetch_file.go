package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"strings"
)

// FileFetcher reads tiles from a local {root}/{z}/{x}/{y}.{ext} directory
// tree. Query strings are ignored.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(rawURL, "file://")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read tile: %w", err)
	}
	return Decode(body)
}
