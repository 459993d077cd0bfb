package composite

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// MultiFetcher dispatches a fetch by URL scheme. URLs without a scheme, or
// with file://, go to the file fetcher.
type MultiFetcher struct {
	HTTP    Fetcher
	File    Fetcher
	PMTiles Fetcher
}

// Fetch implements Fetcher.
func (m MultiFetcher) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	var f Fetcher
	switch scheme(rawURL) {
	case "http", "https":
		f = m.HTTP
	case PMTilesScheme:
		f = m.PMTiles
	case "", "file":
		f = m.File
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher for %q", rawURL)
	}
	return f.Fetch(ctx, rawURL)
}

func scheme(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(rawURL[:i])
}
