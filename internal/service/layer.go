package service

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulmach/orb/maptile"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/pmtiles"
)

// ErrLayerNotFound is returned for unknown layer IDs.
var ErrLayerNotFound = errors.New("layer not found")

// LayerService is the read-only raster layer catalogue. It also serves the
// raw tiles of layers the browser cannot load directly (archives and local
// directories outside the data dir).
type LayerService struct {
	dataDir string
	layers  []Layer
	rasters map[string]config.Raster

	mu       sync.Mutex
	archives map[string]*pmtiles.Archive
}

// NewLayerService builds the catalogue from the layer configuration.
func NewLayerService(cfg *config.File, dataDir, cacheBuster string) *LayerService {
	s := &LayerService{
		dataDir:  dataDir,
		rasters:  make(map[string]config.Raster, len(cfg.Rasters)),
		archives: make(map[string]*pmtiles.Archive),
	}
	for _, r := range cfg.Rasters {
		s.rasters[r.Key] = r
		s.layers = append(s.layers, Layer{
			ID:        r.Key,
			Name:      r.Name,
			TileURL:   clientTileURL(r, cacheBuster),
			Format:    r.Ext,
			Source:    string(r.Kind()),
			Composite: r.Composite,
			Coverage:  r.Coverage,
			Pane:      "rasters",
			Opacity:   1,
		})
	}
	s.layers = append(s.layers, Layer{
		ID:      CompositeLayerID,
		Name:    "Composite",
		TileURL: "/tiles/composite/{z}/{x}/{y}.png",
		Format:  "png",
		Source:  "composite",
		Pane:    "rasters",
		Opacity: 0.9,
	})
	return s
}

// clientTileURL is the URL template the map widget loads a layer from.
func clientTileURL(r config.Raster, cacheBuster string) string {
	query := ""
	if cacheBuster != "" {
		query = "?v=" + cacheBuster
	}
	tail := "/{z}/{x}/{y}." + r.Ext + query

	switch {
	case r.Kind() == config.KindRemote:
		return strings.TrimRight(r.Root, "/") + tail
	case r.Kind() == config.KindLocal && r.InDataDir():
		return "/data/" + path.Clean(filepath.ToSlash(r.Root)) + tail
	default:
		return "/tiles/layers/" + r.Key + tail
	}
}

// List returns the catalogue in configuration order, composite last.
func (s *LayerService) List() []Layer {
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Get returns a layer by ID.
func (s *LayerService) Get(id string) (Layer, bool) {
	for _, l := range s.layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Tile returns the raw bytes of one layer tile.
func (s *LayerService) Tile(id string, t maptile.Tile) ([]byte, error) {
	r, ok := s.rasters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}

	switch r.Kind() {
	case config.KindPMTiles:
		a, err := s.archive(r.Resolve(s.dataDir))
		if err != nil {
			return nil, err
		}
		data, err := a.Tile(uint8(t.Z), t.X, t.Y)
		if errors.Is(err, pmtiles.ErrTileNotFound) {
			return nil, os.ErrNotExist
		}
		return data, err
	case config.KindLocal:
		p := filepath.Join(r.Resolve(s.dataDir), fmt.Sprint(t.Z), fmt.Sprint(t.X), fmt.Sprintf("%d.%s", t.Y, r.Ext))
		return os.ReadFile(p)
	default:
		return nil, fmt.Errorf("layer %q is served by its remote host", id)
	}
}

func (s *LayerService) archive(p string) (*pmtiles.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.archives[p]; ok {
		return a, nil
	}
	a, err := pmtiles.Open(p)
	if err != nil {
		return nil, err
	}
	s.archives[p] = a
	return a, nil
}

// Close closes opened archives.
func (s *LayerService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for p, a := range s.archives {
		errs = append(errs, a.Close())
		delete(s.archives, p)
	}
	return errors.Join(errs...)
}
