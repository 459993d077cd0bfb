package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
)

// EngineConfig configures the composite engine.
type EngineConfig struct {
	DataDir      string
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Engine is the composite renderer wired to the configured raster sources.
type Engine struct {
	Registry *composite.Registry
	Renderer *composite.Renderer
	Archives *composite.PMTilesFetcher // close when done
}

// NewEngine builds the frozen registry and the renderer for a layer
// configuration. Remote sources go through a per-host circuit breaker.
func NewEngine(layers *config.File, cfg EngineConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reg, err := layers.Registry(cfg.DataDir, composite.CacheBuster())
	if err != nil {
		return nil, err
	}
	mapper, err := layers.Mapper()
	if err != nil {
		return nil, err
	}

	archives := composite.NewPMTilesFetcher()
	fetcher := composite.MultiFetcher{
		HTTP: composite.NewHTTPFetcher(composite.HTTPFetcherConfig{
			Timeout: cfg.FetchTimeout,
			Logger:  logger,
		}),
		File:    composite.FileFetcher{},
		PMTiles: archives,
	}

	renderer := composite.NewRenderer(fetcher, mapper,
		composite.WithTileSize(layers.TileSize),
		composite.WithLogger(logger),
	)
	logger.Info("composite engine ready",
		"sources", reg.Len(),
		"tile_size", renderer.TileSize(),
		"preset", layers.Colormap.Preset,
	)
	return &Engine{Registry: reg, Renderer: renderer, Archives: archives}, nil
}

// Render renders one tile for a fixed set of raw weights, outside of the live
// weight service.
func (e *Engine) Render(ctx context.Context, raw composite.RawWeights, tile maptile.Tile) composite.RenderedTile {
	weights, _ := composite.ComputeWeights(e.Registry, raw)
	return e.Renderer.Render(ctx, composite.RenderContext{
		Registry: e.Registry,
		Weights:  weights,
		Tile:     tile,
	})
}
