package composite

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/maptile"
)

// State is a render run's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateFetchingSources
	StateAccumulating
	StateColorMapping
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingSources:
		return "fetching_sources"
	case StateAccumulating:
		return "accumulating"
	case StateColorMapping:
		return "color_mapping"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// StateObserver is notified on every state transition of a run.
type StateObserver func(runID string, tile maptile.Tile, state State)

// RenderContext is everything a run reads besides fetched pixels. Weights is
// the snapshot taken when the tile request began; later weight changes do not
// affect the run.
type RenderContext struct {
	Registry *Registry
	Weights  WeightVector
	Revision uint64
	Tile     maptile.Tile
}

// RenderedTile is the output of one run.
type RenderedTile struct {
	Tile         maptile.Tile
	Image        *image.NRGBA
	Revision     uint64
	Contributing []string // sources that added to the field
	Absent       []string // sources whose fetch produced no image
}

// Transparent reports whether every pixel has alpha 0.
func (t RenderedTile) Transparent() bool {
	for i := 3; i < len(t.Image.Pix); i += 4 {
		if t.Image.Pix[i] != 0 {
			return false
		}
	}
	return true
}

// PNG encodes the tile image.
func (t RenderedTile) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Renderer runs the fetch, accumulate and color-map pipeline for single tiles.
// Runs are independent and may execute concurrently.
type Renderer struct {
	group    *FetchGroup
	mapper   ColorMapper
	tileSize int
	logger   *slog.Logger
	observer StateObserver
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTileSize sets the output edge length in pixels.
func WithTileSize(size int) Option {
	return func(r *Renderer) {
		if size > 0 {
			r.tileSize = size
		}
	}
}

// WithLogger sets the renderer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStateObserver registers a hook called on every state transition.
func WithStateObserver(o StateObserver) Option {
	return func(r *Renderer) { r.observer = o }
}

// NewRenderer creates a renderer.
func NewRenderer(fetcher Fetcher, mapper ColorMapper, opts ...Option) *Renderer {
	r := &Renderer{
		mapper:   mapper,
		tileSize: DefaultTileSize,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.group = NewFetchGroup(fetcher, r.tileSize, r.logger)
	return r
}

// TileSize returns the output edge length.
func (r *Renderer) TileSize() int {
	return r.tileSize
}

// Render produces one composite tile. It never fails: unreachable sources are
// skipped and a tile with no contributions is fully transparent.
func (r *Renderer) Render(ctx context.Context, rc RenderContext) RenderedTile {
	runID := uuid.NewString()
	start := time.Now()
	r.transition(runID, rc.Tile, StateIdle)

	out := RenderedTile{Tile: rc.Tile, Revision: rc.Revision}

	if rc.Registry == nil || !InRange(rc.Tile) {
		r.logger.Debug("composite tile skipped", "run", runID, "tile", tileString(rc.Tile))
		out.Image = image.NewNRGBA(image.Rect(0, 0, r.tileSize, r.tileSize))
		r.transition(runID, rc.Tile, StateComplete)
		return out
	}

	r.transition(runID, rc.Tile, StateFetchingSources)
	images := r.group.Fetch(ctx, rc.Registry.Sources(), rc.Tile)
	for _, fi := range images {
		if fi.Absent() {
			out.Absent = append(out.Absent, fi.SourceName)
		}
	}

	r.transition(runID, rc.Tile, StateAccumulating)
	field, contributing := Accumulate(images, rc.Weights, r.tileSize)
	out.Contributing = contributing

	r.transition(runID, rc.Tile, StateColorMapping)
	out.Image = r.mapper.Paint(field)

	r.transition(runID, rc.Tile, StateComplete)
	r.logger.Debug("composite tile rendered",
		"run", runID,
		"tile", tileString(rc.Tile),
		"revision", rc.Revision,
		"contributing", len(out.Contributing),
		"absent", len(out.Absent),
		"duration", time.Since(start),
	)
	return out
}

// Start runs Render in a goroutine. The channel is buffered so an abandoned
// result never blocks the run.
func (r *Renderer) Start(ctx context.Context, rc RenderContext) <-chan RenderedTile {
	ch := make(chan RenderedTile, 1)
	go func() {
		ch <- r.Render(ctx, rc)
		close(ch)
	}()
	return ch
}

func (r *Renderer) transition(runID string, tile maptile.Tile, s State) {
	if r.observer != nil {
		r.observer(runID, tile, s)
	}
}

// WeightSource supplies the current weight snapshot.
type WeightSource interface {
	Snapshot() (WeightVector, uint64)
}

// TileProducer produces composite tiles on demand.
type TileProducer interface {
	ProduceTile(ctx context.Context, tile maptile.Tile) RenderedTile
}

// Producer binds a renderer to a registry and a live weight source. The
// weight snapshot is read exactly once per tile.
type Producer struct {
	Renderer *Renderer
	Registry *Registry
	Weights  WeightSource
}

// ProduceTile implements TileProducer.
func (p *Producer) ProduceTile(ctx context.Context, tile maptile.Tile) RenderedTile {
	weights, rev := p.Weights.Snapshot()
	return p.Renderer.Render(ctx, RenderContext{
		Registry: p.Registry,
		Weights:  weights,
		Revision: rev,
		Tile:     tile,
	})
}

var _ TileProducer = (*Producer)(nil)
