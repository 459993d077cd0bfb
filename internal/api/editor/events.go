package editor

import (
	"context"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/humastar"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/service"
)

// InvalidatedEvent is the browser event telling the map to reload the
// composite layer.
const InvalidatedEvent = "composite-invalidated"

// EventHandler streams composite invalidations to the Datastar UI via SSE.
type EventHandler struct {
	humastar.Handler
	bus *service.EventBus
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus *service.EventBus) *EventHandler {
	return &EventHandler{bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/events", h.Events,
		huma.OperationTags("editor"),
	)
}

func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != service.ResourceWeights {
					continue
				}
				rev, err := strconv.ParseUint(ev.ID, 10, 64)
				if err != nil {
					continue
				}
				sse.Signals(map[string]any{"compositeRev": rev})
				sse.DispatchCustomEvent(InvalidatedEvent, map[string]any{
					"revision": rev,
				})
			}
		}
	}), nil
}
