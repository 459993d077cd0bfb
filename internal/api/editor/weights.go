// Package editor contains Datastar SSE handlers for the weight panel.
package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/humastar"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/service"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/templates"
)

// WeightsHandler renders the weight sliders and applies slider input.
type WeightsHandler struct {
	humastar.Handler
	weights *service.WeightService
}

// NewWeightsHandler creates a weights handler.
func NewWeightsHandler(weights *service.WeightService, renderer *templates.Renderer) *WeightsHandler {
	return &WeightsHandler{
		Handler: humastar.Handler{Renderer: renderer},
		weights: weights,
	}
}

func (h *WeightsHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/weights", h.Panel, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/weights", h.Update, huma.OperationTags("editor"))
}

// Panel patches the slider panel into #weights and seeds the slider signals.
func (h *WeightsHandler) Panel(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	state := h.weights.State()
	return h.Stream(func(sse humastar.SSE) {
		html, err := h.Renderer.Render("weights-panel", state)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(html, "#weights")
		sse.Signals(weightSignals(state, true))
	}), nil
}

// Update applies the weights.{key} slider signals and echoes the normalized
// readouts and the new composite revision.
func (h *WeightsHandler) Update(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	byKey := signals.Floats("weights")
	if len(byKey) == 0 {
		return nil, huma.Error400BadRequest("No weights in request")
	}

	state := h.weights.SetByKey(byKey)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(weightSignals(state, false))
	}), nil
}

// weightSignals builds the signal patch for a weights state. Slider positions
// are only sent with the initial panel so a patch never fights a slider the
// operator is dragging.
func weightSignals(state service.WeightsState, withSliders bool) map[string]any {
	out := make(map[string]any, len(state.Weights))
	sliders := make(map[string]any, len(state.Weights))
	for _, r := range state.Weights {
		out[r.Key] = r.Display
		sliders[r.Key] = r.Raw
	}
	signals := map[string]any{
		"weightsOut":   out,
		"compositeRev": state.Revision,
	}
	if withSliders {
		signals["weights"] = sliders
	}
	return signals
}
