// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"io/fs"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Weights  *service.WeightService
	Layers   *service.LayerService
	Overlays *service.OverlayService
	Coverage *service.CoverageService // nil when the database is unavailable
	Tiles    composite.TileProducer
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"incidents_heatmap"`
}

type LayerOutput struct {
	Body service.Layer
}

type LayersOutput struct {
	Body []service.Layer
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// SourceBody is one composite participant.
type SourceBody struct {
	Name   string  `json:"name" doc:"Raster source name" example:"Fire Hydrants"`
	Key    string  `json:"key" doc:"Slider key" example:"fire_hydrants"`
	Raw    float64 `json:"raw" doc:"Raw weight" example:"1"`
	Weight float64 `json:"weight" doc:"Normalized weight (0-1)" example:"0.14"`
	Layer  string  `json:"layer" doc:"Layer resource of the source" example:"/api/v1/layers/fire_hydrants"`
}

type WeightsOutput struct {
	Body service.WeightsState
}

// WeightsInput updates raw weights by source name or by slider key. Omitted
// sources keep their weight; unknown names and keys are ignored.
type WeightsInput struct {
	Body struct {
		Weights map[string]float64 `json:"weights,omitempty" doc:"Raw weights by source name"`
		ByKey   map[string]float64 `json:"byKey,omitempty" doc:"Raw weights by slider key"`
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers the read-only layer catalogue routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
}

// RegisterSources registers the composite participant listing.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("composite"))
}

// RegisterWeights registers the composite weight routes.
func (h *APIHandler) RegisterWeights(api huma.API) {
	huma.Get(api, "/api/v1/weights", h.GetWeights, huma.OperationTags("composite"))
	huma.Put(api, "/api/v1/weights", h.PutWeights, huma.OperationTags("composite"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return &LayersOutput{Body: []service.Layer{}}, nil
	}
	return &LayersOutput{Body: h.svc.Layers.List()}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	layer, ok := h.svc.Layers.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: layer}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []SourceBody }, error) {
	out := []SourceBody{}
	if h.svc == nil || h.svc.Weights == nil {
		return &struct{ Body []SourceBody }{Body: out}, nil
	}
	for _, r := range h.svc.Weights.State().Weights {
		out = append(out, SourceBody{
			Name:   r.Name,
			Key:    r.Key,
			Raw:    r.Raw,
			Weight: r.Weight,
			Layer:  "/api/v1/layers/" + r.Key,
		})
	}
	return &struct{ Body []SourceBody }{Body: out}, nil
}

func (h *APIHandler) GetWeights(ctx context.Context, input *struct{}) (*WeightsOutput, error) {
	if h.svc == nil || h.svc.Weights == nil {
		return nil, huma.Error503ServiceUnavailable("weights not available")
	}
	return &WeightsOutput{Body: h.svc.Weights.State()}, nil
}

func (h *APIHandler) PutWeights(ctx context.Context, input *WeightsInput) (*WeightsOutput, error) {
	if h.svc == nil || h.svc.Weights == nil {
		return nil, huma.Error503ServiceUnavailable("weights not available")
	}
	raw := composite.RawWeights{}
	for name, v := range input.Body.Weights {
		raw[name] = v
	}
	if len(input.Body.ByKey) > 0 {
		state := h.svc.Weights.State()
		for _, r := range state.Weights {
			if v, ok := input.Body.ByKey[r.Key]; ok {
				raw[r.Name] = v
			}
		}
	}
	if len(raw) == 0 {
		return nil, huma.Error422UnprocessableEntity("no weights given")
	}
	return &WeightsOutput{Body: h.svc.Weights.Set(raw)}, nil
}

// notFound reports whether err means a missing file or tile.
func notFound(err error) bool {
	return errors.Is(err, service.ErrLayerNotFound) ||
		errors.Is(err, service.ErrUnknownLayer) ||
		errors.Is(err, fs.ErrNotExist)
}
