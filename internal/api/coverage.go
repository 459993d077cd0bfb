package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/service"
)

type CoverageKeysOutput struct {
	Body struct {
		Keys []string `json:"keys" doc:"Statistics keys with coverage charts"`
	}
}

type CoverageInput struct {
	Layer string `path:"layer" doc:"Layer name or statistics key" example:"CRITIC Composite"`
}

type CoverageOutput struct {
	Body service.CoverageCharts
}

// RegisterCoverage registers the drive-time coverage statistics routes.
func (h *APIHandler) RegisterCoverage(api huma.API) {
	huma.Get(api, "/api/v1/coverage", h.ListCoverage, huma.OperationTags("coverage"))
	huma.Get(api, "/api/v1/coverage/{layer}", h.GetCoverage, huma.OperationTags("coverage"))
}

// ListCoverage lists the statistics keys.
func (h *APIHandler) ListCoverage(ctx context.Context, input *struct{}) (*CoverageKeysOutput, error) {
	if h.svc == nil || h.svc.Coverage == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	keys, err := h.svc.Coverage.Keys(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list coverage keys", err)
	}
	out := &CoverageKeysOutput{}
	out.Body.Keys = keys
	return out, nil
}

// GetCoverage returns the chart set of a layer.
func (h *APIHandler) GetCoverage(ctx context.Context, input *CoverageInput) (*CoverageOutput, error) {
	if h.svc == nil || h.svc.Coverage == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	charts, err := h.svc.Coverage.Chart(ctx, input.Layer)
	if errors.Is(err, service.ErrUnknownLayer) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load coverage", err)
	}
	return &CoverageOutput{Body: charts}, nil
}
