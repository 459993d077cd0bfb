package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/service"
)

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterOverlays registers the vector overlay routes.
func (h *APIHandler) RegisterOverlays(api huma.API) {
	huma.Get(api, "/api/v1/overlays/coverage", h.GetCoverageOverlay, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/overlays/stations", h.GetStationsOverlay, huma.OperationTags("overlays"))
}

// GetCoverageOverlay returns the drive-time coverage polygons in draw order.
func (h *APIHandler) GetCoverageOverlay(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	if h.svc == nil || h.svc.Overlays == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	return geoJSON(h.svc.Overlays.Coverage())
}

// GetStationsOverlay returns the fire stations with their highlight groups.
func (h *APIHandler) GetStationsOverlay(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	if h.svc == nil || h.svc.Overlays == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	return geoJSON(h.svc.Overlays.Stations())
}

func geoJSON(fc *geojson.FeatureCollection, err error) (*GeoJSONOutput, error) {
	switch {
	case notFound(err):
		return nil, huma.Error404NotFound("overlay not found")
	case errors.Is(err, service.ErrEmptyGeoJSON), errors.Is(err, service.ErrHTMLGeoJSON):
		return nil, huma.Error502BadGateway(err.Error())
	case err != nil:
		return nil, huma.Error500InternalServerError("load overlay", err)
	}
	body, err := json.Marshal(fc)
	if err != nil {
		return nil, huma.Error500InternalServerError("encode overlay", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: body}, nil
}
