package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/maptile"
)

// TileInput addresses one tile. The row carries the image extension, as in
// /tiles/composite/11/571/745.png.
type TileInput struct {
	Z   int    `path:"z" minimum:"0" maximum:"30" doc:"Zoom level" example:"11"`
	X   int    `path:"x" minimum:"0" doc:"Tile column" example:"571"`
	Y   string `path:"y" doc:"Tile row with image extension" example:"745.png"`
	Rev string `query:"rev" doc:"Browser cache key; the server always renders the live weights"`
}

type LayerTileInput struct {
	Key string `path:"key" doc:"Layer key" example:"fire_hydrants"`
	TileInput
}

type CompositeTileOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Revision     string `header:"X-Composite-Revision" doc:"Weight revision the tile was rendered with"`
	Body         []byte
}

type LayerTileOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// RegisterTiles registers the composite and layer tile routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/tiles/composite/{z}/{x}/{y}", h.GetCompositeTile, huma.OperationTags("tiles"))
	huma.Get(api, "/tiles/layers/{key}/{z}/{x}/{y}", h.GetLayerTile, huma.OperationTags("tiles"))
}

// GetCompositeTile renders one composite tile from the live weights. Tiles
// are never cached because the weights change under the same URL.
func (h *APIHandler) GetCompositeTile(ctx context.Context, input *TileInput) (*CompositeTileOutput, error) {
	if h.svc == nil || h.svc.Tiles == nil {
		return nil, huma.Error503ServiceUnavailable("composite not available")
	}
	tile, ext, err := input.tile()
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if ext != "png" {
		return nil, huma.Error404NotFound("composite tiles are png")
	}

	rendered := h.svc.Tiles.ProduceTile(ctx, tile)
	body, err := rendered.PNG()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode tile", err)
	}
	return &CompositeTileOutput{
		ContentType:  "image/png",
		CacheControl: "no-store",
		Revision:     strconv.FormatUint(rendered.Revision, 10),
		Body:         body,
	}, nil
}

// GetLayerTile serves the raw tile of a layer the browser cannot load
// directly.
func (h *APIHandler) GetLayerTile(ctx context.Context, input *LayerTileInput) (*LayerTileOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	layer, ok := h.svc.Layers.Get(input.Key)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	if layer.Source == "remote" {
		return nil, huma.Error400BadRequest(fmt.Sprintf("layer %q is served by its remote host", input.Key))
	}
	tile, ext, err := input.tile()
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	data, err := h.svc.Layers.Tile(input.Key, tile)
	if err != nil {
		if notFound(err) {
			return nil, huma.Error404NotFound("tile not found")
		}
		return nil, huma.Error500InternalServerError("read tile", err)
	}
	if layer.Format != "" {
		ext = layer.Format
	}
	return &LayerTileOutput{
		ContentType:  contentType(ext),
		CacheControl: "public, max-age=3600",
		Body:         data,
	}, nil
}

// tile parses the coordinate and returns it with the lowercased extension.
func (in TileInput) tile() (maptile.Tile, string, error) {
	row, ext, _ := strings.Cut(in.Y, ".")
	y, err := strconv.ParseUint(row, 10, 32)
	if err != nil {
		return maptile.Tile{}, "", fmt.Errorf("invalid tile row %q", in.Y)
	}
	return maptile.New(uint32(in.X), uint32(y), maptile.Zoom(in.Z)), strings.ToLower(ext), nil
}

func contentType(ext string) string {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
