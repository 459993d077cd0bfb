// Package service contains the business logic of the fire station planning
// map: the live composite weights, the raster layer catalogue, the vector
// overlays and the drive-time coverage statistics.
package service

import "github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"

// CompositeLayerID is the pseudo layer selecting the synthesized composite.
const CompositeLayerID = "__COMPOSITE__"

// Layer is one entry of the raster layer catalogue.
// Huma reads the tags for OpenAPI and validation.
type Layer struct {
	ID        string  `json:"id" doc:"Layer key" example:"incidents_heatmap"`
	Name      string  `json:"name" doc:"Display name" example:"Incidents Heatmap"`
	TileURL   string  `json:"tileUrl" doc:"Leaflet tile URL template" example:"/data/Incidents_Heatmap/{z}/{x}/{y}.png?v=1718000000000"`
	Format    string  `json:"format" doc:"Tile image format" example:"png"`
	Source    string  `json:"source" enum:"local,pmtiles,remote,composite" doc:"Where the tiles are served from" example:"local"`
	Composite bool    `json:"composite" doc:"Whether the layer feeds the composite" example:"true"`
	Coverage  string  `json:"coverage,omitempty" doc:"Drive-time coverage statistics key" example:"Incidents Heatmap"`
	Pane      string  `json:"pane" doc:"Map pane the layer is drawn in" example:"rasters"`
	Opacity   float64 `json:"opacity" minimum:"0" maximum:"1" doc:"Layer opacity (0-1)" example:"1"`
}

// WeightsState is the current weight input and its normalized readouts.
type WeightsState struct {
	Revision uint64              `json:"revision" doc:"Weight revision, bumped on every change" example:"3"`
	Sum      float64             `json:"sum" doc:"Sum of normalized weights (0 or 1)" example:"1"`
	Weights  []composite.Readout `json:"weights" doc:"Per-source weights in registry order"`
}

// ChartDataset is one bar series of a chart.
type ChartDataset struct {
	Label string    `json:"label" doc:"Series label" example:"21–24 Stations"`
	Data  []float64 `json:"data" doc:"Coverage percentage per drive-time band"`
	Color string    `json:"backgroundColor" doc:"Bar color (CSS)" example:"#6ec1ff"`
}

// Chart is chart-ready data for one bar chart.
type Chart struct {
	ID       string         `json:"id" doc:"Chart identifier" example:"drive_time"`
	Title    string         `json:"title" doc:"Chart title" example:"CRITIC – Drive-Time Coverage (minutes)"`
	Labels   []string       `json:"labels" doc:"Drive-time band labels"`
	Datasets []ChartDataset `json:"datasets" doc:"Bar series"`
}

// CoverageCharts is the chart set of one layer.
type CoverageCharts struct {
	Layer  string  `json:"layer" doc:"Layer name" example:"CRITIC Composite"`
	Key    string  `json:"key" doc:"Statistics key" example:"CRITIC"`
	Charts []Chart `json:"charts" doc:"Drive-time chart, plus High/Very High charts for composite models"`
}
