package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/paulmach/orb/geojson"
)

var (
	// ErrEmptyGeoJSON is returned for empty overlay files.
	ErrEmptyGeoJSON = errors.New("geojson is empty")
	// ErrHTMLGeoJSON is returned when an overlay file holds an HTML page.
	ErrHTMLGeoJSON = errors.New("html returned instead of geojson")
)

// Overlay file names below the data dir.
const (
	CoverageFile = "Fire_Stations_Service_Coverage.geojson"
	StationsFile = "Fire_Stations.geojson"
)

// driveTimeBands maps Drive_Time values to draw order (outer bands first, so
// the inner 0-4 minute band ends up on top) and fill color.
var driveTimeBands = map[string]struct {
	order int
	fill  string
}{
	"6+":    {0, "#ffd1e6"},
	"4 - 6": {1, "#ff7bbd"},
	"0 - 4": {2, "#ff2f92"},
}

const unknownBandFill = "#ccc"

// Station highlight groups.
var stationGroups = map[int]string{
	123: "blue", 124: "blue", 125: "blue",
	126: "green", 127: "green", 128: "green",
}

var groupColors = map[string]string{
	"blue":    "#1e90ff",
	"green":   "#2ecc71",
	"default": "#ffffff",
}

// OverlayService loads the vector overlays drawn above the rasters.
type OverlayService struct {
	dataDir string
}

// NewOverlayService creates an overlay service reading from dataDir.
func NewOverlayService(dataDir string) *OverlayService {
	return &OverlayService{dataDir: dataDir}
}

// Coverage returns the station service coverage polygons, ordered for drawing
// and annotated with fillColor.
func (s *OverlayService) Coverage() (*geojson.FeatureCollection, error) {
	fc, err := s.load(CoverageFile)
	if err != nil {
		return nil, err
	}
	return AnnotateCoverage(fc), nil
}

// Stations returns the fire stations annotated with their highlight group.
func (s *OverlayService) Stations() (*geojson.FeatureCollection, error) {
	fc, err := s.load(StationsFile)
	if err != nil {
		return nil, err
	}
	return AnnotateStations(fc), nil
}

func (s *OverlayService) load(name string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	fc, err := ParseGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return fc, nil
}

// ParseGeoJSON decodes a feature collection, rejecting empty bodies and HTML
// error pages with descriptive errors.
func ParseGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyGeoJSON
	}
	if trimmed[0] == '<' {
		return nil, ErrHTMLGeoJSON
	}
	fc, err := geojson.UnmarshalFeatureCollection(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc, nil
}

// AnnotateCoverage stably sorts coverage features by drive-time band and
// sets their fillColor property.
func AnnotateCoverage(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	band := func(f *geojson.Feature) string {
		return f.Properties.MustString("Drive_Time", "")
	}
	slices.SortStableFunc(fc.Features, func(a, b *geojson.Feature) int {
		return driveTimeBands[band(a)].order - driveTimeBands[band(b)].order
	})
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		fill := unknownBandFill
		if b, ok := driveTimeBands[band(f)]; ok {
			fill = b.fill
		}
		f.Properties["fillColor"] = fill
	}
	return fc
}

// AnnotateStations sets the group and iconColor properties of every station.
// Highlighted groups flash on the map.
func AnnotateStations(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		group := StationGroup(f.Properties.MustInt("Station_ID", 0))
		f.Properties["group"] = group
		f.Properties["iconColor"] = groupColors[group]
		f.Properties["flashing"] = group != "default"
	}
	return fc
}

// StationGroup returns the highlight group of a station ID.
func StationGroup(id int) string {
	if g, ok := stationGroups[id]; ok {
		return g
	}
	return "default"
}
