// Package config loads the raster layer configuration.
//
// The layer file is optional. Without one the server uses the built-in
// catalogue of the Mississauga fire station planning dashboard: ten raster
// layers, seven of which feed the composite.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
)

// Colormap overrides the remap constants of a preset. Nil fields keep the
// preset's values.
type Colormap struct {
	Preset string   `yaml:"preset" validate:"omitempty,oneof=turbo anchors"`
	Gamma  *float64 `yaml:"gamma,omitempty" validate:"omitempty,gt=0"`
	Low    *float64 `yaml:"low,omitempty" validate:"omitempty,gte=0"`
	High   *float64 `yaml:"high,omitempty" validate:"omitempty,gt=0"`
}

// Raster is one served raster layer.
type Raster struct {
	Name string `yaml:"name" validate:"required"`
	Key  string `yaml:"key,omitempty"`
	// Root is a directory below the data dir, an absolute directory, a
	// .pmtiles archive or an http(s) URL prefix.
	Root      string  `yaml:"root" validate:"required"`
	Ext       string  `yaml:"ext,omitempty" validate:"omitempty,oneof=png jpg jpeg webp"`
	Composite bool    `yaml:"composite,omitempty"`
	Weight    float64 `yaml:"weight,omitempty" validate:"gte=0"`
	// Coverage is the key of this layer's drive-time coverage statistics.
	Coverage string `yaml:"coverage,omitempty"`
}

// File is the layer configuration file.
type File struct {
	TileSize int      `yaml:"tile_size,omitempty" validate:"omitempty,min=16,max=4096"`
	Colormap Colormap `yaml:"colormap"`
	Rasters  []Raster `yaml:"rasters" validate:"required,min=1,unique=Name,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a layer file. An empty path returns Default.
func Load(path string) (*File, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML layer file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.TileSize == 0 {
		f.TileSize = composite.DefaultTileSize
	}
	if f.Colormap.Preset == "" {
		f.Colormap.Preset = composite.PresetTurbo
	}
	for i := range f.Rasters {
		r := &f.Rasters[i]
		if r.Key == "" {
			r.Key = composite.Slug(r.Name)
		}
		if r.Ext == "" {
			r.Ext = "png"
		}
	}
}

// Validate checks field constraints and cross-field rules.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	keys := make(map[string]string, len(f.Rasters))
	composites := 0
	for _, r := range f.Rasters {
		if other, dup := keys[r.Key]; dup {
			return fmt.Errorf("invalid config: %q and %q share key %q", other, r.Name, r.Key)
		}
		keys[r.Key] = r.Name
		if r.Composite {
			composites++
		}
	}
	if composites == 0 {
		return errors.New("invalid config: no raster takes part in the composite")
	}

	m, err := f.Mapper()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if m.Remap.Low >= m.Remap.High {
		return fmt.Errorf("invalid config: colormap low %g must be below high %g", m.Remap.Low, m.Remap.High)
	}
	return nil
}

// Mapper builds the color mapper from the preset and its overrides.
func (f *File) Mapper() (composite.ColorMapper, error) {
	m, err := composite.Preset(f.Colormap.Preset)
	if err != nil {
		return composite.ColorMapper{}, err
	}
	if f.Colormap.Gamma != nil {
		m.Remap.Gamma = *f.Colormap.Gamma
	}
	if f.Colormap.Low != nil {
		m.Remap.Low = *f.Colormap.Low
	}
	if f.Colormap.High != nil {
		m.Remap.High = *f.Colormap.High
	}
	return m, nil
}

// Composites returns the rasters taking part in the composite, in file order.
func (f *File) Composites() []Raster {
	var out []Raster
	for _, r := range f.Rasters {
		if r.Composite {
			out = append(out, r)
		}
	}
	return out
}

// Registry builds the frozen composite source registry.
func (f *File) Registry(dataDir, cacheBuster string) (*composite.Registry, error) {
	reg := composite.NewRegistry()
	for _, r := range f.Composites() {
		src := composite.RasterSource{Name: r.Name, Key: r.Key, URL: r.TileURL(dataDir, cacheBuster)}
		if err := reg.Register(src); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}

// DefaultWeights returns the initial slider values of the composite members.
func (f *File) DefaultWeights() composite.RawWeights {
	raw := composite.RawWeights{}
	for _, r := range f.Composites() {
		raw[r.Name] = r.Weight
	}
	return raw
}

// Kind classifies where a raster's tiles live.
type Kind string

const (
	KindLocal   Kind = "local"
	KindPMTiles Kind = "pmtiles"
	KindRemote  Kind = "remote"
)

// Kind reports where the raster's tiles live.
func (r Raster) Kind() Kind {
	switch {
	case strings.HasPrefix(r.Root, "http://"), strings.HasPrefix(r.Root, "https://"):
		return KindRemote
	case strings.HasSuffix(r.Root, ".pmtiles"):
		return KindPMTiles
	default:
		return KindLocal
	}
}

// InDataDir reports whether a local root is served from the data dir.
func (r Raster) InDataDir() bool {
	return r.Kind() != KindRemote && !filepath.IsAbs(r.Root)
}

// Resolve returns the root with relative local paths joined to dataDir.
func (r Raster) Resolve(dataDir string) string {
	if r.Kind() == KindRemote || filepath.IsAbs(r.Root) {
		return r.Root
	}
	return filepath.Join(dataDir, r.Root)
}

// TileURL returns the server-side tile address template.
func (r Raster) TileURL(dataDir, cacheBuster string) composite.URLTemplate {
	root := r.Resolve(dataDir)
	switch r.Kind() {
	case KindPMTiles:
		return composite.PMTilesURL(root, r.Ext)
	case KindRemote:
		return composite.TileURL(root, r.Ext, cacheBuster)
	default:
		return composite.TileURL(root, r.Ext, "")
	}
}
