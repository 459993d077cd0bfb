package composite

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
)

// Ramp maps a normalized scalar in [0,1] to an opaque color.
type Ramp interface {
	At(t float64) color.NRGBA
}

// Anchor is one stop of a Gradient.
type Anchor struct {
	Pos   float64
	Color color.NRGBA
}

// Gradient is a piecewise-linear color ramp over ordered anchors.
type Gradient struct {
	anchors []Anchor
}

// NewGradient validates anchors and builds a gradient. Positions must be
// strictly increasing, start at 0 and end at 1.
func NewGradient(anchors ...Anchor) (*Gradient, error) {
	if len(anchors) < 2 {
		return nil, errors.New("gradient needs at least two anchors")
	}
	if anchors[0].Pos != 0 || anchors[len(anchors)-1].Pos != 1 {
		return nil, fmt.Errorf("gradient anchors must span [0,1], got [%g,%g]", anchors[0].Pos, anchors[len(anchors)-1].Pos)
	}
	for i := 1; i < len(anchors); i++ {
		if !(anchors[i].Pos > anchors[i-1].Pos) {
			return nil, fmt.Errorf("gradient anchor %d at %g is not after %g", i, anchors[i].Pos, anchors[i-1].Pos)
		}
	}
	g := &Gradient{anchors: make([]Anchor, len(anchors))}
	copy(g.anchors, anchors)
	for i := range g.anchors {
		g.anchors[i].Color.A = 255
	}
	return g, nil
}

// MustGradient is NewGradient for anchors known at compile time.
func MustGradient(anchors ...Anchor) *Gradient {
	g, err := NewGradient(anchors...)
	if err != nil {
		panic(err)
	}
	return g
}

// At implements Ramp.
func (g *Gradient) At(t float64) color.NRGBA {
	t = clamp01(t)
	// First anchor at or after t.
	i := sort.Search(len(g.anchors), func(i int) bool { return g.anchors[i].Pos >= t })
	if i == 0 {
		return g.anchors[0].Color
	}
	lo, hi := g.anchors[i-1], g.anchors[i]
	f := (t - lo.Pos) / (hi.Pos - lo.Pos)
	return color.NRGBA{
		R: lerp8(lo.Color.R, hi.Color.R, f),
		G: lerp8(lo.Color.G, hi.Color.G, f),
		B: lerp8(lo.Color.B, hi.Color.B, f),
		A: 255,
	}
}

// Turbo is a polynomial approximation of Google's Turbo colormap.
type Turbo struct{}

// At implements Ramp.
func (Turbo) At(t float64) color.NRGBA {
	t = clamp01(t)
	r := 0.13572138 + t*(4.61539260+t*(-42.66032258+t*(132.13108234+t*(-152.94239396+t*59.28637943))))
	g := 0.09140261 + t*(2.19418839+t*(4.84296658+t*(-14.18503333+t*(4.27729857+t*2.82956604))))
	b := 0.10667330 + t*(12.64194608+t*(-60.58204836+t*(110.36276771+t*(-89.90310912+t*27.34824973))))
	return color.NRGBA{R: unit8(r), G: unit8(g), B: unit8(b), A: 255}
}

// Remap is the non-linear contrast curve applied before the ramp:
// t' = clamp01((t^Gamma - Low) / (High - Low)).
type Remap struct {
	Gamma float64
	Low   float64
	High  float64
}

// Apply remaps one value.
func (r Remap) Apply(t float64) float64 {
	if t <= 0 {
		return 0
	}
	v := math.Pow(t, r.Gamma)
	span := r.High - r.Low
	if span <= 0 {
		if v > r.Low {
			return 1
		}
		return 0
	}
	return clamp01((v - r.Low) / span)
}

// ColorMapper turns an accumulated field into a colored tile.
type ColorMapper struct {
	Remap Remap
	Ramp  Ramp
}

// Pixel colors one field value. Cells with no accumulated signal are fully
// transparent; any positive value is opaque even if the remap clamps it to 0.
func (m ColorMapper) Pixel(t float64) color.NRGBA {
	if !(t > 0) {
		return color.NRGBA{}
	}
	return m.Ramp.At(m.Remap.Apply(t))
}

// Paint colors every cell of a field.
func (m ColorMapper) Paint(f *Field) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Values {
		c := m.Pixel(v)
		p := img.Pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
	}
	return img
}

// Preset names.
const (
	PresetTurbo   = "turbo"
	PresetAnchors = "anchors"
)

// viridis-like six-anchor ramp.
var anchorRamp = MustGradient(
	Anchor{0.0, color.NRGBA{0x44, 0x01, 0x54, 0xff}},
	Anchor{0.2, color.NRGBA{0x41, 0x44, 0x87, 0xff}},
	Anchor{0.4, color.NRGBA{0x2a, 0x78, 0x8e, 0xff}},
	Anchor{0.6, color.NRGBA{0x22, 0xa8, 0x84, 0xff}},
	Anchor{0.8, color.NRGBA{0x7a, 0xd1, 0x51, 0xff}},
	Anchor{1.0, color.NRGBA{0xfd, 0xe7, 0x25, 0xff}},
)

// Preset returns a named color mapper.
func Preset(name string) (ColorMapper, error) {
	switch name {
	case "", PresetTurbo:
		return ColorMapper{Remap: Remap{Gamma: 1.6, Low: 0.05, High: 1.0}, Ramp: Turbo{}}, nil
	case PresetAnchors:
		return ColorMapper{Remap: Remap{Gamma: 0.75, Low: 0, High: 1}, Ramp: anchorRamp}, nil
	default:
		return ColorMapper{}, fmt.Errorf("unknown colormap preset %q", name)
	}
}

// DefaultMapper returns the turbo preset.
func DefaultMapper() ColorMapper {
	m, _ := Preset(PresetTurbo)
	return m
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func unit8(v float64) uint8 {
	return uint8(math.Round(255 * clamp01(v)))
}

func lerp8(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}
