package composite

import (
	"math"
	"strconv"
)

// RawWeights maps source names to operator-supplied, non-negative weights.
// There is no upper bound.
type RawWeights map[string]float64

// Clone returns a copy.
func (r RawWeights) Clone() RawWeights {
	out := make(RawWeights, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WeightVector maps source names to normalized weights in [0,1]. Its values
// sum to 1, or to 0 when every raw weight is 0. A vector is never mutated after
// it is computed, so it can be shared by concurrent renders.
type WeightVector map[string]float64

// Of returns the weight of a source, 0 when unknown.
func (w WeightVector) Of(name string) float64 {
	return w[name]
}

// Sum returns the total of all weights.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// Readout is the UI echo of one source's weight.
type Readout struct {
	Name    string  `json:"name" doc:"Raster source name" example:"Incidents Heatmap"`
	Key     string  `json:"key" doc:"Slider key" example:"incidents_heatmap"`
	Raw     float64 `json:"raw" doc:"Raw slider value" example:"3"`
	Weight  float64 `json:"weight" doc:"Normalized weight (0-1)" example:"0.75"`
	Display string  `json:"display" doc:"Normalized weight rounded for display" example:"0.75"`
}

// ComputeWeights normalizes raw weights over the registry's sources and
// returns the vector together with the display readouts in registry order.
// Negative, NaN and infinite inputs count as 0; names outside the registry are
// ignored. If the total is 0 every weight is 0.
func ComputeWeights(reg *Registry, raw RawWeights) (WeightVector, []Readout) {
	sources := reg.Sources()

	clean := make([]float64, len(sources))
	var sum float64
	for i, src := range sources {
		clean[i] = SanitizeWeight(raw[src.Name])
		sum += clean[i]
	}

	vector := make(WeightVector, len(sources))
	readouts := make([]Readout, len(sources))
	for i, src := range sources {
		w := 0.0
		if sum > 0 {
			w = clean[i] / sum
		}
		vector[src.Name] = w
		readouts[i] = Readout{
			Name:    src.Name,
			Key:     src.Key,
			Raw:     clean[i],
			Weight:  w,
			Display: strconv.FormatFloat(w, 'f', 2, 64),
		}
	}
	return vector, readouts
}

// SanitizeWeight maps malformed weight input to 0.
func SanitizeWeight(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
