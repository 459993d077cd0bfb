package service

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
)

// WeightService holds the operator's raw weights in memory and publishes a
// weights event on every change. The normalized vector is replaced, never
// mutated, so snapshots handed to renders stay valid.
type WeightService struct {
	reg    *composite.Registry
	bus    *EventBus
	logger *slog.Logger

	mu       sync.RWMutex
	raw      composite.RawWeights
	vector   composite.WeightVector
	readouts []composite.Readout
	rev      uint64
}

// NewWeightService creates a weight service starting from defaults.
func NewWeightService(reg *composite.Registry, defaults composite.RawWeights, bus *EventBus, logger *slog.Logger) *WeightService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &WeightService{reg: reg, bus: bus, logger: logger, raw: composite.RawWeights{}}
	for _, src := range reg.Sources() {
		s.raw[src.Name] = composite.SanitizeWeight(defaults[src.Name])
	}
	s.vector, s.readouts = composite.ComputeWeights(reg, s.raw)
	return s
}

// Snapshot returns the current vector and its revision.
func (s *WeightService) Snapshot() (composite.WeightVector, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vector, s.rev
}

// State returns the current readouts.
func (s *WeightService) State() WeightsState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Raw returns a copy of the current raw input.
func (s *WeightService) Raw() composite.RawWeights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw.Clone()
}

// Set updates the raw weights of the named sources and leaves the others as
// they are. Names outside the registry are ignored.
func (s *WeightService) Set(raw composite.RawWeights) WeightsState {
	s.mu.Lock()
	next := s.raw.Clone()
	for name, v := range raw {
		if _, ok := s.reg.ByName(name); ok {
			next[name] = composite.SanitizeWeight(v)
		}
	}
	s.raw = next
	s.vector, s.readouts = composite.ComputeWeights(s.reg, next)
	s.rev++
	state := s.stateLocked()
	s.mu.Unlock()

	s.logger.Debug("weights updated", "revision", state.Revision, "sum", state.Sum)
	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceWeights, Action: "updated", ID: strconv.FormatUint(state.Revision, 10)})
	}
	return state
}

// SetByKey is Set keyed by slider key instead of source name.
func (s *WeightService) SetByKey(byKey map[string]float64) WeightsState {
	raw := composite.RawWeights{}
	for key, v := range byKey {
		if src, ok := s.reg.ByKey(key); ok {
			raw[src.Name] = v
		}
	}
	return s.Set(raw)
}

func (s *WeightService) stateLocked() WeightsState {
	readouts := make([]composite.Readout, len(s.readouts))
	copy(readouts, s.readouts)
	return WeightsState{Revision: s.rev, Sum: s.vector.Sum(), Weights: readouts}
}

var _ composite.WeightSource = (*WeightService)(nil)
