package composite

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicateSource is returned when a name or key is registered twice.
	ErrDuplicateSource = errors.New("duplicate raster source")
	// ErrRegistryFrozen is returned when registering after the first read.
	ErrRegistryFrozen = errors.New("raster registry is frozen")
)

// Registry is the ordered set of raster sources taking part in composition.
// Sources are registered at startup; the first read freezes the registry and
// every later Register fails. Reads after the freeze take no lock.
type Registry struct {
	mu      sync.Mutex
	frozen  atomic.Bool
	sources []RasterSource
	byName  map[string]int
	byKey   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]int),
		byKey:  make(map[string]int),
	}
}

// Register appends a source.
func (r *Registry) Register(src RasterSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	if src.Name == "" {
		return fmt.Errorf("raster source name is required")
	}
	if src.URL == nil {
		return fmt.Errorf("raster source %q has no tile url template", src.Name)
	}
	if src.Key == "" {
		src.Key = Slug(src.Name)
	}
	if _, exists := r.byName[src.Name]; exists {
		return fmt.Errorf("%w: name %q", ErrDuplicateSource, src.Name)
	}
	if _, exists := r.byKey[src.Key]; exists {
		return fmt.Errorf("%w: key %q", ErrDuplicateSource, src.Key)
	}

	r.byName[src.Name] = len(r.sources)
	r.byKey[src.Key] = len(r.sources)
	r.sources = append(r.sources, src)
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	if r.frozen.Load() {
		return
	}
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Frozen reports whether the registry is read-only.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Sources returns the sources in registration order.
func (r *Registry) Sources() []RasterSource {
	r.Freeze()
	return slices.Clone(r.sources)
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.Freeze()
	return len(r.sources)
}

// ByName looks up a source by its name.
func (r *Registry) ByName(name string) (RasterSource, bool) {
	r.Freeze()
	i, ok := r.byName[name]
	if !ok {
		return RasterSource{}, false
	}
	return r.sources[i], true
}

// ByKey looks up a source by its slider key.
func (r *Registry) ByKey(key string) (RasterSource, bool) {
	r.Freeze()
	i, ok := r.byKey[key]
	if !ok {
		return RasterSource{}, false
	}
	return r.sources[i], true
}
