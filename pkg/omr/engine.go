package omr

import (
	"context"

	"github.com/willardjansen/cubby-score-conversion/pkg/models"
)

// Engine adapts one external OMR backend. Convert runs the backend on a
// single input and returns the path of the normalized, uncompressed
// MusicXML artifact inside workDir. Implementations own their timeout
// and output-discovery conventions.
type Engine interface {
	ID() string
	Descriptor() models.EngineDescriptor
	Supports(input models.InputType) bool
	Convert(ctx context.Context, inputPath, workDir string) (string, error)
}

// PageEngine is implemented by backends that process one raster image at
// a time. The claimed set tracks artifacts already attributed to earlier
// pages, since such backends drop output into a shared directory.
type PageEngine interface {
	Engine
	Recognize(ctx context.Context, imagePath, outDir string, claimed map[string]bool) (string, error)
}

// Registry is the static table of available backends, defined at process
// start and immutable afterwards.
type Registry struct {
	order     []string
	engines   map[string]Engine
	defaultID string
}

// NewRegistry builds a registry. The first engine is the default.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		r.order = append(r.order, e.ID())
		r.engines[e.ID()] = e
	}
	if len(r.order) > 0 {
		r.defaultID = r.order[0]
	}
	return r
}

// Get resolves an engine identifier. An empty identifier resolves to the
// default engine.
func (r *Registry) Get(id string) (Engine, bool) {
	if id == "" {
		id = r.defaultID
	}
	e, ok := r.engines[id]
	return e, ok
}

// DefaultID returns the default engine identifier.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// Descriptors returns the registry entries in registration order.
func (r *Registry) Descriptors() []models.EngineDescriptor {
	descs := make([]models.EngineDescriptor, 0, len(r.order))
	for _, id := range r.order {
		descs = append(descs, r.engines[id].Descriptor())
	}
	return descs
}
