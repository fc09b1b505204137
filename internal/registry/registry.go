package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/codebox/internal/engine"
)

// Module is the interface that all engine modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Builder turns an engine.Spec into a Factory for that module's Executors.
type Builder func(spec engine.Spec) (engine.Factory, error)

// Registry holds the engine builders for a single application instance.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// RegisterEngine registers the builder for an engine kind.
func (r *Registry) RegisterEngine(kind string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[kind]; exists {
		panic(fmt.Sprintf("engine with kind '%s' already registered", kind))
	}
	slog.Debug("Registering engine.", "kind", kind)
	r.builders[kind] = b
}

// Kinds returns the registered engine kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Factory resolves spec.Kind and builds the matching Factory.
func (r *Registry) Factory(spec engine.Spec) (engine.Factory, error) {
	r.mu.RLock()
	b, ok := r.builders[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", engine.ErrUnknownKind, spec.Kind, r.Kinds())
	}
	f, err := b(spec)
	if err != nil {
		return nil, fmt.Errorf("building %s engine: %w", spec.Kind, err)
	}
	return f, nil
}
