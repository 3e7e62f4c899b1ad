package registry

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/cellgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty/function"
)

// Module is the interface that all built-in modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RootFunc supplies the value of an external root.
type RootFunc func(ctx context.Context) (any, error)

// Registry holds the external roots and expression functions of one
// application instance.
type Registry struct {
	mu        sync.RWMutex
	roots     map[string]RootFunc
	functions map[string]function.Function
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		roots:     make(map[string]RootFunc),
		functions: make(map[string]function.Function),
	}
}

// RegisterRoot makes name resolvable from any cell, with fn producing its value.
func (r *Registry) RegisterRoot(name string, fn RootFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.roots[name]; exists && existing != nil {
		panic(fmt.Sprintf("root with name '%s' already registered", name))
	}
	slog.Debug("Registering root.", "name", name)
	r.roots[name] = fn
}

// Allow allowlists names as external roots without supplying a value; cells
// reading them receive nil. Names already registered keep their value.
func (r *Registry) Allow(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, exists := r.roots[name]; !exists {
			r.roots[name] = nil
		}
	}
}

// RegisterFunction makes fn callable as name from cell expressions.
func (r *Registry) RegisterFunction(name string, fn function.Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[name]; exists {
		panic(fmt.Sprintf("function with name '%s' already registered", name))
	}
	slog.Debug("Registering function.", "name", name)
	r.functions[name] = fn
}

// Has reports whether name is an external root.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roots[name]
	return ok
}

// Roots returns the sorted names of every external root.
func (r *Registry) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.roots))
}

// Functions returns a copy of the registered expression functions.
func (r *Registry) Functions() map[string]function.Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.functions)
}

// Value returns the current value of the root name.
func (r *Registry) Value(ctx context.Context, name string) (any, error) {
	r.mu.RLock()
	fn, ok := r.roots[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("root '%s' is not registered", name)
	}
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

// Validate checks that every root and function name can be referenced from
// a cell expression.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var bad []string
	for _, name := range r.Roots() {
		if !hclsyntax.ValidIdentifier(name) {
			bad = append(bad, fmt.Sprintf("root '%s' is not a valid identifier", name))
		}
	}
	for name := range r.Functions() {
		if !hclsyntax.ValidIdentifier(name) {
			bad = append(bad, fmt.Sprintf("function '%s' is not a valid identifier", name))
		}
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(bad, "\n- "))
	}
	logger.Debug("Registry validation passed.", "roots", len(r.Roots()), "functions", len(r.Functions()))
	return nil
}
