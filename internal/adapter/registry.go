package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"linkmind/internal/domain"
)

// Registry maps vendor names to generators. Lookups are case-insensitive.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	logger     *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		generators: make(map[string]Generator),
		logger:     logger,
	}
}

// DefaultRegistry returns a registry with the built-in vendors registered
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	// Built-ins have distinct names; Register cannot fail here
	_ = r.Register(Huawei{})
	return r
}

// Register adds a generator to the registry
func (r *Registry) Register(g Generator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(g.Vendor())
	if key == "" {
		return fmt.Errorf("generator has empty vendor name")
	}
	if _, exists := r.generators[key]; exists {
		return fmt.Errorf("generator for vendor %s already registered", g.Vendor())
	}

	r.generators[key] = g
	r.logger.Debug("registered command generator", "vendor", g.Vendor())
	return nil
}

// Lookup returns the generator for vendor
func (r *Registry) Lookup(vendor string) (Generator, error) {
	r.mu.RLock()
	g, ok := r.generators[normalize(vendor)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: vendor %q not supported", domain.ErrUnsupportedVendor, vendor)
	}
	return g, nil
}

// Generate renders op for vendor in one call
func (r *Registry) Generate(vendor string, op Operation, p Params) (string, error) {
	g, err := r.Lookup(vendor)
	if err != nil {
		return "", err
	}
	return g.Generate(op, p)
}

// Vendors returns the registered vendor names, sorted
func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.generators))
	for _, g := range r.generators {
		names = append(names, g.Vendor())
	}
	sort.Strings(names)
	return names
}

func normalize(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
