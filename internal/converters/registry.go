package converters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// TypeAny is the wildcard type a fallback converter declares.
const TypeAny = "*"

// Ensure Registry implements the interface.
var _ driven.ConverterRegistry = (*Registry)(nil)

// Registry dispatches raw documents to converters by declared type.
// An exact type match wins over a wildcard; among matches the highest
// priority wins.
type Registry struct {
	mu         sync.RWMutex
	converters []driven.Converter
}

// NewRegistry creates an empty converter registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a converter to the registry.
func (r *Registry) Register(converter driven.Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters = append(r.converters, converter)
}

// Convert transforms a raw document using the best matching converter.
func (r *Registry) Convert(ctx context.Context, raw *domain.RawDocument) (*domain.StructuredDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	converter := r.pick(raw.DeclaredType)
	if converter == nil {
		return nil, &domain.ChunkingError{
			Location: raw.Location,
			Err:      fmt.Errorf("no converter for type %q", raw.DeclaredType),
		}
	}

	doc, err := converter.Convert(ctx, raw)
	if err != nil {
		return nil, &domain.ChunkingError{Location: raw.Location, Err: err}
	}
	return doc, nil
}

// pick selects the highest-priority converter for the type, falling
// back to wildcard converters when no exact match exists.
func (r *Registry) pick(declaredType string) driven.Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best, fallback driven.Converter
	for _, c := range r.converters {
		for _, t := range c.SupportedTypes() {
			switch {
			case t == declaredType && declaredType != "":
				if best == nil || c.Priority() > best.Priority() {
					best = c
				}
			case t == TypeAny:
				if fallback == nil || c.Priority() > fallback.Priority() {
					fallback = c
				}
			}
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

// SupportedTypes returns all document types that can be converted,
// sorted and without the wildcard.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]bool)
	for _, c := range r.converters {
		for _, t := range c.SupportedTypes() {
			if t != TypeAny {
				set[t] = true
			}
		}
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
