package bridge

import (
	domainerrors "mark-operator.backend/internal/domain/errors"
)

// Registry resolves adapters by kind.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Kind]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Kind()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a kind.
func (r *Registry) Get(kind Kind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, domainerrors.ErrUnsupportedBridge
	}
	return a, nil
}

// Swap returns the adapter for a kind if it supports the swap capability.
func (r *Registry) Swap(kind Kind) (SwapAdapter, bool) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, false
	}
	sa, ok := a.(SwapAdapter)
	return sa, ok
}

// Kinds lists registered adapter kinds.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	return kinds
}
