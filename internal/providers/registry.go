package providers

import "fmt"

// Registry is the immutable provider catalogue, built once at startup.
// Adding a provider means registering its adapter here; nothing downstream
// branches on provider ids.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.Descriptor().ID
		if id == "" {
			return nil, fmt.Errorf("adapter with empty provider id")
		}
		if _, dup := r.adapters[id]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", id)
		}
		r.adapters[id] = a
		r.order = append(r.order, id)
	}
	return r, nil
}

// DefaultRegistry registers the built-in providers.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(NewZaiAdapter(), NewGeminiAdapter(), NewMistralAdapter())
	if err != nil {
		// Built-in adapters carry distinct non-empty ids.
		panic(err)
	}
	return r
}

func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Descriptors lists providers in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id].Descriptor())
	}
	return out
}
