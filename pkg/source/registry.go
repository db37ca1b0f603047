package source

import (
	"context"
	"fmt"
)

// Registry dispatches loads to a Loader by the scheme of the descriptor URI.
type Registry struct {
	loaders map[string]Loader
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

func (r *Registry) Register(scheme string, l Loader) {
	r.loaders[scheme] = l
}

func (r *Registry) Has(scheme string) bool {
	_, ok := r.loaders[scheme]
	return ok
}

func (r *Registry) Load(ctx context.Context, d Descriptor) (Handle, error) {
	l, ok := r.loaders[d.Scheme()]
	if !ok {
		return nil, fmt.Errorf("no source registered for scheme %q of %s", d.Scheme(), d.URI)
	}
	return l.Load(ctx, d)
}
