package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry maps a message kind to exactly one handler.
// Registering a kind twice replaces the previous handler.
type Registry[H any] struct {
	name     string
	mu       sync.RWMutex
	handlers map[string]H
}

func NewRegistry[H any](name string) *Registry[H] {
	return &Registry[H]{
		name:     name,
		handlers: make(map[string]H),
	}
}

func (r *Registry[H]) Handle(kind string, h H) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[kind]; ok {
		log.Debug().Str("module", "app.registry").Str("registry", r.name).Str("kind", kind).Msg("handler replaced")
	}
	r.handlers[kind] = h
}

// Unhandle removes the handler for kind and reports whether one existed.
func (r *Registry[H]) Unhandle(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[kind]
	delete(r.handlers, kind)
	return ok
}

func (r *Registry[H]) Lookup(kind string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

func (r *Registry[H]) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
