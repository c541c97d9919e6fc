package sample

import (
	"sync"

	"github.com/zjy-dev/tgen/internal/logger"
)

// Registry is the test surface offered to the generator. The archive removes
// methods from it once all of their targets are resolved.
//
// A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	subject   *Subject
	available map[string]bool
	removed   []string
}

// NewRegistry offers every method of s.
func NewRegistry(s *Subject) *Registry {
	r := &Registry{
		subject:   s,
		available: make(map[string]bool, len(s.methods)),
	}
	for _, m := range s.methods {
		r.available[m.Key()] = true
	}
	return r
}

// RemoveCallable stops offering className.methodName.
func (r *Registry) RemoveCallable(className, methodName string) {
	key := className + "." + methodName
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available[key] {
		return
	}
	delete(r.available, key)
	r.removed = append(r.removed, key)
	logger.Debug("[Registry] Removed %s, %d methods left", key, len(r.available))
}

// Callables returns the methods still offered, in declaration order.
func (r *Registry) Callables() []*Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Method, 0, len(r.available))
	for _, m := range r.subject.methods {
		if r.available[m.Key()] {
			out = append(out, m)
		}
	}
	return out
}

// Removed returns the removed method keys in removal order.
func (r *Registry) Removed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.removed...)
}
