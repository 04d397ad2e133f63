// Package registry maps method names to reformulator factories. A registry is
// built explicitly at process start; registering a name twice is an error.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

type entry struct {
	info    ports.MethodInfo
	factory ports.MethodFactory
}

type Registry struct {
	mu      sync.RWMutex
	methods map[string]entry
}

func New() *Registry {
	return &Registry{methods: make(map[string]entry)}
}

func (r *Registry) Register(info ports.MethodInfo, factory ports.MethodFactory) error {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return fmt.Errorf("register method: %w: empty name", domain.ErrInvalidInput)
	}
	if factory == nil {
		return fmt.Errorf("register method %s: %w: nil factory", name, domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMethod, name)
	}
	info.Name = name
	r.methods[name] = entry{info: info, factory: factory}
	return nil
}

func (r *Registry) Resolve(name string) (ports.MethodFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.methods[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", domain.ErrUnknownMethod, name, strings.Join(r.namesLocked(), ", "))
	}
	return e.factory, nil
}

// Build resolves deps.Config.Name and constructs the reformulator.
func (r *Registry) Build(deps ports.MethodDeps) (ports.Reformulator, error) {
	factory, err := r.Resolve(deps.Config.Name)
	if err != nil {
		return nil, err
	}
	return factory(deps)
}

func (r *Registry) Info(name string) (ports.MethodInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.methods[name]
	return e.info, ok
}

// Names returns registered method names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) Infos() []ports.MethodInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.MethodInfo, 0, len(r.methods))
	for _, name := range r.namesLocked() {
		out = append(out, r.methods[name].info)
	}
	return out
}

func (r *Registry) namesLocked() []string {
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
