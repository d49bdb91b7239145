// settlement-gateway/internal/registry/registry.go
//
// Name->handle directory for processors plus per-module ordered chains
// and enable flags. Registration happens once at startup by an
// administrator; chain order and enablement can change at any time.
package registry

import (
	"sync"

	"github.com/example/settlement-gateway/internal/processors"
	"github.com/example/settlement-gateway/pkg/errors"
)

type Registry struct {
	mu         sync.RWMutex
	processors map[string]processors.Processor
	chains     map[string][]string        // module -> ordered processor names
	enabled    map[string]map[string]bool // module -> name -> enabled
}

func New() *Registry {
	return &Registry{
		processors: make(map[string]processors.Processor),
		chains:     make(map[string][]string),
		enabled:    make(map[string]map[string]bool),
	}
}

// Register adds a processor handle under its canonical name.
func (r *Registry) Register(p processors.Processor) error {
	if p == nil || p.Name() == "" {
		return errors.Config("processor handle is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processors[p.Name()]; ok {
		return errors.Config("processor already registered: " + p.Name())
	}
	r.processors[p.Name()] = p
	return nil
}

// Lookup resolves a registered processor by name.
func (r *Registry) Lookup(name string) (processors.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	return p, ok
}

// Attach inserts a processor into a module's chain at the given position;
// a position past the end appends.
func (r *Registry) Attach(module, name string, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processors[name]; !ok {
		return errors.Config("processor not found: " + name)
	}
	chain := r.chains[module]
	for _, n := range chain {
		if n == name {
			return errors.Config("processor already attached: " + name)
		}
	}
	if position < 0 || position > len(chain) {
		position = len(chain)
	}
	chain = append(chain, "")
	copy(chain[position+1:], chain[position:])
	chain[position] = name
	r.chains[module] = chain
	if r.enabled[module] == nil {
		r.enabled[module] = make(map[string]bool)
	}
	r.enabled[module][name] = true
	return nil
}

// Detach removes a processor from a module's chain.
func (r *Registry) Detach(module, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[module]
	for i, n := range chain {
		if n == name {
			r.chains[module] = append(chain[:i], chain[i+1:]...)
			delete(r.enabled[module], name)
			return nil
		}
	}
	return errors.Config("processor not attached: " + name)
}

// SetEnabled flips a processor's enable flag within a module's chain.
func (r *Registry) SetEnabled(module, name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enabled[module][name]; !ok {
		return errors.Config("processor not attached: " + name)
	}
	r.enabled[module][name] = enabled
	return nil
}

// IsEnabled reports the module-level enable flag.
func (r *Registry) IsEnabled(module, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[module][name]
}

// Chain returns the module's processors in configured order.
func (r *Registry) Chain(module string) []processors.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]processors.Processor, 0, len(r.chains[module]))
	for _, name := range r.chains[module] {
		if p, ok := r.processors[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ChainNames returns the configured order by name.
func (r *Registry) ChainNames(module string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.chains[module]))
	copy(out, r.chains[module])
	return out
}
