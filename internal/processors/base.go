// settlement-gateway/internal/processors/base.go
package processors

import (
	"context"
	"log"
	"sync"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/pkg/errors"
)

// Base carries the behavior shared by every stage: per-module enablement,
// the configure permission check and the failure helper. Concrete
// processors embed it.
type Base struct {
	name    string
	version string

	mu       sync.RWMutex
	disabled map[string]bool

	local   *roles.Table
	central *roles.Manager
	pub     events.Publisher
}

func NewBase(name, version string) *Base {
	return &Base{
		name:     name,
		version:  version,
		disabled: make(map[string]bool),
		local:    roles.NewTable(),
	}
}

func (b *Base) Name() string    { return b.name }
func (b *Base) Version() string { return b.version }

// IsEnabled defaults to enabled; modules opt out explicitly.
func (b *Base) IsEnabled(module string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.disabled[module]
}

func (b *Base) SetEnabled(module string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if enabled {
		delete(b.disabled, module)
	} else {
		b.disabled[module] = true
	}
}

// LocalRoles exposes the processor's plain role table for deployments
// without a centralized role manager.
func (b *Base) LocalRoles() *roles.Table { return b.local }

// AttachRoleManager wires the centralized role manager; its
// processor-scoped and system-wide grants are consulted after the local
// table, first match wins.
func (b *Base) AttachRoleManager(m *roles.Manager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.central = m
}

// AttachPublisher wires the audit event publisher; without one the
// processor's domain events are simply not emitted.
func (b *Base) AttachPublisher(pub events.Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pub = pub
}

// publish delivers an audit event; delivery failures are logged, never
// surfaced to the caller.
func (b *Base) publish(ctx context.Context, e events.Event) {
	b.mu.RLock()
	pub := b.pub
	b.mu.RUnlock()
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Printf("[%s] publish %s event: %v", b.name, e.Kind, err)
	}
}

func (b *Base) authorize(role, account string) error {
	if b.local.HasRole(role, account) {
		return nil
	}
	b.mu.RLock()
	central := b.central
	b.mu.RUnlock()
	if central != nil && central.HasScopedRole(b.name, role, account) {
		return nil
	}
	return errors.Auth("missing capability " + role)
}

// fail stamps the context FAILED and hands the updated bytes back so the
// orchestrator can surface the message while aborting.
func (b *Base) fail(c *paymentctx.Context, fallback []byte, msg string) (paymentctx.Outcome, []byte) {
	c.Fail(b.name, msg)
	out, err := paymentctx.Marshal(c)
	if err != nil {
		return paymentctx.OutcomeFailed, fallback
	}
	return paymentctx.OutcomeFailed, out
}

// decode parses context bytes for a stage; a context that no longer
// satisfies its invariants is itself a pipeline failure.
func (b *Base) decode(data []byte) (*paymentctx.Context, error) {
	return paymentctx.Unmarshal(data)
}
