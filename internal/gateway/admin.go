// settlement-gateway/internal/gateway/admin.go
package gateway

import (
	"context"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/ledger"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/processors"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/pkg/errors"
)

func (g *Gateway) requireManager(actor string) error {
	if g.roles == nil || !g.roles.HasRole(roles.ProcessorManager, actor) {
		return errors.Auth("missing capability " + roles.ProcessorManager)
	}
	return nil
}

// AddProcessor registers a processor handle with the shared registry and
// attaches it to a module's active chain at the given position.
func (g *Gateway) AddProcessor(ctx context.Context, actor, module string, p processors.Processor, position int) error {
	if err := g.requireManager(actor); err != nil {
		return err
	}
	if p == nil {
		return errors.Config("processor handle is required")
	}
	// registering twice is fine when another module attached it first
	if _, exists := g.registry.Lookup(p.Name()); !exists {
		if err := g.registry.Register(p); err != nil {
			return err
		}
	}
	if err := g.registry.Attach(module, p.Name(), position); err != nil {
		return err
	}
	g.publish(ctx, events.New(events.KindProcessorAdded, module, "", map[string]any{
		"processor": p.Name(),
		"version":   p.Version(),
		"position":  position,
	}))
	return nil
}

// ConfigureProcessor flips a processor's enable flag for the module and
// optionally forwards one-time configuration bytes.
func (g *Gateway) ConfigureProcessor(ctx context.Context, actor, module, name string, enabled bool, config []byte) error {
	if err := g.requireManager(actor); err != nil {
		return err
	}
	p, ok := g.registry.Lookup(name)
	if !ok {
		return errors.Config("processor not found: " + name)
	}
	if err := g.registry.SetEnabled(module, name, enabled); err != nil {
		if !enabled {
			return err
		}
		// enabling a registered processor that was never attached
		// appends it to the module's chain
		if err := g.registry.Attach(module, name, -1); err != nil {
			return err
		}
	}
	if len(config) > 0 {
		if err := p.Configure(ctx, module, actor, config); err != nil {
			return err
		}
	}
	g.publish(ctx, events.New(events.KindProcessorConfigured, module, "", map[string]any{
		"processor": name,
		"enabled":   enabled,
	}))
	return nil
}

// GetProcessors lists the module's chain in configured order.
func (g *Gateway) GetProcessors(module string) []string {
	return g.registry.ChainNames(module)
}

// WithdrawTreasury moves accrued fees out of the treasury account.
func (g *Gateway) WithdrawTreasury(ctx context.Context, actor, token, destination string, amount uint64) error {
	if err := g.requireManager(actor); err != nil {
		return err
	}
	if amount == 0 {
		return errors.Config("amount must be greater than zero")
	}
	return g.ledger.Transfer(ctx, token, ledger.Treasury, destination, amount)
}

// oracle finds the module's attached oracle, or nil.
func (g *Gateway) oracle(module string) *processors.Oracle {
	for _, p := range g.registry.Chain(module) {
		if p.Name() == processors.OracleName {
			if o, ok := p.(*processors.Oracle); ok {
				return o
			}
		}
	}
	return nil
}

// tokenFilter finds the module's attached token filter, or nil.
func (g *Gateway) tokenFilter(module string) *processors.TokenFilter {
	for _, p := range g.registry.Chain(module) {
		if p.Name() == processors.TokenFilterName {
			if f, ok := p.(*processors.TokenFilter); ok {
				return f
			}
		}
	}
	return nil
}

// ConvertAmount is a read-only delegation to the module's oracle. A
// missing or failing oracle yields the identity amount rather than
// failing the caller's unrelated read.
func (g *Gateway) ConvertAmount(ctx context.Context, module, from, to string, amount uint64) uint64 {
	o := g.oracle(module)
	if o == nil {
		return amount
	}
	v, err := o.ConvertAmount(ctx, module, from, to, amount)
	if err != nil {
		return amount
	}
	return v
}

// IsPairSupported delegates to the oracle, defaulting to supported.
func (g *Gateway) IsPairSupported(ctx context.Context, module, from, to string) bool {
	o := g.oracle(module)
	if o == nil {
		return true
	}
	return o.IsPairSupported(ctx, module, from, to)
}

// GetSupportedTokens delegates to the token filter, defaulting to the
// native currency only.
func (g *Gateway) GetSupportedTokens(ctx context.Context, module string) []string {
	f := g.tokenFilter(module)
	if f == nil {
		return []string{paymentctx.NativeToken}
	}
	return f.SupportedTokens(ctx, module)
}
