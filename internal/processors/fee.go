// settlement-gateway/internal/processors/fee.go
package processors

import (
	"context"

	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/internal/store"
	"github.com/example/settlement-gateway/pkg/errors"
)

// Fee annotates the context with the module's fee. It never moves funds;
// the gateway transfers the fee after the chain completes.
type Fee struct {
	*Base
	db *store.DB
}

// FeeConfig is the per-module configuration payload.
type FeeConfig struct {
	Bps       uint32 `json:"bps"`
	Recipient string `json:"recipient"`
}

func NewFee(db *store.DB) *Fee {
	return &Fee{Base: NewBase(FeeName, "1.0.0"), db: db}
}

func feeConfigKey(module string) string {
	return store.Key("fee", "cfg", module)
}

func (p *Fee) config(ctx context.Context, module string) (FeeConfig, bool, error) {
	v, ok, err := p.db.Get(ctx, feeConfigKey(module))
	if err != nil || !ok {
		return FeeConfig{}, false, err
	}
	var cfg FeeConfig
	if err := sonic.Unmarshal(v, &cfg); err != nil {
		return FeeConfig{}, false, err
	}
	return cfg, true, nil
}

// Configure sets the module's fee rate and recipient. A rate of 10000 bps
// or more would consume the whole amount, so it is rejected up front.
func (p *Fee) Configure(ctx context.Context, module, actor string, config []byte) error {
	if err := p.authorize(roles.ProcessorAdmin, actor); err != nil {
		return err
	}
	var cfg FeeConfig
	if err := sonic.Unmarshal(config, &cfg); err != nil {
		return errors.Wrap(errors.CodeConfig, "bad fee config", err)
	}
	if cfg.Bps == 0 || cfg.Bps >= 10_000 {
		return errors.Config("fee bps must be in (0, 10000)")
	}
	if cfg.Recipient == "" {
		return errors.Config("fee recipient is required")
	}
	v, err := sonic.Marshal(cfg)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, feeConfigKey(module), v)
}

func (p *Fee) IsApplicable(ctx context.Context, contextBytes []byte) bool {
	c, err := p.decode(contextBytes)
	if err != nil || !p.IsEnabled(c.Module) {
		return false
	}
	cfg, ok, err := p.config(ctx, c.Module)
	return err == nil && ok && cfg.Bps > 0
}

func (p *Fee) Process(ctx context.Context, contextBytes []byte) (paymentctx.Outcome, []byte) {
	c, err := p.decode(contextBytes)
	if err != nil {
		return paymentctx.OutcomeFailed, contextBytes
	}
	if !p.IsEnabled(c.Module) {
		return paymentctx.OutcomeSkipped, contextBytes
	}
	cfg, ok, err := p.config(ctx, c.Module)
	if err != nil {
		return p.fail(c, contextBytes, "fee config unavailable")
	}
	if !ok || cfg.Bps == 0 {
		return paymentctx.OutcomeSkipped, contextBytes
	}

	fee := mulDiv(c.ProcessedAmount, uint64(cfg.Bps), 10_000)
	if fee >= c.ProcessedAmount {
		return p.fail(c, contextBytes, "fee would consume the payment")
	}
	c.FeeAmount += fee
	c.FeeRecipient = cfg.Recipient
	c.State = paymentctx.StateApplyingFee
	c.Record(p.Name(), paymentctx.OutcomeSuccess)

	out, err := paymentctx.Marshal(c)
	if err != nil {
		return p.fail(c, contextBytes, "context encode failed")
	}
	return paymentctx.OutcomeSuccess, out
}
