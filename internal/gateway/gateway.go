// settlement-gateway/internal/gateway/gateway.go
package gateway

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/ledger"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/registry"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/internal/store"
	"github.com/example/settlement-gateway/pkg/errors"
	"github.com/example/settlement-gateway/pkg/metrics"
)

// Gateway orchestrates the payment pipeline: it builds the context,
// drives the module's configured processor chain, settles the ledger
// moves and reports status. One payment executes as a single
// all-or-nothing unit over the store's transaction overlay.
type Gateway struct {
	db       *store.DB
	ledger   *ledger.Ledger
	registry *registry.Registry
	roles    *roles.Manager
	events   events.Publisher

	// pipeline execution is strictly sequential; re-entrant or
	// concurrent calls are rejected rather than interleaved
	busy atomic.Bool
}

func New(db *store.DB, reg *registry.Registry, mgr *roles.Manager, pub events.Publisher) *Gateway {
	if pub == nil {
		pub = events.LogPublisher{}
	}
	return &Gateway{
		db:       db,
		ledger:   ledger.New(db),
		registry: reg,
		roles:    mgr,
		events:   pub,
	}
}

// Ledger exposes the custody ledger for deposits and balance reads.
func (g *Gateway) Ledger() *ledger.Ledger { return g.ledger }

func custodyAccount(module string) string {
	return store.Key("custody", module)
}

// publish delivers an audit event; delivery failures are logged, never
// surfaced to the payer.
func (g *Gateway) publish(ctx context.Context, e events.Event) {
	if err := g.events.Publish(ctx, e); err != nil {
		log.Printf("[gateway] publish %s event: %v", e.Kind, err)
	}
}

// Result summarizes one processed payment.
type Result struct {
	PaymentID      string
	Token          string
	GrossAmount    uint64
	NetAmount      uint64
	FeeAmount      uint64
	DiscountAmount uint64
	Trail          []paymentctx.StageResult
}

// ProcessPayment pulls the payment amount from the payer into module
// custody, runs the configured chain and settles fee, discount refund and
// recipient payout. A FAILED stage aborts the whole call; nothing is
// committed.
func (g *Gateway) ProcessPayment(ctx context.Context, module, token, payer string, amount uint64, meta []byte) (*Result, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, errors.Domain("reentrant call into gateway")
	}
	defer g.busy.Store(false)

	start := time.Now()
	res, err := g.processPayment(ctx, module, token, payer, amount, meta)
	status := "SUCCESS"
	if err != nil {
		status = "FAILED"
	}
	metrics.IncRequest(module, status)
	metrics.ObserveDuration(module, status, time.Since(start).Seconds())
	return res, err
}

func (g *Gateway) processPayment(ctx context.Context, module, token, payer string, amount uint64, meta []byte) (*Result, error) {
	c, err := paymentctx.New(module, payer, token, amount, paymentctx.OpPayment, meta)
	if err != nil {
		return nil, err
	}

	// payment writes stage in the transaction overlay; only the
	// returned context can touch the frame
	txCtx := g.db.Begin(ctx)
	committed := false
	defer func() {
		if !committed {
			g.db.Rollback()
		}
	}()

	// pull the gross amount into module custody up front; an abort
	// rolls the pull back together with everything else
	if err := g.ledger.Transfer(txCtx, token, payer, custodyAccount(module), amount); err != nil {
		if token == paymentctx.NativeToken {
			return nil, errors.Wrap(errors.CodeDomain, "insufficient attached value", err)
		}
		return nil, errors.Wrap(errors.CodeDomain, "token pull failed", err)
	}

	c, err = g.runChain(txCtx, c)
	if err != nil {
		return nil, err
	}

	if err := g.settle(txCtx, c, token, payer, amount); err != nil {
		return nil, err
	}

	c.State = paymentctx.StateCompleted
	if err := g.db.Commit(txCtx); err != nil {
		return nil, err
	}
	committed = true

	net := c.ProcessedAmount - c.FeeAmount
	g.publish(ctx, events.New(events.KindPaymentProcessed, module, c.PaymentID, map[string]any{
		"token":    c.Token,
		"payer":    payer,
		"gross":    amount,
		"net":      net,
		"fee":      c.FeeAmount,
		"discount": c.DiscountAmount,
		"outcome":  "SUCCESS",
	}))
	if c.FeeAmount > 0 {
		g.publish(ctx, events.New(events.KindFeeCollected, module, c.PaymentID, map[string]any{
			"token":     c.Token,
			"amount":    c.FeeAmount,
			"recipient": c.FeeRecipient,
		}))
	}
	if c.DiscountAmount > 0 {
		g.publish(ctx, events.New(events.KindDiscountApplied, module, c.PaymentID, map[string]any{
			"token":  c.Token,
			"amount": c.DiscountAmount,
			"bps":    c.DiscountBps,
		}))
	}

	return &Result{
		PaymentID:      c.PaymentID,
		Token:          c.Token,
		GrossAmount:    amount,
		NetAmount:      net,
		FeeAmount:      c.FeeAmount,
		DiscountAmount: c.DiscountAmount,
		Trail:          c.Trail,
	}, nil
}

// runChain drives every enabled, applicable processor in configured
// order. The context bytes replace themselves stage by stage.
func (g *Gateway) runChain(ctx context.Context, c *paymentctx.Context) (*paymentctx.Context, error) {
	data, err := paymentctx.Marshal(c)
	if err != nil {
		return nil, err
	}
	for _, name := range g.registry.ChainNames(c.Module) {
		p, ok := g.registry.Lookup(name)
		if !ok {
			continue
		}
		if !g.registry.IsEnabled(c.Module, name) {
			continue
		}
		if !p.IsApplicable(ctx, data) {
			metrics.IncStage(name, string(paymentctx.OutcomeSkipped))
			continue
		}
		outcome, out := p.Process(ctx, data)
		metrics.IncStage(name, string(outcome))
		if outcome == paymentctx.OutcomeFailed {
			msg := "processor " + name + " failed"
			if failed, err := paymentctx.Unmarshal(out); err == nil && failed.ErrMessage != "" {
				msg = failed.ErrMessage
			}
			return nil, errors.Domain(msg)
		}
		data = out
	}
	final, err := paymentctx.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// settle performs the actual value transfers once the chain completed:
// re-denominate custody after a conversion, pay the fee recipient, refund
// the discount to the payer and forward the net amount when a processor
// assigned a recipient.
func (g *Gateway) settle(ctx context.Context, c *paymentctx.Context, pulledToken, payer string, pulled uint64) error {
	if c.FeeAmount > c.ProcessedAmount {
		return errors.Domain("fee exceeds processed amount")
	}
	custody := custodyAccount(c.Module)

	if c.Token != pulledToken {
		// conversion re-denominates the custody position
		if err := g.ledger.Debit(ctx, pulledToken, custody, pulled); err != nil {
			return err
		}
		// fee comes out of the processed amount, so custody must
		// cover processed + discount refund
		accounted := c.ProcessedAmount + c.DiscountAmount
		if err := g.ledger.Credit(ctx, c.Token, custody, accounted); err != nil {
			return err
		}
	}

	if c.FeeAmount > 0 && c.FeeRecipient != "" {
		if err := g.ledger.Transfer(ctx, c.Token, custody, c.FeeRecipient, c.FeeAmount); err != nil {
			return err
		}
	}
	if c.DiscountAmount > 0 {
		if err := g.ledger.Transfer(ctx, c.Token, custody, payer, c.DiscountAmount); err != nil {
			return err
		}
	}
	if c.Recipient != "" {
		net := c.ProcessedAmount - c.FeeAmount
		if net > 0 {
			if err := g.ledger.Transfer(ctx, c.Token, custody, c.Recipient, net); err != nil {
				return err
			}
		}
	}
	return nil
}
