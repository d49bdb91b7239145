// settlement-gateway/internal/processors/oracle_test.go
package processors

import (
	"context"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/metadata"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/pkg/errors"
)

// eventSink records published audit events for assertions.
type eventSink struct {
	events []events.Event
}

func (s *eventSink) Publish(_ context.Context, e events.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *eventSink) Close() error { return nil }

func newOracle(t *testing.T) *Oracle {
	t.Helper()
	p := NewOracle(newTestDB())
	p.LocalRoles().Grant(roles.PriceFeeder, "feeder")
	p.LocalRoles().Grant(roles.ProcessorAdmin, "ops")
	return p
}

func conversionMeta(t *testing.T, target string) []byte {
	t.Helper()
	payload, err := sonic.Marshal(ConversionRequest{NeedsConversion: true, TargetToken: target})
	if err != nil {
		t.Fatal(err)
	}
	blob, err := metadata.Pack([]metadata.Record{{Type: metadata.TypeOracle, Data: payload}})
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func TestUpdatePriceAuthorization(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	if err := p.UpdatePrice(ctx, "shop", "usdc", "rando", 100, 2); errors.Code(err) != errors.CodeAuth {
		t.Fatal("price update without the feeder capability must fail")
	}
	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 0, 2); errors.Code(err) != errors.CodeConfig {
		t.Fatal("zero price must be rejected")
	}
	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 100, 2); err != nil {
		t.Fatal(err)
	}
	if !p.IsPriceValid(ctx, "shop", "usdc") {
		t.Fatal("fresh price must be valid")
	}
}

func TestConvertAmount(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	// usdc: 2 base units per token unit; gold: 8 base units per token unit
	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePrice(ctx, "shop", "gold", "feeder", 8, 0); err != nil {
		t.Fatal(err)
	}

	got, err := p.ConvertAmount(ctx, "shop", "usdc", "gold", 100)
	if err != nil {
		t.Fatal(err)
	}
	if got != 25 {
		t.Fatalf("converted = %d, want 25", got)
	}

	// identity conversion never consults prices
	got, err = p.ConvertAmount(ctx, "shop", "unknown", "unknown", 42)
	if err != nil || got != 42 {
		t.Fatalf("identity = %d, %v", got, err)
	}

	if _, err := p.ConvertAmount(ctx, "shop", "usdc", "unpriced", 100); errors.Code(err) != errors.CodeDomain {
		t.Fatalf("missing target price: %v", err)
	}
}

func TestConvertAmountRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	// evenly dividing prices round-trip exactly
	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePrice(ctx, "shop", "gold", "feeder", 8, 0); err != nil {
		t.Fatal(err)
	}
	there, err := p.ConvertAmount(ctx, "shop", "usdc", "gold", 100)
	if err != nil {
		t.Fatal(err)
	}
	back, err := p.ConvertAmount(ctx, "shop", "gold", "usdc", there)
	if err != nil {
		t.Fatal(err)
	}
	if back != 100 {
		t.Fatalf("round trip = %d, want 100", back)
	}

	// prices that do not divide lose at most the truncation error and
	// never inflate the amount
	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 3, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePrice(ctx, "shop", "gold", "feeder", 7, 0); err != nil {
		t.Fatal(err)
	}
	const amount = 1_000
	there, err = p.ConvertAmount(ctx, "shop", "usdc", "gold", amount)
	if err != nil {
		t.Fatal(err)
	}
	back, err = p.ConvertAmount(ctx, "shop", "gold", "usdc", there)
	if err != nil {
		t.Fatal(err)
	}
	if back > amount {
		t.Fatalf("round trip inflated the amount: %d > %d", back, amount)
	}
	if amount-back > amount/100 {
		t.Fatalf("round trip lost too much: %d -> %d", amount, back)
	}
}

func TestConvertAmountDecimals(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	// same unit value, but usdc carries 2 decimals and gold 0
	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePrice(ctx, "shop", "gold", "feeder", 1, 0); err != nil {
		t.Fatal(err)
	}
	got, err := p.ConvertAmount(ctx, "shop", "usdc", "gold", 500)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Fatalf("converted = %d, want 5", got)
	}
}

func TestStalePriceRejected(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePrice(ctx, "shop", "gold", "feeder", 8, 0); err != nil {
		t.Fatal(err)
	}

	p.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := p.ConvertAmount(ctx, "shop", "usdc", "gold", 100); errors.Code(err) != errors.CodeDomain {
		t.Fatal("price older than the validity window must be rejected")
	}
	if p.IsPairSupported(ctx, "shop", "usdc", "gold") {
		t.Fatal("pair with stale prices must not be supported")
	}

	// widening the window brings the prices back into validity
	cfg, _ := sonic.Marshal(map[string]int64{"window_seconds": 48 * 3600})
	if err := p.Configure(ctx, "shop", "ops", cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ConvertAmount(ctx, "shop", "usdc", "gold", 100); err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePriceEmitsEvent(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)
	sink := &eventSink{}
	p.AttachPublisher(sink)

	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 100, 2); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 1 || sink.events[0].Kind != events.KindPriceUpdated {
		t.Fatalf("events = %+v", sink.events)
	}
	if sink.events[0].Module != "shop" || sink.events[0].Fields["token"] != "usdc" {
		t.Fatalf("event payload = %+v", sink.events[0])
	}

	// a rejected update emits nothing
	_ = p.UpdatePrice(ctx, "shop", "usdc", "rando", 100, 2)
	if len(sink.events) != 1 {
		t.Fatalf("unauthorized update emitted an event: %+v", sink.events)
	}
}

func TestGlobalPriceFallback(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	if err := p.UpdatePrice(ctx, GlobalModule, "usdc", "feeder", 4, 0); err != nil {
		t.Fatal(err)
	}
	got, err := p.ConvertAmount(ctx, "shop", "usdc", paymentctx.NativeToken, 10)
	if err != nil {
		t.Fatal(err)
	}
	// native is the base unit with an implicit price of 1
	if got != 40 {
		t.Fatalf("converted = %d, want 40", got)
	}
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.SetActive(ctx, "shop", "usdc", "feeder", false); err != nil {
		t.Fatal(err)
	}
	if p.IsPriceValid(ctx, "shop", "usdc") {
		t.Fatal("deactivated price must not be valid")
	}
	if err := p.SetActive(ctx, "shop", "nothere", "feeder", false); errors.Code(err) != errors.CodeConfig {
		t.Fatal("deactivating a missing price must fail")
	}
}

func TestOracleProcess(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)

	if err := p.UpdatePrice(ctx, "shop", "usdc", "feeder", 2, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.UpdatePrice(ctx, "shop", "gold", "feeder", 8, 0); err != nil {
		t.Fatal(err)
	}

	in := contextBytes(t, "shop", "usdc", 10_000, conversionMeta(t, "gold"))
	c := decodeCtx(t, in)
	c.FeeAmount = 200
	c.DiscountAmount = 800
	c.ProcessedAmount = 9_200
	in, err := paymentctx.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}

	if !p.IsApplicable(ctx, in) {
		t.Fatal("conversion request must make the stage applicable")
	}
	outcome, out := p.Process(ctx, in)
	if outcome != paymentctx.OutcomeModified {
		t.Fatalf("outcome = %s", outcome)
	}
	got := decodeCtx(t, out)
	if got.Token != "gold" {
		t.Fatalf("token = %q", got.Token)
	}
	if got.OriginalAmount != 2_500 || got.ProcessedAmount != 2_300 {
		t.Fatalf("amounts = %d/%d", got.OriginalAmount, got.ProcessedAmount)
	}
	if got.FeeAmount != 50 || got.DiscountAmount != 200 {
		t.Fatalf("fee = %d, discount = %d", got.FeeAmount, got.DiscountAmount)
	}
}

func TestOracleProcessSkipsWithoutRequest(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)
	outcome, _ := p.Process(ctx, contextBytes(t, "shop", "usdc", 100, nil))
	if outcome != paymentctx.OutcomeSkipped {
		t.Fatalf("outcome = %s", outcome)
	}
	// a request targeting the current token is a no-op as well
	outcome, _ = p.Process(ctx, contextBytes(t, "shop", "usdc", 100, conversionMeta(t, "usdc")))
	if outcome != paymentctx.OutcomeSkipped {
		t.Fatalf("same-token request: outcome = %s", outcome)
	}
}

func TestOracleProcessFailsOnMissingPrice(t *testing.T) {
	ctx := context.Background()
	p := newOracle(t)
	outcome, out := p.Process(ctx, contextBytes(t, "shop", "usdc", 100, conversionMeta(t, "gold")))
	if outcome != paymentctx.OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	if decodeCtx(t, out).ErrMessage == "" {
		t.Fatal("failure reason not surfaced")
	}
}
