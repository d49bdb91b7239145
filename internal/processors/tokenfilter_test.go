// settlement-gateway/internal/processors/tokenfilter_test.go
package processors

import (
	"context"
	"fmt"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/metadata"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/pkg/errors"
)

func newFilter(t *testing.T) *TokenFilter {
	t.Helper()
	p := NewTokenFilter(newTestDB())
	p.LocalRoles().Grant(roles.ProcessorAdmin, "ops")
	return p
}

func TestFilterNativeAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)
	if !p.IsAllowed(ctx, "shop", paymentctx.NativeToken) {
		t.Fatal("native currency must always pass")
	}
	if p.IsAllowed(ctx, "shop", "usdc") {
		t.Fatal("unlisted token must not pass")
	}
}

func TestFilterProcess(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)
	if err := p.AddToken(ctx, "shop", "ops", "usdc"); err != nil {
		t.Fatal(err)
	}

	outcome, _ := p.Process(ctx, contextBytes(t, "shop", "usdc", 100, nil))
	if outcome != paymentctx.OutcomeSuccess {
		t.Fatalf("allowed token: outcome = %s", outcome)
	}

	outcome, out := p.Process(ctx, contextBytes(t, "shop", "gold", 100, nil))
	if outcome != paymentctx.OutcomeFailed {
		t.Fatalf("disallowed token: outcome = %s", outcome)
	}
	if decodeCtx(t, out).ErrMessage != "token not allowed" {
		t.Fatalf("message = %q", decodeCtx(t, out).ErrMessage)
	}
}

func TestFilterBypassOverride(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)

	payload, err := sonic.Marshal(FilterOverride{Bypass: true})
	if err != nil {
		t.Fatal(err)
	}
	meta, err := metadata.Pack([]metadata.Record{{Type: metadata.TypeTokenFilter, Data: payload}})
	if err != nil {
		t.Fatal(err)
	}
	outcome, _ := p.Process(ctx, contextBytes(t, "shop", "gold", 100, meta))
	if outcome != paymentctx.OutcomeSkipped {
		t.Fatalf("bypass: outcome = %s", outcome)
	}
}

func TestFilterRemoveSwapsLast(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)
	for _, tok := range []string{"a", "b", "c"} {
		if err := p.AddToken(ctx, "shop", "ops", tok); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.RemoveToken(ctx, "shop", "ops", "a"); err != nil {
		t.Fatal(err)
	}

	got := p.SupportedTokens(ctx, "shop")
	want := []string{paymentctx.NativeToken, "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
	if p.IsAllowed(ctx, "shop", "a") || !p.IsAllowed(ctx, "shop", "c") {
		t.Fatal("membership index out of sync after removal")
	}
	if err := p.RemoveToken(ctx, "shop", "ops", "a"); errors.Code(err) != errors.CodeConfig {
		t.Fatal("removing an absent token must fail")
	}
}

func TestFilterCapacity(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)
	for i := 0; i < MaxAllowedTokens; i++ {
		if err := p.AddToken(ctx, "shop", "ops", fmt.Sprintf("tok%02d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.AddToken(ctx, "shop", "ops", "one-too-many"); errors.Code(err) != errors.CodeConfig {
		t.Fatal("allow-list over capacity must be rejected")
	}
	if err := p.AddToken(ctx, "shop", "ops", "tok00"); errors.Code(err) != errors.CodeConfig {
		t.Fatal("duplicate add must be rejected")
	}
}

func TestFilterStatusEvents(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)
	sink := &eventSink{}
	p.AttachPublisher(sink)

	if err := p.AddToken(ctx, "shop", "ops", "usdc"); err != nil {
		t.Fatal(err)
	}
	if err := p.RemoveToken(ctx, "shop", "ops", "usdc"); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 2 {
		t.Fatalf("events = %+v", sink.events)
	}
	if sink.events[0].Kind != events.KindTokenStatusChanged || sink.events[0].Fields["allowed"] != true {
		t.Fatalf("add event = %+v", sink.events[0])
	}
	if sink.events[1].Fields["allowed"] != false {
		t.Fatalf("remove event = %+v", sink.events[1])
	}
}

func TestFilterConfigureSeedsList(t *testing.T) {
	ctx := context.Background()
	p := newFilter(t)
	cfg := []byte(`{"tokens":["usdc","gold"]}`)
	if err := p.Configure(ctx, "shop", "ops", cfg); err != nil {
		t.Fatal(err)
	}
	if !p.IsAllowed(ctx, "shop", "usdc") || !p.IsAllowed(ctx, "shop", "gold") {
		t.Fatal("seeded tokens not allowed")
	}
	if err := p.Configure(ctx, "shop", "rando", cfg); errors.Code(err) != errors.CodeAuth {
		t.Fatal("configure without the admin capability must fail")
	}
}
