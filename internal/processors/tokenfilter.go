// settlement-gateway/internal/processors/tokenfilter.go
package processors

import (
	"context"

	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/metadata"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/internal/store"
	"github.com/example/settlement-gateway/pkg/errors"
)

// MaxAllowedTokens caps a module's allow-list.
const MaxAllowedTokens = 32

// allowList keeps the slice for ordered enumeration and the index map for
// O(1) membership and swap-with-last removal.
type allowList struct {
	Tokens []string       `json:"tokens"`
	Index  map[string]int `json:"index"`
}

// FilterOverride is the metadata payload trusted callers attach to bypass
// filtering.
type FilterOverride struct {
	Bypass bool `json:"bypass"`
}

// TokenFilter rejects payments in tokens outside the module's allow-list.
// The native currency is always implicitly allowed.
type TokenFilter struct {
	*Base
	db *store.DB
}

func NewTokenFilter(db *store.DB) *TokenFilter {
	return &TokenFilter{Base: NewBase(TokenFilterName, "1.0.0"), db: db}
}

func allowListKey(module string) string { return store.Key("tf", "allow", module) }

func (p *TokenFilter) list(ctx context.Context, module string) (allowList, error) {
	v, ok, err := p.db.Get(ctx, allowListKey(module))
	if err != nil || !ok {
		return allowList{Index: map[string]int{}}, err
	}
	var l allowList
	if err := sonic.Unmarshal(v, &l); err != nil {
		return allowList{Index: map[string]int{}}, err
	}
	if l.Index == nil {
		l.Index = map[string]int{}
	}
	return l, nil
}

func (p *TokenFilter) putList(ctx context.Context, module string, l allowList) error {
	v, err := sonic.Marshal(l)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, allowListKey(module), v)
}

// AddToken allows a token for the module.
func (p *TokenFilter) AddToken(ctx context.Context, module, actor, token string) error {
	if err := p.authorize(roles.ProcessorAdmin, actor); err != nil {
		return err
	}
	return p.addToken(ctx, module, token)
}

func (p *TokenFilter) addToken(ctx context.Context, module, token string) error {
	if token == "" {
		return errors.Config("token id is required")
	}
	l, err := p.list(ctx, module)
	if err != nil {
		return err
	}
	if _, ok := l.Index[token]; ok {
		return errors.Config("token already in allow-list")
	}
	if len(l.Tokens) >= MaxAllowedTokens {
		return errors.Config("allow-list is full")
	}
	l.Index[token] = len(l.Tokens)
	l.Tokens = append(l.Tokens, token)
	if err := p.putList(ctx, module, l); err != nil {
		return err
	}
	p.publish(ctx, events.New(events.KindTokenStatusChanged, module, "", map[string]any{
		"token":   token,
		"allowed": true,
	}))
	return nil
}

// RemoveToken disallows a token, swapping the last entry into its slot.
func (p *TokenFilter) RemoveToken(ctx context.Context, module, actor, token string) error {
	if err := p.authorize(roles.ProcessorAdmin, actor); err != nil {
		return err
	}
	l, err := p.list(ctx, module)
	if err != nil {
		return err
	}
	i, ok := l.Index[token]
	if !ok {
		return errors.Config("token not in allow-list")
	}
	last := len(l.Tokens) - 1
	if i != last {
		moved := l.Tokens[last]
		l.Tokens[i] = moved
		l.Index[moved] = i
	}
	l.Tokens = l.Tokens[:last]
	delete(l.Index, token)
	if err := p.putList(ctx, module, l); err != nil {
		return err
	}
	p.publish(ctx, events.New(events.KindTokenStatusChanged, module, "", map[string]any{
		"token":   token,
		"allowed": false,
	}))
	return nil
}

// IsAllowed reports list membership; the native currency always passes.
func (p *TokenFilter) IsAllowed(ctx context.Context, module, token string) bool {
	if token == paymentctx.NativeToken {
		return true
	}
	l, err := p.list(ctx, module)
	if err != nil {
		return false
	}
	_, ok := l.Index[token]
	return ok
}

// SupportedTokens returns the native currency followed by the allow-list
// in insertion order.
func (p *TokenFilter) SupportedTokens(ctx context.Context, module string) []string {
	out := []string{paymentctx.NativeToken}
	l, err := p.list(ctx, module)
	if err != nil {
		return out
	}
	return append(out, l.Tokens...)
}

// Configure seeds the module's allow-list.
func (p *TokenFilter) Configure(ctx context.Context, module, actor string, config []byte) error {
	if err := p.authorize(roles.ProcessorAdmin, actor); err != nil {
		return err
	}
	var cfg struct {
		Tokens []string `json:"tokens"`
	}
	if err := sonic.Unmarshal(config, &cfg); err != nil {
		return errors.Wrap(errors.CodeConfig, "bad token filter config", err)
	}
	for _, t := range cfg.Tokens {
		if err := p.addToken(ctx, module, t); err != nil {
			return err
		}
	}
	return nil
}

// IsApplicable: filtering applies to every payment of an enabled module.
func (p *TokenFilter) IsApplicable(_ context.Context, contextBytes []byte) bool {
	c, err := p.decode(contextBytes)
	return err == nil && p.IsEnabled(c.Module)
}

func (p *TokenFilter) Process(ctx context.Context, contextBytes []byte) (paymentctx.Outcome, []byte) {
	c, err := p.decode(contextBytes)
	if err != nil {
		return paymentctx.OutcomeFailed, contextBytes
	}
	if !p.IsEnabled(c.Module) {
		return paymentctx.OutcomeSkipped, contextBytes
	}
	if rec, ok := metadata.FindByType(c.Metadata, metadata.TypeTokenFilter); ok {
		var override FilterOverride
		if err := sonic.Unmarshal(rec.Data, &override); err == nil && override.Bypass {
			return paymentctx.OutcomeSkipped, contextBytes
		}
	}
	if !p.IsAllowed(ctx, c.Module, c.Token) {
		return p.fail(c, contextBytes, "token not allowed")
	}
	c.Record(p.Name(), paymentctx.OutcomeSuccess)
	out, err := paymentctx.Marshal(c)
	if err != nil {
		return p.fail(c, contextBytes, "context encode failed")
	}
	return paymentctx.OutcomeSuccess, out
}
