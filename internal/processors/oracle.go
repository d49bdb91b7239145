// settlement-gateway/internal/processors/oracle.go
package processors

import (
	"context"
	"math/big"
	"time"

	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/metadata"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/internal/store"
	"github.com/example/settlement-gateway/pkg/errors"
)

// GlobalModule is the sentinel under which fallback prices live.
const GlobalModule = "*"

// DefaultValidityWindow bounds how old a price may be before conversions
// reject it.
const DefaultValidityWindow = 24 * time.Hour

// PriceRecord is one (module, token) price entry.
type PriceRecord struct {
	Value     uint64 `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
	Decimals  uint8  `json:"decimals"`
	Active    bool   `json:"active"`
}

// ConversionRequest is the metadata payload asking the oracle to
// re-denominate the payment.
type ConversionRequest struct {
	NeedsConversion bool   `json:"needs_conversion"`
	TargetToken     string `json:"target_token"`
}

// Oracle converts payment amounts between tokens through their common
// base unit, with staleness-bounded prices.
type Oracle struct {
	*Base
	db  *store.DB
	now func() time.Time
}

func NewOracle(db *store.DB) *Oracle {
	return &Oracle{Base: NewBase(OracleName, "1.0.0"), db: db, now: time.Now}
}

func priceKey(module, token string) string { return store.Key("price", module, token) }
func windowKey(module string) string       { return store.Key("price", "window", module) }

// UpdatePrice requires the price-feeder capability and a strictly
// positive value.
func (p *Oracle) UpdatePrice(ctx context.Context, module, token, actor string, value uint64, decimals uint8) error {
	if err := p.authorize(roles.PriceFeeder, actor); err != nil {
		return err
	}
	if value == 0 {
		return errors.Config("price value must be greater than zero")
	}
	rec := PriceRecord{
		Value:     value,
		UpdatedAt: p.now().Unix(),
		Decimals:  decimals,
		Active:    true,
	}
	v, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	if err := p.db.Put(ctx, priceKey(module, token), v); err != nil {
		return err
	}
	p.publish(ctx, events.New(events.KindPriceUpdated, module, "", map[string]any{
		"token":    token,
		"value":    value,
		"decimals": decimals,
	}))
	return nil
}

// SetActive flips a price record without touching its value or timestamp.
func (p *Oracle) SetActive(ctx context.Context, module, token, actor string, active bool) error {
	if err := p.authorize(roles.PriceFeeder, actor); err != nil {
		return err
	}
	rec, ok, err := p.price(ctx, module, token)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Config("no price for token " + token)
	}
	rec.Active = active
	v, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, priceKey(module, token), v)
}

// Configure sets the module's validity window.
func (p *Oracle) Configure(ctx context.Context, module, actor string, config []byte) error {
	if err := p.authorize(roles.ProcessorAdmin, actor); err != nil {
		return err
	}
	var cfg struct {
		WindowSeconds int64 `json:"window_seconds"`
	}
	if err := sonic.Unmarshal(config, &cfg); err != nil {
		return errors.Wrap(errors.CodeConfig, "bad oracle config", err)
	}
	if cfg.WindowSeconds <= 0 {
		return errors.Config("validity window must be positive")
	}
	v, err := sonic.Marshal(cfg.WindowSeconds)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, windowKey(module), v)
}

func (p *Oracle) window(ctx context.Context, module string) time.Duration {
	v, ok, err := p.db.Get(ctx, windowKey(module))
	if err != nil || !ok {
		return DefaultValidityWindow
	}
	var seconds int64
	if err := sonic.Unmarshal(v, &seconds); err != nil || seconds <= 0 {
		return DefaultValidityWindow
	}
	return time.Duration(seconds) * time.Second
}

// price resolves a (module, token) record, falling back to the global
// sentinel module, and finally to the implicit unit price of the native
// currency.
func (p *Oracle) price(ctx context.Context, module, token string) (PriceRecord, bool, error) {
	for _, m := range []string{module, GlobalModule} {
		v, ok, err := p.db.Get(ctx, priceKey(m, token))
		if err != nil {
			return PriceRecord{}, false, err
		}
		if ok {
			var rec PriceRecord
			if err := sonic.Unmarshal(v, &rec); err != nil {
				return PriceRecord{}, false, err
			}
			return rec, true, nil
		}
	}
	if token == paymentctx.NativeToken {
		// the native currency is the base unit itself
		return PriceRecord{Value: 1, UpdatedAt: p.now().Unix(), Active: true}, true, nil
	}
	return PriceRecord{}, false, nil
}

// IsPriceValid reports whether a token's price can back a conversion. A
// zero-value price on the native base currency counts as valid.
func (p *Oracle) IsPriceValid(ctx context.Context, module, token string) bool {
	rec, ok, err := p.price(ctx, module, token)
	if err != nil || !ok {
		return false
	}
	if token == paymentctx.NativeToken && rec.Value == 0 {
		return true
	}
	return p.fresh(ctx, module, rec) == nil
}

func (p *Oracle) fresh(ctx context.Context, module string, rec PriceRecord) error {
	if !rec.Active || rec.Value == 0 {
		return errors.Domain("price inactive")
	}
	if p.now().Unix()-rec.UpdatedAt > int64(p.window(ctx, module).Seconds()) {
		return errors.Domain("stale price")
	}
	return nil
}

// ConvertAmount converts through the common base unit:
// base = amount*fromPrice/10^fromDecimals, result = base*10^toDecimals/toPrice.
func (p *Oracle) ConvertAmount(ctx context.Context, module, from, to string, amount uint64) (uint64, error) {
	if from == to {
		return amount, nil
	}
	fromRec, ok, err := p.price(ctx, module, from)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Domain("no price for token " + from)
	}
	if err := p.fresh(ctx, module, fromRec); err != nil {
		return 0, errors.Wrap(errors.CodeDomain, "token "+from, err)
	}
	toRec, ok, err := p.price(ctx, module, to)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Domain("no price for token " + to)
	}
	if err := p.fresh(ctx, module, toRec); err != nil {
		return 0, errors.Wrap(errors.CodeDomain, "token "+to, err)
	}

	base := new(big.Int).Mul(new(big.Int).SetUint64(amount), new(big.Int).SetUint64(fromRec.Value))
	base.Div(base, pow10(fromRec.Decimals))
	result := base.Mul(base, pow10(toRec.Decimals))
	result.Div(result, new(big.Int).SetUint64(toRec.Value))

	if !result.IsUint64() || result.Uint64() > paymentctx.MaxAmount {
		return 0, errors.Domain("conversion overflow")
	}
	return result.Uint64(), nil
}

// IsPairSupported reports whether both legs of a conversion have valid,
// unexpired prices.
func (p *Oracle) IsPairSupported(ctx context.Context, module, from, to string) bool {
	if from == to {
		return true
	}
	return p.IsPriceValid(ctx, module, from) && p.IsPriceValid(ctx, module, to)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func (p *Oracle) IsApplicable(ctx context.Context, contextBytes []byte) bool {
	c, err := p.decode(contextBytes)
	if err != nil || !p.IsEnabled(c.Module) {
		return false
	}
	req, ok := conversionRequest(c.Metadata)
	return ok && req.NeedsConversion && req.TargetToken != c.Token
}

func (p *Oracle) Process(ctx context.Context, contextBytes []byte) (paymentctx.Outcome, []byte) {
	c, err := p.decode(contextBytes)
	if err != nil {
		return paymentctx.OutcomeFailed, contextBytes
	}
	if !p.IsEnabled(c.Module) {
		return paymentctx.OutcomeSkipped, contextBytes
	}
	req, ok := conversionRequest(c.Metadata)
	if !ok || !req.NeedsConversion || req.TargetToken == c.Token {
		return paymentctx.OutcomeSkipped, contextBytes
	}

	from := c.Token
	converted := make([]uint64, 4)
	for i, amount := range []uint64{c.OriginalAmount, c.ProcessedAmount, c.FeeAmount, c.DiscountAmount} {
		if amount == 0 {
			continue
		}
		v, err := p.ConvertAmount(ctx, c.Module, from, req.TargetToken, amount)
		if err != nil {
			return p.fail(c, contextBytes, err.Error())
		}
		converted[i] = v
	}
	if converted[1] == 0 {
		return p.fail(c, contextBytes, "conversion produced zero amount")
	}

	c.Token = req.TargetToken
	c.OriginalAmount = converted[0]
	c.ProcessedAmount = converted[1]
	c.FeeAmount = converted[2]
	c.DiscountAmount = converted[3]
	c.State = paymentctx.StateConverting
	c.Record(p.Name(), paymentctx.OutcomeModified)

	out, err := paymentctx.Marshal(c)
	if err != nil {
		return p.fail(c, contextBytes, "context encode failed")
	}
	return paymentctx.OutcomeModified, out
}

func conversionRequest(blob []byte) (ConversionRequest, bool) {
	rec, ok := metadata.FindByType(blob, metadata.TypeOracle)
	if !ok {
		return ConversionRequest{}, false
	}
	var req ConversionRequest
	if err := sonic.Unmarshal(rec.Data, &req); err != nil {
		return ConversionRequest{}, false
	}
	return req, true
}
