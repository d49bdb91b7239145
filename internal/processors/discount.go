// settlement-gateway/internal/processors/discount.go
package processors

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/internal/metadata"
	"github.com/example/settlement-gateway/internal/paymentctx"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/internal/store"
	"github.com/example/settlement-gateway/pkg/digest"
	"github.com/example/settlement-gateway/pkg/errors"
)

type RuleType string

const (
	RuleNone       RuleType = "none"
	RuleFixed      RuleType = "fixed"
	RulePercentage RuleType = "percentage"
	RuleSignature  RuleType = "signature"
)

// Rule is one registered discount rule, keyed by (module, token, id).
type Rule struct {
	ID          string   `json:"id"`
	Type        RuleType `json:"type"`
	Bps         uint32   `json:"bps,omitempty"`
	FixedAmount uint64   `json:"fixed_amount,omitempty"`
	MinAmount   uint64   `json:"min_amount"`
	ExpiresAt   int64    `json:"expires_at"`
	Active      bool     `json:"active"`
}

// SignedGrant is the metadata payload for the single-use signed discount
// path. The digest commits to every field the signer vouches for, and the
// percent rides as an explicit field rather than being carved out of the
// digest bits.
type SignedGrant struct {
	Beneficiary string `json:"beneficiary"`
	Bps         uint32 `json:"bps"`
	ExpiresAt   int64  `json:"expires_at"`
	SKU         string `json:"sku,omitempty"`
	Digest      string `json:"digest"`
	PubKey      string `json:"pub_key"`
	Signature   string `json:"signature"`
}

// GrantDigest derives the commitment hash a discount signer signs.
func GrantDigest(module string, g SignedGrant) []byte {
	var bps [4]byte
	var exp [8]byte
	binary.BigEndian.PutUint32(bps[:], g.Bps)
	binary.BigEndian.PutUint64(exp[:], uint64(g.ExpiresAt))
	return digest.Keccak256(
		[]byte(module), []byte(g.Beneficiary), bps[:], exp[:], []byte(g.SKU),
	)
}

// Discount applies the larger of a signed single-use grant or the best
// registered rule for (module, token).
type Discount struct {
	*Base
	db  *store.DB
	now func() time.Time
}

func NewDiscount(db *store.DB) *Discount {
	return &Discount{Base: NewBase(DiscountName, "1.0.0"), db: db, now: time.Now}
}

func rulesKey(module, token string) string { return store.Key("disc", "rules", module, token) }
func signersKey(module string) string      { return store.Key("disc", "signers", module) }
func usedGrantKey(digestHex string) string { return store.Key("disc", "used", digestHex) }

func (p *Discount) rules(ctx context.Context, module, token string) ([]Rule, error) {
	v, ok, err := p.db.Get(ctx, rulesKey(module, token))
	if err != nil || !ok {
		return nil, err
	}
	var rules []Rule
	if err := sonic.Unmarshal(v, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (p *Discount) putRules(ctx context.Context, module, token string, rules []Rule) error {
	v, err := sonic.Marshal(rules)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, rulesKey(module, token), v)
}

// CreateRule registers a rule. A duplicate id only passes when the
// existing rule has already expired.
func (p *Discount) CreateRule(ctx context.Context, module, token, actor string, r Rule) error {
	if err := p.authorize(roles.DiscountManager, actor); err != nil {
		return err
	}
	return p.createRule(ctx, module, token, r)
}

func (p *Discount) createRule(ctx context.Context, module, token string, r Rule) error {
	if r.ID == "" {
		return errors.Config("rule id is required")
	}
	switch r.Type {
	case RulePercentage:
		if r.Bps == 0 || r.Bps >= 10_000 {
			return errors.Config("discount bps must be in (0, 10000)")
		}
	case RuleFixed:
		if r.FixedAmount == 0 {
			return errors.Config("fixed discount must be positive")
		}
	default:
		return errors.Config("unsupported rule type")
	}
	rules, err := p.rules(ctx, module, token)
	if err != nil {
		return err
	}
	now := p.now().Unix()
	for i, existing := range rules {
		if existing.ID != r.ID {
			continue
		}
		if existing.ExpiresAt > now {
			return errors.Replay("duplicate rule id " + r.ID)
		}
		// expired rule with the same id gets replaced in place
		rules[i] = r
		return p.putRules(ctx, module, token, rules)
	}
	rules = append(rules, r)
	return p.putRules(ctx, module, token, rules)
}

func (p *Discount) UpdateStatus(ctx context.Context, module, token, id, actor string, active bool) error {
	if err := p.authorize(roles.DiscountManager, actor); err != nil {
		return err
	}
	rules, err := p.rules(ctx, module, token)
	if err != nil {
		return err
	}
	for i := range rules {
		if rules[i].ID == id {
			rules[i].Active = active
			return p.putRules(ctx, module, token, rules)
		}
	}
	return errors.Config("rule not found: " + id)
}

func (p *Discount) ExtendValidity(ctx context.Context, module, token, id, actor string, expiresAt int64) error {
	if err := p.authorize(roles.DiscountManager, actor); err != nil {
		return err
	}
	rules, err := p.rules(ctx, module, token)
	if err != nil {
		return err
	}
	for i := range rules {
		if rules[i].ID == id {
			if expiresAt <= rules[i].ExpiresAt {
				return errors.Config("new expiry must extend the rule")
			}
			rules[i].ExpiresAt = expiresAt
			return p.putRules(ctx, module, token, rules)
		}
	}
	return errors.Config("rule not found: " + id)
}

func (p *Discount) signers(ctx context.Context, module string) ([]string, error) {
	v, ok, err := p.db.Get(ctx, signersKey(module))
	if err != nil || !ok {
		return nil, err
	}
	var keys []string
	if err := sonic.Unmarshal(v, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// AddSigner registers a hex-encoded ed25519 public key as a valid grant
// signer for the module.
func (p *Discount) AddSigner(ctx context.Context, module, actor, pubKeyHex string) error {
	if err := p.authorize(roles.DiscountManager, actor); err != nil {
		return err
	}
	return p.addSigner(ctx, module, pubKeyHex)
}

func (p *Discount) addSigner(ctx context.Context, module, pubKeyHex string) error {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return errors.Config("invalid ed25519 public key")
	}
	keys, err := p.signers(ctx, module)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == pubKeyHex {
			return errors.Config("signer already registered")
		}
	}
	keys = append(keys, pubKeyHex)
	v, err := sonic.Marshal(keys)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, signersKey(module), v)
}

func (p *Discount) RemoveSigner(ctx context.Context, module, actor, pubKeyHex string) error {
	if err := p.authorize(roles.DiscountManager, actor); err != nil {
		return err
	}
	keys, err := p.signers(ctx, module)
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, k := range keys {
		if k != pubKeyHex {
			out = append(out, k)
		}
	}
	if len(out) == len(keys) {
		return errors.Config("signer not registered")
	}
	v, err := sonic.Marshal(out)
	if err != nil {
		return err
	}
	return p.db.Put(ctx, signersKey(module), v)
}

func (p *Discount) Configure(ctx context.Context, module, actor string, config []byte) error {
	if err := p.authorize(roles.ProcessorAdmin, actor); err != nil {
		return err
	}
	// One-shot configuration payload: a rule plus optional signers.
	var cfg struct {
		Token   string   `json:"token"`
		Rule    *Rule    `json:"rule,omitempty"`
		Signers []string `json:"signers,omitempty"`
	}
	if err := sonic.Unmarshal(config, &cfg); err != nil {
		return errors.Wrap(errors.CodeConfig, "bad discount config", err)
	}
	if cfg.Rule != nil {
		if err := p.createRule(ctx, module, cfg.Token, *cfg.Rule); err != nil {
			return err
		}
	}
	for _, s := range cfg.Signers {
		if err := p.addSigner(ctx, module, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Discount) IsApplicable(ctx context.Context, contextBytes []byte) bool {
	c, err := p.decode(contextBytes)
	if err != nil || !p.IsEnabled(c.Module) {
		return false
	}
	if _, ok := metadata.FindByType(c.Metadata, metadata.TypeDiscount); ok {
		return true
	}
	rules, err := p.rules(ctx, c.Module, c.Token)
	return err == nil && len(rules) > 0
}

func (p *Discount) Process(ctx context.Context, contextBytes []byte) (paymentctx.Outcome, []byte) {
	c, err := p.decode(contextBytes)
	if err != nil {
		return paymentctx.OutcomeFailed, contextBytes
	}
	if !p.IsEnabled(c.Module) {
		return paymentctx.OutcomeSkipped, contextBytes
	}

	amount, bps, err := p.signatureDiscount(ctx, c)
	if err != nil {
		return p.fail(c, contextBytes, err.Error())
	}
	if amount == 0 {
		amount, bps, err = p.ruleDiscount(ctx, c)
		if err != nil {
			return p.fail(c, contextBytes, err.Error())
		}
	}
	if amount == 0 {
		return paymentctx.OutcomeSkipped, contextBytes
	}

	// at least one unit of value must survive the discount
	if amount >= c.ProcessedAmount {
		amount = c.ProcessedAmount - 1
	}
	c.ProcessedAmount -= amount
	c.DiscountAmount += amount
	c.DiscountBps = bps
	c.State = paymentctx.StateApplyingDiscount
	c.Record(p.Name(), paymentctx.OutcomeModified)

	out, err := paymentctx.Marshal(c)
	if err != nil {
		return p.fail(c, contextBytes, "context encode failed")
	}
	return paymentctx.OutcomeModified, out
}

// signatureDiscount validates a signed grant carried in the metadata and
// marks it used. A present-but-invalid grant is a hard failure; silently
// ignoring a forged or replayed grant would hide an attack.
func (p *Discount) signatureDiscount(ctx context.Context, c *paymentctx.Context) (uint64, uint32, error) {
	rec, ok := metadata.FindByType(c.Metadata, metadata.TypeDiscount)
	if !ok {
		return 0, 0, nil
	}
	var g SignedGrant
	if err := sonic.Unmarshal(rec.Data, &g); err != nil {
		return 0, 0, errors.Wrap(errors.CodeAuth, "bad discount grant payload", err)
	}
	if g.Bps == 0 || g.Bps >= 10_000 {
		return 0, 0, errors.Auth("grant bps out of range")
	}
	if g.ExpiresAt <= p.now().Unix() {
		return 0, 0, errors.Auth("discount grant expired")
	}

	want := GrantDigest(c.Module, g)
	if g.Digest != hex.EncodeToString(want) {
		return 0, 0, errors.Auth("grant digest mismatch")
	}

	pub, err := hex.DecodeString(g.PubKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return 0, 0, errors.Auth("invalid grant signer key")
	}
	registered, err := p.signers(ctx, c.Module)
	if err != nil {
		return 0, 0, err
	}
	known := false
	for _, k := range registered {
		if k == g.PubKey {
			known = true
			break
		}
	}
	if !known {
		return 0, 0, errors.Auth("unknown discount signer")
	}
	sig, err := hex.DecodeString(g.Signature)
	if err != nil || !ed25519.Verify(ed25519.PublicKey(pub), want, sig) {
		return 0, 0, errors.Auth("invalid discount signature")
	}

	usedKey := usedGrantKey(g.Digest)
	if _, used, err := p.db.Get(ctx, usedKey); err != nil {
		return 0, 0, err
	} else if used {
		return 0, 0, errors.Replay("discount grant already used")
	}
	if err := p.db.Put(ctx, usedKey, []byte{1}); err != nil {
		return 0, 0, err
	}

	return mulDiv(c.ProcessedAmount, uint64(g.Bps), 10_000), g.Bps, nil
}

// ruleDiscount scans rules in registration order and picks the one
// yielding the largest discount; ties keep the first rule found.
func (p *Discount) ruleDiscount(ctx context.Context, c *paymentctx.Context) (uint64, uint32, error) {
	rules, err := p.rules(ctx, c.Module, c.Token)
	if err != nil {
		return 0, 0, err
	}
	now := p.now().Unix()
	var best uint64
	var bestBps uint32
	for _, r := range rules {
		if !r.Active || r.ExpiresAt <= now || c.ProcessedAmount < r.MinAmount {
			continue
		}
		var amount uint64
		var bps uint32
		switch r.Type {
		case RulePercentage:
			amount = mulDiv(c.ProcessedAmount, uint64(r.Bps), 10_000)
			bps = r.Bps
		case RuleFixed:
			amount = r.FixedAmount
			if amount > c.ProcessedAmount {
				amount = c.ProcessedAmount
			}
		default:
			continue
		}
		if amount > best {
			best = amount
			bestBps = bps
		}
	}
	return best, bestBps, nil
}
