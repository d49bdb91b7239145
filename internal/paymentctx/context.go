// settlement-gateway/internal/paymentctx/context.go
package paymentctx

import (
	"encoding/binary"
	"time"

	"github.com/example/settlement-gateway/pkg/digest"
	"github.com/example/settlement-gateway/pkg/errors"
)

// NativeToken is the sentinel id for the platform's base currency.
const NativeToken = "native"

// MaxAmount keeps every amount representable as int64 so values survive
// round-trips through JSON, Postgres and Redis unchanged.
const MaxAmount uint64 = 1<<63 - 1

type Operation string

const (
	OpPayment      Operation = "PAYMENT"
	OpSubscription Operation = "SUBSCRIPTION"
	OpMarketplace  Operation = "MARKETPLACE"
	OpEscrow       Operation = "ESCROW"
	OpRefund       Operation = "REFUND"
)

type State string

const (
	StateInitialized      State = "INITIALIZED"
	StateApplyingFee      State = "APPLYING_FEE"
	StateApplyingDiscount State = "APPLYING_DISCOUNT"
	StateConverting       State = "CONVERTING"
	StateCompleted        State = "COMPLETED"
	StateFailed           State = "FAILED"
)

// Outcome is what a processor stage reports back to the orchestrator.
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeModified Outcome = "MODIFIED"
	OutcomeSkipped  Outcome = "SKIPPED"
	OutcomeFailed   Outcome = "FAILED"
)

// StageResult is one entry of the append-only audit trail.
type StageResult struct {
	Processor string  `json:"processor"`
	Outcome   Outcome `json:"outcome"`
}

// Context is the transient record threaded through every stage of one
// payment. It lives only inside a single ProcessPayment call.
type Context struct {
	Module    string    `json:"module"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Token     string    `json:"token"`
	Operation Operation `json:"operation"`
	State     State     `json:"state"`
	CreatedAt int64     `json:"created_at"`
	Deadline  int64     `json:"deadline,omitempty"`
	Success   bool      `json:"success"`

	OriginalAmount  uint64 `json:"original_amount"`
	ProcessedAmount uint64 `json:"processed_amount"`

	PaymentID      string        `json:"payment_id"`
	FeeAmount      uint64        `json:"fee_amount"`
	FeeRecipient   string        `json:"fee_recipient,omitempty"`
	DiscountAmount uint64        `json:"discount_amount"`
	DiscountBps    uint32        `json:"discount_bps"`
	Trail          []StageResult `json:"trail,omitempty"`
	ErrMessage     string        `json:"err_message,omitempty"`

	// Opaque per-processor side data; see internal/metadata.
	Metadata []byte `json:"metadata,omitempty"`
}

// New builds an INITIALIZED context with a deterministically derived
// payment id.
func New(module, sender, token string, amount uint64, op Operation, metadata []byte) (*Context, error) {
	if module == "" || sender == "" || token == "" {
		return nil, errors.Config("module, sender and token are required")
	}
	if amount == 0 {
		return nil, errors.Config("amount must be greater than zero")
	}
	if amount > MaxAmount {
		return nil, errors.Config("amount exceeds field capacity")
	}
	now := time.Now().Unix()
	c := &Context{
		Module:          module,
		Sender:          sender,
		Token:           token,
		Operation:       op,
		State:           StateInitialized,
		CreatedAt:       now,
		Success:         true,
		OriginalAmount:  amount,
		ProcessedAmount: amount,
		Metadata:        metadata,
	}
	c.PaymentID = derivePaymentID(c)
	return c, nil
}

func derivePaymentID(c *Context) string {
	var amt, ts [8]byte
	binary.BigEndian.PutUint64(amt[:], c.OriginalAmount)
	binary.BigEndian.PutUint64(ts[:], uint64(c.CreatedAt))
	return digest.Hex(
		[]byte(c.Module), []byte(c.Sender), []byte(c.Recipient),
		[]byte(c.Token), amt[:], ts[:],
	)
}

// Record appends one audit entry.
func (c *Context) Record(processor string, outcome Outcome) {
	c.Trail = append(c.Trail, StageResult{Processor: processor, Outcome: outcome})
}

// Fail stamps the terminal failure state and logs the failing stage.
func (c *Context) Fail(processor, msg string) {
	c.State = StateFailed
	c.Success = false
	c.ErrMessage = msg
	c.Record(processor, OutcomeFailed)
}

// Validate enforces the cross-field invariants the pipeline relies on.
func (c *Context) Validate() error {
	if c.ProcessedAmount > c.OriginalAmount {
		return errors.Domain("processed amount exceeds original amount")
	}
	if c.DiscountAmount+c.FeeAmount > c.OriginalAmount {
		return errors.Domain("discount plus fee exceeds original amount")
	}
	return nil
}
