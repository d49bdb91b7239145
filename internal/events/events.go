// settlement-gateway/internal/events/events.go
package events

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted for off-chain observers.
const (
	KindPaymentProcessed    = "payment.processed"
	KindProcessorAdded      = "processor.added"
	KindProcessorConfigured = "processor.configured"
	KindFeeCollected        = "fee.collected"
	KindDiscountApplied     = "discount.applied"
	KindPriceUpdated        = "price.updated"
	KindTokenStatusChanged  = "token.status_changed"
)

// Event is one audit-trail entry.
type Event struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Module    string         `json:"module"`
	PaymentID string         `json:"payment_id,omitempty"`
	At        int64          `json:"at"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// New stamps an event with a fresh id and timestamp.
func New(kind, module, paymentID string, fields map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Module:    module,
		PaymentID: paymentID,
		At:        time.Now().Unix(),
		Fields:    fields,
	}
}

// Publisher delivers events to whoever audits the platform.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher is the fallback when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.Printf("[events] %s module=%s payment=%s", e.Kind, e.Module, e.PaymentID)
	return nil
}

func (LogPublisher) Close() error { return nil }
