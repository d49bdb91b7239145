// settlement-gateway/internal/processors/processor.go
package processors

import (
	"context"
	"math/bits"

	"github.com/example/settlement-gateway/internal/paymentctx"
)

// Canonical processor names. The orchestrator resolves read-only
// delegations by these names, so they are part of the wire contract.
const (
	FeeName         = "FeeProcessor"
	DiscountName    = "DiscountProcessor"
	OracleName      = "OracleProcessor"
	TokenFilterName = "TokenFilter"
)

// Processor is the shared contract every pipeline stage implements.
// Stages receive and return the serialized payment context; a FAILED
// outcome aborts the whole payment.
type Processor interface {
	Name() string
	Version() string
	IsEnabled(module string) bool
	IsApplicable(ctx context.Context, contextBytes []byte) bool
	Process(ctx context.Context, contextBytes []byte) (paymentctx.Outcome, []byte)
	Configure(ctx context.Context, module, actor string, config []byte) error
}

// mulDiv computes a*b/d with a 128-bit intermediate, mirroring the
// widening the original settlement math uses for basis-point products.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		// quotient would not fit; callers cap inputs so this is
		// unreachable for bps math, but saturate rather than panic.
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}
