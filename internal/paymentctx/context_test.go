// settlement-gateway/internal/paymentctx/context_test.go
package paymentctx

import (
	"testing"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name   string
		module string
		sender string
		token  string
		amount uint64
		ok     bool
	}{
		{"valid", "marketplace", "alice", "usdc", 100, true},
		{"zero amount", "marketplace", "alice", "usdc", 0, false},
		{"over capacity", "marketplace", "alice", "usdc", MaxAmount + 1, false},
		{"missing module", "", "alice", "usdc", 100, false},
		{"missing sender", "marketplace", "", "usdc", 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.module, tc.sender, tc.token, tc.amount, OpPayment, nil)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if c.State != StateInitialized {
				t.Fatalf("state = %s, want %s", c.State, StateInitialized)
			}
			if c.ProcessedAmount != c.OriginalAmount {
				t.Fatalf("processed %d != original %d", c.ProcessedAmount, c.OriginalAmount)
			}
			if c.PaymentID == "" {
				t.Fatal("payment id not derived")
			}
		})
	}
}

func TestPaymentIDDeterministic(t *testing.T) {
	a, err := New("marketplace", "alice", "usdc", 100, OpPayment, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := *a
	if derivePaymentID(&b) != a.PaymentID {
		t.Fatal("same inputs must derive the same payment id")
	}
	b.OriginalAmount = 101
	if derivePaymentID(&b) == a.PaymentID {
		t.Fatal("different amount must derive a different payment id")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c, err := New("marketplace", "alice", "usdc", 100, OpPayment, []byte(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	c.Record("FeeProcessor", OutcomeSuccess)

	data, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentID != c.PaymentID || got.ProcessedAmount != c.ProcessedAmount {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Trail) != 1 || got.Trail[0].Processor != "FeeProcessor" {
		t.Fatalf("trail lost: %+v", got.Trail)
	}
}

func TestUnmarshalRejectsBrokenInvariants(t *testing.T) {
	c, err := New("marketplace", "alice", "usdc", 100, OpPayment, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.ProcessedAmount = 150 // exceeds original
	data, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Fatal("inflated processed amount must be rejected")
	}
}

func TestFail(t *testing.T) {
	c, err := New("marketplace", "alice", "usdc", 100, OpPayment, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Fail("TokenFilter", "token not allowed")
	if c.State != StateFailed || c.Success {
		t.Fatalf("failure not stamped: state=%s success=%v", c.State, c.Success)
	}
	if c.ErrMessage != "token not allowed" {
		t.Fatalf("message = %q", c.ErrMessage)
	}
	last := c.Trail[len(c.Trail)-1]
	if last.Processor != "TokenFilter" || last.Outcome != OutcomeFailed {
		t.Fatalf("audit entry = %+v", last)
	}
}
