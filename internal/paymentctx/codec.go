// settlement-gateway/internal/paymentctx/codec.go
package paymentctx

import (
	"github.com/bytedance/sonic"

	"github.com/example/settlement-gateway/pkg/errors"
)

// Marshal serializes a context for handing across the processor boundary.
func Marshal(c *Context) ([]byte, error) {
	return sonic.Marshal(c)
}

// Unmarshal decodes context bytes and re-checks the invariants, so a
// misbehaving processor cannot smuggle an inflated amount back into the
// chain.
func Unmarshal(data []byte) (*Context, error) {
	var c Context
	if err := sonic.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.CodeDomain, "bad context bytes", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
