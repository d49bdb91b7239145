// settlement-gateway/internal/httpapi/types.go
package httpapi

import "github.com/example/settlement-gateway/internal/processors"

type PaymentIn struct {
	Module       string                  `json:"module"`
	Token        string                  `json:"token"`
	Payer        string                  `json:"payer"`
	Amount       uint64                  `json:"amount"`
	Discount     *processors.SignedGrant `json:"discount,omitempty"`
	ConvertTo    string                  `json:"convert_to,omitempty"`
	BypassFilter bool                    `json:"bypass_filter,omitempty"`
}

type PaymentOut struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Token     string `json:"token,omitempty"`
	Gross     uint64 `json:"gross,omitempty"`
	Net       uint64 `json:"net,omitempty"`
	Fee       uint64 `json:"fee,omitempty"`
	Discount  uint64 `json:"discount,omitempty"`
}
