// settlement-gateway/internal/httpapi/handlers.go
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"github.com/example/settlement-gateway/internal/metadata"
	"github.com/example/settlement-gateway/pkg/errors"
)

func paymentsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in PaymentIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, PaymentOut{Status: "FAILED", Reason: "bad_json"})
			return
		}
		if in.Module == "" || in.Token == "" || in.Payer == "" || in.Amount == 0 {
			writeJSON(w, http.StatusBadRequest, PaymentOut{Status: "FAILED", Reason: "invalid_input"})
			return
		}

		blob, err := buildMetadata(in)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, PaymentOut{Status: "FAILED", Reason: "bad_metadata"})
			return
		}

		res, err := d.Gateway.ProcessPayment(r.Context(), in.Module, in.Token, in.Payer, in.Amount, blob)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Code(err) == errors.CodeConfig {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, PaymentOut{Status: "FAILED", Reason: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, PaymentOut{
			Status:    "SUCCESS",
			PaymentID: res.PaymentID,
			Token:     res.Token,
			Gross:     res.GrossAmount,
			Net:       res.NetAmount,
			Fee:       res.FeeAmount,
			Discount:  res.DiscountAmount,
		})
	}
}

// buildMetadata packs the request's optional side data into the opaque
// record list the processors scan.
func buildMetadata(in PaymentIn) ([]byte, error) {
	var records []metadata.Record
	if in.Discount != nil {
		data, err := sonic.Marshal(in.Discount)
		if err != nil {
			return nil, err
		}
		records = append(records, metadata.Record{Type: metadata.TypeDiscount, Required: true, Data: data})
	}
	if in.ConvertTo != "" {
		data, err := sonic.Marshal(map[string]any{
			"needs_conversion": true,
			"target_token":     in.ConvertTo,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, metadata.Record{Type: metadata.TypeOracle, Required: true, Data: data})
	}
	if in.BypassFilter {
		data, err := sonic.Marshal(map[string]any{"bypass": true})
		if err != nil {
			return nil, err
		}
		records = append(records, metadata.Record{Type: metadata.TypeTokenFilter, Data: data})
	}
	return metadata.Pack(records)
}

func convertHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		module, from, to := q.Get("module"), q.Get("from"), q.Get("to")
		amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
		if module == "" || from == "" || to == "" || err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_input"})
			return
		}
		out := d.Gateway.ConvertAmount(r.Context(), module, from, to, amount)
		writeJSON(w, http.StatusOK, map[string]any{
			"amount_converted": out,
			"pair_supported":   d.Gateway.IsPairSupported(r.Context(), module, from, to),
		})
	}
}

func tokensHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := mux.Vars(r)["module"]
		writeJSON(w, http.StatusOK, map[string]any{
			"module": module,
			"tokens": d.Gateway.GetSupportedTokens(r.Context(), module),
		})
	}
}
