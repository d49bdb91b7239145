// settlement-gateway/internal/httpapi/admin.go
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/settlement-gateway/internal/processors"
	"github.com/example/settlement-gateway/pkg/errors"
)

// actor identifies the caller for capability checks. Authentication of
// the header itself belongs to the fronting proxy.
func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	switch errors.Code(err) {
	case errors.CodeAuth:
		status = http.StatusForbidden
	case errors.CodeConfig:
		status = http.StatusBadRequest
	case errors.CodeReplay:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// handle resolves one of the wired processor singletons by canonical
// name.
func (d Deps) handle(name string) processors.Processor {
	switch name {
	case processors.FeeName:
		return d.Fee
	case processors.DiscountName:
		return d.Discount
	case processors.OracleName:
		return d.Oracle
	case processors.TokenFilterName:
		return d.Filter
	}
	return nil
}

func attachProcessorHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		var in struct {
			Module   string `json:"module"`
			Position int    `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		p := d.handle(name)
		if p == nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown processor: " + name})
			return
		}
		if err := d.Gateway.AddProcessor(r.Context(), actor(r), in.Module, p, in.Position); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"chain": d.Gateway.GetProcessors(in.Module),
		})
	}
}

func configureProcessorHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		var in struct {
			Module  string          `json:"module"`
			Enabled bool            `json:"enabled"`
			Config  json.RawMessage `json:"config,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		if err := d.Gateway.ConfigureProcessor(r.Context(), actor(r), in.Module, name, in.Enabled, in.Config); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func updatePriceHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Module   string `json:"module"`
			Token    string `json:"token"`
			Value    uint64 `json:"value"`
			Decimals uint8  `json:"decimals"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		if err := d.Oracle.UpdatePrice(r.Context(), in.Module, in.Token, actor(r), in.Value, in.Decimals); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func createRuleHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Module string          `json:"module"`
			Token  string          `json:"token"`
			Rule   processors.Rule `json:"rule"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		if err := d.Discount.CreateRule(r.Context(), in.Module, in.Token, actor(r), in.Rule); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func signerHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Module string `json:"module"`
			PubKey string `json:"pub_key"`
			Remove bool   `json:"remove,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		var err error
		if in.Remove {
			err = d.Discount.RemoveSigner(r.Context(), in.Module, actor(r), in.PubKey)
		} else {
			err = d.Discount.AddSigner(r.Context(), in.Module, actor(r), in.PubKey)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func allowListHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Module string `json:"module"`
			Token  string `json:"token"`
			Remove bool   `json:"remove,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		var err error
		if in.Remove {
			err = d.Filter.RemoveToken(r.Context(), in.Module, actor(r), in.Token)
		} else {
			err = d.Filter.AddToken(r.Context(), in.Module, actor(r), in.Token)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func depositHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Token   string `json:"token"`
			Account string `json:"account"`
			Amount  uint64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		if in.Amount == 0 || in.Token == "" || in.Account == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_input"})
			return
		}
		if err := d.Gateway.Ledger().Credit(r.Context(), in.Token, in.Account, in.Amount); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func withdrawHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Token       string `json:"token"`
			Destination string `json:"destination"`
			Amount      uint64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_json"})
			return
		}
		if err := d.Gateway.WithdrawTreasury(r.Context(), actor(r), in.Token, in.Destination, in.Amount); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
