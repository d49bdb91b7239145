// settlement-gateway/internal/httpapi/router.go
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/settlement-gateway/internal/gateway"
	"github.com/example/settlement-gateway/internal/processors"
	m "github.com/example/settlement-gateway/pkg/metrics"
)

const serviceName = "settlement-gateway"

// Deps wires the handlers to the orchestrator and the processors that
// expose admin operations.
type Deps struct {
	Gateway  *gateway.Gateway
	Fee      *processors.Fee
	Discount *processors.Discount
	Oracle   *processors.Oracle
	Filter   *processors.TokenFilter
}

// Router builds the full HTTP surface.
func Router(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	// metrics & health
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": serviceName,
			"ts":      time.Now().UTC(),
		})
	}).Methods(http.MethodGet)

	// API
	r.HandleFunc("/api/payments", paymentsHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/convert", convertHandler(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/{module}", tokensHandler(d)).Methods(http.MethodGet)

	// admin
	r.HandleFunc("/api/admin/processors/{name}", configureProcessorHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/processors/{name}/attach", attachProcessorHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/prices", updatePriceHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/rules", createRuleHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/signers", signerHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/allowlist", allowListHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/deposit", depositHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/treasury/withdraw", withdrawHandler(d)).Methods(http.MethodPost)

	return cors.AllowAll().Handler(r)
}

/*************** Metrics middleware ***************/
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		statusLabel := "FAILED"
		if rec.status >= 200 && rec.status < 400 {
			statusLabel = "SUCCESS"
		}
		m.ObserveDuration(serviceName, statusLabel, time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
