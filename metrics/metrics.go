// Package metrics exposes operational counters for the survey ledger over a
// dedicated Prometheus-compatible HTTP endpoint.
package metrics

import (
	"context"
	"net/http"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

var (
	surveysCreated    = vmetrics.NewCounter("surveyledger_surveys_created_total")
	responsesAccepted = vmetrics.NewCounter("surveyledger_responses_accepted_total")
	reveals           = vmetrics.NewCounter("surveyledger_reveals_total")
	callbacksRejected = vmetrics.NewCounter("surveyledger_callbacks_rejected_total")
)

// IncSurveysCreated records a successful survey creation.
func IncSurveysCreated() { surveysCreated.Inc() }

// IncResponsesAccepted records an accepted encrypted response.
func IncResponsesAccepted() { responsesAccepted.Inc() }

// IncReveals records a completed one-time reveal.
func IncReveals() { reveals.Inc() }

// IncCallbacksRejected records an oracle callback rejected before any state change.
func IncCallbacksRejected() { callbacksRejected.Inc() }

// CallbacksRejected returns the current rejected-callback count.
func CallbacksRejected() uint64 { return callbacksRejected.Get() }

// MetricsServer serves the /metrics endpoint on its own listener so that
// operational scraping does not share the public API port.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given address. An empty address
// returns a server whose ListenAndServe is a no-op, which keeps call sites
// free of nil checks.
func New(listenAddr string) *MetricsServer {
	if listenAddr == "" {
		return &MetricsServer{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
	}
}

// ListenAndServe blocks serving metrics until Shutdown is called.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
