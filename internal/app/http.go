package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hassws/internal/app/metrics"
)

// registerHTTP wires the demo CLI's two HTTP surfaces: a liveness probe and
// the Prometheus scrape endpoint. A WS client has no /ws or /readyz surface
// of its own to expose.
func registerHTTP(mux *http.ServeMux, reg *metrics.Registry) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
}
