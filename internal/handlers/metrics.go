package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus scrape handler for the metrics server.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
