// Package exporters exposes collected metrics over HTTP.
package exporters

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/nodewarden/internal/logging"
)

// HTTPHandler returns the handler the status API mounts at /metrics.
// It serves every promauto-registered metric; scrape failures land in
// the metrics module log instead of stderr.
func HTTPHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      scrapeLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// scrapeLogger adapts the promhttp error callback to slog.
type scrapeLogger struct{}

func (scrapeLogger) Println(v ...any) {
	logging.GetLogger("metrics").Warn("Metrics scrape error", "error", fmt.Sprint(v...))
}
