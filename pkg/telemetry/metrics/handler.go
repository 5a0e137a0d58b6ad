package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxScrapesInFlight caps concurrent scrapes; extra ones get 503.
const maxScrapesInFlight = 4

// Handler serves the collector's registry in the Prometheus exposition
// format. Families that fail to gather are skipped and the rest are served.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: maxScrapesInFlight,
		Registry:            c.registry,
	})
}
