package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer merges the EduPortal registry with the default one, which carries the Go runtime,
// process and grading client collectors.
func Gatherer() prometheus.Gatherer {
	RegisterMetrics()
	return prometheus.Gatherers{registry, prometheus.DefaultGatherer}
}

// MetricsHandler serves the scrape endpoint. OpenMetrics is negotiated when the scraper asks for it.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Gatherer(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
}
