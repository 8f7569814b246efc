package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesEduPortalCollectors(t *testing.T) {
	Enrollments().WithLabelValues("accepted").Inc()
	LedgerWrites().WithLabelValues("fee").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `eduportal_enrollments_total{outcome="accepted"}`)
	require.Contains(t, string(body), `eduportal_ledger_writes_total{kind="fee"}`)
	require.Contains(t, string(body), "go_goroutines")
}

func TestMetricsHandlerNegotiatesOpenMetrics(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/openmetrics-text")
}
