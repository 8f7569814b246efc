package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/middleware"
)

func newCommonApp(origins string) *fiber.App {
	app := fiber.New()
	middleware.Register(app, middleware.Config{AllowOrigins: origins})
	app.Get("/api/v1/courses", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	return app
}

func TestCorrelationIDKeepsWellFormedHeaders(t *testing.T) {
	app := newCommonApp("")

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "correlation header", headers: map[string]string{"X-Correlation-ID": "enroll-42"}, want: "enroll-42"},
		{name: "request id fallback", headers: map[string]string{"X-Request-ID": "lb:7f.3"}, want: "lb:7f.3"},
		{name: "correlation wins", headers: map[string]string{"X-Correlation-ID": "a1", "X-Request-ID": "b2"}, want: "a1"},
		{name: "invalid correlation falls back", headers: map[string]string{"X-Correlation-ID": "bad id", "X-Request-ID": "b2"}, want: "b2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, tc.want, resp.Header.Get("X-Correlation-ID"))
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(body))
		})
	}
}

func TestCorrelationIDReplacesMalformedHeaders(t *testing.T) {
	app := newCommonApp("")

	for _, raw := range []string{"", "   ", "has space", "new\tline", "<script>", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
		req.Header.Set("X-Correlation-ID", raw)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		id := resp.Header.Get("X-Correlation-ID")
		_, parseErr := uuid.Parse(id)
		require.NoError(t, parseErr, "header %q", raw)
	}
}

func TestRegisterAppliesCORSAndRecovers(t *testing.T) {
	app := newCommonApp("https://portal.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/courses", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Correlation-ID")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "X-Correlation-ID")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
