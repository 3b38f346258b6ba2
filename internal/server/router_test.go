package server

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterHandsRequestsToProxy(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://app.example.com/static/app.css", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if app.recorder.lastPath != "/static/app.css" {
		t.Fatalf("expected proxy to see /static/app.css, got %s", app.recorder.lastPath)
	}

	reqID := resp.Header.Get("X-Request-ID")
	if reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if app.recorder.lastRequestID != reqID {
		t.Fatalf("expected proxy to see request id %s, got %s", reqID, app.recorder.lastRequestID)
	}
}

func TestRouterLeavesDiagnosticsToLaterRoutes(t *testing.T) {
	app := newTestApp(t, 5000)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://app.example.com/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("expected diagnostics route, got %d %s", resp.StatusCode, string(body))
	}
	if app.recorder.calls != 0 {
		t.Fatalf("proxy must not see diagnostics requests, got %d calls", app.recorder.calls)
	}
}

func TestRouterUnknownDiagnosticsPathIs404(t *testing.T) {
	app := newTestApp(t, 5000)

	resp, err := app.Test(httptest.NewRequest("GET", "http://app.example.com/-/missing", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if _, err := NewApp(AppOptions{Proxy: &proxyRecorder{}, ListenPort: 5000}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logger, ListenPort: 5000}); err == nil {
		t.Fatalf("expected error without proxy")
	}
	if _, err := NewApp(AppOptions{Logger: logger, Proxy: &proxyRecorder{}}); err == nil {
		t.Fatalf("expected error without port")
	}
}

type testApp struct {
	*fiber.App
	recorder *proxyRecorder
}

func newTestApp(t *testing.T, port int) *testApp {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Proxy:      recorder,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, recorder: recorder}
}

type proxyRecorder struct {
	calls         int
	lastPath      string
	lastRequestID string
}

func (p *proxyRecorder) Handle(c fiber.Ctx) error {
	p.calls++
	p.lastPath = string(c.Request().URI().Path())
	p.lastRequestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
