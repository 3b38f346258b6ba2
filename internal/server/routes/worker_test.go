package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/strategy"
	"github.com/any-hub/offline-hub/internal/worker"
)

type staticFetcher struct {
	missing map[string]bool
}

func (f staticFetcher) Fetch(_ context.Context, req *router.RequestDescriptor, _ strategy.FetchOptions) (*cache.Response, error) {
	if f.missing[req.URL.Path] {
		return &cache.Response{Type: cache.ResponseBasic, Status: http.StatusNotFound, Header: http.Header{}}, nil
	}
	return &cache.Response{Type: cache.ResponseBasic, Status: http.StatusOK, Header: http.Header{}, Body: []byte(req.URL.Path)}, nil
}

func options(version string, manifest ...string) worker.Options {
	return worker.Options{
		Version:         version,
		CachePrefix:     "static-",
		Manifest:        manifest,
		Origin:          &url.URL{Scheme: "https", Host: "app.example.com"},
		SameOriginRoute: router.CacheFirst,
		SkipWaiting:     true,
	}
}

func newRoutesApp(t *testing.T, fetcher strategy.Fetcher, reload Reloader) (*fiber.App, *worker.Host) {
	t.Helper()
	storage, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	host, err := worker.NewHost(storage, fetcher, logging.Discard())
	require.NoError(t, err)

	app := fiber.New()
	RegisterWorkerRoutes(app, host, reload)
	return app, host
}

func call(t *testing.T, app *fiber.App, method, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	return resp.StatusCode, payload
}

func TestWorkerRouteReportsActiveWorker(t *testing.T) {
	app, host := newRoutesApp(t, staticFetcher{}, nil)

	status, payload := call(t, app, http.MethodGet, "/-/worker")
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, payload["active"])
	assert.Len(t, payload["strategies"], 3)

	_, err := host.Register(context.Background(), options("v1", "/", "/app.js"))
	require.NoError(t, err)

	_, payload = call(t, app, http.MethodGet, "/-/worker")
	active, ok := payload["active"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1", active["version"])
	assert.Equal(t, "static-v1", active["cache_name"])
	assert.Equal(t, "active", active["state"])
	assert.Equal(t, "cache-first", active["same_origin_strategy"])
	assert.EqualValues(t, 2, active["manifest_size"])
}

func TestCachesRouteListsEntries(t *testing.T) {
	app, host := newRoutesApp(t, staticFetcher{}, nil)
	_, err := host.Register(context.Background(), options("v1", "/", "/app.js"))
	require.NoError(t, err)

	status, payload := call(t, app, http.MethodGet, "/-/caches")
	assert.Equal(t, http.StatusOK, status)
	caches, ok := payload["caches"].([]any)
	require.True(t, ok)
	require.Len(t, caches, 1)
	entry := caches[0].(map[string]any)
	assert.Equal(t, "static-v1", entry["name"])
	assert.EqualValues(t, 2, entry["entries"])
	assert.Equal(t, true, entry["current"])
}

func TestActivateWithoutWaitingWorkerConflicts(t *testing.T) {
	app, _ := newRoutesApp(t, staticFetcher{}, nil)

	status, payload := call(t, app, http.MethodPost, "/-/worker/activate")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "no_waiting_worker", payload["error"])
}

func TestUpdateRegistersNewVersion(t *testing.T) {
	next := options("v2", "/")
	next.SkipWaiting = false
	app, host := newRoutesApp(t, staticFetcher{}, func(context.Context) (worker.Options, error) {
		return next, nil
	})
	_, err := host.Register(context.Background(), options("v1", "/"))
	require.NoError(t, err)

	status, payload := call(t, app, http.MethodPost, "/-/worker/update")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v2", payload["version"])
	assert.Equal(t, "waiting", payload["state"])

	status, payload = call(t, app, http.MethodPost, "/-/worker/activate")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", payload["state"])
	assert.Equal(t, "v2", host.Active().Version())
}

func TestUpdateReportsInstallFailure(t *testing.T) {
	fetcher := staticFetcher{missing: map[string]bool{"/gone.js": true}}
	app, host := newRoutesApp(t, fetcher, func(context.Context) (worker.Options, error) {
		return options("v2", "/", "/gone.js"), nil
	})
	_, err := host.Register(context.Background(), options("v1", "/"))
	require.NoError(t, err)

	status, payload := call(t, app, http.MethodPost, "/-/worker/update")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "install_failed", payload["error"])
	assert.Equal(t, "/gone.js", payload["url"])
	assert.EqualValues(t, http.StatusNotFound, payload["status"])
	assert.Equal(t, "v1", host.Active().Version())
}

func TestUpdateReportsConfigError(t *testing.T) {
	app, _ := newRoutesApp(t, staticFetcher{}, func(context.Context) (worker.Options, error) {
		return worker.Options{}, errors.New("Worker.Version: required")
	})

	status, payload := call(t, app, http.MethodPost, "/-/worker/update")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "config_invalid", payload["error"])
}
