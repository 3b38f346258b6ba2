package worker

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/strategy"
)

var errOffline = errors.New("dial tcp: connection refused")

type fakeNetwork struct {
	mu      sync.Mutex
	bodies  map[string]string
	status  map[string]int
	offline atomic.Bool
	calls   atomic.Int32
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{bodies: map[string]string{}, status: map[string]int{}}
}

func (n *fakeNetwork) serve(path, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies[path] = body
	delete(n.status, path)
}

func (n *fakeNetwork) fail(path string, status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status[path] = status
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *router.RequestDescriptor, _ strategy.FetchOptions) (*cache.Response, error) {
	n.calls.Add(1)
	if n.offline.Load() {
		return nil, errOffline
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if status, ok := n.status[req.URL.Path]; ok {
		return &cache.Response{Type: cache.ResponseBasic, Status: status, Header: http.Header{}}, nil
	}
	body, ok := n.bodies[req.URL.Path]
	if !ok {
		return &cache.Response{Type: cache.ResponseBasic, Status: http.StatusNotFound, Header: http.Header{}}, nil
	}
	return &cache.Response{
		Type:   cache.ResponseBasic,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}, nil
}

var testOrigin = &url.URL{Scheme: "https", Host: "app.example.com"}

func testOptions(version string) Options {
	return Options{
		Version:            version,
		CachePrefix:        "static-",
		Manifest:           Manifest{"/", "/static/app.css", "/static/app.js"},
		Origin:             testOrigin,
		BypassPrefixes:     []string{"/api/", "/auth/"},
		SameOriginRoute:    router.CacheFirst,
		SkipWaiting:        true,
		InstallConcurrency: 2,
	}
}

type hostFixture struct {
	host    *Host
	storage cache.Storage
	network *fakeNetwork
}

func newHostFixture(t *testing.T) *hostFixture {
	t.Helper()
	storage, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	return newHostFixtureOn(t, storage)
}

func newHostFixtureOn(t *testing.T, storage cache.Storage) *hostFixture {
	t.Helper()
	network := newFakeNetwork()
	network.serve("/", "home v1")
	network.serve("/static/app.css", "css v1")
	network.serve("/static/app.js", "js v1")
	host, err := NewHost(storage, network, logging.Discard())
	require.NoError(t, err)
	return &hostFixture{host: host, storage: storage, network: network}
}

// hookedStorage 在 Replace 提交成功后回调 afterReplace，用于在安装窗口内插入操作。
type hookedStorage struct {
	cache.Storage
	afterReplace func(name string)
}

func (s *hookedStorage) Replace(ctx context.Context, name string, entries []cache.Entry) (cache.NamedCache, error) {
	named, err := s.Storage.Replace(ctx, name, entries)
	if err == nil && s.afterReplace != nil {
		s.afterReplace(name)
	}
	return named, err
}

func request(t *testing.T, method, rawURL string, header http.Header) *router.RequestDescriptor {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	if header == nil {
		header = http.Header{}
	}
	return router.NewRequestDescriptor(method, u, header)
}

func navigation(t *testing.T, rawURL string) *router.RequestDescriptor {
	return request(t, http.MethodGet, rawURL, http.Header{
		"Sec-Fetch-Mode": []string{"navigate"},
		"Accept":         []string{"text/html,application/xhtml+xml"},
	})
}

func asset(t *testing.T, rawURL string) *router.RequestDescriptor {
	return request(t, http.MethodGet, rawURL, http.Header{"Accept": []string{"*/*"}})
}

func cacheBody(t *testing.T, storage cache.Storage, name, path string) string {
	t.Helper()
	named, err := storage.Open(context.Background(), name)
	require.NoError(t, err)
	resp, err := named.Match(context.Background(), cache.GetKey(path))
	require.NoError(t, err)
	return string(resp.Body)
}
