package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/strategy"
)

// NetworkFetcher 是策略层的默认网络路径：同源请求改写到应用真实地址，
// 跨源请求按原地址发出。响应体整体读入内存后交给策略层。
type NetworkFetcher struct {
	client   *http.Client
	origin   *url.URL
	upstream *url.URL
}

var _ strategy.Fetcher = (*NetworkFetcher)(nil)

// NewNetworkFetcher 使用共享 http.Client 构造 NetworkFetcher。
func NewNetworkFetcher(client *http.Client, origin, upstream *url.URL) *NetworkFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &NetworkFetcher{client: client, origin: origin, upstream: upstream}
}

// Fetch 发出请求并返回完整响应；只有传输层失败才返回 error。
func (f *NetworkFetcher) Fetch(ctx context.Context, req *router.RequestDescriptor, opts strategy.FetchOptions) (*cache.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	upstreamReq, err := f.buildRequest(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if opts.NoStore {
		upstreamReq.Header.Set("Cache-Control", "no-store")
		upstreamReq.Header.Set("Pragma", "no-cache")
	}

	resp, err := f.client.Do(upstreamReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	header := http.Header{}
	forwardHeaders(header, resp.Header)
	header.Del("Content-Length")
	return &cache.Response{
		Type:   cache.ResponseBasic,
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

// Target 返回 req 实际要访问的地址。
func (f *NetworkFetcher) Target(req *router.RequestDescriptor) *url.URL {
	if f.isSameOrigin(req.URL) && f.upstream != nil {
		relative := &url.URL{Path: req.URL.Path, RawPath: req.URL.RawPath, RawQuery: req.URL.RawQuery}
		if relative.Path == "" {
			relative.Path = "/"
		}
		return f.upstream.ResolveReference(relative)
	}
	target := *req.URL
	target.Fragment = ""
	return &target
}

func (f *NetworkFetcher) buildRequest(ctx context.Context, req *router.RequestDescriptor, body io.Reader) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}
	target := f.Target(req)
	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	forwardHeaders(upstreamReq.Header, req.Header)
	upstreamReq.Header.Del("Accept-Encoding")
	upstreamReq.Header.Del("Host")
	upstreamReq.Host = target.Host
	if f.isSameOrigin(req.URL) {
		upstreamReq.Header.Set("X-Forwarded-Host", f.origin.Host)
		upstreamReq.Header.Set("X-Forwarded-Proto", f.origin.Scheme)
	}
	return upstreamReq, nil
}

// do 透传请求：保留方法与请求体，响应体由调用方流式消费并负责关闭。
func (f *NetworkFetcher) do(ctx context.Context, req *router.RequestDescriptor, body io.Reader) (*http.Response, error) {
	upstreamReq, err := f.buildRequest(ctx, req, body)
	if err != nil {
		return nil, err
	}
	return f.client.Do(upstreamReq)
}

func (f *NetworkFetcher) isSameOrigin(u *url.URL) bool {
	if u == nil || f.origin == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, f.origin.Scheme) && strings.EqualFold(u.Host, f.origin.Host)
}
