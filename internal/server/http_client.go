package server

import (
	"net"
	"net/http"
	"time"

	"github.com/any-hub/offline-hub/internal/config"
)

const (
	defaultUpstreamTimeout = 30 * time.Second
	// minIdlePerHost 是单个上游的最小空闲连接数，运行期的回源与后台刷新共用。
	minIdlePerHost = 16
)

// NewUpstreamClient 返回访问上游的 http.Client。
// 预缓存时 InstallConcurrency 个请求同时打到同一上游，空闲连接池至少容纳这么多，
// 安装结束后的回源请求可以直接复用这些连接。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := defaultUpstreamTimeout
	idlePerHost := minIdlePerHost
	if cfg != nil {
		if d := cfg.Global.UpstreamTimeout.DurationValue(); d > 0 {
			timeout = d
		}
		if n := cfg.Worker.InstallConcurrency; n > idlePerHost {
			idlePerHost = n
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: upstreamTransport(idlePerHost),
	}
}

func upstreamTransport(idlePerHost int) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          idlePerHost * 2,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: defaultUpstreamTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}
