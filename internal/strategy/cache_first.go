package strategy

import (
	"context"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/router"
)

// CacheFirst 命中时立即返回缓存并在后台刷新；未命中时回源，
// OK 响应以挂起写入的方式入缓存（调用方不等待写入），其它结果原样返回。
func CacheFirst(ctx context.Context, env Env, req *router.RequestDescriptor) Result {
	key := env.key(req)

	if cached := env.match(ctx, key); cached != nil {
		env.revalidate(req, key)
		return Result{Response: cached, Source: SourceCache}
	}

	resp, err := env.Fetcher.Fetch(ctx, req, FetchOptions{})
	if err != nil {
		env.logger().WithError(err).WithField("key", key.String()).Debug("cache_first_fetch_failed")
		return Result{Response: cache.NetworkError(), Source: SourceError}
	}
	if resp.OK() {
		env.store(key, resp.Clone())
	}
	return Result{Response: resp, Source: SourceNetwork}
}
