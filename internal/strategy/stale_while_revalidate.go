package strategy

import (
	"context"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/router"
)

// StaleWhileRevalidate 命中路径与 CacheFirst 相同；未命中时调用方同时等待
// 网络请求与缓存写入，返回时新条目已经可读。
func StaleWhileRevalidate(ctx context.Context, env Env, req *router.RequestDescriptor) Result {
	key := env.key(req)

	if cached := env.match(ctx, key); cached != nil {
		env.revalidate(req, key)
		return Result{Response: cached, Source: SourceCache}
	}

	resp, err := env.Fetcher.Fetch(ctx, req, FetchOptions{})
	if err != nil {
		env.logger().WithError(err).WithField("key", key.String()).Debug("swr_fetch_failed")
		return Result{Response: cache.NetworkError(), Source: SourceError}
	}
	if resp.OK() && env.Cache != nil {
		// 写入不随客户端断开而取消。
		if err := env.Cache.Put(context.WithoutCancel(ctx), key, resp.Clone()); err != nil {
			env.logger().WithError(err).WithField("key", key.String()).Warn("swr_store_failed")
		}
	}
	return Result{Response: resp, Source: SourceNetwork}
}
