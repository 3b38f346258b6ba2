package strategy

import (
	"context"
	"net/http"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/router"
)

// rootKey 是离线时的兜底文档。
var rootKey = cache.GetKey("/")

// NetworkFirst 总是先走网络（传输层禁用缓存）。成功时写缓存并返回；
// 网络失败时依次查请求本身与根文档，都没有则返回网络错误值。
func NetworkFirst(ctx context.Context, env Env, req *router.RequestDescriptor) Result {
	key := env.key(req)

	resp, err := env.Fetcher.Fetch(ctx, req, FetchOptions{NoStore: true})
	if err == nil && !resp.IsError() {
		if resp.Status != http.StatusPartialContent {
			env.store(key, resp.Clone())
		}
		return Result{Response: resp, Source: SourceNetwork}
	}

	env.logger().WithError(err).WithField("key", key.String()).Debug("network_first_offline")

	if cached := env.match(ctx, key); cached != nil {
		return Result{Response: cached, Source: SourceCache}
	}
	if key != rootKey {
		if fallback := env.match(ctx, rootKey); fallback != nil {
			return Result{Response: fallback, Source: SourceFallback}
		}
	}
	return Result{Response: cache.NetworkError(), Source: SourceError}
}
