package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/router"
)

// guardedCache 在写入前再次检查方法与绕过前缀，保证这两类 key 永远不会落盘。
type guardedCache struct {
	cache.NamedCache
	bypass router.BypassRuleSet
}

func (g guardedCache) Put(ctx context.Context, key cache.Key, resp *cache.Response) error {
	if !key.Cacheable() {
		return fmt.Errorf("%w: %s", cache.ErrNotCacheable, key)
	}
	if g.bypass.Matches(keyPath(key)) {
		return fmt.Errorf("%w: %s is under a bypass prefix", cache.ErrNotCacheable, key)
	}
	return g.NamedCache.Put(ctx, key, resp)
}

func keyPath(key cache.Key) string {
	if strings.HasPrefix(key.URL, "/") {
		if idx := strings.IndexByte(key.URL, '?'); idx >= 0 {
			return key.URL[:idx]
		}
		return key.URL
	}
	if u, err := url.Parse(key.URL); err == nil && u.Path != "" {
		return u.Path
	}
	return "/"
}
