package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/any-hub/offline-hub/internal/cache"
)

// GarbageCollector 删除受管前缀下除当前版本外的全部缓存。
type GarbageCollector struct {
	storage cache.Storage
	prefix  string
}

// NewGarbageCollector 构造 GarbageCollector；不带 prefix 的缓存永远不会被触碰。
func NewGarbageCollector(storage cache.Storage, prefix string) *GarbageCollector {
	return &GarbageCollector{storage: storage, prefix: prefix}
}

// Collect 返回被删除的缓存名。单个删除失败不会中断其余删除。
func (g *GarbageCollector) Collect(ctx context.Context, current string) ([]string, error) {
	names, err := g.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}

	var (
		deleted []string
		errs    []error
	)
	for _, name := range names {
		if !strings.HasPrefix(name, g.prefix) || name == current {
			continue
		}
		ok, err := g.storage.Delete(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, errors.Join(errs...)
}
