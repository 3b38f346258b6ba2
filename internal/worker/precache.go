package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/strategy"
)

// Manifest 是安装时需要预缓存的地址列表，相对地址以 origin 为基准解析。
type Manifest []string

// InstallError 表示某个清单地址未能取回成功响应，本次安装整体作废。
type InstallError struct {
	URL    string
	Status int
	Err    error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precache %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("precache %s: unexpected status %d", e.URL, e.Status)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Installer 并发拉取清单并原子地写入新缓存。
type Installer struct {
	fetcher     strategy.Fetcher
	storage     cache.Storage
	origin      *url.URL
	concurrency int
}

// NewInstaller 构造 Installer，concurrency <= 0 时串行拉取。
func NewInstaller(fetcher strategy.Fetcher, storage cache.Storage, origin *url.URL, concurrency int) *Installer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Installer{
		fetcher:     fetcher,
		storage:     storage,
		origin:      origin,
		concurrency: concurrency,
	}
}

// Install 拉取 manifest 中的每一项，全部 OK 后以 name 创建缓存；任一失败则
// 返回 *InstallError，磁盘上不产生任何新缓存，旧版本继续生效。
func (i *Installer) Install(ctx context.Context, manifest Manifest, name string) (cache.NamedCache, error) {
	entries := make([]cache.Entry, len(manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, raw := range manifest {
		g.Go(func() error {
			target, err := i.resolve(raw)
			if err != nil {
				return &InstallError{URL: raw, Err: err}
			}
			req := router.NewRequestDescriptor(http.MethodGet, target, http.Header{"Accept": []string{"*/*"}})
			resp, err := i.fetcher.Fetch(gctx, req, strategy.FetchOptions{})
			if err != nil {
				return &InstallError{URL: raw, Err: err}
			}
			if !resp.OK() {
				return &InstallError{URL: raw, Status: resp.Status}
			}
			entries[idx] = cache.Entry{
				Key:      cache.NewKey(http.MethodGet, target, i.origin),
				Response: resp,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return i.storage.Replace(ctx, name, entries)
}

func (i *Installer) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return i.origin.ResolveReference(ref), nil
}
