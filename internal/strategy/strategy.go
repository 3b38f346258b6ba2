package strategy

import (
	"context"
	"errors"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/router"
)

// Fetcher 代表默认网络路径。返回 error 表示网络不可达；任何 HTTP 状态码都算成功取回。
type Fetcher interface {
	Fetch(ctx context.Context, req *router.RequestDescriptor, opts FetchOptions) (*cache.Response, error)
}

// FetchOptions 控制单次网络请求。
type FetchOptions struct {
	// NoStore 要求在传输层禁用 HTTP 缓存（Cache-Control: no-store）。
	NoStore bool
}

// Pending 延长所属事件的生命周期，直到登记的工作全部完成。
type Pending interface {
	WaitUntil(fn func(ctx context.Context) error)
}

// Source 标记响应来自哪里，写入日志与 X-Offline-Hub-Source 头。
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
	SourceError    Source = "error"
)

// Result 是执行器的返回值，Response 永不为 nil。
type Result struct {
	Response *cache.Response
	Source   Source
}

// Env 是执行器运行所需的上下文，由 worker 在每次 fetch 事件中构造。
type Env struct {
	Cache   cache.NamedCache
	Fetcher Fetcher
	Pending Pending
	Origin  *url.URL
	Logger  *logrus.Entry
}

// Executor 把一个已分类的请求解析为响应。
type Executor func(ctx context.Context, env Env, req *router.RequestDescriptor) Result

func (e Env) key(req *router.RequestDescriptor) cache.Key {
	return cache.NewKey(req.Method, req.URL, e.Origin)
}

func (e Env) logger() *logrus.Entry {
	if e.Logger == nil {
		return logging.Component(nil, "strategy")
	}
	return e.Logger
}

// match 查缓存；读失败（含损坏条目）一律视为未命中。
func (e Env) match(ctx context.Context, key cache.Key) *cache.Response {
	if e.Cache == nil {
		return nil
	}
	resp, err := e.Cache.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.logger().WithError(err).WithField("key", key.String()).Warn("cache_match_failed")
		}
		return nil
	}
	return resp
}

// later 把 fn 登记为事件的挂起工作；没有 Pending 时同步执行。
func (e Env) later(fn func(ctx context.Context) error) {
	if e.Pending != nil {
		e.Pending.WaitUntil(fn)
		return
	}
	_ = fn(context.Background())
}

// store 以挂起工作的形式写缓存，调用方不等待写入完成。
func (e Env) store(key cache.Key, resp *cache.Response) {
	if e.Cache == nil {
		return
	}
	e.later(func(ctx context.Context) error {
		return e.Cache.Put(ctx, key, resp)
	})
}

// revalidate 后台刷新 key：成功且 OK 时覆盖缓存，失败静默丢弃，不重试。
func (e Env) revalidate(req *router.RequestDescriptor, key cache.Key) {
	if e.Cache == nil {
		return
	}
	e.later(func(ctx context.Context) error {
		fields := logrus.Fields{"action": "revalidate", "key": key.String()}
		resp, err := e.Fetcher.Fetch(ctx, req, FetchOptions{})
		if err != nil {
			e.logger().WithFields(fields).WithError(err).Debug("revalidate_failed")
			return nil
		}
		if !resp.OK() {
			fields["status"] = resp.Status
			e.logger().WithFields(fields).Debug("revalidate_not_ok")
			return nil
		}
		if err := e.Cache.Put(ctx, key, resp); err != nil {
			e.logger().WithFields(fields).WithError(err).Debug("revalidate_store_failed")
		}
		return nil
	})
}
