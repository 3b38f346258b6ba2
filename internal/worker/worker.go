package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/config"
	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/strategy"
)

// Options 是构造一个 worker 实例所需的全部部署期参数。
type Options struct {
	Version            string
	CachePrefix        string
	Manifest           Manifest
	Origin             *url.URL
	BypassPrefixes     []string
	SameOriginRoute    router.Route
	SkipWaiting        bool
	InstallConcurrency int
}

// CacheName 返回该版本持有的缓存名。
func (o Options) CacheName() string {
	return o.CachePrefix + o.Version
}

// OptionsFromConfig 把已校验的 [Worker] 配置段转换为 Options。
func OptionsFromConfig(cfg config.WorkerConfig) (Options, error) {
	origin, err := cfg.OriginURL()
	if err != nil {
		return Options{}, fmt.Errorf("parse origin: %w", err)
	}
	route, err := router.ParseSameOriginRoute(cfg.SameOriginStrategy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Version:            cfg.Version,
		CachePrefix:        cfg.CachePrefix,
		Manifest:           append(Manifest(nil), cfg.Manifest...),
		Origin:             origin,
		BypassPrefixes:     append([]string(nil), cfg.BypassPrefixes...),
		SameOriginRoute:    route,
		SkipWaiting:        cfg.SkipWaiting,
		InstallConcurrency: cfg.InstallConcurrency,
	}, nil
}

// Clients 由宿主实现，worker 激活后通过它接管所有请求。
type Clients interface {
	Claim(w *Worker)
}

// Outcome 描述一次 fetch 派发的结果。Handled 为 false 时调用方走默认网络路径。
type Outcome struct {
	Handled  bool
	Route    router.Route
	Result   strategy.Result
	WorkerID string
	Version  string
}

// Worker 是某个版本的拦截层实例。
type Worker struct {
	id      string
	opts    Options
	router  *router.Router
	storage cache.Storage
	fetcher strategy.Fetcher
	logger  *logrus.Entry
	life    *lifecycle
	tracker *sync.WaitGroup

	skipWaiting atomic.Bool

	mu    sync.RWMutex
	named cache.NamedCache
}

func newWorker(opts Options, storage cache.Storage, fetcher strategy.Fetcher, logger *logrus.Logger, tracker *sync.WaitGroup) (*Worker, error) {
	if strings.TrimSpace(opts.Version) == "" {
		return nil, errors.New("worker version is required")
	}
	if opts.CachePrefix == "" {
		return nil, errors.New("worker cache prefix is required")
	}
	r, err := router.New(opts.Origin, opts.BypassPrefixes, opts.SameOriginRoute)
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = &sync.WaitGroup{}
	}
	id := uuid.NewString()
	return &Worker{
		id:      id,
		opts:    opts,
		router:  r,
		storage: storage,
		fetcher: fetcher,
		logger:  logging.Component(logger, "worker").WithField("worker_id", id),
		life:    newLifecycle(),
		tracker: tracker,
	}, nil
}

// ID 返回实例唯一标识。
func (w *Worker) ID() string { return w.id }

// Version 返回部署版本号。
func (w *Worker) Version() string { return w.opts.Version }

// CacheName 返回当前版本持有的缓存名。
func (w *Worker) CacheName() string { return w.opts.CacheName() }

// State 返回当前生命周期状态。
func (w *Worker) State() State { return w.life.current() }

// Options 返回构造参数。
func (w *Worker) Options() Options { return w.opts }

// SkipWaiting 请求安装完成后立即激活，不等待旧实例退出。
func (w *Worker) SkipWaiting() { w.skipWaiting.Store(true) }

func (w *Worker) skipsWaiting() bool { return w.skipWaiting.Load() }

func (w *Worker) fields(action string) logrus.Fields {
	return logging.WorkerFields(action, w.id, w.opts.Version, w.CacheName())
}

// dispatch 投递一次生命周期事件并等待其全部挂起工作结束。
func (w *Worker) dispatch(ctx context.Context, kind EventKind, handler func(ev *Event)) error {
	ev := newEvent(ctx, kind)
	w.tracker.Add(1)
	defer w.tracker.Done()
	handler(ev)
	return ev.Wait()
}

// install 预缓存清单。成功后进入 Waiting，失败则成为 Redundant 且不留下新缓存。
func (w *Worker) install(ctx context.Context) error {
	installer := NewInstaller(w.fetcher, w.storage, w.opts.Origin, w.opts.InstallConcurrency)
	err := w.dispatch(ctx, EventInstall, func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error {
			named, err := installer.Install(ctx, w.opts.Manifest, w.CacheName())
			if err != nil {
				return err
			}
			w.setCache(named)
			if w.opts.SkipWaiting {
				w.SkipWaiting()
			}
			return nil
		})
	})
	if err != nil {
		_ = w.life.transition(StateRedundant)
		w.logger.WithFields(w.fields("install")).WithError(err).Error("worker_install_failed")
		return err
	}
	if err := w.life.transition(StateWaiting); err != nil {
		return err
	}
	w.logger.WithFields(w.fields("install")).WithField("entries", len(w.opts.Manifest)).Info("worker_installed")
	return nil
}

// activate 清理旧版本缓存后进入 Active 并接管全部请求。清理失败只记录日志。
func (w *Worker) activate(ctx context.Context, clients Clients) error {
	if err := w.life.transition(StateActivating); err != nil {
		return err
	}
	gc := NewGarbageCollector(w.storage, w.opts.CachePrefix)
	err := w.dispatch(ctx, EventActivate, func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error {
			deleted, err := gc.Collect(ctx, w.CacheName())
			if len(deleted) > 0 {
				w.logger.WithFields(w.fields("activate")).WithField("deleted", deleted).Info("stale_caches_deleted")
			}
			return err
		})
	})
	if err != nil {
		w.logger.WithFields(w.fields("activate")).WithError(err).Warn("stale_cache_cleanup_failed")
	}
	if err := w.life.transition(StateActive); err != nil {
		return err
	}
	if clients != nil {
		clients.Claim(w)
	}
	w.logger.WithFields(w.fields("claim")).Info("worker_activated")
	return nil
}

// adopt 直接接管磁盘上已有的缓存，进程重启时使用，不重新拉取清单。
func (w *Worker) adopt(named cache.NamedCache, clients Clients) error {
	w.setCache(named)
	for _, next := range []State{StateWaiting, StateActivating, StateActive} {
		if err := w.life.transition(next); err != nil {
			return err
		}
	}
	if clients != nil {
		clients.Claim(w)
	}
	w.logger.WithFields(w.fields("resume")).Info("worker_resumed")
	return nil
}

func (w *Worker) retire() {
	if err := w.life.transition(StateRedundant); err == nil {
		w.logger.WithFields(w.fields("retire")).Info("worker_redundant")
	}
}

func (w *Worker) setCache(named cache.NamedCache) {
	w.mu.Lock()
	w.named = guardedCache{NamedCache: named, bypass: w.router.Bypass()}
	w.mu.Unlock()
}

// Cache 返回带写保护的当前版本缓存，安装完成前为 nil。
func (w *Worker) Cache() cache.NamedCache {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.named
}

// Classify 只做路由判定，不执行策略。
func (w *Worker) Classify(req *router.RequestDescriptor) router.Route {
	return w.router.Classify(req)
}

// Dispatch 处理一次 fetch 事件。只有 Active 实例会拦截请求；响应返回后
// 挂起的缓存写入与后台刷新仍被宿主跟踪，直到全部完成。
func (w *Worker) Dispatch(ctx context.Context, req *router.RequestDescriptor) Outcome {
	route := w.router.Classify(req)
	out := Outcome{Route: route, WorkerID: w.id, Version: w.opts.Version}
	if !route.Intercepted() || w.State() != StateActive {
		return out
	}
	meta, ok := strategy.Resolve(route)
	if !ok {
		return out
	}

	ev := newEvent(ctx, EventFetch)
	w.tracker.Add(1)
	defer w.settle(ev, route, req)

	env := strategy.Env{
		Cache:   w.Cache(),
		Fetcher: w.fetcher,
		Pending: ev,
		Origin:  w.opts.Origin,
		Logger:  w.logger.WithField("route", string(route)),
	}
	out.Result = meta.Executor(ctx, env, req)
	out.Handled = true
	return out
}

func (w *Worker) settle(ev *Event, route router.Route, req *router.RequestDescriptor) {
	go func() {
		defer w.tracker.Done()
		if err := ev.Wait(); err != nil {
			w.logger.WithFields(logrus.Fields{
				"action": "fetch_pending",
				"route":  string(route),
				"path":   req.Path(),
			}).WithError(err).Warn("pending_work_failed")
		}
	}()
}
