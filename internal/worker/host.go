package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/offline-hub/internal/cache"
	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/strategy"
)

var (
	// ErrNoWaitingWorker 表示没有处于 Waiting 状态的实例可供激活。
	ErrNoWaitingWorker = errors.New("no waiting worker")
	// ErrNoResumableCache 表示磁盘上找不到受管前缀下的缓存。
	ErrNoResumableCache = errors.New("no cache to resume from")
)

// Host 负责注册、激活与替换 worker，并把请求派发给当前 Active 实例。
type Host struct {
	storage cache.Storage
	fetcher strategy.Fetcher
	logger  *logrus.Logger
	log     *logrus.Entry

	inflight sync.WaitGroup

	// jobs 串行化注册、激活与恢复，任一时刻只有一个生命周期操作在运行。
	jobs sync.Mutex

	mu      sync.RWMutex
	active  *Worker
	waiting *Worker
}

// NewHost 构造 Host。logger 为 nil 时使用 logrus 标准 logger。
func NewHost(storage cache.Storage, fetcher strategy.Fetcher, logger *logrus.Logger) (*Host, error) {
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	return &Host{
		storage: storage,
		fetcher: fetcher,
		logger:  logger,
		log:     logging.Component(logger, "host"),
	}, nil
}

// Register 安装新版本。安装失败时返回错误，现有 Active 实例不受影响；
// 安装成功且 SkipWaiting 生效（或尚无 Active 实例）时立即激活。
func (h *Host) Register(ctx context.Context, opts Options) (*Worker, error) {
	h.jobs.Lock()
	defer h.jobs.Unlock()

	w, err := newWorker(opts, h.storage, h.fetcher, h.logger, &h.inflight)
	if err != nil {
		return nil, err
	}
	if err := w.install(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	previous := h.waiting
	h.waiting = w
	hasActive := h.active != nil
	h.mu.Unlock()
	if previous != nil {
		previous.retire()
	}

	if w.skipsWaiting() || !hasActive {
		if err := h.activate(ctx, w); err != nil {
			return w, err
		}
	}
	return w, nil
}

// ActivateWaiting 激活 Waiting 实例，对应客户端全部关闭后的自然接管。
func (h *Host) ActivateWaiting(ctx context.Context) (*Worker, error) {
	h.jobs.Lock()
	defer h.jobs.Unlock()

	h.mu.RLock()
	w := h.waiting
	h.mu.RUnlock()
	if w == nil {
		return nil, ErrNoWaitingWorker
	}
	return w, h.activate(ctx, w)
}

func (h *Host) activate(ctx context.Context, w *Worker) error {
	h.mu.Lock()
	if h.waiting == w {
		h.waiting = nil
	}
	h.mu.Unlock()
	return w.activate(ctx, h)
}

// Claim 让 w 成为 Active 实例，旧实例转为 Redundant。
func (h *Host) Claim(w *Worker) {
	h.mu.Lock()
	previous := h.active
	h.active = w
	if h.waiting == w {
		h.waiting = nil
	}
	h.mu.Unlock()
	if previous != nil && previous != w {
		previous.retire()
	}
}

// Resume 进程重启时直接接管磁盘上已有的受管缓存，不访问网络。
// 若存在多个候选，取版本号最大者，其余受管缓存随后被清理。
func (h *Host) Resume(ctx context.Context, opts Options) (*Worker, error) {
	h.jobs.Lock()
	defer h.jobs.Unlock()

	if w := h.Active(); w != nil {
		return w, nil
	}
	names, err := h.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	var candidates []string
	for _, name := range names {
		if strings.HasPrefix(name, opts.CachePrefix) && len(name) > len(opts.CachePrefix) {
			candidates = append(candidates, strings.TrimPrefix(name, opts.CachePrefix))
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoResumableCache
	}
	sort.Slice(candidates, func(i, j int) bool {
		return compareVersions(candidates[i], candidates[j]) < 0
	})

	opts.Version = candidates[len(candidates)-1]
	w, err := newWorker(opts, h.storage, h.fetcher, h.logger, &h.inflight)
	if err != nil {
		return nil, err
	}
	named, err := h.storage.Open(ctx, w.CacheName())
	if err != nil {
		return nil, err
	}
	if err := w.adopt(named, h); err != nil {
		return nil, err
	}

	deleted, err := NewGarbageCollector(h.storage, opts.CachePrefix).Collect(ctx, w.CacheName())
	if len(deleted) > 0 {
		h.log.WithFields(logrus.Fields{"action": "resume", "deleted": deleted}).Info("stale_caches_deleted")
	}
	if err != nil {
		h.log.WithField("action", "resume").WithError(err).Warn("stale_cache_cleanup_failed")
	}
	return w, nil
}

// compareVersions 按数字段数值、其余段字典序比较，使 v10 排在 v9 之后。
func compareVersions(a, b string) int {
	for a != "" && b != "" {
		ra, restA := versionRun(a)
		rb, restB := versionRun(b)
		if c := compareRuns(ra, rb); c != 0 {
			return c
		}
		a, b = restA, restB
	}
	return strings.Compare(a, b)
}

func versionRun(s string) (string, string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func compareRuns(a, b string) int {
	if isDigit(a[0]) && isDigit(b[0]) {
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Active 返回当前 Active 实例，可能为 nil。
func (h *Host) Active() *Worker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// Waiting 返回等待激活的实例，可能为 nil。
func (h *Host) Waiting() *Worker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.waiting
}

// Storage 返回宿主使用的缓存存储。
func (h *Host) Storage() cache.Storage {
	return h.storage
}

// Dispatch 把请求交给 Active 实例；没有 Active 实例时请求不被拦截。
func (h *Host) Dispatch(ctx context.Context, req *router.RequestDescriptor) Outcome {
	w := h.Active()
	if w == nil {
		return Outcome{Route: router.PassThrough}
	}
	return w.Dispatch(ctx, req)
}

// Shutdown 等待所有事件的挂起工作完成，ctx 到期时放弃等待。
func (h *Host) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.log.WithField("action", "shutdown").Info("pending_work_drained")
		return nil
	case <-ctx.Done():
		h.log.WithField("action", "shutdown").Warn("pending_work_abandoned")
		return ctx.Err()
	}
}

// CacheInfo 是诊断接口返回的单个缓存摘要。
type CacheInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// Caches 列出存储中的全部缓存及条目数。
func (h *Host) Caches(ctx context.Context) ([]CacheInfo, error) {
	names, err := h.storage.Names(ctx)
	if err != nil {
		return nil, err
	}
	current := ""
	if w := h.Active(); w != nil {
		current = w.CacheName()
	}
	infos := make([]CacheInfo, 0, len(names))
	for _, name := range names {
		named, err := h.storage.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		keys, err := named.Keys(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, CacheInfo{Name: name, Entries: len(keys), Current: name == current})
	}
	return infos, nil
}
