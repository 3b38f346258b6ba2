package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/any-hub/offline-hub/internal/router"
)

// Metadata 记录一个执行器的静态信息，供 worker 分派与诊断端使用。
type Metadata struct {
	Route       router.Route
	Description string
	Executor    Executor
}

var globalRegistry = newRegistry()

type registry struct {
	mu        sync.RWMutex
	executors map[router.Route]Metadata
}

func newRegistry() *registry {
	return &registry{executors: make(map[router.Route]Metadata)}
}

func init() {
	MustRegister(Metadata{
		Route:       router.NetworkFirst,
		Description: "fresh network response, cache or root document when offline",
		Executor:    NetworkFirst,
	})
	MustRegister(Metadata{
		Route:       router.CacheFirst,
		Description: "cached response first, background refresh on hit",
		Executor:    CacheFirst,
	})
	MustRegister(Metadata{
		Route:       router.StaleWhileRevalidate,
		Description: "cached response first, miss waits for network and cache write",
		Executor:    StaleWhileRevalidate,
	})
}

// Register 将执行器加入全局注册表，重复路由或 PassThrough 会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回路由对应的执行器。
func Resolve(route router.Route) (Metadata, bool) {
	return globalRegistry.resolve(route)
}

// List 返回按路由名排序的执行器列表。
func List() []Metadata {
	return globalRegistry.list()
}

func (r *registry) register(meta Metadata) error {
	if !meta.Route.Intercepted() {
		return fmt.Errorf("route %q cannot carry an executor", meta.Route)
	}
	if meta.Executor == nil {
		return fmt.Errorf("executor for %s is required", meta.Route)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[meta.Route]; exists {
		return fmt.Errorf("executor %s already registered", meta.Route)
	}
	r.executors[meta.Route] = meta
	return nil
}

func (r *registry) resolve(route router.Route) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.executors[route]
	return meta, ok
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Metadata, 0, len(r.executors))
	for _, meta := range r.executors {
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Route < result[j].Route })
	return result
}
