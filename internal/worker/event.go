package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventKind 对应宿主投递给 worker 的三类事件。
type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventFetch    EventKind = "fetch"
)

// Event 是一次可延长生命周期的事件。WaitUntil 登记的工作运行在脱离请求取消的
// context 上；Wait 在全部工作结束后返回合并后的错误。
type Event struct {
	kind EventKind
	ctx  context.Context

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func newEvent(parent context.Context, kind EventKind) *Event {
	if parent == nil {
		parent = context.Background()
	}
	return &Event{kind: kind, ctx: context.WithoutCancel(parent)}
}

// Kind 返回事件类型。
func (e *Event) Kind() EventKind {
	return e.kind
}

// WaitUntil 登记一项挂起工作，立即在新的 goroutine 中执行。
func (e *Event) WaitUntil(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.record(fmt.Errorf("panic in %s handler: %v", e.kind, r))
			}
		}()
		if err := fn(e.ctx); err != nil {
			e.record(err)
		}
	}()
}

// Wait 阻塞到所有登记的工作完成。
func (e *Event) Wait() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}

func (e *Event) record(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}
