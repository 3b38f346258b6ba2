package worker

import (
	"errors"
	"fmt"
	"sync"
)

// State 是 worker 在宿主中的生命周期状态。
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

// ErrInvalidTransition 表示请求了状态机不允许的迁移。
var ErrInvalidTransition = errors.New("invalid worker state transition")

var allowedTransitions = map[State][]State{
	StateInstalling: {StateWaiting, StateRedundant},
	StateWaiting:    {StateActivating, StateRedundant},
	StateActivating: {StateActive, StateRedundant},
	StateActive:     {StateRedundant},
}

type lifecycle struct {
	mu    sync.RWMutex
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateInstalling}
}

func (l *lifecycle) current() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *lifecycle) transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, allowed := range allowedTransitions[l.state] {
		if allowed == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
}
