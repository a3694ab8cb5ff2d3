// Package connectivity tracks whether the remote API is reachable and
// notifies subscribers when it comes back.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

// Source reports the current reachability, typically the host platform's
// network signal or an active probe.
type Source interface {
	Reachable(ctx context.Context) bool
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) bool

// Reachable calls f.
func (f SourceFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}

// registration is held locked while its callback runs, so cancel waits
// for an invocation in progress.
type registration struct {
	mu        sync.Mutex
	active    bool
	onOnline  func()
	onChanged func(reachable bool)
}

func (r *registration) dispatch(reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	if r.onChanged != nil {
		r.onChanged(reachable)
	}
	if reachable && r.onOnline != nil {
		r.onOnline()
	}
}

// Monitor holds the last known reachability. State changes arrive through
// Set, either pushed by the host or fed by Watch.
//
// Callbacks run synchronously on the goroutine calling Set and must not
// block; long work belongs in a goroutine of the callback's own. A callback
// must not call Set or its own cancel func.
type Monitor struct {
	mu        sync.Mutex
	reachable bool
	nextID    uint64
	regs      map[uint64]*registration
	order     []uint64
}

// NewMonitor creates a Monitor whose initial state is read from src. A nil
// src starts offline.
func NewMonitor(ctx context.Context, src Source) *Monitor {
	m := &Monitor{regs: make(map[uint64]*registration)}
	if src != nil {
		m.reachable = src.Reachable(ctx)
	}
	return m
}

// IsReachable returns the last known state.
func (m *Monitor) IsReachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Set records a new state. OnBecameReachable callbacks fire only for an
// offline to online transition; repeated online signals are ignored.
func (m *Monitor) Set(reachable bool) {
	m.mu.Lock()
	was := m.reachable
	m.reachable = reachable
	if was == reachable {
		m.mu.Unlock()
		return
	}
	regs := make([]*registration, 0, len(m.order))
	for _, id := range m.order {
		regs = append(regs, m.regs[id])
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"was_online": was,
		"is_online":  reachable,
	})

	for _, r := range regs {
		r.dispatch(reachable)
	}
}

// OnBecameReachable registers cb for every offline to online transition.
// cancel waits for a running invocation of cb; after it returns, cb is never
// invoked again.
func (m *Monitor) OnBecameReachable(cb func()) (cancel func()) {
	return m.register(&registration{onOnline: cb})
}

// OnChange registers cb for transitions in both directions.
func (m *Monitor) OnChange(cb func(reachable bool)) (cancel func()) {
	return m.register(&registration{onChanged: cb})
}

func (m *Monitor) register(r *registration) func() {
	r.active = true

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.regs[id] = r
	m.order = append(m.order, id)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.active = false
			r.mu.Unlock()

			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.regs, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Watch polls src every interval and feeds the result into m until ctx is
// done. It returns nil on cancellation.
func (m *Monitor) Watch(ctx context.Context, src Source, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Set(src.Reachable(ctx))
		}
	}
}
