package sync

import (
	"context"
	"time"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

// DefaultSyncInterval is the periodic drain interval.
const DefaultSyncInterval = 5 * time.Minute

// StartAutoSync drains every interval and on each offline to online
// transition, until StopAutoSync or ctx cancellation. When started online it
// drains right away. Calling it on a running engine is a no-op.
func (e *Engine) StartAutoSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.cancelReconnect = e.conn.OnBecameReachable(func() {
		logging.Info("Connectivity restored, draining", nil)
		e.triggerDrain(ctx, stopCh)
	})
	e.loopWG.Add(1)
	e.mu.Unlock()

	go e.autoSyncLoop(ctx, stopCh, interval)

	logging.Info("Auto sync started", map[string]interface{}{"interval_seconds": interval.Seconds()})

	if e.conn.IsReachable() {
		e.triggerDrain(ctx, stopCh)
	}
}

// StopAutoSync cancels the timer and the reconnect subscription. A drain
// already running is not interrupted; use Wait to block until it finishes.
func (e *Engine) StopAutoSync() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	cancel := e.cancelReconnect
	e.cancelReconnect = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.loopWG.Wait()

	logging.Info("Auto sync stopped", nil)
}

// Wait blocks until drains started by auto sync have returned. Call it
// after StopAutoSync.
func (e *Engine) Wait() {
	e.drainWG.Wait()
}

func (e *Engine) autoSyncLoop(ctx context.Context, stopCh chan struct{}, interval time.Duration) {
	defer e.loopWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !e.conn.IsReachable() {
				continue
			}
			if e.Status().Draining {
				logging.Debug("Drain already in progress, skipping tick", nil)
				continue
			}
			e.triggerDrain(ctx, stopCh)
		}
	}
}

// triggerDrain starts a drain in the background unless the auto sync
// generation that scheduled it has been stopped.
func (e *Engine) triggerDrain(ctx context.Context, stopCh chan struct{}) {
	e.mu.Lock()
	if !e.running || e.stopCh != stopCh || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.drainWG.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.drainWG.Done()
		e.DrainOnce(ctx)
	}()
}
