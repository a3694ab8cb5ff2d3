package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/submit"
)

// DefaultMaxAttempts is the delivery budget of one action.
const DefaultMaxAttempts = 3

// Summary counts the outcome of one drain.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
}

// Add returns the field-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Succeeded: s.Succeeded + o.Succeeded,
		Failed:    s.Failed + o.Failed,
		Deferred:  s.Deferred + o.Deferred,
	}
}

// IsZero reports whether nothing was processed.
func (s Summary) IsZero() bool {
	return s == Summary{}
}

// Status is a snapshot of the engine state.
type Status struct {
	Running     bool       `json:"running"`
	Draining    bool       `json:"draining"`
	LastDrainAt *time.Time `json:"last_drain_at,omitempty"`
	LastSummary Summary    `json:"last_summary"`
	Totals      Summary    `json:"totals"`
}

// Engine delivers pending actions oldest first. At most one drain runs at a
// time per Engine; an overlapping call returns a zero Summary.
type Engine struct {
	store       QueueStore
	submitter   submit.Submitter
	conn        Connectivity
	maxAttempts int

	mu              stdsync.Mutex
	listener        Listener
	draining        bool
	running         bool
	stopCh          chan struct{}
	cancelReconnect func()
	loopWG          stdsync.WaitGroup
	drainWG         stdsync.WaitGroup
	lastDrainAt     time.Time
	lastSummary     Summary
	totals          Summary
}

// NewEngine creates a new Engine. A maxAttempts below 1 selects
// DefaultMaxAttempts.
func NewEngine(store QueueStore, submitter submit.Submitter, conn Connectivity, maxAttempts int) *Engine {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{
		store:       store,
		submitter:   submitter,
		conn:        conn,
		maxAttempts: maxAttempts,
	}
}

// SetListener sets the event listener. nil disables events.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// MaxAttempts returns the configured delivery budget.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Running:     e.running,
		Draining:    e.draining,
		LastSummary: e.lastSummary,
		Totals:      e.totals,
	}
	if !e.lastDrainAt.IsZero() {
		t := e.lastDrainAt
		st.LastDrainAt = &t
	}
	return st
}

// DrainOnce submits every action pending at the time of the call. Actions
// appended while it runs wait for the next drain. Submission errors never
// escape: they are counted in the Summary and recorded on the action.
//
// A successful action is removed. A failed one has its attempt count
// incremented and is abandoned to the dead-letter log once the count reaches
// the budget. A permanent rejection is abandoned at once.
func (e *Engine) DrainOnce(ctx context.Context) (summary Summary) {
	if !e.conn.IsReachable() {
		logging.Debug("Skipping drain - offline", nil)
		return Summary{}
	}

	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		logging.Debug("Drain already in progress, skipping", nil)
		return Summary{}
	}
	e.draining = true
	listener := e.listener
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.lastDrainAt = time.Now()
		e.lastSummary = summary
		e.totals = e.totals.Add(summary)
		e.mu.Unlock()
	}()

	actions, err := e.store.List(ctx)
	if err != nil {
		logging.Error("Failed to read pending actions", err, nil)
		return Summary{}
	}
	if len(actions) == 0 {
		return Summary{}
	}

	logging.Info("Draining pending actions", map[string]interface{}{"count": len(actions)})
	if listener != nil {
		listener.DrainStarted(len(actions))
	}

	summary = e.drain(ctx, actions, listener)

	logging.Info("Drain completed", map[string]interface{}{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"deferred":  summary.Deferred,
	})
	if listener != nil {
		listener.DrainCompleted(summary)
	}
	return summary
}

func (e *Engine) drain(ctx context.Context, actions []models.PendingAction, listener Listener) Summary {
	var summary Summary

	for _, action := range actions {
		if ctx.Err() != nil {
			logging.Info("Drain interrupted", map[string]interface{}{"remaining_action": action.ID})
			return summary
		}

		submitErr := e.submitter.Submit(ctx, action.Target, action.Payload)
		if submitErr == nil {
			summary.Succeeded++
			if err := e.store.Remove(ctx, action.ID); err != nil {
				// delivered but still stored: it will be delivered again
				logging.Error("Failed to remove delivered action", err, map[string]interface{}{"action_id": action.ID})
				return summary
			}
			continue
		}

		// a cancelled attempt does not count against the budget
		if ctx.Err() != nil {
			return summary
		}

		if submit.IsPermanent(submitErr) {
			action.Attempts++
			action.LastError = submitErr.Error()
			if !e.abandon(ctx, action, fmt.Sprintf("rejected: %v", submitErr), listener) {
				return summary
			}
			summary.Failed++
			continue
		}

		var (
			updated models.PendingAction
			found   bool
		)
		err := e.store.Update(ctx, action.ID, func(p *models.PendingAction) {
			p.Attempts++
			p.LastError = submitErr.Error()
			updated = *p
			found = true
		})
		if err != nil {
			logging.Error("Failed to record attempt", err, map[string]interface{}{"action_id": action.ID})
			return summary
		}
		if !found {
			// removed by someone else during the attempt
			continue
		}

		logging.Warn("Action delivery failed", map[string]interface{}{
			"action_id": action.ID,
			"attempts":  updated.Attempts,
			"error":     submitErr.Error(),
		})

		if updated.Attempts >= e.maxAttempts {
			reason := fmt.Sprintf("max attempts (%d) reached: %v", e.maxAttempts, submitErr)
			if !e.abandon(ctx, updated, reason, listener) {
				return summary
			}
			summary.Failed++
			continue
		}
		summary.Deferred++
	}

	return summary
}

func (e *Engine) abandon(ctx context.Context, action models.PendingAction, reason string, listener Listener) bool {
	if err := e.store.Abandon(ctx, action, reason); err != nil {
		logging.Error("Failed to abandon action", err, map[string]interface{}{"action_id": action.ID})
		return false
	}
	if listener != nil {
		listener.ActionAbandoned(action, reason)
	}
	return true
}
