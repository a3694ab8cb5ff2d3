// Package sync drains the durable action queue to the remote API.
package sync

import (
	"context"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
)

// QueueStore is the subset of the durable store the engine needs.
type QueueStore interface {
	List(ctx context.Context) ([]models.PendingAction, error)
	Remove(ctx context.Context, id string) error
	Update(ctx context.Context, id string, mutate func(*models.PendingAction)) error
	Abandon(ctx context.Context, action models.PendingAction, reason string) error
}

// Connectivity reports reachability and announces reconnects.
type Connectivity interface {
	IsReachable() bool
	OnBecameReachable(cb func()) (cancel func())
}

// Listener receives engine events. Methods are called synchronously from
// the draining goroutine and must not block.
type Listener interface {
	DrainStarted(pending int)
	DrainCompleted(summary Summary)
	ActionAbandoned(action models.PendingAction, reason string)
}
