// Package actions records field actions: it validates them, delivers them
// right away when the API is reachable and queues them otherwise.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/geofence"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/submit"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

// Endpoints of the remote API.
const (
	PunchEndpoint        = "/api/ponto"
	signEndpointTemplate = "/api/documentos/%s/assinar"
)

// Appender persists an action for later delivery.
type Appender interface {
	Append(ctx context.Context, action models.PendingAction) error
}

// Reachability reports whether a direct submission is worth trying.
type Reachability interface {
	IsReachable() bool
}

// QueueListener is notified when an action lands in the queue.
type QueueListener interface {
	ActionQueued(action models.PendingAction)
}

// Options tunes the Recorder.
type Options struct {
	// RequireLocation rejects punches whose location cannot be verified
	// against a configured site. When false they are accepted with a warning.
	RequireLocation bool
}

// Recorder is the entry point for producers.
type Recorder struct {
	store     Appender
	submitter submit.Submitter
	conn      Reachability
	opts      Options
	listener  QueueListener
	now       func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(store Appender, submitter submit.Submitter, conn Reachability, opts Options) *Recorder {
	return &Recorder{
		store:     store,
		submitter: submitter,
		conn:      conn,
		opts:      opts,
		now:       time.Now,
	}
}

// SetListener sets the queue listener.
func (r *Recorder) SetListener(l QueueListener) {
	r.listener = l
}

// GeofenceStatus describes how the location check of a punch went.
type GeofenceStatus string

const (
	GeofenceAdmitted      GeofenceStatus = "admitted"
	GeofenceRejected      GeofenceStatus = "rejected"
	GeofenceIndeterminate GeofenceStatus = "indeterminate"
	GeofenceNotConfigured GeofenceStatus = "not_configured"
	GeofenceNotApplicable GeofenceStatus = "not_applicable"
)

// Receipt reports what happened to a recorded action.
type Receipt struct {
	ActionID       string           `json:"action_id"`
	Delivered      bool             `json:"delivered"`
	Queued         bool             `json:"queued"`
	GeofenceStatus GeofenceStatus   `json:"geofence_status"`
	Geofence       *geofence.Result `json:"geofence,omitempty"`
}

// Enqueue records a generic action of the given category.
func (r *Recorder) Enqueue(ctx context.Context, category models.Category, target models.Target, payload interface{}) (Receipt, error) {
	action, err := queue.NewAction(category, target, payload)
	if err != nil {
		return Receipt{}, err
	}
	receipt, err := r.deliver(ctx, action)
	receipt.GeofenceStatus = GeofenceNotApplicable
	return receipt, err
}

// deliver tries a direct submission when reachable and falls back to the
// queue. A permanent rejection is returned to the caller instead of being
// queued, since no retry could make it succeed.
func (r *Recorder) deliver(ctx context.Context, action models.PendingAction) (Receipt, error) {
	receipt := Receipt{ActionID: action.ID}

	if r.conn != nil && r.conn.IsReachable() && r.submitter != nil {
		err := r.submitter.Submit(ctx, action.Target, action.Payload)
		if err == nil {
			receipt.Delivered = true
			logging.Info("Action delivered", map[string]interface{}{
				"action_id": action.ID,
				"target":    action.Target.String(),
			})
			return receipt, nil
		}
		if submit.IsPermanent(err) {
			return receipt, err
		}
		logging.Warn("Direct delivery failed, queueing", map[string]interface{}{
			"action_id": action.ID,
			"error":     err.Error(),
		})
	}

	if err := r.store.Append(ctx, action); err != nil {
		return receipt, err
	}
	receipt.Queued = true
	if r.listener != nil {
		r.listener.ActionQueued(action)
	}
	return receipt, nil
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// encode marshals body into a RawMessage for NewAction.
func encode(body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode payload", err)
	}
	return data, nil
}

func signEndpoint(documentID string) string {
	return fmt.Sprintf(signEndpointTemplate, documentID)
}
