// Package queue provides the durable store for actions recorded while the
// device cannot reach the server.
//
// Entries live in the pending_actions table, keyed by action id, with the
// serialized action as value. An autoincrement sequence column keeps
// insertion order, so List always returns oldest first.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/uuid"
)

// Store persists pending actions. It is safe for concurrent use; the
// underlying connection pool is limited to a single SQLite connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Stats summarizes queue contents for the host application.
type Stats struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// NewStore creates a Store over an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// NewAction builds a PendingAction with a fresh time-ordered id. payload is
// marshaled to JSON unless it already is a json.RawMessage.
func NewAction(category models.Category, target models.Target, payload interface{}) (models.PendingAction, error) {
	if !category.Valid() {
		return models.PendingAction{}, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown category %q", category))
	}
	if target.Endpoint == "" {
		return models.PendingAction{}, apperrors.New(apperrors.ErrInvalid, "target endpoint is required")
	}

	var body json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		body = p
	case []byte:
		body = json.RawMessage(p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return models.PendingAction{}, apperrors.Wrap(apperrors.ErrInvalid, "payload is not JSON-serializable", err)
		}
		body = data
	}
	if len(body) > 0 && !json.Valid(body) {
		return models.PendingAction{}, apperrors.New(apperrors.ErrInvalid, "payload is not valid JSON")
	}

	return models.PendingAction{
		ID:         uuid.New(),
		Category:   category,
		Target:     target.Normalize(),
		Payload:    body,
		EnqueuedAt: time.Now().UnixMilli(),
	}, nil
}

func validate(action models.PendingAction) error {
	if action.ID == "" {
		return apperrors.New(apperrors.ErrInvalid, "action id is required")
	}
	if err := uuid.Validate(action.ID); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "action id must come from NewAction", err)
	}
	if !action.Category.Valid() {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown category %q", action.Category))
	}
	if action.Target.Endpoint == "" {
		return apperrors.New(apperrors.ErrInvalid, "target endpoint is required")
	}
	return nil
}

// Append persists action at the tail of the queue. Appending an id that is
// already stored replaces its value and keeps its position.
func (s *Store) Append(ctx context.Context, action models.PendingAction) error {
	if err := validate(action); err != nil {
		return err
	}

	value, err := json.Marshal(action)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to encode action", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, value) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value
	`, action.ID, string(value))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to persist action %s", action.ID), err)
	}

	logging.Debug("Action enqueued", map[string]interface{}{
		"action_id": action.ID,
		"category":  string(action.Category),
		"target":    action.Target.String(),
	})
	return nil
}

// List returns a snapshot of every pending action in insertion order.
func (s *Store) List(ctx context.Context) ([]models.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, value FROM pending_actions ORDER BY seq ASC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to list pending actions", err)
	}
	defer rows.Close()

	actions := make([]models.PendingAction, 0)
	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to scan pending action", err)
		}
		action, err := decode(id, value)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to list pending actions", err)
	}
	return actions, nil
}

func decode(id, value string) (models.PendingAction, error) {
	var action models.PendingAction
	if err := json.Unmarshal([]byte(value), &action); err != nil {
		return models.PendingAction{}, apperrors.Wrap(apperrors.ErrQueueCorrupt, fmt.Sprintf("action %s cannot be decoded", id), err)
	}
	// the key is authoritative
	action.ID = id
	return action, nil
}

// Remove deletes the action with the given id. Removing an unknown id is a
// no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to remove action %s", id), err)
	}
	return nil
}

// Update applies mutate to the stored action inside a transaction. The id
// cannot be changed by mutate. Updating an unknown id is a no-op and mutate
// is not called.
func (s *Store) Update(ctx context.Context, id string, mutate func(*models.PendingAction)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to begin update", err)
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx, `SELECT value FROM pending_actions WHERE id = ?`, id).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueueRead, fmt.Sprintf("failed to read action %s", id), err)
	}

	action, err := decode(id, value)
	if err != nil {
		return err
	}
	mutate(&action)
	action.ID = id

	data, err := json.Marshal(action)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to encode action", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pending_actions SET value = ? WHERE id = ?`, string(data), id); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to update action %s", id), err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to commit update of action %s", id), err)
	}
	return nil
}

// Len returns the number of pending actions.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrQueueRead, "failed to count pending actions", err)
	}
	return n, nil
}

// Clear removes every pending action. Used for administrative resets such
// as logout; the dead-letter log is kept.
func (s *Store) Clear(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to clear queue", err)
	}
	n, _ := res.RowsAffected()
	logging.Info("Queue cleared", map[string]interface{}{"removed": n})
	return nil
}

// Abandon removes action from the queue and records it in the dead-letter
// log in one transaction, so an abandoned action is never silently lost.
func (s *Store) Abandon(ctx context.Context, action models.PendingAction, reason string) error {
	value, err := json.Marshal(action)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to encode action", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to begin abandon", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO failed_actions (id, value, abandoned_at, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value, abandoned_at = excluded.abandoned_at, reason = excluded.reason
	`, action.ID, string(value), s.now().UnixMilli(), reason); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to record abandoned action %s", action.ID), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, action.ID); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to remove action %s", action.ID), err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, fmt.Sprintf("failed to commit abandon of action %s", action.ID), err)
	}

	logging.Warn("Action abandoned", map[string]interface{}{
		"action_id": action.ID,
		"category":  string(action.Category),
		"attempts":  action.Attempts,
		"reason":    reason,
	})
	return nil
}

// Failed returns the dead-letter log, oldest first.
func (s *Store) Failed(ctx context.Context) ([]models.FailedAction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, value, abandoned_at, reason FROM failed_actions ORDER BY seq ASC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to list failed actions", err)
	}
	defer rows.Close()

	failed := make([]models.FailedAction, 0)
	for rows.Next() {
		var (
			id, value, reason string
			abandonedAt       int64
		)
		if err := rows.Scan(&id, &value, &abandonedAt, &reason); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to scan failed action", err)
		}
		action, err := decode(id, value)
		if err != nil {
			return nil, err
		}
		failed = append(failed, models.FailedAction{
			PendingAction: action,
			AbandonedAt:   abandonedAt,
			Reason:        reason,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to list failed actions", err)
	}
	return failed, nil
}

// ClearFailed empties the dead-letter log once the operator acknowledged it.
func (s *Store) ClearFailed(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failed_actions`); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to clear failed actions", err)
	}
	return nil
}

// Stats returns the pending and failed counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM pending_actions), (SELECT COUNT(*) FROM failed_actions)
	`).Scan(&st.Pending, &st.Failed)
	if err != nil {
		return Stats{}, apperrors.Wrap(apperrors.ErrQueueRead, "failed to read queue stats", err)
	}
	return st, nil
}
