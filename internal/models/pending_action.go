// Package models provides data model definitions for the offline action queue.
package models

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
)

// Category tags the kind of a pending action. It is informational only and
// never affects ordering.
type Category string

const (
	CategoryPunch             Category = "punch"
	CategoryDocumentSignature Category = "document_signature"
	CategoryOther             Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPunch, CategoryDocumentSignature, CategoryOther:
		return true
	}
	return false
}

// ParseCategory converts user input into a Category. An empty string means
// CategoryOther.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryOther, nil
	}
	if !c.Valid() {
		return "", apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

// Target is the logical remote operation: an endpoint path plus HTTP method.
type Target struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

// Normalize fills the default method (POST) and upper-cases it.
func (t Target) Normalize() Target {
	t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
	if t.Method == "" {
		t.Method = http.MethodPost
	}
	return t
}

// String renders the target as "METHOD endpoint".
func (t Target) String() string {
	n := t.Normalize()
	return n.Method + " " + n.Endpoint
}

// PendingAction is a unit of deferred work awaiting delivery.
type PendingAction struct {
	ID         string          `json:"id"`
	Category   Category        `json:"category"`
	Target     Target          `json:"target"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt int64           `json:"enqueued_at"` // unix milliseconds
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
}

// FailedAction is a PendingAction that was abandoned after exhausting its
// delivery budget or being rejected outright by the server.
type FailedAction struct {
	PendingAction
	AbandonedAt int64  `json:"abandoned_at"` // unix milliseconds
	Reason      string `json:"reason"`
}
