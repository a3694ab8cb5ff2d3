// Package server exposes the agent's local status API and event stream to
// the host application on the loopback interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/actions"
	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/geofence"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	syncengine "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

// Queue is the store view the API reads.
type Queue interface {
	List(ctx context.Context) ([]models.PendingAction, error)
	Failed(ctx context.Context) ([]models.FailedAction, error)
	ClearFailed(ctx context.Context) error
	Stats(ctx context.Context) (queue.Stats, error)
}

// Engine is the engine view the API drives.
type Engine interface {
	DrainOnce(ctx context.Context) syncengine.Summary
	Status() syncengine.Status
}

// Connectivity is the monitor view the API reads and pushes to.
type Connectivity interface {
	IsReachable() bool
	Set(reachable bool)
}

// Recorder accepts new actions from the host application.
type Recorder interface {
	RecordPunch(ctx context.Context, req actions.PunchRequest) (actions.Receipt, error)
	SignDocument(ctx context.Context, documentID, signature string) (actions.Receipt, error)
	Enqueue(ctx context.Context, category models.Category, target models.Target, payload interface{}) (actions.Receipt, error)
}

// Deps wires the server to the agent.
type Deps struct {
	Queue        Queue
	Engine       Engine
	Connectivity Connectivity
	Recorder     Recorder
	Hub          *Hub
}

// Server is the local HTTP API.
type Server struct {
	deps   Deps
	router chi.Router
}

// New creates a Server and registers its routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.health)
	s.router.Route("/api/queue", func(r chi.Router) {
		r.Get("/", s.listQueue)
		r.Get("/failed", s.listFailed)
		r.Delete("/failed", s.clearFailed)
	})
	s.router.Post("/api/sync", s.triggerSync)
	s.router.Get("/api/sync/status", s.syncStatus)
	s.router.Get("/api/connectivity", s.getConnectivity)
	s.router.Post("/api/connectivity", s.setConnectivity)
	s.router.Post("/api/punch", s.recordPunch)
	s.router.Post("/api/documents/{id}/sign", s.signDocument)
	s.router.Post("/api/actions", s.enqueueAction)
	if deps.Hub != nil {
		s.router.Get("/ws", deps.Hub.ServeWS)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Status server listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

// =====================================================
// Responses
// =====================================================

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrOutsidePerimeter, apperrors.ErrLocationRequired, apperrors.ErrSubmitRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", err, nil)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": err.Error(),
		},
	})
}

// =====================================================
// Handlers
// =====================================================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.deps.Hub != nil {
		clients = s.deps.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"service":    "fieldsync",
		"ws_clients": clients,
	})
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Queue.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.deps.Queue.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": stats.Pending,
		"failed":  stats.Failed,
		"items":   items,
	})
}

func (s *Server) listFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := s.deps.Queue.Failed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(failed),
		"items": failed,
	})
}

func (s *Server) clearFailed(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Queue.ClearFailed(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	reachable := s.deps.Connectivity.IsReachable()
	summary := s.deps.Engine.DrainOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reachable": reachable,
		"summary":   summary,
	})
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Status())
}

func (s *Server) getConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reachable": s.deps.Connectivity.IsReachable(),
	})
}

func (s *Server) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reachable *bool `json:"reachable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reachable == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, `body must be {"reachable": true|false}`))
		return
	}
	s.deps.Connectivity.Set(*body.Reachable)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reachable": s.deps.Connectivity.IsReachable(),
	})
}

type punchRequest struct {
	EmployeeID int64              `json:"funcionarioId"`
	Kind       string             `json:"tipo"`
	Location   *geofence.GeoPoint `json:"localizacao"`
	Site       *geofence.Site     `json:"obra"`
}

func (s *Server) recordPunch(w http.ResponseWriter, r *http.Request) {
	var body punchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed punch body", err))
		return
	}
	kind, err := actions.ParsePunchKind(body.Kind)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.deps.Recorder.RecordPunch(r.Context(), actions.PunchRequest{
		EmployeeID: body.EmployeeID,
		Kind:       kind,
		Location:   body.Location,
		Site:       body.Site,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, receiptStatus(receipt), receipt)
}

func (s *Server) signDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Signature string `json:"assinatura"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed signature body", err))
		return
	}

	receipt, err := s.deps.Recorder.SignDocument(r.Context(), chi.URLParam(r, "id"), body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, receiptStatus(receipt), receipt)
}

type actionRequest struct {
	Category string          `json:"category"`
	Target   models.Target   `json:"target"`
	Payload  json.RawMessage `json:"payload"`
}

func (s *Server) enqueueAction(w http.ResponseWriter, r *http.Request) {
	var body actionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed action body", err))
		return
	}
	category, err := models.ParseCategory(body.Category)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.deps.Recorder.Enqueue(r.Context(), category, body.Target, body.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, receiptStatus(receipt), receipt)
}

// receiptStatus is 201 for a delivered action and 202 for a queued one.
func receiptStatus(receipt actions.Receipt) int {
	if receipt.Delivered {
		return http.StatusCreated
	}
	return http.StatusAccepted
}
