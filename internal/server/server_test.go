package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/actions"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/connectivity"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/db"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/submit"
	syncengine "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

// =====================================================
// Test Helpers
// =====================================================

type fixture struct {
	srv     *httptest.Server
	store   *queue.Store
	monitor *connectivity.Monitor
	engine  *syncengine.Engine
	hub     *Hub

	mu   sync.Mutex
	fail bool
	sent []string
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	f := &fixture{
		store:   queue.NewStore(database.DB),
		monitor: connectivity.NewMonitor(context.Background(), connectivity.SourceFunc(func(context.Context) bool { return online })),
		hub:     NewHub(),
	}
	t.Cleanup(f.hub.Close)

	sub := submit.Func(func(_ context.Context, target models.Target, _ json.RawMessage) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sent = append(f.sent, target.String())
		if f.fail {
			return assert.AnError
		}
		return nil
	})

	f.engine = syncengine.NewEngine(f.store, sub, f.monitor, 3)
	f.engine.SetListener(f.hub)
	recorder := actions.NewRecorder(f.store, sub, f.monitor, actions.Options{})
	recorder.SetListener(f.hub)
	f.monitor.OnChange(f.hub.ConnectivityChanged)

	f.srv = httptest.NewServer(New(Deps{
		Queue:        f.store,
		Engine:       f.engine,
		Connectivity: f.monitor,
		Recorder:     recorder,
		Hub:          f.hub,
	}).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (f *fixture) enqueue(t *testing.T, endpoint string) models.PendingAction {
	t.Helper()
	a, err := queue.NewAction(models.CategoryOther, models.Target{Endpoint: endpoint}, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Append(context.Background(), a))
	return a
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// =====================================================
// REST
// =====================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["ws_clients"])

	dial(t, f)
	_, body = f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, float64(1), body["ws_clients"])
}

func TestQueueEndpoints(t *testing.T) {
	f := newFixture(t, false)
	a := f.enqueue(t, "/api/a")
	f.enqueue(t, "/api/b")

	resp, body := f.do(t, http.MethodGet, "/api/queue", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["pending"])
	items := body["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].(map[string]interface{})["id"])

	require.NoError(t, f.store.Abandon(context.Background(), a, "rejected"))

	_, body = f.do(t, http.MethodGet, "/api/queue/failed", "")
	assert.Equal(t, float64(1), body["count"])

	resp, _ = f.do(t, http.MethodDelete, "/api/queue/failed", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/api/queue/failed", "")
	assert.Equal(t, float64(0), body["count"])
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t, true)
	f.enqueue(t, "/api/a")

	resp, body := f.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["reachable"])
	assert.Equal(t, map[string]interface{}{"succeeded": float64(1), "failed": float64(0), "deferred": float64(0)}, body["summary"])

	_, body = f.do(t, http.MethodGet, "/api/sync/status", "")
	assert.NotNil(t, body["last_drain_at"])
}

func TestTriggerSync_offline(t *testing.T) {
	f := newFixture(t, false)
	f.enqueue(t, "/api/a")

	_, body := f.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, false, body["reachable"])
	assert.Equal(t, map[string]interface{}{"succeeded": float64(0), "failed": float64(0), "deferred": float64(0)}, body["summary"])
}

func TestConnectivityEndpoints(t *testing.T) {
	f := newFixture(t, false)

	_, body := f.do(t, http.MethodGet, "/api/connectivity", "")
	assert.Equal(t, false, body["reachable"])

	resp, body := f.do(t, http.MethodPost, "/api/connectivity", `{"reachable": true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["reachable"])
	assert.True(t, f.monitor.IsReachable())

	resp, body = f.do(t, http.MethodPost, "/api/connectivity", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]interface{})["code"])
}

func TestRecordPunchEndpoint(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.do(t, http.MethodPost, "/api/punch", `{"funcionarioId": 7, "tipo": "entrada"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["queued"])

	resp, body = f.do(t, http.MethodPost, "/api/punch", `{
		"funcionarioId": 7,
		"tipo": "saida",
		"localizacao": {"latitude": -23.0, "longitude": -46.6},
		"obra": {"id": "1", "name": "Obra", "latitude": -23.5, "longitude": -46.6, "radius_meters": 500}
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "OUTSIDE_PERIMETER", body["error"].(map[string]interface{})["code"])

	resp, _ = f.do(t, http.MethodPost, "/api/punch", `{"funcionarioId": 7, "tipo": "nap"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	n, err := f.store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSignDocumentEndpoint(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.do(t, http.MethodPost, "/api/documents/42/sign", `{"assinatura": "base64sig"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["delivered"])

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"PUT /api/documentos/42/assinar"}, f.sent)
}

func TestEnqueueActionEndpoint(t *testing.T) {
	t.Run("queued while offline", func(t *testing.T) {
		f := newFixture(t, false)

		resp, body := f.do(t, http.MethodPost, "/api/actions", `{
			"target": {"endpoint": "/api/checklists/5", "method": "put"},
			"payload": {"itens": [1, 2]}
		}`)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, true, body["queued"])
		assert.Equal(t, "not_applicable", body["geofence_status"])

		pending, err := f.store.List(context.Background())
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, body["action_id"], pending[0].ID)
		assert.Equal(t, models.CategoryOther, pending[0].Category)
		assert.Equal(t, models.Target{Endpoint: "/api/checklists/5", Method: "PUT"}, pending[0].Target)
		assert.JSONEq(t, `{"itens": [1, 2]}`, string(pending[0].Payload))
	})

	t.Run("delivered while online", func(t *testing.T) {
		f := newFixture(t, true)

		resp, body := f.do(t, http.MethodPost, "/api/actions", `{"category": "other", "target": {"endpoint": "/api/checklists"}}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, true, body["delivered"])

		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, []string{"POST /api/checklists"}, f.sent)
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t, false)

		for _, payload := range []string{
			`{"category": "payroll", "target": {"endpoint": "/api/x"}}`,
			`{"target": {"method": "POST"}}`,
			`{"target": `,
		} {
			resp, body := f.do(t, http.MethodPost, "/api/actions", payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
			assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]interface{})["code"], payload)
		}

		n, err := f.store.Len(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// =====================================================
// WebSocket
// =====================================================

func TestWebSocket_syncEvents(t *testing.T) {
	f := newFixture(t, true)
	conn := dial(t, f)
	f.enqueue(t, "/api/a")

	f.do(t, http.MethodPost, "/api/sync", "")

	started := readEnvelope(t, conn)
	assert.Equal(t, EventSyncStarted, started.Type)
	assert.Equal(t, float64(1), started.Data["pending"])

	completed := readEnvelope(t, conn)
	assert.Equal(t, EventSyncCompleted, completed.Type)
	assert.Equal(t, float64(1), completed.Data["succeeded"])
}

func TestWebSocket_abandonEvent(t *testing.T) {
	f := newFixture(t, true)
	f.fail = true
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"events": []string{EventActionAbandoned},
	}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribe_ack", ack["action"])

	a := f.enqueue(t, "/api/a")
	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/api/sync", "")
	}

	env := readEnvelope(t, conn)
	assert.Equal(t, EventActionAbandoned, env.Type)
	assert.Equal(t, a.ID, env.Data["action_id"])
	assert.Equal(t, float64(3), env.Data["attempts"])
}

func TestWebSocket_connectivityAndQueued(t *testing.T) {
	f := newFixture(t, false)
	conn := dial(t, f)

	f.do(t, http.MethodPost, "/api/punch", `{"funcionarioId": 7, "tipo": "entrada"}`)
	queued := readEnvelope(t, conn)
	assert.Equal(t, EventActionQueued, queued.Type)
	assert.Equal(t, "punch", queued.Data["category"])

	f.do(t, http.MethodPost, "/api/connectivity", `{"reachable": true}`)
	changed := readEnvelope(t, conn)
	assert.Equal(t, EventConnectivityChanged, changed.Type)
	assert.Equal(t, true, changed.Data["reachable"])
}

func TestWebSocket_ping(t *testing.T) {
	f := newFixture(t, true)
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var pong map[string]interface{}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["action"])
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8090", true},
		{"http://[::1]:8090", true},
		{"https://evil.example.com", false},
		{"http://192.168.0.10", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, localOrigin(r), tt.origin)
	}
}
