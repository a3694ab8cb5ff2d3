package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/actions"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/config"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/submit"
)

// fakeAPI stands in for the remote backend. While down it answers 503 to
// everything, which the probe treats as unreachable.
type fakeAPI struct {
	*httptest.Server
	up atomic.Bool

	mu       sync.Mutex
	received []map[string]interface{}
	auth     []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	api := &fakeAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)

		api.mu.Lock()
		api.received = append(api.received, payload)
		api.auth = append(api.auth, r.Header.Get("Authorization"))
		api.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.received)
}

func testConfig(t *testing.T, apiURL string) config.Config {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.APIURL = apiURL
	cfg.ProbeURL = apiURL + "/health"
	cfg.Token = "device-token"
	cfg.ProbeInterval = 20 * time.Millisecond
	cfg.SyncInterval = time.Hour
	cfg.SubmitTimeout = time.Second
	cfg.ListenAddr = ""
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestAgent_offlineThenReconnect(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api.URL)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	require.False(t, a.Monitor.IsReachable())

	receipt, err := a.Recorder.RecordPunch(context.Background(), actions.PunchRequest{EmployeeID: 7, Kind: actions.PunchIn})
	require.NoError(t, err)
	assert.True(t, receipt.Queued)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	api.up.Store(true)

	require.Eventually(t, func() bool {
		n, err := a.Store.Len(context.Background())
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, api.count())
	api.mu.Lock()
	assert.Equal(t, "Bearer device-token", api.auth[0])
	assert.Equal(t, float64(7), api.received[0]["funcionarioId"])
	assert.Equal(t, "entrada", api.received[0]["tipo"])
	api.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, a.Engine.Status().Running)
}

func TestAgent_queueSurvivesRestart(t *testing.T) {
	api := newFakeAPI(t)
	cfg := testConfig(t, api.URL)

	first, err := New(context.Background(), cfg)
	require.NoError(t, err)
	_, err = first.Recorder.SignDocument(context.Background(), "5", "sig")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	api.up.Store(true)

	second, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer second.Close()
	require.True(t, second.Monitor.IsReachable())

	summary := second.Engine.DrainOnce(context.Background())
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, api.count())
}

func TestAgent_connectivitySource(t *testing.T) {
	// runAgent starts a and returns a func stopping it, to be deferred
	// after Close so it runs first
	runAgent := func(a *Agent) func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.Run(ctx) }()
		return func() {
			cancel()
			<-done
		}
	}

	t.Run("probe overrides pushed state", func(t *testing.T) {
		api := newFakeAPI(t)
		api.up.Store(true)
		cfg := testConfig(t, api.URL)

		a, err := New(context.Background(), cfg)
		require.NoError(t, err)
		defer a.Close()
		defer runAgent(a)()

		a.Monitor.Set(false)
		require.Eventually(t, a.Monitor.IsReachable, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("host signal is kept", func(t *testing.T) {
		api := newFakeAPI(t)
		api.up.Store(true)
		cfg := testConfig(t, api.URL)
		cfg.HostConnectivity = true

		a, err := New(context.Background(), cfg)
		require.NoError(t, err)
		defer a.Close()
		require.True(t, a.Monitor.IsReachable(), "initial state comes from one probe")
		defer runAgent(a)()

		a.Monitor.Set(false)
		// ten probe intervals
		time.Sleep(10 * cfg.ProbeInterval)
		assert.False(t, a.Monitor.IsReachable())

		_, err = a.Recorder.SignDocument(context.Background(), "8", "sig")
		require.NoError(t, err)
		assert.Zero(t, api.count())

		a.Monitor.Set(true)
		require.Eventually(t, func() bool { return api.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	})
}

func TestTokens(t *testing.T) {
	cfg := config.Default()
	cfg.Token = "inline"
	assert.Equal(t, submit.StaticToken("inline"), Tokens(cfg))

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
	cfg.TokenFile = path
	token, err := Tokens(cfg).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)
}
