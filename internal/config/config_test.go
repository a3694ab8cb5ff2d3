package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3001", c.APIURL)
	assert.Equal(t, "http://localhost:3001/health", c.ProbeURL)
	assert.Equal(t, 5*time.Minute, c.SyncInterval)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, 30*time.Second, c.SubmitTimeout)
	assert.Equal(t, 30*time.Second, c.ProbeInterval)
	assert.Equal(t, "127.0.0.1:8090", c.ListenAddr)
	assert.Equal(t, logging.LevelInfo, c.Level())
	assert.False(t, c.RequireLocation)
	assert.False(t, c.HostConnectivity)
	assert.NotEmpty(t, c.DataDir)
}

func TestLoad_file(t *testing.T) {
	path := writeFile(t, `
data_dir: /var/lib/fieldsync
api_url: https://api.example.com/
sync_interval: 90s
max_attempts: 5
require_location: true
log_level: debug
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/fieldsync", c.DataDir)
	assert.Equal(t, "https://api.example.com", c.APIURL)
	assert.Equal(t, "https://api.example.com/health", c.ProbeURL)
	assert.Equal(t, 90*time.Second, c.SyncInterval)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.True(t, c.RequireLocation)
	assert.Equal(t, logging.LevelDebug, c.Level())
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, c.SubmitTimeout)
}

func TestLoad_envOverridesFile(t *testing.T) {
	path := writeFile(t, "max_attempts: 5\nsync_interval: 90s\n")
	t.Setenv("FIELDSYNC_MAX_ATTEMPTS", "7")
	t.Setenv("FIELDSYNC_PROBE_URL", "http://probe.local/ping")
	t.Setenv("FIELDSYNC_TOKEN", "secret")
	t.Setenv("FIELDSYNC_HOST_CONNECTIVITY", "true")

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.HostConnectivity)
	assert.Equal(t, 7, c.MaxAttempts)
	assert.Equal(t, 90*time.Second, c.SyncInterval)
	assert.Equal(t, "http://probe.local/ping", c.ProbeURL)
	assert.Equal(t, "secret", c.Token)
}

func TestLoad_emptyFile(t *testing.T) {
	c, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 3, c.MaxAttempts)
}

func TestLoad_errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown key", file: "retries: 3\n"},
		{name: "bad duration", file: "sync_interval: soon\n"},
		{name: "zero attempts", env: map[string]string{"FIELDSYNC_MAX_ATTEMPTS": "0"}},
		{name: "bad env int", env: map[string]string{"FIELDSYNC_MAX_ATTEMPTS": "three"}},
		{name: "negative interval", env: map[string]string{"FIELDSYNC_SYNC_INTERVAL": "-1m"}},
		{name: "relative api url", env: map[string]string{"FIELDSYNC_API_URL": "localhost:3001"}},
		{name: "bad log level", env: map[string]string{"FIELDSYNC_LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}
