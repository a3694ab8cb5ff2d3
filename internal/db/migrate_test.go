// Package db tests for schema migrations.
package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	raw, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })
	return raw
}

func TestMigrator_embedded(t *testing.T) {
	raw := openRaw(t)

	m, err := NewEmbeddedMigrator(raw)
	require.NoError(t, err)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "pending_actions", applied[0].Description)
	assert.Equal(t, "failed_actions", applied[1].Description)
	assert.Len(t, applied[0].Checksum, 64)

	// second Up is a no-op
	require.NoError(t, m.Up())
}

func TestMigrator_orderAndSkip(t *testing.T) {
	raw := openRaw(t)
	fsys := fstest.MapFS{
		"V10__later.up.sql":   {Data: []byte("CREATE TABLE later (id INTEGER);")},
		"V2__second.up.sql":   {Data: []byte("CREATE TABLE second (id INTEGER);")},
		"V2__second.down.sql": {Data: []byte("DROP TABLE second;")},
		"README.md":           {Data: []byte("ignored")},
		"Vx__bad.up.sql":      {Data: []byte("ignored")},
	}

	m := NewMigrator(raw, fsys)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, 2, applied[0].Version)
	assert.Equal(t, 10, applied[1].Version)
}

func TestMigrator_Down(t *testing.T) {
	raw := openRaw(t)
	fsys := fstest.MapFS{
		"V1__first.up.sql":   {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"V1__first.down.sql": {Data: []byte("DROP TABLE first;")},
	}

	m := NewMigrator(raw, fsys)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())
	require.NoError(t, m.Down())

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	assert.Error(t, m.Down(), "nothing left to roll back")
}

func TestMigrator_failedMigrationRollsBack(t *testing.T) {
	raw := openRaw(t)
	fsys := fstest.MapFS{
		"V1__broken.up.sql": {Data: []byte("CREATE TABLE oops (")},
	}

	m := NewMigrator(raw, fsys)
	require.NoError(t, m.Initialize())
	require.Error(t, m.Up())

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}
