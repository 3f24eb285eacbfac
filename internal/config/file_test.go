package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, path, project string) {
	t.Helper()
	data, err := os.ReadFile("testdata/registry.json")
	require.NoError(t, err)
	out := strings.Replace(string(data), `"driver_ranking"`, `"`+project+`"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))
}

func TestFileManager_ZeroTtlNeverReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeRegistry(t, path, "v1")

	m, err := NewFileManager(path, 0)
	require.NoError(t, err)
	now := time.Now()
	m.now = func() time.Time { return now }

	writeRegistry(t, path, "v2")
	now = now.Add(24 * time.Hour)

	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "v1", s.Project())
}

func TestFileManager_ReloadsAfterTtl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeRegistry(t, path, "v1")

	m, err := NewFileManager(path, 60)
	require.NoError(t, err)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.loadedAt = now

	reloads := 0
	m.RegisterWatchCallback(func() error {
		reloads++
		return nil
	})

	writeRegistry(t, path, "v2")
	now = now.Add(30 * time.Second)
	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "v1", s.Project())

	now = now.Add(31 * time.Second)
	s, err = m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "v2", s.Project())
	assert.Equal(t, 1, reloads)
}

func TestFileManager_KeepsPreviousOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	writeRegistry(t, path, "v1")

	m, err := NewFileManager(path, 1)
	require.NoError(t, err)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.loadedAt = now

	require.NoError(t, os.WriteFile(path, []byte(`{"feature-views": {"x": {"store-id": "missing"}}}`), 0o600))
	now = now.Add(2 * time.Second)

	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "v1", s.Project())

	stores, err := m.GetStores()
	require.NoError(t, err)
	assert.Contains(t, stores, "1")
	assert.Equal(t, map[string]string{"ranker": "secret"}, m.GetAllRegisteredClients())
}

func TestNewFileManager_MissingFile(t *testing.T) {
	_, err := NewFileManager(filepath.Join(t.TempDir(), "absent.json"), 0)
	assert.Error(t, err)
}
