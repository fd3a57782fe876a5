package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"AI_PROCESSING_MODE", "AI_WORKER_HOST", "AI_WORKER_TIMEOUT", "SEGMENT_EVENT_SOURCE", "FILE_WATCHER_POLL_INTERVAL"} {
		t.Setenv(key, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, cfg.ProcessingMode)
	assert.Equal(t, 30*time.Second, cfg.WorkerTimeout)
	assert.Equal(t, SourceFileWatcher, cfg.EventSource)
}

func TestFromEnvRejectsUnknownMode(t *testing.T) {
	t.Setenv("AI_PROCESSING_MODE", "telepathic")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvParsesDurations(t *testing.T) {
	t.Setenv("AI_WORKER_TIMEOUT", "45s")
	t.Setenv("FILE_WATCHER_POLL_INTERVAL", "500ms")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.WorkerTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
}

func TestFileCatalogLoadsProvidersAndBrands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - id: p1
    name: local object detector
    provider_type: local_object_detector
    capabilities: [object_detection]
    active: true
brands:
  - id: b1
    name: Acme
    active: true
`), 0o644))

	cat, err := NewFileCatalog(path)
	require.NoError(t, err)

	providers, err := cat.Providers()
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "p1", providers[0].ID)

	brands, err := cat.Brands()
	require.NoError(t, err)
	require.Len(t, brands, 1)
}

func TestFileCatalogRejectsMissingFile(t *testing.T) {
	_, err := NewFileCatalog("/no/such/catalog.yaml")
	assert.Error(t, err)
}

type countingReloader struct{ n int }

func (c *countingReloader) Reload() error { c.n++; return nil }

func TestFileCatalogWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: []\nbrands: []\n"), 0o644))

	cat, err := NewFileCatalog(path)
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	reloader := &countingReloader{}
	require.NoError(t, cat.Watch(stop, reloader, nil))

	require.NoError(t, os.WriteFile(path, []byte("providers: []\nbrands:\n  - id: b1\n    name: Acme\n    active: true\n"), 0o644))

	assert.Eventually(t, func() bool {
		return reloader.n >= 1
	}, 2*time.Second, 20*time.Millisecond)

	brands, err := cat.Brands()
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}
