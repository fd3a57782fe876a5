package eventsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/internal/queue"
	"streamvision/internal/streamctl"
)

func TestParseSegmentStreamKey(t *testing.T) {
	cases := []struct {
		name      string
		wantKey   string
		wantOK    bool
	}{
		{"abc-0042.ts", "abc", true},
		{"my-stream-key-0001.ts", "my-stream-key", true},
		{"noextension", "", false},
		{"abc.ts", "", false},
	}
	for _, c := range cases {
		key, ok := parseSegmentStreamKey(c.name)
		assert.Equal(t, c.wantOK, ok, c.name)
		if ok {
			assert.Equal(t, c.wantKey, key, c.name)
		}
	}
}

func TestDirWatcherEmitsNewSegments(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	streams := streamctl.New()
	_, err := streams.Activate("abc")
	require.NoError(t, err)

	w := NewDirWatcher(DirWatcherConfig{Directory: dir, PollInterval: 10 * time.Millisecond}, q, streams, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc-0001.ts"), []byte("segment"), 0o644))

	assert.Eventually(t, func() bool { return q.Length() == 1 }, time.Second, 5*time.Millisecond)

	evt, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "abc", evt.StreamKey)
	assert.NotEmpty(t, evt.SessionID)
}

func TestDirWatcherSkipsUnparseableNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-segment"), []byte("x"), 0o644))

	q := queue.New()
	w := NewDirWatcher(DirWatcherConfig{Directory: dir, PollInterval: 10 * time.Millisecond, SegmentExt: ""}, q, nil, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Length())
}

func TestDirWatcherScansExistingFilesOnStartup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc-0099.ts"), []byte("x"), 0o644))

	q := queue.New()
	w := NewDirWatcher(DirWatcherConfig{Directory: dir, PollInterval: time.Hour}, q, nil, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Eventually(t, func() bool { return q.Length() == 1 }, time.Second, 5*time.Millisecond)
}
