package eventsource

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"streamvision/internal/queue"
	"streamvision/internal/streamctl"
	"streamvision/pkg/models"
)

// segmentNameRE matches "<stream_key>-<sequence>.<ext>", extracting the
// stream_key as everything before the final "-<number>" and the
// extension. This is the only place the core trusts filename structure;
// downstream code uses stream_key from the event, never the path.
var segmentNameRE = regexp.MustCompile(`^(.+)-(\d+)\.([A-Za-z0-9]+)$`)

// DirWatcherConfig configures the directory watcher backend.
type DirWatcherConfig struct {
	Directory    string
	SegmentExt   string // e.g. "ts"
	PollInterval time.Duration // default 1s
}

// DirWatcher polls a directory at a fixed interval for new segment
// files, tracking already-emitted paths so it never double-emits a file
// it has already seen in this process lifetime. Files that predate
// startup are scanned once on startup and emitted, matching the spec's
// crash-recovery story for the event source itself.
type DirWatcher struct {
	emitter

	cfg     DirWatcherConfig
	streams *streamctl.Controller

	mu      sync.Mutex
	emitted map[string]struct{}
	running bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDirWatcher constructs a directory watcher backend. q is the event
// queue events are enqueued onto; streams supplies the session_id of the
// currently active stream for each emitted event.
func NewDirWatcher(cfg DirWatcherConfig, q queue.EventQueue, streams *streamctl.Controller, logger *slog.Logger) *DirWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SegmentExt == "" {
		cfg.SegmentExt = "ts"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirWatcher{
		emitter: emitter{q: q, name: string(KindFileWatcher), logger: logger},
		cfg:     cfg,
		streams: streams,
		emitted: make(map[string]struct{}),
	}
}

// Start begins the poll loop in a background goroutine. Files already
// present in the directory are scanned and emitted once before the loop
// begins watching for new arrivals.
func (w *DirWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.scanOnce()

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.pollLoop(ctx)
	return nil
}

// Stop signals the poll loop to exit; it returns within one poll
// interval, per the cancellation model in the contract here
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (w *DirWatcher) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Info{Name: string(KindFileWatcher), Running: w.running}
}

func (w *DirWatcher) pollLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanOnce()
		}
	}
}

func (w *DirWatcher) scanOnce() {
	entries, err := os.ReadDir(w.cfg.Directory)
	if err != nil {
		w.logger.Error("directory watcher: read dir failed", "directory", w.cfg.Directory, "error", err)
		return
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasSuffix(name, "."+w.cfg.SegmentExt) {
			continue
		}

		w.mu.Lock()
		_, seen := w.emitted[name]
		if !seen {
			w.emitted[name] = struct{}{}
		}
		w.mu.Unlock()
		if seen {
			continue
		}

		w.handleNewFile(name)
	}
}

func (w *DirWatcher) handleNewFile(name string) {
	streamKey, ok := parseSegmentStreamKey(name)
	if !ok {
		w.logger.Warn("directory watcher: unparseable segment filename, skipping", "name", name)
		return
	}

	sessionID := ""
	if w.streams != nil {
		if active, ok := w.streams.ActiveStream(); ok {
			// The stream_key comes from the filename prefix; the
			// session_id always comes from the active stream's own
			// activation, never from the filename.
			sessionID = active.SessionID
		}
	}

	w.emit(models.SegmentEvent{
		SegmentPath: filepath.Join(w.cfg.Directory, name),
		StreamKey:   streamKey,
		SessionID:   sessionID,
		EventType:   models.NewSegmentEvent,
	})
}

// parseSegmentStreamKey extracts the stream_key prefix from a segment
// filename of the form "<stream_key>-<sequence>.<ext>".
func parseSegmentStreamKey(name string) (string, bool) {
	m := segmentNameRE.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}
