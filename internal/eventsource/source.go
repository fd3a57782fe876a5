// Package eventsource detects newly finalized segments and emits events
// onto the durable queue. Three pluggable backends share a common
// interface; a single source is active per process, selected by
// configuration.
package eventsource

import (
	"log/slog"
	"time"

	"streamvision/internal/queue"
	"streamvision/pkg/models"
)

// Source is the common contract every event-source backend implements.
type Source interface {
	Start() error
	Stop() error
	Info() Info
}

// Info describes a running source for operator visibility.
type Info struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// Kind selects which concrete Source backend to construct.
type Kind string

const (
	KindFileWatcher Kind = "filewatcher"
	KindCloud       Kind = "cloud"
	KindWebhook     Kind = "webhook"
)

// emitter is the narrow slice of queue.EventQueue every source needs:
// push an event and tag it with the source that produced it.
type emitter struct {
	q      queue.EventQueue
	name   string
	logger *slog.Logger
}

// emit funnels an event through the common tagging-and-enqueue path
// every backend shares, per the spec's requirement that filename
// parsing is the only place the core trusts filename structure.
func (e *emitter) emit(event models.SegmentEvent) {
	event.SourceTag = e.name
	if event.EnqueuedAt.IsZero() {
		event.EnqueuedAt = time.Now()
	}
	if _, err := e.q.Enqueue(event); err != nil {
		e.logger.Error("enqueue segment event failed", "stream_key", event.StreamKey, "segment_path", event.SegmentPath, "error", err)
	}
}
