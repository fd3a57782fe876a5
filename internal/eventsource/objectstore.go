package eventsource

import (
	"log/slog"
	"sync"

	"streamvision/internal/queue"
	"streamvision/pkg/models"
)

// ObjectChangeNotification is the shape of a bucket change notification
// this backend reacts to. The concrete transport (e.g. a cloud pub/sub
// subscription) is an external collaborator out of scope for the core;
// this type is the boundary the core trusts.
type ObjectChangeNotification struct {
	Bucket    string
	Key       string
	StreamKey string
	SessionID string
}

// ObjectStoreNotifier turns bucket change notifications into segment
// events. It is a thin adapter: Notify is called by whatever transport
// receives the provider's notifications (webhook, queue subscription,
// SDK callback); this type owns only the translation into a
// models.SegmentEvent and the shared emit() path.
type ObjectStoreNotifier struct {
	emitter

	mu      sync.Mutex
	running bool
}

// NewObjectStoreNotifier constructs an object-store-notification backend.
func NewObjectStoreNotifier(q queue.EventQueue, logger *slog.Logger) *ObjectStoreNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectStoreNotifier{emitter: emitter{q: q, name: string(KindCloud), logger: logger}}
}

func (o *ObjectStoreNotifier) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = true
	return nil
}

func (o *ObjectStoreNotifier) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	return nil
}

func (o *ObjectStoreNotifier) Info() Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Info{Name: string(KindCloud), Running: o.running}
}

// Notify translates one bucket change notification into a segment event.
func (o *ObjectStoreNotifier) Notify(n ObjectChangeNotification) {
	if n.StreamKey == "" || n.Key == "" {
		o.logger.Warn("object store notifier: incomplete notification, skipping", "bucket", n.Bucket, "key", n.Key)
		return
	}
	o.emit(models.SegmentEvent{
		StreamKey:   n.StreamKey,
		SegmentPath: n.Key,
		SessionID:   n.SessionID,
		EventType:   models.NewSegmentEvent,
	})
}

var _ Source = (*ObjectStoreNotifier)(nil)
var _ Source = (*WebhookReceiver)(nil)
var _ Source = (*DirWatcher)(nil)
