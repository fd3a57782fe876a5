package eventsource

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"streamvision/internal/queue"
	"streamvision/pkg/models"
)

// webhookPayload is the body a signed HTTP callback posts to report a
// newly finalized segment.
type webhookPayload struct {
	StreamKey   string `json:"stream_key"`
	SegmentPath string `json:"segment_path"`
	SessionID   string `json:"session_id,omitempty"`
}

// WebhookConfig configures the signed-callback receiver.
type WebhookConfig struct {
	Addr          string
	Path          string // default "/events/segment"
	SigningSecret string
}

// WebhookReceiver accepts signed HTTP callbacks from an external
// segmenter or object store and emits equivalent segment events. It
// shares the same emit() path as every other source
type WebhookReceiver struct {
	emitter

	cfg    WebhookConfig
	server *http.Server

	mu      sync.Mutex
	running bool
}

// NewWebhookReceiver constructs a webhook backend.
func NewWebhookReceiver(cfg WebhookConfig, q queue.EventQueue, logger *slog.Logger) *WebhookReceiver {
	if cfg.Path == "" {
		cfg.Path = "/events/segment"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookReceiver{
		emitter: emitter{q: q, name: string(KindWebhook), logger: logger},
		cfg:     cfg,
	}
}

func (w *WebhookReceiver) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.cfg.Path, w.handle)
	w.server = &http.Server{Addr: w.cfg.Addr, Handler: mux}
	w.running = true

	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("webhook receiver: serve failed", "error", err)
		}
	}()
	return nil
}

func (w *WebhookReceiver) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.server.Shutdown(ctx)
}

func (w *WebhookReceiver) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Info{Name: string(KindWebhook), Running: w.running}
}

func (w *WebhookReceiver) handle(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	if w.cfg.SigningSecret != "" && !validSignature(r, w.cfg.SigningSecret) {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}

	if payload.StreamKey == "" || payload.SegmentPath == "" {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	w.emit(models.SegmentEvent{
		StreamKey:   payload.StreamKey,
		SegmentPath: payload.SegmentPath,
		SessionID:   payload.SessionID,
		EventType:   models.NewSegmentEvent,
	})
	rw.WriteHeader(http.StatusAccepted)
}

func validSignature(r *http.Request, secret string) bool {
	sig := r.Header.Get("X-Signature")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(r.URL.Path))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
