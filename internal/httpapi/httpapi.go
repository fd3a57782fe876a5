// Package httpapi is the C13 HTTP/WS surface: the /ws subscriber
// endpoint that exercises internal/bus, plus /healthz and /metrics for
// operators. The full admin CRUD surface for streams, brands and
// providers is out of scope for the core per the purpose and scope
// section; only the read-only status and subscriber surface the core
// needs to exercise C9 lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"streamvision/internal/bus"
	"streamvision/internal/queue"
	"streamvision/internal/registry"
	"streamvision/internal/telemetry"
)

// clientMessageType closes the set of messages a subscriber may send.
type clientMessageType string

const (
	clientSubscribe   clientMessageType = "subscribe"
	clientUnsubscribe clientMessageType = "unsubscribe"
	clientPing        clientMessageType = "ping"
)

// clientMessage is the wire shape of every inbound WebSocket frame.
// stream_id is the wire name for stream_key; the name is historical.
type clientMessage struct {
	Type      clientMessageType `json:"type"`
	StreamID  string            `json:"stream_id"`
	SessionID string            `json:"session_id,omitempty"`
	Timestamp float64           `json:"timestamp,omitempty"`
}

// pongMessage is the server reply to a ping, carrying the same
// timestamp back so the client can measure round-trip latency.
type pongMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Subscribers are read-only consumers of analysis results; this
	// surface carries no credentials worth protecting with an origin
	// check beyond what sits in front of it (reverse proxy, auth layer
	// out of scope per the purpose and scope section).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Liveness is the narrow set of dependency health checks /healthz
// aggregates, kept as plain functions so the server doesn't need
// concrete references to every component.
type Liveness struct {
	Queue    func() int // current queue length; always succeeds
	Registry func() int // number of active capabilities
}

// Server wires the WebSocket subscriber endpoint and operator
// status surface onto one net/http.Server.
type Server struct {
	bus      *bus.Bus
	metrics  *telemetry.Metrics
	liveness Liveness
	logger   *slog.Logger

	httpServer *http.Server
}

// New constructs a Server. metrics may be nil to disable /metrics.
func New(addr string, b *bus.Bus, metrics *telemetry.Metrics, liveness Liveness, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{bus: b, metrics: metrics, liveness: liveness, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine. It returns immediately.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server: serve failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "healthy"}
	if s.liveness.Queue != nil {
		status["queue_depth"] = s.liveness.Queue()
	}
	if s.liveness.Registry != nil {
		status["active_capabilities"] = s.liveness.Registry()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// handleWS upgrades the connection and drives one subscriber's lifetime:
// a read loop applying subscribe/unsubscribe/ping, and a write loop
// draining the bus.Subscriber's Send channel to the socket. Either loop
// exiting tears down both and unsubscribes from every group the
// connection joined.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID := uuid.NewString()
	sub := bus.NewSubscriber(subID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// joined is only ever touched by this goroutine's readLoop call, so
	// it needs no lock.
	joined := make(map[string]struct{})

	go func() {
		s.writeLoop(ctx, conn, sub)
		// Closing the connection makes the pending read fail, so readLoop
		// exits as well.
		conn.Close()
	}()
	s.readLoop(ctx, conn, sub, joined)

	for streamKey := range joined {
		s.bus.Unsubscribe(streamKey, subID)
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sub *bus.Subscriber, joined map[string]struct{}) {
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case clientSubscribe:
			if msg.StreamID == "" {
				continue
			}
			if err := s.bus.Subscribe(ctx, msg.StreamID, msg.SessionID, sub); err != nil {
				s.logger.Error("subscribe failed", "stream_id", msg.StreamID, "error", err)
				continue
			}
			joined[msg.StreamID] = struct{}{}
		case clientUnsubscribe:
			if msg.StreamID == "" {
				continue
			}
			s.bus.Unsubscribe(msg.StreamID, sub.ID)
			delete(joined, msg.StreamID)
		case clientPing:
			select {
			case sub.Send <- bus.Message{Type: bus.MessagePong, Timestamp: msg.Timestamp}:
			default:
			}
		}
	}
}

// writeLoop drains sub.Send to the socket until ctx is canceled or the
// channel is closed (the bus closes it when dropping a subscriber whose
// buffer was full).
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *bus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Send:
			if !ok {
				return
			}
			if msg.Type == bus.MessagePong {
				_ = conn.WriteJSON(pongMessage{Type: string(bus.MessagePong), Timestamp: msg.Timestamp})
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// QueueLiveness adapts a queue.EventQueue into the Liveness.Queue probe.
func QueueLiveness(q queue.EventQueue) func() int {
	return func() int { return q.Length() }
}

// RegistryLiveness adapts a registry.Registry into the Liveness.Registry probe.
func RegistryLiveness(r *registry.Registry) func() int {
	return func() int { return len(r.ActiveCapabilities()) }
}
