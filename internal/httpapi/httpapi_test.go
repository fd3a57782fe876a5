package httpapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamvision/internal/bus"
	"streamvision/internal/store"
	"streamvision/pkg/models"
)

type testServerHandle struct {
	server *httptest.Server
	bus    *bus.Bus
}

func newTestServerWithBus(t *testing.T) testServerHandle {
	t.Helper()
	st := store.NewMemStore()
	b := bus.New(st)
	s := New("", b, nil, Liveness{}, nil)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return testServerHandle{server: ts, bus: b}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketSubscribeDeliversRecentAnalysis(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	_, err := st.PutAnalysis(ctx, models.Analysis{
		StreamKey: "abc", SegmentPath: "abc-0001.ts",
		Capability: models.CapabilityObjectDetection, CapturedAt: time.Now(),
	})
	require.NoError(t, err)

	b := bus.New(st)
	s := New("", b, nil, Liveness{}, nil)
	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "stream_id": "abc"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg bus.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, bus.MessageRecentAnalysis, msg.Type)
	assert.Len(t, msg.Analyses, 1)
}

func TestWebSocketBroadcastReachesSubscriber(t *testing.T) {
	handle := newTestServerWithBus(t)
	conn := dialWS(t, handle.server)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "stream_id": "abc"}))

	require.Eventually(t, func() bool {
		return handle.bus.SubscriberCount("abc") == 1
	}, 2*time.Second, 10*time.Millisecond)

	analysis := models.Analysis{StreamKey: "abc", SegmentPath: "abc-0002.ts", Capability: models.CapabilityLogoDetection}
	handle.bus.Broadcast("abc", bus.Message{Type: bus.MessageAnalysisUpdate, StreamKey: "abc", Analysis: &analysis})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update bus.Message
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, bus.MessageAnalysisUpdate, update.Type)
	require.NotNil(t, update.Analysis)
	assert.Equal(t, "abc-0002.ts", update.Analysis.SegmentPath)
}

func TestWebSocketPingReceivesPong(t *testing.T) {
	handle := newTestServerWithBus(t)
	conn := dialWS(t, handle.server)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "stream_id": "abc"}))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1718000000.25}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw map[string]any
	require.NoError(t, conn.ReadJSON(&raw))
	assert.Equal(t, "pong", raw["type"])
	assert.Equal(t, 1718000000.25, raw["timestamp"])
}

func TestHealthzReportsStatus(t *testing.T) {
	st := store.NewMemStore()
	b := bus.New(st)
	s := New("", b, nil, Liveness{
		Queue:    func() int { return 3 },
		Registry: func() int { return 2 },
	}, nil)
	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
