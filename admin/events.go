package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trailmark-labs/ppm/pipeline"
)

// eventBroadcaster upgrades /ws/events connections and pushes the counter
// snapshot to every connected client on a fixed tick. It is a much smaller
// surface than a general pub/sub relay: there is exactly one topic (the
// running counter snapshot), so no subject routing or per-client buffering
// is needed, only a client set and a broadcast loop.
type eventBroadcaster struct {
	status StatusProvider
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newEventBroadcaster(status StatusProvider, logger *slog.Logger) *eventBroadcaster {
	return &eventBroadcaster{
		status: status,
		logger: logger,
		upgrader: websocket.Upgrader{
			// A local operator surface, not a public API: no per-origin
			// allowlist to maintain, so any origin may connect.
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// handleWebSocket upgrades the request and registers the connection. It does
// not block; the connection is torn down by the broadcast loop noticing a
// failed write, or by readLoop noticing the client went away.
func (b *eventBroadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("ws/events upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	go b.readLoop(conn)
}

// readLoop only exists to notice the peer closing the connection; /ws/events
// is a one-way feed, so any inbound frame is discarded.
func (b *eventBroadcaster) readLoop(conn *websocket.Conn) {
	defer b.removeClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *eventBroadcaster) removeClient(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	_ = conn.Close()
}

// Run broadcasts the current counter snapshot to every connected client
// every interval, until ctx is done.
func (b *eventBroadcaster) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			b.broadcast()
		}
	}
}

func (b *eventBroadcaster) broadcast() {
	if b.status == nil {
		return
	}
	snap := b.status.Counters()
	payload, err := json.Marshal(snapshotEvent{
		Type:      "counters",
		Timestamp: time.Now().UnixMilli(),
		Counters:  snap,
	})
	if err != nil {
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.removeClient(conn)
		}
	}
}

func (b *eventBroadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.Close()
	}
	b.clients = make(map[*websocket.Conn]struct{})
}

// snapshotEvent is the single message shape /ws/events ever sends.
type snapshotEvent struct {
	Type      string           `json:"type"`
	Timestamp int64            `json:"timestamp"`
	Counters  pipeline.Snapshot `json:"counters"`
}
