package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/useCases"
)

// SnapshotBroadcaster pushes market snapshots to every connected client.
type SnapshotBroadcaster struct {
	log      *slog.Logger
	clients  map[*websocket.Conn]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
}

func NewSnapshotBroadcaster(log *slog.Logger) *SnapshotBroadcaster {
	return &SnapshotBroadcaster{
		log:      log,
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

var _ useCases.Broadcaster = (*SnapshotBroadcaster)(nil)

func (b *SnapshotBroadcaster) BroadcastSnapshot(snap *model.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, err := json.Marshal(snap)
	if err != nil {
		b.log.Error("encoding snapshot for broadcast failed", "error", err)
		return
	}
	for c := range b.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.log.Warn("websocket write failed, dropping client", "error", err)
			c.Close()
			delete(b.clients, c)
		}
	}
}

// ClientCount reports how many clients are connected.
func (b *SnapshotBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler accepts websocket connections and keeps them registered until the
// read loop fails.
func (b *SnapshotBroadcaster) Handler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}
}
