// Package vizserver streams simulation frames to browser viewers over
// websockets and serves the static scene as JSON.
package vizserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pthm-cable/hideout/telemetry"
)

// sendBuffer is the number of messages queued per watcher before frames drop.
const sendBuffer = 16

// closeGrace bounds the close handshake write on shutdown.
const closeGrace = time.Second

// Message types sent to watchers.
const (
	MessageInit  = "init"
	MessageFrame = "frame"
)

// Message is the envelope of every websocket message.
type Message struct {
	Type string              `json:"type"`
	Data *telemetry.Snapshot `json:"data"`
}

// Watcher is one connected viewer.
type Watcher struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewWatcher wraps a websocket connection under a fresh id.
func NewWatcher(conn *websocket.Conn) *Watcher {
	return &Watcher{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// ID returns the watcher id.
func (w *Watcher) ID() string {
	return w.id
}

// writeLoop drains the send queue into the connection until it closes.
func (w *Watcher) writeLoop() {
	for msg := range w.send {
		if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("viz watcher write failed", "watcher", w.id, "error", err)
			return
		}
	}
}

// Hub fans frames out to watchers and keeps the latest one.
type Hub struct {
	mu       sync.RWMutex
	scene    []byte
	frame    []byte
	watchers map[string]*Watcher
}

// NewHub creates a hub for the given static scene snapshot.
func NewHub(scene *telemetry.Snapshot) (*Hub, error) {
	data, err := json.Marshal(Message{Type: MessageInit, Data: scene})
	if err != nil {
		return nil, err
	}
	return &Hub{
		scene:    data,
		watchers: make(map[string]*Watcher),
	}, nil
}

// Publish sends a frame to every watcher. Slow watchers miss frames.
func (h *Hub) Publish(frame *telemetry.Snapshot) {
	data, err := json.Marshal(Message{Type: MessageFrame, Data: frame})
	if err != nil {
		slog.Error("failed to encode frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = data
	for _, w := range h.watchers {
		select {
		case w.send <- data:
		default:
		}
	}
}

// Scene returns the encoded init message.
func (h *Hub) Scene() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scene
}

// Frame returns the latest encoded frame message, or nil before the first.
func (h *Hub) Frame() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame
}

// Size returns the number of connected watchers.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

func (h *Hub) add(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[w.id] = w
}

// remove unregisters a watcher and closes its queue.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.watchers[id]; ok {
		delete(h.watchers, id)
		close(w.send)
	}
}

// CloseAll ends every watcher connection with a going-away close frame.
// Their handlers see the read fail and unregister themselves.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, w := range h.watchers {
		if err := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
			slog.Debug("viz watcher close frame failed", "watcher", w.id, "error", err)
		}
		w.conn.Close()
	}
}
