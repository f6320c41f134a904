package vizserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/hideout/telemetry"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub, err := NewHub(&telemetry.Snapshot{
		Version:   telemetry.SnapshotVersion,
		Width:     20,
		Depth:     10,
		Occluders: []telemetry.OccluderState{{MinX: 1, MinZ: 1, MaxX: 2, MaxZ: 3}},
	})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	srv := httptest.NewServer(NewService("", hub).Router())
	t.Cleanup(srv.Close)
	return hub, srv
}

func decode(t *testing.T, data []byte) Message {
	t.Helper()
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	return msg
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp.StatusCode, body
}

func TestSceneAndFrameEndpoints(t *testing.T) {
	hub, srv := newTestServer(t)

	status, body := get(t, srv.URL+"/scene")
	if status != http.StatusOK {
		t.Fatalf("/scene status = %d", status)
	}
	scene := decode(t, body)
	if scene.Type != MessageInit || len(scene.Data.Occluders) != 1 {
		t.Errorf("/scene = %+v", scene)
	}

	if status, _ := get(t, srv.URL+"/frame"); status != http.StatusNotFound {
		t.Errorf("/frame before publish status = %d, want 404", status)
	}

	hub.Publish(&telemetry.Snapshot{Tick: 7, Entities: []telemetry.EntityState{{ID: 1, Role: telemetry.RoleEvader}}})
	status, body = get(t, srv.URL+"/frame")
	if status != http.StatusOK {
		t.Fatalf("/frame status = %d", status)
	}
	frame := decode(t, body)
	if frame.Type != MessageFrame || frame.Data.Tick != 7 || len(frame.Data.Entities) != 1 {
		t.Errorf("/frame = %+v", frame)
	}
}

func TestWebsocketStream(t *testing.T) {
	hub, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading init: %v", err)
	}
	if msg := decode(t, data); msg.Type != MessageInit || msg.Data.Width != 20 {
		t.Errorf("first message = %+v, want init", msg)
	}

	for tick := int32(1); tick <= 3; tick++ {
		hub.Publish(&telemetry.Snapshot{Tick: tick})
	}
	for want := int32(1); want <= 3; want++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading frame %d: %v", want, err)
		}
		if msg := decode(t, data); msg.Type != MessageFrame || msg.Data.Tick != want {
			t.Errorf("frame = %+v, want tick %d", msg, want)
		}
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("watcher not removed after close, %d left", hub.Size())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublishWithoutWatchers(t *testing.T) {
	hub, err := NewHub(&telemetry.Snapshot{})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	for i := 0; i < 2*sendBuffer; i++ {
		hub.Publish(&telemetry.Snapshot{Tick: int32(i)})
	}
	if msg := decode(t, hub.Frame()); msg.Data.Tick != int32(2*sendBuffer-1) {
		t.Errorf("latest frame tick = %d", msg.Data.Tick)
	}
}

func TestShutdownClosesWatchers(t *testing.T) {
	hub, err := NewHub(&telemetry.Snapshot{Width: 5, Depth: 5})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- NewService("", hub).Serve(ctx, l)
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("reading init: %v", err)
	}

	cancel()

	// The server ends the stream instead of leaving the watcher hanging
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown error = %v, want going-away close", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d watchers left after shutdown", hub.Size())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
