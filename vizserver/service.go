package vizserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Service serves the scene, the latest frame and a live frame stream.
type Service struct {
	addr     string
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewService creates a service listening on addr.
func NewService(addr string, hub *Hub) *Service {
	return &Service{
		addr: addr,
		hub:  hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Router returns the HTTP routes of the service.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/scene", s.handleScene).Methods("GET")
	router.HandleFunc("/frame", s.handleFrame).Methods("GET")
	router.HandleFunc("/ws", s.handleWebsocket).Methods("GET")
	return router
}

// ListenAndServe serves on the service address until ctx is done.
func (s *Service) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done. Shutdown closes the
// hijacked websocket connections as well.
func (s *Service) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.hub.CloseAll)

	errc := make(chan error, 1)
	go func() {
		slog.Info("viz server listening", "addr", l.Addr().String())
		errc <- srv.Serve(l)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Service) handleScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.hub.Scene())
}

func (s *Service) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.hub.Frame()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	writeJSON(w, frame)
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	watcher := NewWatcher(conn)
	// The scene goes out before any frame
	watcher.send <- s.hub.Scene()
	s.hub.add(watcher)
	slog.Debug("viz watcher connected", "watcher", watcher.ID(), "watchers", s.hub.Size())

	done := make(chan struct{})
	go func() {
		watcher.writeLoop()
		close(done)
	}()

	// Reading is required to notice the client closing the socket
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.remove(watcher.ID())
	<-done
	conn.Close()
	slog.Debug("viz watcher disconnected", "watcher", watcher.ID(), "watchers", s.hub.Size())
}

func writeJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		slog.Debug("viz response write failed", "error", err)
	}
}
