// Package progressweb serves run progress over HTTP and websockets.
package progressweb

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/mgpai22/captionstitch/internal/progress"
)

const writeTimeout = 5 * time.Second

// Hub fans progress snapshots out to websocket subscribers. Snapshots that
// arrive out of order are dropped, so subscribers only ever see newer state.
type Hub struct {
	logger *logging.Logger
	router *chi.Mux

	mu     sync.Mutex
	latest *progress.Snapshot
	subs   map[*subscriber]struct{}

	upgrader websocket.Upgrader
}

// subscriber owns one connection. Only its writer goroutine writes to conn;
// pending holds at most the newest snapshot not yet written.
type subscriber struct {
	conn    *websocket.Conn
	pending chan progress.Snapshot
	done    chan struct{}
	once    sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn:    conn,
		pending: make(chan progress.Snapshot, 1),
		done:    make(chan struct{}),
	}
}

// offer queues s, replacing a snapshot the writer has not picked up yet.
// Callers hold the hub lock, so there is a single sender.
func (sub *subscriber) offer(s progress.Snapshot) {
	select {
	case <-sub.pending:
	default:
	}
	sub.pending <- s
}

func (sub *subscriber) stop() {
	sub.once.Do(func() {
		close(sub.done)
		_ = sub.conn.Close()
	})
}

func NewHub(logger *logging.Logger) *Hub {
	h := &Hub{
		logger: logging.OrNop(logger),
		router: chi.NewRouter(),
		subs:   make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.registerRoutes()
	return h
}

func (h *Hub) Router() http.Handler {
	return h.router
}

func (h *Hub) registerRoutes() {
	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(middleware.Recoverer)

	h.router.Get("/healthz", h.health)
	h.router.Get("/progress", h.current)
	h.router.Get("/ws", h.subscribe)
}

// Publish records s and queues it for every subscriber. It never waits on
// the network. It reports false when s is not newer than the last published
// snapshot.
func (h *Hub) Publish(s progress.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latest != nil && !s.Newer(*h.latest) {
		h.logger.Debugw("Dropping out-of-order snapshot",
			"generation", s.Generation,
			"seq", s.Seq,
			"latest_generation", h.latest.Generation,
			"latest_seq", h.latest.Seq,
		)
		return false
	}
	h.latest = &s

	for sub := range h.subs {
		sub.offer(s)
	}
	return true
}

// Listener adapts Publish to a tracker callback.
func (h *Hub) Listener() progress.UpdateFunc {
	return func(s progress.Snapshot) { h.Publish(s) }
}

// Latest returns the most recent snapshot, if any was published.
func (h *Hub) Latest() (progress.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return progress.Snapshot{}, false
	}
	return *h.latest, true
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		// WriteControl may run alongside the writer goroutine
		_ = sub.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
			time.Now().Add(time.Second))
		sub.stop()
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.stop()
}

// write drains sub.pending until the subscriber stops or a write fails.
func (h *Hub) write(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case s := <-sub.pending:
			err := sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err == nil {
				err = sub.conn.WriteJSON(s)
			}
			if err != nil {
				h.logger.Debugw("Dropping websocket subscriber", "remote", sub.conn.RemoteAddr().String(), "error", err)
				h.remove(sub)
				return
			}
		}
	}
}

func (h *Hub) health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Hub) current(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Latest()
	if !ok {
		h.respondJSON(w, http.StatusNotFound, map[string]string{"error": "no progress published yet"})
		return
	}
	h.respondJSON(w, http.StatusOK, s)
}

func (h *Hub) subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("Websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	if h.latest != nil {
		sub.offer(*h.latest)
	}
	h.mu.Unlock()

	h.logger.Debugw("Websocket subscriber connected", "remote", conn.RemoteAddr().String())
	go h.write(sub)

	// subscribers never send; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(sub)
}

func (h *Hub) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorw("Failed to encode json", "error", err)
	}
}

// Serve listens on addr and serves the hub until ctx is done. It returns the
// bound address, which differs from addr when addr uses port 0.
func (h *Hub) Serve(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	srv := &http.Server{
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Errorw("Progress server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	bound := ln.Addr().String()
	h.logger.Infow("Serving progress", "addr", bound)
	return bound, nil
}
