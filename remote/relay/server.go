package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"homenotes/remote"
	"homenotes/remote/memstore"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20
	sendBuffer     = 256
)

// TokenVerifier checks the bearer token presented on connect.
type TokenVerifier func(token string) error

type Server struct {
	store    *memstore.Server
	verify   TokenVerifier
	upgrader websocket.Upgrader
}

// NewServer relays the given tree. A nil verifier accepts every client.
func NewServer(store *memstore.Server, verify TokenVerifier) *Server {
	return &Server{
		store:  store,
		verify: verify,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ListenAndServe serves /ws on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return serr.Wrap(err, "relay server failed")
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.verify != nil {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if err := s.verify(token); err != nil {
			logger.LogErr(err, "relay client rejected", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.LogErr(err, "websocket upgrade failed")
		return
	}

	sess := &session{
		id:   uuid.New().String(),
		ws:   ws,
		conn: s.store.Connect(),
		send: make(chan Frame, sendBuffer),
		done: make(chan struct{}),
		subs: map[string]func(){},
	}
	logger.Info("Relay client connected", "session", sess.id, "remote", r.RemoteAddr)

	go sess.writePump()
	sess.readPump()
}

// session is one connected device. Its memstore Conn owns the onDisconnect removals.
type session struct {
	id   string
	ws   *websocket.Conn
	conn *memstore.Conn
	send chan Frame
	done chan struct{}

	mu   sync.Mutex
	subs map[string]func()
}

func (c *session) readPump() {
	defer func() {
		close(c.done)
		c.mu.Lock()
		for _, unsub := range c.subs {
			unsub()
		}
		c.subs = nil
		c.mu.Unlock()
		if err := c.conn.Close(); err != nil {
			logger.LogErr(err, "failed to close relay session store")
		}
		_ = c.ws.Close()
		logger.Info("Relay client disconnected", "session", c.id)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Frame
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.LogErr(err, "relay read failed", "session", c.id)
			}
			return
		}
		if req.Type != FrameRequest {
			continue
		}
		c.push(c.handle(req))
	}
}

func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				logger.LogErr(err, "relay write failed", "session", c.id)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *session) push(f Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	}
}

func (c *session) handle(req Frame) Frame {
	resp := Frame{Type: FrameResponse, ID: req.ID}
	ctx := context.Background()

	var err error
	switch req.Op {
	case OpRead:
		var snap remote.Snapshot
		snap, err = c.conn.Read(ctx, req.Path)
		resp.Exists, resp.Value = snap.Exists, snap.Raw

	case OpSet:
		var value any
		if len(req.Value) > 0 {
			err = json.Unmarshal(req.Value, &value)
		}
		if err == nil {
			err = c.conn.Set(ctx, req.Path, value)
		}

	case OpUpdate:
		var partial map[string]any
		err = json.Unmarshal(req.Value, &partial)
		if err == nil {
			err = c.conn.Update(ctx, req.Path, partial)
		}

	case OpSubscribe:
		subID := req.SubID
		var unsub func()
		unsub, err = c.conn.Subscribe(ctx, req.Path, func(snap remote.Snapshot) {
			c.push(Frame{Type: FrameEvent, SubID: subID, Path: snap.Path, Exists: snap.Exists, Value: snap.Raw})
		})
		if err == nil {
			c.mu.Lock()
			if c.subs != nil {
				c.subs[subID] = unsub
			} else {
				unsub()
			}
			c.mu.Unlock()
		}

	case OpUnsubscribe:
		c.mu.Lock()
		if unsub, ok := c.subs[req.SubID]; ok {
			unsub()
			delete(c.subs, req.SubID)
		}
		c.mu.Unlock()

	case OpOnDisconnectRemove:
		err = c.conn.OnDisconnectRemove(ctx, req.Path)

	default:
		err = serr.New("unknown op: " + req.Op)
	}

	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
