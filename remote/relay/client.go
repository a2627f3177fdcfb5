package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"homenotes/remote"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Client is a remote.Store backed by a relay connection.
// Closing it (or losing the socket) makes the relay run this client's onDisconnect removals.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Frame
	subs    map[string]*remote.Listener
	closed  bool
	done    chan struct{}
}

// Dial connects to a relay at url (ws://host:port/ws), retrying a few times with backoff.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var ws *websocket.Conn
	op := func() error {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return backoff.Permanent(serr.New("relay rejected credentials"))
		}
		if err != nil {
			return err
		}
		ws = conn
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, serr.Wrap(err, "failed to connect to relay")
	}

	c := &Client{
		ws:      ws,
		pending: map[uint64]chan Frame{},
		subs:    map[string]*remote.Listener{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	logger.Info("Connected to relay", "url", url)
	return c, nil
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !c.isClosed() {
				logger.LogErr(err, "relay connection lost")
			}
			return
		}

		switch f.Type {
		case FrameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case FrameEvent:
			c.mu.Lock()
			l := c.subs[f.SubID]
			c.mu.Unlock()
			if l != nil {
				l.Push(remote.Snapshot{Path: f.Path, Exists: f.Exists, Raw: f.Value})
			}
		}
	}
}

// shutdown fails every pending request and stops subscriptions.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	for id, l := range c.subs {
		l.Stop()
		delete(c.subs, id)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) call(ctx context.Context, req Frame) (Frame, error) {
	req.Type = FrameRequest
	req.ID = c.nextID.Add(1)
	ch := make(chan Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Frame{}, remote.ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return Frame{}, serr.Wrap(err, "failed to send relay request")
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Frame{}, remote.ErrClosed
		}
		if resp.Error != "" {
			return resp, serr.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return Frame{}, ctx.Err()
	}
}

func (c *Client) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	resp, err := c.call(ctx, Frame{Op: OpRead, Path: path})
	if err != nil {
		return remote.Snapshot{}, err
	}
	return remote.Snapshot{Path: path, Exists: resp.Exists, Raw: resp.Value}, nil
}

func (c *Client) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return serr.Wrap(err, "failed to encode value")
	}
	_, err = c.call(ctx, Frame{Op: OpSet, Path: path, Value: raw})
	return err
}

func (c *Client) Update(ctx context.Context, path string, partial map[string]any) error {
	raw, err := json.Marshal(partial)
	if err != nil {
		return serr.Wrap(err, "failed to encode update")
	}
	_, err = c.call(ctx, Frame{Op: OpUpdate, Path: path, Value: raw})
	return err
}

func (c *Client) Subscribe(ctx context.Context, path string, onChange func(remote.Snapshot)) (func(), error) {
	subID := strconv.FormatUint(c.nextID.Add(1), 10)
	l := remote.NewListener(onChange)

	// Registered before the request so the initial event cannot be missed
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		l.Stop()
		return nil, remote.ErrClosed
	}
	c.subs[subID] = l
	c.mu.Unlock()

	if _, err := c.call(ctx, Frame{Op: OpSubscribe, Path: path, SubID: subID}); err != nil {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
		l.Stop()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, subID)
			c.mu.Unlock()
			l.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			defer cancel()
			if _, err := c.call(ctx, Frame{Op: OpUnsubscribe, SubID: subID}); err != nil && err != remote.ErrClosed {
				logger.LogErr(err, "relay unsubscribe failed", "path", path)
			}
		})
	}, nil
}

func (c *Client) OnDisconnectRemove(ctx context.Context, path string) error {
	_, err := c.call(ctx, Frame{Op: OpOnDisconnectRemove, Path: path})
	return err
}

func (c *Client) Close() error {
	if c.isClosed() {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	err := c.ws.Close()
	c.shutdown()
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
