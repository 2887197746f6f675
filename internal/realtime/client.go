package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appErrors "courier-sync/pkg/errors"
)

// Handler consumes a pushed event payload. Handlers registered for the
// same event are replaced, not stacked: views re-register across renders
// and must always see the latest callback.
type Handler func(payload json.RawMessage)

// Conn is the client half of the realtime channel: one websocket to the
// shared server endpoint with automatic redial. Room joins are recorded
// and re-emitted on every reconnect, since server-side room membership
// does not survive a transport-level reconnect.
type Conn struct {
	url    string
	dialer *websocket.Dialer

	mu       sync.Mutex
	ws       *websocket.Conn
	handlers map[string]Handler
	joins    map[string]string // join event -> id, replayed on reconnect
	closed   bool

	redialMin time.Duration
	redialMax time.Duration

	log *zap.Logger
}

func newConn(url string, log *zap.Logger) *Conn {
	return &Conn{
		url:       url,
		dialer:    websocket.DefaultDialer,
		handlers:  make(map[string]Handler),
		joins:     make(map[string]string),
		redialMin: time.Second,
		redialMax: 30 * time.Second,
		log:       log,
	}
}

func (c *Conn) connect(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return appErrors.NewAppError(
			appErrors.CodeTransportUnavailable,
			"failed to reach realtime endpoint",
			err,
		)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	c.replayJoins()
	go c.readLoop(ws)
	return nil
}

// Subscribe registers the handler for an event, replacing any previous
// one. No-op once the connection is closed.
func (c *Conn) Subscribe(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.handlers[event] = h
}

// Off removes the handler for an event.
func (c *Conn) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Join emits a room-join command and records it for replay after
// reconnects. Joining the same room twice is idempotent.
func (c *Conn) Join(event, id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.joins[event+"|"+id] = id
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		c.writeFrame(ws, event, id)
	}
}

// Emit sends an event to the server. No-op once the connection is closed.
func (c *Conn) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	if c.closed || c.ws == nil {
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	c.mu.Unlock()

	return c.writeFrame(ws, event, payload)
}

// Close removes all handlers and tears the websocket down. Further
// subscribes and emits are no-ops.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	// Explicit off before disconnect: no handler may fire during teardown.
	c.handlers = make(map[string]Handler)
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.log.Warn("realtime connection lost, redialing", zap.Error(err))
			c.redial()
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Debug("discarding malformed server frame", zap.Error(err))
			continue
		}

		// Read the handler at dispatch time, not registration time, so a
		// replaced handler never fires stale.
		c.mu.Lock()
		h := c.handlers[frame.Event]
		c.mu.Unlock()
		if h != nil {
			h(frame.Payload)
		}
	}
}

func (c *Conn) redial() {
	delay := c.redialMin
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		time.Sleep(delay)

		ws, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			if delay *= 2; delay > c.redialMax {
				delay = c.redialMax
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		// Server-side membership was lost with the old connection.
		c.replayJoins()
		go c.readLoop(ws)
		return
	}
}

func (c *Conn) replayJoins() {
	c.mu.Lock()
	ws := c.ws
	joins := make(map[string]string, len(c.joins))
	for k, v := range c.joins {
		joins[k] = v
	}
	c.mu.Unlock()

	if ws == nil {
		return
	}
	for key, id := range joins {
		event := key[:len(key)-len(id)-1]
		if err := c.writeFrame(ws, event, id); err != nil {
			c.log.Warn("failed to replay room join", zap.String("event", event), zap.Error(err))
			return
		}
	}
}

func (c *Conn) writeFrame(ws *websocket.Conn, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Frame{Event: event, Payload: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, data)
}
