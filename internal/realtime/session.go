package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courier-sync/internal/config"
	"courier-sync/internal/parcel/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS middleware ahead of the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one websocket connection attached to the hub.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID string
	role   string
	rooms  map[string]struct{}

	mu     sync.Mutex
	closed bool

	pingInterval time.Duration
	pongTimeout  time.Duration
	log          *zap.Logger
}

// ServeWS upgrades the request and runs the session pumps. userID and
// role come from the authenticated request context.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, cfg config.RealtimeConfig, userID, role string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	pongTimeout := cfg.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}

	s := &Session{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, buffer),
		userID:       userID,
		role:         role,
		rooms:        make(map[string]struct{}),
		pingInterval: cfg.PingInterval,
		pongTimeout:  pongTimeout,
		log:          h.log.With(zap.String("user_id", userID), zap.String("role", role)),
	}
	h.attach(s)

	go s.writePump()
	go s.readPump()
	return nil
}

func (s *Session) readPump() {
	defer func() {
		s.hub.detach(s)
		s.close()
	}()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Debug("discarding malformed frame", zap.Error(err))
			continue
		}
		s.handleFrame(frame)
	}
}

// handleFrame processes client join commands. A join for a user-scoped
// room is only honored for the session's own id and role; parcel rooms
// are open to any authenticated session.
func (s *Session) handleFrame(frame Frame) {
	var id string
	if err := json.Unmarshal(frame.Payload, &id); err != nil || id == "" {
		return
	}

	switch frame.Event {
	case model.JoinParcel:
		s.hub.join(s, RoomName(RoomParcel, id))
	case model.JoinUser:
		if id == s.userID {
			s.hub.join(s, RoomName(RoomUser, id))
		}
	case model.JoinCustomer:
		if id == s.userID && s.role == "customer" {
			s.hub.join(s, RoomName(RoomCustomer, id))
		}
	case model.JoinAgent:
		if id == s.userID && s.role == "agent" {
			s.hub.join(s, RoomName(RoomAgent, id))
		}
	default:
		s.log.Debug("unknown client frame", zap.String("event", frame.Event))
	}
}

func (s *Session) writePump() {
	interval := s.pingInterval
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
	_ = s.conn.Close()
}
