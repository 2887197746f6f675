package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "courier-sync/pkg/errors"
)

// MaxRetained caps the in-memory notification list.
const MaxRetained = 100

// Item is one notification as rendered in the inbox dropdown.
type Item struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Body      *string         `json:"body,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IsRead    bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PushPayload is the notification:user event shape. UnreadCount, when
// present, is authoritative and overwrites the local counter.
type PushPayload struct {
	Notification Item `json:"notification"`
	UnreadCount  *int `json:"unreadCount,omitempty"`
}

// API is the REST collaborator behind the stream: it seeds the list and
// confirms optimistic read-marking.
type API interface {
	FetchNotifications(ctx context.Context, limit int) ([]Item, *int, error)
	MarkNotificationRead(ctx context.Context, id string) (*int, error)
	MarkAllNotifications(ctx context.Context) (*int, error)
}

// Stream maintains the session-wide ordered, capped, read/unread-tracked
// notification list, reconciling REST pages with realtime pushes.
type Stream struct {
	mu     sync.Mutex
	items  []Item
	unread int

	api API
	now func() time.Time
	log *zap.Logger
}

type Option func(*Stream)

func WithClock(now func() time.Time) Option {
	return func(s *Stream) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Stream) { s.log = log }
}

func NewStream(api API, opts ...Option) *Stream {
	s := &Stream{
		api: api,
		now: time.Now,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load seeds the list and the authoritative unread count from REST.
func (s *Stream) Load(ctx context.Context) error {
	items, unread, err := s.api.FetchNotifications(ctx, 50)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = capItems(items)
	if unread != nil {
		s.unread = *unread
	} else {
		s.unread = countUnread(s.items)
	}
	return nil
}

// ApplyPush upserts a pushed notification: an existing item with the same
// id is replaced, otherwise the item is prepended; the list is re-capped.
// The unread counter is taken from the payload when present and left
// unchanged otherwise (never recomputed by scanning).
func (s *Stream) ApplyPush(payload PushPayload) {
	if payload.Notification.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]Item, 0, len(s.items)+1)
	filtered = append(filtered, payload.Notification)
	for _, item := range s.items {
		if item.ID != payload.Notification.ID {
			filtered = append(filtered, item)
		}
	}
	s.items = capItems(filtered)

	if payload.UnreadCount != nil {
		s.unread = *payload.UnreadCount
	}
}

// MarkOne optimistically flips one notification to read, then confirms
// over REST. On REST failure the optimistic state stays in place and the
// error is returned for the caller to surface.
func (s *Stream) MarkOne(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		found = true
		if !s.items[i].IsRead {
			now := s.now()
			s.items[i].IsRead = true
			s.items[i].ReadAt = &now
			if s.unread > 0 {
				s.unread--
			}
		}
		break
	}
	s.mu.Unlock()

	if !found {
		return appErrors.ErrNotificationNotFound
	}

	unread, err := s.api.MarkNotificationRead(ctx, id)
	if err != nil {
		s.log.Warn("failed to confirm notification read", zap.String("notification_id", id), zap.Error(err))
		return err
	}
	if unread != nil {
		s.mu.Lock()
		s.unread = *unread
		s.mu.Unlock()
	}
	return nil
}

// MarkAll optimistically flips every retained notification to read, then
// confirms over REST. Marking is monotonic: already-read items keep their
// original ReadAt.
func (s *Stream) MarkAll(ctx context.Context) error {
	s.mu.Lock()
	now := s.now()
	for i := range s.items {
		if !s.items[i].IsRead {
			s.items[i].IsRead = true
			if s.items[i].ReadAt == nil {
				t := now
				s.items[i].ReadAt = &t
			}
		}
	}
	s.unread = 0
	s.mu.Unlock()

	unread, err := s.api.MarkAllNotifications(ctx)
	if err != nil {
		s.log.Warn("failed to confirm mark-all", zap.Error(err))
		return err
	}
	if unread != nil {
		s.mu.Lock()
		s.unread = *unread
		s.mu.Unlock()
	}
	return nil
}

// Items returns a snapshot of the retained notifications, newest first.
func (s *Stream) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// UnreadCount returns the current unread counter.
func (s *Stream) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func capItems(items []Item) []Item {
	if len(items) > MaxRetained {
		return items[:MaxRetained]
	}
	return items
}

func countUnread(items []Item) int {
	n := 0
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n
}
