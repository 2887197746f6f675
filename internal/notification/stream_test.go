package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	items      []Item
	unread     *int
	fetchErr   error
	markErr    error
	markOneIDs []string
	markAlls   int
	markUnread *int
}

func (f *fakeAPI) FetchNotifications(ctx context.Context, limit int) ([]Item, *int, error) {
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	return f.items, f.unread, nil
}

func (f *fakeAPI) MarkNotificationRead(ctx context.Context, id string) (*int, error) {
	f.markOneIDs = append(f.markOneIDs, id)
	return f.markUnread, f.markErr
}

func (f *fakeAPI) MarkAllNotifications(ctx context.Context) (*int, error) {
	f.markAlls++
	return f.markUnread, f.markErr
}

func intPtr(n int) *int { return &n }

func item(id string, read bool) Item {
	return Item{ID: id, Type: "parcel", Title: "update", IsRead: read, CreatedAt: time.Now()}
}

func TestLoad_SeedsListAndAuthoritativeCount(t *testing.T) {
	api := &fakeAPI{
		items:  []Item{item("a", false), item("b", true)},
		unread: intPtr(5),
	}
	s := NewStream(api)

	require.NoError(t, s.Load(context.Background()))
	assert.Len(t, s.Items(), 2)
	assert.Equal(t, 5, s.UnreadCount(), "meta count wins over local scan")
}

func TestLoad_FallsBackToScanWithoutMeta(t *testing.T) {
	api := &fakeAPI{items: []Item{item("a", false), item("b", true), item("c", false)}}
	s := NewStream(api)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestApplyPush_PrependsAndRecaps(t *testing.T) {
	s := NewStream(&fakeAPI{})
	for i := 0; i < MaxRetained; i++ {
		s.ApplyPush(PushPayload{Notification: item(fmt.Sprintf("n-%d", i), false)})
	}
	s.ApplyPush(PushPayload{Notification: item("newest", false)})

	items := s.Items()
	require.Len(t, items, MaxRetained)
	assert.Equal(t, "newest", items[0].ID)
}

func TestApplyPush_UpsertsByID(t *testing.T) {
	s := NewStream(&fakeAPI{})
	s.ApplyPush(PushPayload{Notification: item("a", false)})
	s.ApplyPush(PushPayload{Notification: item("b", false)})

	updated := item("a", true)
	s.ApplyPush(PushPayload{Notification: updated})

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.True(t, items[0].IsRead)
}

func TestApplyPush_AuthoritativeUnreadCountOverwrites(t *testing.T) {
	api := &fakeAPI{items: nil, unread: intPtr(7)}
	s := NewStream(api)
	require.NoError(t, s.Load(context.Background()))
	require.Equal(t, 7, s.UnreadCount())

	// Push says 3: overwrite, never add.
	s.ApplyPush(PushPayload{Notification: item("x", false), UnreadCount: intPtr(3)})
	assert.Equal(t, 3, s.UnreadCount())
}

func TestApplyPush_CountUnchangedWithoutMeta(t *testing.T) {
	api := &fakeAPI{unread: intPtr(4)}
	s := NewStream(api)
	require.NoError(t, s.Load(context.Background()))

	s.ApplyPush(PushPayload{Notification: item("x", false)})
	assert.Equal(t, 4, s.UnreadCount())
}

func TestMarkOne_OptimisticAndMonotonic(t *testing.T) {
	api := &fakeAPI{}
	s := NewStream(api)
	s.ApplyPush(PushPayload{Notification: item("a", false), UnreadCount: intPtr(1)})

	require.NoError(t, s.MarkOne(context.Background(), "a"))
	items := s.Items()
	assert.True(t, items[0].IsRead)
	require.NotNil(t, items[0].ReadAt)
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, []string{"a"}, api.markOneIDs)

	// Marking again never un-reads and keeps the original ReadAt.
	readAt := *items[0].ReadAt
	require.NoError(t, s.MarkOne(context.Background(), "a"))
	again := s.Items()
	assert.True(t, again[0].IsRead)
	assert.True(t, again[0].ReadAt.Equal(readAt))
}

func TestMarkOne_UnknownID(t *testing.T) {
	s := NewStream(&fakeAPI{})
	err := s.MarkOne(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMarkOne_RESTFailureKeepsOptimisticState(t *testing.T) {
	api := &fakeAPI{markErr: errors.New("boom")}
	s := NewStream(api)
	s.ApplyPush(PushPayload{Notification: item("a", false), UnreadCount: intPtr(1)})

	err := s.MarkOne(context.Background(), "a")
	require.Error(t, err)
	// No rollback: the caller surfaces the error, local state stays read.
	assert.True(t, s.Items()[0].IsRead)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestMarkAll(t *testing.T) {
	api := &fakeAPI{markUnread: intPtr(0)}
	s := NewStream(api)
	s.ApplyPush(PushPayload{Notification: item("a", false)})
	s.ApplyPush(PushPayload{Notification: item("b", false)})
	s.ApplyPush(PushPayload{Notification: item("c", true)})

	require.NoError(t, s.MarkAll(context.Background()))
	for _, it := range s.Items() {
		assert.True(t, it.IsRead)
	}
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 1, api.markAlls)
}
