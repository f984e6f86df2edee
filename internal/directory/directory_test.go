package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/chatsync/internal/gateway"
	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/persist"
	"github.com/sitechat/chatsync/internal/session"
)

type fakeGateway struct {
	sendFn    func(ctx context.Context, text, convID string) (gateway.SendResult, error)
	historyFn func(ctx context.Context, convID string) ([]gateway.HistoryEntry, error)
	listFn    func(ctx context.Context) ([]gateway.ConversationInfo, error)
	deleteFn  func(ctx context.Context, convID string) error

	listCalls atomic.Int32
}

func (f *fakeGateway) SendMessage(ctx context.Context, text, convID string) (gateway.SendResult, error) {
	if f.sendFn == nil {
		return gateway.SendResult{}, nil
	}
	return f.sendFn(ctx, text, convID)
}

func (f *fakeGateway) FetchHistory(ctx context.Context, convID string) ([]gateway.HistoryEntry, error) {
	if f.historyFn == nil {
		return []gateway.HistoryEntry{
			{ID: "1", Text: "hello", Sender: gateway.SenderUser, Timestamp: time.Now()},
		}, nil
	}
	return f.historyFn(ctx, convID)
}

func (f *fakeGateway) ListConversations(ctx context.Context) ([]gateway.ConversationInfo, error) {
	f.listCalls.Add(1)
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx)
}

func (f *fakeGateway) DeleteConversation(ctx context.Context, convID string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, convID)
}

func infos(ids ...string) []gateway.ConversationInfo {
	out := make([]gateway.ConversationInfo, 0, len(ids))
	for i, id := range ids {
		out = append(out, gateway.ConversationInfo{
			ID:           id,
			Preview:      "preview of " + id,
			LastActivity: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}
	return out
}

func newTestDirectory(gw *fakeGateway) (*Directory, *session.Store) {
	store := session.New(gw, persist.NewMemory(), logging.NewNop(), nil)
	dir := New(gw, store, logging.NewNop(), nil)
	return dir, store
}

func TestRefreshReplacesWholesale(t *testing.T) {
	gw := &fakeGateway{
		listFn: func(ctx context.Context) ([]gateway.ConversationInfo, error) {
			return infos("A", "B"), nil
		},
	}
	dir, _ := newTestDirectory(gw)

	require.NoError(t, dir.Refresh(context.Background()))

	summaries := dir.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "A", summaries[0].ID)
	assert.Equal(t, "preview of A", summaries[0].Preview)
	assert.Equal(t, "B", summaries[1].ID)
	assert.Equal(t, StatusReady, dir.Status())
	assert.NoError(t, dir.FetchErr())

	// A later refresh replaces everything, no merge
	gw.listFn = func(ctx context.Context) ([]gateway.ConversationInfo, error) {
		return infos("C"), nil
	}
	require.NoError(t, dir.Refresh(context.Background()))
	summaries = dir.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "C", summaries[0].ID)
}

func TestRefreshStaleResponseDiscarded(t *testing.T) {
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	gw := &fakeGateway{}
	gw.listFn = func(ctx context.Context) ([]gateway.ConversationInfo, error) {
		if gw.listCalls.Load() == 1 {
			close(firstEntered)
			<-releaseFirst
			return infos("stale"), nil
		}
		return infos("fresh-1", "fresh-2"), nil
	}
	dir, _ := newTestDirectory(gw)

	done := make(chan error, 1)
	go func() { done <- dir.Refresh(context.Background()) }()
	<-firstEntered

	// Second refresh is issued and completes while the first is stuck
	require.NoError(t, dir.Refresh(context.Background()))

	// First response arrives late and must be dropped
	close(releaseFirst)
	require.NoError(t, <-done)

	summaries := dir.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "fresh-1", summaries[0].ID)
	assert.Equal(t, StatusReady, dir.Status())
}

func TestRefreshFailureSurfacedInFetchErr(t *testing.T) {
	cause := errors.New("list exploded")
	gw := &fakeGateway{
		listFn: func(ctx context.Context) ([]gateway.ConversationInfo, error) {
			return nil, cause
		},
	}
	dir, _ := newTestDirectory(gw)

	require.ErrorIs(t, dir.Refresh(context.Background()), cause)
	assert.Equal(t, StatusFailed, dir.Status())
	assert.ErrorIs(t, dir.FetchErr(), cause)

	// Failure is non-fatal: a later refresh recovers
	gw.listFn = func(ctx context.Context) ([]gateway.ConversationInfo, error) {
		return infos("A"), nil
	}
	require.NoError(t, dir.Refresh(context.Background()))
	assert.Equal(t, StatusReady, dir.Status())
	assert.NoError(t, dir.FetchErr())
}

func setupWithActive(t *testing.T, gw *fakeGateway, ids []string, active string) (*Directory, *session.Store) {
	t.Helper()
	gw.listFn = func(ctx context.Context) ([]gateway.ConversationInfo, error) {
		return infos(ids...), nil
	}
	dir, store := newTestDirectory(gw)
	require.NoError(t, dir.Refresh(context.Background()))
	if active != "" {
		require.NoError(t, store.Load(context.Background(), active))
		require.True(t, dir.IsActive(active))
	}
	return dir, store
}

func TestDeleteActiveFallsBackToLeftNeighbor(t *testing.T) {
	gw := &fakeGateway{}
	dir, store := setupWithActive(t, gw, []string{"A", "B", "C"}, "B")

	require.NoError(t, dir.Delete(context.Background(), "B"))

	assert.Equal(t, "A", store.ActiveConversationID())
	ids := summaryIDs(dir)
	assert.Equal(t, []string{"A", "C"}, ids)
	assert.True(t, dir.IsActive("A"))
	assert.False(t, dir.IsActive("C"))
}

func TestDeleteActiveHeadFallsBackToNewHead(t *testing.T) {
	gw := &fakeGateway{}
	dir, store := setupWithActive(t, gw, []string{"A", "B", "C"}, "A")

	require.NoError(t, dir.Delete(context.Background(), "A"))

	assert.Equal(t, "B", store.ActiveConversationID())
	assert.Equal(t, []string{"B", "C"}, summaryIDs(dir))
}

func TestDeleteLastConversationClearsSession(t *testing.T) {
	gw := &fakeGateway{}
	dir, store := setupWithActive(t, gw, []string{"A"}, "A")
	require.NotEmpty(t, store.Messages())

	require.NoError(t, dir.Delete(context.Background(), "A"))

	assert.Empty(t, store.ActiveConversationID())
	assert.Empty(t, store.Messages())
	assert.Empty(t, dir.Summaries())
	assert.False(t, dir.IsActive("A"))
}

func TestDeleteInactiveLeavesActiveAlone(t *testing.T) {
	gw := &fakeGateway{}
	dir, store := setupWithActive(t, gw, []string{"A", "B", "C"}, "B")

	require.NoError(t, dir.Delete(context.Background(), "C"))

	assert.Equal(t, "B", store.ActiveConversationID())
	assert.Equal(t, []string{"A", "B"}, summaryIDs(dir))
}

func TestDeleteRemoteFailureLeavesStateUntouched(t *testing.T) {
	cause := errors.New("delete refused")
	gw := &fakeGateway{
		deleteFn: func(ctx context.Context, convID string) error {
			return cause
		},
	}
	dir, store := setupWithActive(t, gw, []string{"A", "B"}, "B")

	require.ErrorIs(t, dir.Delete(context.Background(), "B"), cause)

	assert.Equal(t, []string{"A", "B"}, summaryIDs(dir))
	assert.Equal(t, "B", store.ActiveConversationID())
	assert.ErrorIs(t, dir.FetchErr(), cause)
	// Directory errors never leak into the session's error slot
	assert.NoError(t, store.Err())
}

func TestDeleteEmptyIDRejected(t *testing.T) {
	gw := &fakeGateway{}
	dir, _ := newTestDirectory(gw)

	assert.ErrorIs(t, dir.Delete(context.Background(), "  "), session.ErrEmptyConversationID)
}

func TestWatchRefreshesOnActiveChange(t *testing.T) {
	gw := &fakeGateway{
		listFn: func(ctx context.Context) ([]gateway.ConversationInfo, error) {
			return infos("A"), nil
		},
		sendFn: func(ctx context.Context, text, convID string) (gateway.SendResult, error) {
			return gateway.SendResult{Response: "r", ConversationID: "A"}, nil
		},
	}
	dir, store := newTestDirectory(gw)
	dir.Watch(store)

	require.NoError(t, store.Send(context.Background(), "hello"))

	require.Eventually(t, func() bool {
		return gw.listCalls.Load() == 1 && len(dir.Summaries()) == 1
	}, time.Second, 5*time.Millisecond)
}

func summaryIDs(d *Directory) []string {
	summaries := d.Summaries()
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	return ids
}
