package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/chatsync/internal/gateway"
	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/persist"
)

func newTestGuard(gw gateway.Gateway, persistedID string) (*Guard, *Store, *persist.Memory) {
	adapter := persist.NewMemory()
	if persistedID != "" {
		_ = adapter.Write(persistedID)
	}
	store := New(gw, adapter, logging.NewNop(), nil)
	guard := NewGuard(store, adapter, logging.NewNop(), nil)
	return guard, store, adapter
}

func TestGuardLoadsPersistedIDExactlyOnce(t *testing.T) {
	gw := &fakeGateway{
		historyFn: func(ctx context.Context, convID string) ([]gateway.HistoryEntry, error) {
			return stubHistory(), nil
		},
	}
	guard, store, _ := newTestGuard(gw, "abc")

	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, GuardDone, guard.State())
	assert.Equal(t, "abc", store.ActiveConversationID())
	assert.Len(t, store.Messages(), 2)

	// Further observations of the same condition issue no second load
	require.NoError(t, guard.Observe(context.Background()))
	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, int32(1), gw.historyCalls.Load())
}

func TestGuardStaysIdleWithoutPersistedID(t *testing.T) {
	gw := &fakeGateway{}
	guard, _, _ := newTestGuard(gw, "")

	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, GuardIdle, guard.State())
	assert.Equal(t, int32(0), gw.historyCalls.Load())
}

func TestGuardSkipsWhenSessionHasMessages(t *testing.T) {
	gw := &fakeGateway{
		sendFn: func(ctx context.Context, text, convID string) (gateway.SendResult, error) {
			return gateway.SendResult{Response: "r", ConversationID: "conv-live"}, nil
		},
	}
	guard, store, adapter := newTestGuard(gw, "")

	require.NoError(t, store.Send(context.Background(), "already chatting"))
	// External state change persists a different id afterwards
	require.NoError(t, adapter.Write("stale"))

	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, GuardIdle, guard.State())
	assert.Equal(t, int32(0), gw.historyCalls.Load())
}

func TestGuardFailedAllowsRetry(t *testing.T) {
	cause := errors.New("transient")
	failing := true
	gw := &fakeGateway{
		historyFn: func(ctx context.Context, convID string) ([]gateway.HistoryEntry, error) {
			if failing {
				return nil, cause
			}
			return stubHistory(), nil
		},
	}
	guard, store, _ := newTestGuard(gw, "abc")

	require.ErrorIs(t, guard.Observe(context.Background()), cause)
	assert.Equal(t, GuardFailed, guard.State())

	// Failed state blocks further attempts until Retry
	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, int32(1), gw.historyCalls.Load())

	failing = false
	guard.Retry()
	assert.Equal(t, GuardIdle, guard.State())

	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, GuardDone, guard.State())
	assert.Equal(t, "abc", store.ActiveConversationID())
	assert.Equal(t, int32(2), gw.historyCalls.Load())
}

func TestGuardResetsWhenActiveBecomesUnset(t *testing.T) {
	gw := &fakeGateway{
		historyFn: func(ctx context.Context, convID string) ([]gateway.HistoryEntry, error) {
			return stubHistory(), nil
		},
	}
	guard, store, adapter := newTestGuard(gw, "abc")

	require.NoError(t, guard.Observe(context.Background()))
	require.Equal(t, GuardDone, guard.State())

	// New chat: active id becomes unset, guard returns to Idle
	store.Clear()
	assert.Equal(t, GuardIdle, guard.State())

	// An id persisted later (external state change) is loaded once more
	require.NoError(t, adapter.Write("def"))
	require.NoError(t, guard.Observe(context.Background()))
	assert.Equal(t, GuardDone, guard.State())
	assert.Equal(t, "def", store.ActiveConversationID())
	assert.Equal(t, int32(2), gw.historyCalls.Load())
}

func TestGuardConcurrentObserveIssuesSingleLoad(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		historyFn: func(ctx context.Context, convID string) ([]gateway.HistoryEntry, error) {
			<-release
			return stubHistory(), nil
		},
	}
	guard, _, _ := newTestGuard(gw, "abc")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = guard.Observe(context.Background())
		}()
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), gw.historyCalls.Load())
	assert.Equal(t, GuardDone, guard.State())
}
