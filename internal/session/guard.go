package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/monitoring"
	"github.com/sitechat/chatsync/internal/persist"
)

// GuardState is the auto-load guard's lifecycle state.
type GuardState uint8

const (
	GuardIdle GuardState = iota
	GuardAttempting
	GuardDone
	GuardFailed
)

func (s GuardState) String() string {
	switch s {
	case GuardIdle:
		return "idle"
	case GuardAttempting:
		return "attempting"
	case GuardDone:
		return "done"
	case GuardFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Guard triggers exactly one initial history load from a persisted
// conversation id. Repeated observations of the same pre-load condition
// never issue a second load: the attempted-id marker moves together with
// the Idle to Attempting transition, under the guard's lock.
//
// The guard resets to Idle when the session's active conversation becomes
// unset, so an id persisted later can still be loaded once.
type Guard struct {
	store   *Store
	adapter persist.Adapter
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	state       GuardState
	attemptedID string
}

// NewGuard creates a guard bound to the store and persistence adapter.
// It subscribes to active-id changes to reset itself when the session
// returns to the no-conversation state.
func NewGuard(store *Store, adapter persist.Adapter, log *logging.Logger, metrics *monitoring.Metrics) *Guard {
	if log == nil {
		log = logging.NewNop()
	}
	g := &Guard{
		store:   store,
		adapter: adapter,
		log:     log,
		metrics: metrics,
	}
	store.OnActiveChange(func(activeID string) {
		if activeID == "" {
			g.reset()
		}
	})
	return g
}

// Observe checks the auto-load condition and, when it holds, issues the
// one initial load. It is safe to call repeatedly and concurrently; at
// most one load is issued per Idle-to-Done cycle.
//
// The condition: a persisted id exists, the session has no messages, no
// operation is in flight, and no attempt is recorded for that id.
func (g *Guard) Observe(ctx context.Context) error {
	g.mu.Lock()
	if g.state != GuardIdle {
		g.mu.Unlock()
		return nil
	}

	persistedID, ok, err := g.adapter.Read()
	if err != nil {
		g.mu.Unlock()
		g.log.Warn("failed to read persisted conversation", zap.Error(err))
		return err
	}
	if !ok || persistedID == "" || persistedID == g.attemptedID {
		g.mu.Unlock()
		return nil
	}
	if g.store.Loading() || len(g.store.Messages()) > 0 {
		g.mu.Unlock()
		return nil
	}

	g.state = GuardAttempting
	g.attemptedID = persistedID
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.AutoLoads.Inc()
	}
	g.log.Info("auto-loading persisted conversation", zap.String("conversation_id", persistedID))

	loadErr := g.store.Load(ctx, persistedID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GuardAttempting {
		// A reset raced the load (session cleared mid-flight); the
		// fresh cycle owns the state now.
		return loadErr
	}
	if loadErr != nil {
		g.state = GuardFailed
		return loadErr
	}
	g.state = GuardDone
	return nil
}

// Retry moves the guard from Failed back to Idle so the next Observe can
// re-attempt after a transient failure.
func (g *Guard) Retry() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GuardFailed {
		return
	}
	g.state = GuardIdle
	g.attemptedID = ""
	if g.metrics != nil {
		g.metrics.AutoLoadRetries.Inc()
	}
}

// State returns the guard's current state.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GuardIdle
	g.attemptedID = ""
}
