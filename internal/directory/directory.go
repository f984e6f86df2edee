// Package directory maintains the reconciled list of known conversations
// and the fallback-selection logic after deletions.
//
// The list is replaced wholesale on every refresh; there is no
// incremental merge. Refreshes carry a monotonically increasing
// generation token and only the newest-issued response is applied, so
// out-of-order network replies can never flicker the list backwards.
package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitechat/chatsync/internal/gateway"
	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/monitoring"
	"github.com/sitechat/chatsync/internal/session"
)

// FetchStatus is the directory's list-fetch lifecycle state.
type FetchStatus uint8

const (
	StatusIdle FetchStatus = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s FetchStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Summary is one known conversation, in server-determined order.
type Summary struct {
	ID           string
	Preview      string
	LastActivity time.Time
}

// Session is the slice of the session store the directory drives:
// navigation loads, full clears, and the active-id read used to mark the
// active summary.
type Session interface {
	Load(ctx context.Context, conversationID string) error
	Clear()
	ActiveConversationID() string
}

// Notifier announces active-conversation changes; satisfied by
// *session.Store.
type Notifier interface {
	OnActiveChange(fn func(activeID string))
}

// Directory owns the conversation list. It never mutates session state
// directly except through Session.Load (navigation) and Session.Clear
// (fallback to an empty session).
type Directory struct {
	gw      gateway.Gateway
	sess    Session
	log     *logging.Logger
	metrics *monitoring.Metrics

	// refreshTimeout bounds auto-triggered refreshes
	refreshTimeout time.Duration

	mu        sync.Mutex
	summaries []Summary
	gen       uint64 // highest issued refresh generation
	status    FetchStatus
	fetchErr  error
}

// New creates a directory over the gateway and session.
func New(gw gateway.Gateway, sess Session, log *logging.Logger, metrics *monitoring.Metrics) *Directory {
	if log == nil {
		log = logging.NewNop()
	}
	return &Directory{
		gw:             gw,
		sess:           sess,
		log:            log,
		metrics:        metrics,
		refreshTimeout: 30 * time.Second,
	}
}

// Watch subscribes the directory to active-conversation changes so every
// transition triggers a refresh. The refresh runs on its own goroutine;
// directory fetches may overlap session operations by design of the
// generation discard rule.
func (d *Directory) Watch(n Notifier) {
	n.OnActiveChange(func(string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.refreshTimeout)
			defer cancel()
			if err := d.Refresh(ctx); err != nil {
				d.log.Warn("auto refresh failed", zap.Error(err))
			}
		}()
	})
}

// Refresh fetches the full conversation list and replaces the local
// summaries wholesale. A response that is no longer the newest-issued
// one is discarded.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.status = StatusLoading
	d.mu.Unlock()

	infos, err := d.gw.ListConversations(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		if d.metrics != nil {
			d.metrics.RefreshDiscards.Inc()
		}
		d.log.Debug("discarding stale refresh response", zap.Uint64("generation", gen), zap.Uint64("latest", d.gen))
		return nil
	}

	if err != nil {
		d.status = StatusFailed
		d.fetchErr = err
		if d.metrics != nil {
			d.metrics.RefreshFailures.Inc()
		}
		return err
	}

	summaries := make([]Summary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, Summary{
			ID:           info.ID,
			Preview:      info.Preview,
			LastActivity: info.LastActivity,
		})
	}
	d.summaries = summaries
	d.status = StatusReady
	d.fetchErr = nil
	if d.metrics != nil {
		d.metrics.Refreshes.Inc()
	}
	return nil
}

// Delete removes a conversation remotely and reconciles the local list.
// If the deleted conversation was the active one, a fallback is selected
// over the pre-deletion order: the left neighbor when one exists, else
// the new head of the list, else the session is cleared entirely.
// On remote failure the list and active id are unchanged and the error
// is surfaced in FetchErr.
func (d *Directory) Delete(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return session.ErrEmptyConversationID
	}

	if err := d.gw.DeleteConversation(ctx, conversationID); err != nil {
		d.mu.Lock()
		d.fetchErr = err
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.DeleteFailures.Inc()
		}
		d.log.Warn("delete failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return err
	}

	if d.metrics != nil {
		d.metrics.Deletes.Inc()
	}

	d.mu.Lock()
	idx := -1
	for i, s := range d.summaries {
		if s.ID == conversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return nil
	}

	pre := d.summaries
	remaining := make([]Summary, 0, len(pre)-1)
	remaining = append(remaining, pre[:idx]...)
	remaining = append(remaining, pre[idx+1:]...)
	d.summaries = remaining

	wasActive := d.sess.ActiveConversationID() == conversationID
	var fallback string
	var clear bool
	if wasActive {
		switch {
		case idx > 0:
			fallback = pre[idx-1].ID
		case len(remaining) > 0:
			fallback = remaining[0].ID
		default:
			clear = true
		}
	}
	d.mu.Unlock()

	if clear {
		if d.metrics != nil {
			d.metrics.FallbackSelection.WithLabelValues("clear").Inc()
		}
		d.sess.Clear()
		return nil
	}
	if fallback != "" {
		kind := "left"
		if idx == 0 {
			kind = "head"
		}
		if d.metrics != nil {
			d.metrics.FallbackSelection.WithLabelValues(kind).Inc()
		}
		d.log.Info("falling back to neighbor conversation",
			zap.String("deleted", conversationID),
			zap.String("fallback", fallback))
		return d.sess.Load(ctx, fallback)
	}
	return nil
}

// Summaries returns a copy of the current list in server order.
func (d *Directory) Summaries() []Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Summary, len(d.summaries))
	copy(out, d.summaries)
	return out
}

// ActiveID returns the session's active conversation id, or empty.
func (d *Directory) ActiveID() string {
	return d.sess.ActiveConversationID()
}

// IsActive reports whether the given summary is the active conversation.
// At most one summary is ever active.
func (d *Directory) IsActive(conversationID string) bool {
	active := d.sess.ActiveConversationID()
	return active != "" && active == conversationID
}

// Status returns the current fetch status.
func (d *Directory) Status() FetchStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// FetchErr returns the most recent fetch or delete error, independent of
// the session's own error slot.
func (d *Directory) FetchErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetchErr
}
