// Package session owns the local view of one chat session: the message
// log, the active conversation id, and the loading/error flags.
//
// The store is the single mutation authority for session state. Sends are
// optimistic: the user message is appended before the network call and
// removed by id if the call fails. Every successful change of the active
// conversation id is written through to the persistence adapter and
// announced to subscribers.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitechat/chatsync/internal/gateway"
	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/monitoring"
	"github.com/sitechat/chatsync/internal/persist"
	"github.com/sitechat/chatsync/internal/shared/id"
)

// Message is one entry of the session's message log. Insertion order is
// chronological order; the log is never reordered.
type Message struct {
	ID        string
	Text      string
	Sender    gateway.Sender
	Timestamp time.Time
}

// Store holds session state and serializes its mutations.
type Store struct {
	gw      gateway.Gateway
	adapter persist.Adapter
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu          sync.Mutex
	messages    []Message
	activeID    string
	loading     bool
	err         error
	epoch       uint64 // bumped by Clear; disowns in-flight operations
	subscribers []func(activeID string)

	syncMu sync.Mutex // serializes write-throughs in state-commit order
}

// New creates a session store over the given gateway and persistence
// adapter. The session starts empty.
func New(gw gateway.Gateway, adapter persist.Adapter, log *logging.Logger, metrics *monitoring.Metrics) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{
		gw:      gw,
		adapter: adapter,
		log:     log,
		metrics: metrics,
	}
}

// OnActiveChange registers a subscriber invoked after every successful
// change of the active conversation id, including a change to none
// (empty string). Subscribers run outside the store's lock.
func (s *Store) OnActiveChange(fn func(activeID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Send submits a user message. The message is appended optimistically
// before the network call; on failure exactly that message is removed by
// id and the error is surfaced. A send while another send or load is in
// flight fails with ErrBusy.
func (s *Store) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.loading = true
	s.err = nil

	msg := Message{
		ID:        id.NewMessageID().String(),
		Text:      text,
		Sender:    gateway.SenderUser,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, msg)
	epoch := s.epoch
	convID := s.activeID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Sends.Inc()
	}

	res, err := s.gw.SendMessage(ctx, text, convID)

	s.mu.Lock()
	if epoch != s.epoch {
		// The session was cleared while the call was in flight; the
		// result belongs to a session that no longer exists.
		s.mu.Unlock()
		s.log.Debug("discarding superseded send completion", zap.String("message_id", msg.ID))
		return nil
	}

	if err != nil {
		s.removeLocked(msg.ID)
		s.err = err
		s.loading = false
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SendFailures.Inc()
		}
		s.log.Warn("send failed", zap.String("message_id", msg.ID), zap.Error(err))
		return err
	}

	s.messages = append(s.messages, Message{
		ID:        id.NewMessageID().String(),
		Text:      res.Response,
		Sender:    gateway.SenderAgent,
		Timestamp: time.Now(),
	})
	s.loading = false

	changed := res.ConversationID != "" && res.ConversationID != s.activeID
	if res.ConversationID != "" {
		s.activeID = res.ConversationID
	}
	s.mu.Unlock()

	if changed {
		s.syncActive(res.ConversationID, epoch)
	}
	return nil
}

// Load replaces the session's message log with the fetched history of the
// given conversation and makes it active. On failure the log is left
// untouched and the error is surfaced.
func (s *Store) Load(ctx context.Context, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrEmptyConversationID
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.loading = true
	s.err = nil
	epoch := s.epoch
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Loads.Inc()
	}

	history, err := s.gw.FetchHistory(ctx, conversationID)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug("discarding superseded load completion", zap.String("conversation_id", conversationID))
		return nil
	}

	if err != nil {
		s.err = err
		s.loading = false
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.LoadFailures.Inc()
		}
		s.log.Warn("history load failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return err
	}

	messages := make([]Message, 0, len(history))
	for _, e := range history {
		messages = append(messages, Message{
			ID:        e.ID,
			Text:      e.Text,
			Sender:    e.Sender,
			Timestamp: e.Timestamp,
		})
	}
	s.messages = messages
	s.loading = false
	changed := s.activeID != conversationID
	s.activeID = conversationID
	s.mu.Unlock()

	if changed {
		s.syncActive(conversationID, epoch)
	}
	return nil
}

// Clear resets the session to empty: no messages, no active conversation,
// no error. Any in-flight send or load is disowned; its late completion
// is discarded rather than resurrected into the cleared session.
func (s *Store) Clear() {
	s.mu.Lock()
	hadActive := s.activeID != ""
	s.messages = nil
	s.activeID = ""
	s.err = nil
	s.loading = false
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Clears.Inc()
	}
	if hadActive {
		s.syncActive("", epoch)
	}
}

// ClearError clears the error slot only.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

// Messages returns a copy of the message log in insertion order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ActiveConversationID returns the active conversation id, or the empty
// string when no conversation is active.
func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Loading reports whether a send or load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the most recent operation error, or nil. The slot holds a
// single error; a newer failure overwrites an older one.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// removeLocked removes a message by identity. Removal is id-based, not
// positional, so it stays correct if other messages were appended after
// the optimistic one.
func (s *Store) removeLocked(msgID string) {
	for i, m := range s.messages {
		if m.ID == msgID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// syncActive writes the active id through to durable storage and then
// notifies subscribers. Called outside the store's main lock. Write-throughs
// are serialized and re-checked against the current epoch and active id, so
// a completion that lost the race to Clear never re-persists a stale
// conversation id over the removed slot.
func (s *Store) syncActive(activeID string, epoch uint64) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	superseded := epoch != s.epoch || activeID != s.activeID
	subs := make([]func(string), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	if superseded {
		s.log.Debug("skipping superseded write-through", zap.String("conversation_id", activeID))
		return
	}

	var err error
	if activeID == "" {
		err = s.adapter.Remove()
	} else {
		err = s.adapter.Write(activeID)
	}
	if err != nil {
		s.log.Warn("failed to persist active conversation", zap.String("conversation_id", activeID), zap.Error(err))
	}

	for _, fn := range subs {
		fn(activeID)
	}
}
