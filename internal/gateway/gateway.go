// Package gateway defines the remote conversation service interface and
// its production HTTP implementation.
//
// The engine only ever talks to the service through the Gateway interface;
// transport details (routes, JSON shapes, retries) stay in this package.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports an operation against a conversation the remote
// service does not know, when distinguishable from a transport failure.
var ErrNotFound = errors.New("conversation not found")

// NetworkError wraps a transport-level failure of a gateway call.
type NetworkError struct {
	Op  string // "send", "history", "list", "delete"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// SendResult is the outcome of a successful SendMessage call.
type SendResult struct {
	Response       string
	ConversationID string
	ChunksUsed     int
}

// HistoryEntry is one message of a fetched conversation history, in
// server order.
type HistoryEntry struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
}

// ConversationInfo summarizes one known conversation, in server order.
type ConversationInfo struct {
	ID           string
	Preview      string
	LastActivity time.Time
}

// Gateway is the remote conversation service as seen by the engine.
type Gateway interface {
	// SendMessage submits a user message. An empty conversationID asks the
	// service to start a new conversation; the result carries the id either
	// way.
	SendMessage(ctx context.Context, text, conversationID string) (SendResult, error)

	// FetchHistory returns the full message history of a conversation in
	// chronological order.
	FetchHistory(ctx context.Context, conversationID string) ([]HistoryEntry, error)

	// ListConversations returns summaries of all known conversations in
	// server-determined order.
	ListConversations(ctx context.Context) ([]ConversationInfo, error)

	// DeleteConversation removes a conversation and all its messages.
	DeleteConversation(ctx context.Context, conversationID string) error
}
