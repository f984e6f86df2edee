package session

import "errors"

var (
	// ErrEmptyMessage rejects a send whose text trims to nothing.
	ErrEmptyMessage = errors.New("message text cannot be empty")

	// ErrEmptyConversationID rejects a load without a conversation id.
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")

	// ErrBusy rejects an operation requested while a send or load is
	// already in flight. Operations are serialized, never queued.
	ErrBusy = errors.New("another operation is in flight")
)
