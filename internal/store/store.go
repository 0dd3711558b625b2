package store

import (
	"context"

	"github.com/voxrelay/voxrelay/internal/model"
)

// Store exposes persistence operations required by the turn pipeline.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Conversations() Conversations
	Messages() Messages
	Settings() Settings
}

// Conversations manages conversation rows. At most one active conversation
// exists per session id; this invariant is enforced by a partial unique
// index and a create-race fallback in GetOrCreate.
type Conversations interface {
	// GetOrCreate returns the active conversation for sessionID, creating
	// one with a date-derived title when none is active. Concurrent calls
	// for the same brand-new sessionID resolve to one row: a uniqueness
	// violation on insert means someone else won the race, so the loser
	// re-reads instead of failing.
	GetOrCreate(ctx context.Context, sessionID, ownerID string, metadata map[string]interface{}) (*model.Conversation, error)
	// GetActive returns the active conversation for sessionID or
	// model.ErrNotFound.
	GetActive(ctx context.Context, sessionID string) (*model.Conversation, error)
	// SetSummary stores the rolling summary on a conversation.
	SetSummary(ctx context.Context, conversationID, summary string) error
	// SetContext replaces the open key/value context map on a conversation.
	SetContext(ctx context.Context, conversationID string, contextMap map[string]interface{}) error
	// Deactivate soft-deletes the active conversation for sessionID.
	// Idempotent: deactivating a session with no active conversation is a
	// no-op.
	Deactivate(ctx context.Context, sessionID string) error
}

// Messages manages immutable message rows within conversations.
type Messages interface {
	// Append inserts a message, computes its token estimate, and bumps the
	// owning conversation's update time. The returned int is the total
	// message count in the conversation after the insert; it drives the
	// summarization trigger.
	Append(ctx context.Context, m *model.Message) (*model.Message, int, error)
	// Recent returns the most recent limit messages for the active
	// conversation of sessionID, ordered oldest-first. It returns an empty
	// slice (not an error) when the session has no active conversation.
	Recent(ctx context.Context, sessionID string, limit int) ([]*model.Message, error)
	// Count returns the number of messages in a conversation.
	Count(ctx context.Context, conversationID string) (int, error)
}

// Settings manages per-user settings rows, created lazily with defaults.
type Settings interface {
	GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error)
	Update(ctx context.Context, s *model.UserSettings) (*model.UserSettings, error)
}
