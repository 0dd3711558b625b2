package model

import "time"

// Role identifies the author of a message within a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageType distinguishes how a turn entered the system.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeVoice  MessageType = "voice"
	MessageTypeSystem MessageType = "system"
)

// Conversation is one logical chat thread. At most one active conversation
// exists per session id; clearing a session deactivates rather than deletes.
type Conversation struct {
	ConversationID string                 `json:"conversationId"`
	OwnerID        string                 `json:"ownerId"`
	SessionID      string                 `json:"sessionId"`
	Title          string                 `json:"title"`
	Summary        *string                `json:"summary,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	IsActive       bool                   `json:"isActive"`
	CreationTime   time.Time              `json:"createdAt"`
	UpdateTime     time.Time              `json:"updatedAt"`
}

// Message is one immutable turn inside a conversation. Ordering within a
// conversation is by CreationTime ascending.
type Message struct {
	MessageID      string                 `json:"messageId"`
	ConversationID string                 `json:"conversationId"`
	Role           Role                   `json:"role"`
	Content        string                 `json:"content"`
	MessageType    MessageType            `json:"messageType"`
	TokensUsed     int                    `json:"tokensUsed"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreationTime   time.Time              `json:"createdAt"`
}

// UserSettings holds per-user tuning knobs. Created lazily with defaults on
// first access and never deleted.
type UserSettings struct {
	UserID                    string    `json:"userId"`
	MaxConversationHistory    int       `json:"maxConversationHistory"`
	ContextWindowSize         int       `json:"contextWindowSize"`
	AutoSummarizeAfter        int       `json:"autoSummarizeAfter"`
	MemoryRetentionDays       int       `json:"memoryRetentionDays"`
	PreferredResponseStyle    string    `json:"preferredResponseStyle"`
	AutoSummaryEnabled        bool      `json:"autoSummaryEnabled"`
	ContextAwarenessEnabled   bool      `json:"contextAwarenessEnabled"`
	RetainVoiceTranscriptions bool      `json:"retainVoiceTranscriptions"`
	PersonalizationEnabled    bool      `json:"personalizationEnabled"`
	CreationTime              time.Time `json:"createdAt"`
	UpdateTime                time.Time `json:"updatedAt"`
}

// DefaultSettings returns the settings row created on first access.
func DefaultSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:                    userID,
		MaxConversationHistory:    100,
		ContextWindowSize:         10,
		AutoSummarizeAfter:        20,
		MemoryRetentionDays:       90,
		PreferredResponseStyle:    "balanced",
		AutoSummaryEnabled:        true,
		ContextAwarenessEnabled:   true,
		RetainVoiceTranscriptions: true,
		PersonalizationEnabled:    true,
	}
}

// EstimateTokens is the length-based token estimator used when persisting
// messages: characters divided by four, rounded up.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}
