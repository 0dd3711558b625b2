// Package validate holds boundary validation for API requests. Requests are
// checked here before they reach the orchestrator.
package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultUserID is assigned when a request carries no user identifier.
const DefaultUserID = "anonymous"

const (
	maxMessageBytes = 32_000
	maxIDBytes      = 128
	maxWindowSize   = 100
)

// UserIDOrDefault normalizes an optional userId field.
func UserIDOrDefault(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultUserID
	}
	return v
}

// ChatMessage validates the text-turn message body.
func ChatMessage(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("message is required")
	}
	if len(v) > maxMessageBytes {
		return fmt.Errorf("message exceeds %d bytes", maxMessageBytes)
	}
	return nil
}

// SessionID validates a required session identifier.
func SessionID(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if len(v) > maxIDBytes {
		return fmt.Errorf("sessionId exceeds %d bytes", maxIDBytes)
	}
	return nil
}

// ConversationID validates an optional conversation identifier.
func ConversationID(v string) error {
	if len(v) > maxIDBytes {
		return fmt.Errorf("conversationId exceeds %d bytes", maxIDBytes)
	}
	return nil
}

// WindowSize parses an optional windowSize query parameter. Empty means
// "use the default" and parses to 0.
func WindowSize(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("windowSize must be an integer")
	}
	if n < 1 || n > maxWindowSize {
		return 0, fmt.Errorf("windowSize must be between 1 and %d", maxWindowSize)
	}
	return n, nil
}
