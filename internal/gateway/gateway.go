// Package gateway defines the external-service boundaries of the turn
// pipeline. Providers are opaque and possibly failing; callers classify
// failures with IsUnavailable and IsRejected.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ChatMessage is one entry in the ordered list sent to the completion
// provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer wraps an external chat/completion call.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Transcriber wraps an external speech-to-text call.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// UnavailableError means the provider is unreachable or misconfigured
// (network failure, missing credentials).
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("gateway %s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RejectedError means the provider returned an error for the given input
// (e.g. unsupported audio encoding, context too long).
type RejectedError struct {
	Op  string
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway %s rejected request: %v", e.Op, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
