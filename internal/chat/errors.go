package chat

import (
	"errors"
	"fmt"
)

// ValidationError means the request was rejected before any gateway or
// store call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// EmptyAudioError means a voice turn carried a zero-length audio payload.
// No gateway calls are made in this case.
type EmptyAudioError struct{}

func (EmptyAudioError) Error() string { return "audio payload is empty" }

// IsEmptyAudio checks if err is an EmptyAudioError.
func IsEmptyAudio(err error) bool {
	var ea EmptyAudioError
	return errors.As(err, &ea)
}

// EmptyTranscriptionError means the audio decoded to no usable text after
// trimming. The turn stops before chat completion and persists nothing.
type EmptyTranscriptionError struct{}

func (EmptyTranscriptionError) Error() string { return "transcription produced no usable text" }

// IsEmptyTranscription checks if err is an EmptyTranscriptionError.
func IsEmptyTranscription(err error) bool {
	var et EmptyTranscriptionError
	return errors.As(err, &et)
}
