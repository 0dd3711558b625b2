// Package automation forwards voice-turn events to an external automation
// webhook (n8n or similar). Delivery is strictly best-effort: the chat turn
// never waits on, or fails because of, the webhook.
package automation

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Forwarder posts recording notifications to a webhook URL. A nil or
// unconfigured Forwarder is a valid no-op.
type Forwarder struct {
	client *resty.Client
	url    string
	log    zerolog.Logger
}

type recordingEvent struct {
	UserID        string `json:"userId"`
	SessionID     string `json:"sessionId"`
	Transcription string `json:"transcription"`
	AudioSize     int    `json:"audioSize"`
	Timestamp     string `json:"timestamp"`
}

// NewForwarder creates a webhook forwarder. An empty url disables it.
func NewForwarder(url string, log zerolog.Logger) *Forwarder {
	if url == "" {
		return &Forwarder{log: log}
	}
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Second)
	return &Forwarder{client: c, url: url, log: log}
}

// Enabled reports whether a webhook URL is configured.
func (f *Forwarder) Enabled() bool { return f != nil && f.url != "" }

// ForwardRecording implements chat.RecordingSink. Failures are logged and
// swallowed.
func (f *Forwarder) ForwardRecording(ctx context.Context, userID, sessionID, transcription string, audioSize int) {
	if !f.Enabled() {
		return
	}
	event := recordingEvent{
		UserID:        userID,
		SessionID:     sessionID,
		Transcription: transcription,
		AudioSize:     audioSize,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(&event).
		Post(f.url)
	if err != nil {
		f.log.Warn().Err(err).Str("session_id", sessionID).Msg("automation webhook unreachable")
		return
	}
	if resp.IsError() {
		f.log.Warn().Int("status", resp.StatusCode()).Str("session_id", sessionID).Msg("automation webhook rejected event")
	}
}
