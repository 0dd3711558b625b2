// Package openai implements the transcription and completion gateways on
// the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voxrelay/voxrelay/internal/gateway"
)

// Config carries provider settings from the service configuration.
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
}

// Client implements gateway.Completer and gateway.Transcriber. A client
// built without an API key is still usable: every call reports the gateway
// as unavailable, which the orchestrator turns into mode=error responses.
type Client struct {
	api        *goopenai.Client
	chatModel  string
	sttModel   string
	configured bool
}

// New builds a gateway client from config.
func New(cfg Config) *Client {
	c := &Client{
		chatModel:  cfg.ChatModel,
		sttModel:   cfg.TranscriptionModel,
		configured: cfg.APIKey != "",
	}
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	c.api = goopenai.NewClientWithConfig(apiCfg)
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.configured }

// Complete sends the ordered message list and returns the first choice's
// content.
func (c *Client) Complete(ctx context.Context, messages []gateway.ChatMessage) (string, error) {
	if !c.configured {
		return "", &gateway.UnavailableError{Op: "complete", Err: errors.New("no API key configured")}
	}

	req := goopenai.ChatCompletionRequest{Model: c.chatModel}
	for _, m := range messages {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify("complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe stages the audio bytes in an in-memory buffer and sends them to
// the transcription endpoint. The staging buffer is scoped to this call and
// eligible for release on every exit path.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.configured {
		return "", &gateway.UnavailableError{Op: "transcribe", Err: errors.New("no API key configured")}
	}
	if filename == "" {
		filename = "audio.webm"
	}

	buf := bytes.NewReader(audio)
	resp, err := c.api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.sttModel,
		Reader:   buf,
		FilePath: filename,
	})
	if err != nil {
		return "", classify("transcribe", err)
	}
	return resp.Text, nil
}

// HealthPing implements health.HealthPinger by listing models.
func (c *Client) HealthPing(ctx context.Context) error {
	if !c.configured {
		return errors.New("openai gateway not configured")
	}
	_, err := c.api.ListModels(ctx)
	return err
}

// classify maps provider errors onto the gateway taxonomy: auth and
// transport problems are unavailability, everything else is a rejection of
// this particular request.
func classify(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &gateway.UnavailableError{Op: op, Err: err}
		default:
			if apiErr.HTTPStatusCode >= 500 {
				return &gateway.UnavailableError{Op: op, Err: err}
			}
			return &gateway.RejectedError{Op: op, Err: err}
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return &gateway.UnavailableError{Op: op, Err: err}
		}
		return &gateway.RejectedError{Op: op, Err: err}
	}
	// Transport-level failure: DNS, refused connection, timeout.
	return &gateway.UnavailableError{Op: op, Err: err}
}
