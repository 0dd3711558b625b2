package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardRecording_PostsEvent(t *testing.T) {
	var got recordingEvent
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL, zerolog.Nop())
	require.True(t, f.Enabled())

	f.ForwardRecording(context.Background(), "u1", "s1", "turn on the lights", 1234)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "turn on the lights", got.Transcription)
	assert.Equal(t, 1234, got.AudioSize)
	assert.NotEmpty(t, got.Timestamp)
}

func TestForwardRecording_DisabledWithoutURL(t *testing.T) {
	f := NewForwarder("", zerolog.Nop())
	assert.False(t, f.Enabled())
	// Must not panic without a client.
	f.ForwardRecording(context.Background(), "u1", "s1", "hi", 1)
}

func TestForwardRecording_SwallowsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL, zerolog.Nop())
	f.ForwardRecording(context.Background(), "u1", "s1", "hi", 1)
}
