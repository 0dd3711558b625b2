package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/model"
	"github.com/voxrelay/voxrelay/internal/store"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
	last  []gateway.ChatMessage
}

func (s *stubCompleter) Complete(_ context.Context, messages []gateway.ChatMessage) (string, error) {
	s.calls++
	s.last = messages
	return s.reply, s.err
}

type stubTranscriber struct {
	text  string
	err   error
	calls int
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	s.calls++
	return s.text, s.err
}

type recordedForward struct {
	userID, sessionID, transcription string
	audioSize                        int
}

// stubSink delivers forwards over a channel because the orchestrator
// dispatches them on their own goroutine.
type stubSink struct{ forwards chan recordedForward }

func newStubSink() *stubSink {
	return &stubSink{forwards: make(chan recordedForward, 1)}
}

func (s *stubSink) ForwardRecording(_ context.Context, userID, sessionID, transcription string, audioSize int) {
	s.forwards <- recordedForward{userID, sessionID, transcription, audioSize}
}

func (s *stubSink) wait(t *testing.T) recordedForward {
	t.Helper()
	select {
	case f := <-s.forwards:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("recording was not forwarded")
		return recordedForward{}
	}
}

func newTestOrchestrator(t *testing.T, completer gateway.Completer, transcriber gateway.Transcriber) (*Orchestrator, store.Store) {
	t.Helper()
	st := newTestStore(t)
	asm := NewAssembler(st, "You are a helpful assistant.", 10)
	return NewOrchestrator(st, completer, transcriber, asm, 20, zerolog.Nop()), st
}

func TestHandleText_SuccessfulTurn(t *testing.T) {
	ctx := context.Background()
	completer := &stubCompleter{reply: "I created a reminder about the roof."}
	orch, st := newTestOrchestrator(t, completer, &stubTranscriber{})

	res, err := orch.HandleText(ctx, "u1", "", "Create a task to inspect the roof")
	require.NoError(t, err)

	assert.Equal(t, "I created a reminder about the roof.", res.Reply)
	assert.Equal(t, "u1", res.SessionID, "session id falls back to the user id")
	assert.Equal(t, ModeOpenAI, res.Mode)
	assert.Empty(t, res.Transcription)
	assert.Equal(t, 1, completer.calls)

	// Completion request carries system prompt and the new utterance.
	require.NotEmpty(t, completer.last)
	assert.Equal(t, "system", completer.last[0].Role)
	assert.Equal(t, "Create a task to inspect the roof", completer.last[len(completer.last)-1].Content)

	// Both sides of the turn are persisted.
	msgs, err := st.Messages().Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
}

func TestHandleText_ExplicitConversationID(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stubCompleter{reply: "ok"}, &stubTranscriber{})

	res, err := orch.HandleText(context.Background(), "u1", "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "c1", res.SessionID)
}

func TestHandleText_BlankMessageRejected(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	orch, _ := newTestOrchestrator(t, completer, &stubTranscriber{})

	_, err := orch.HandleText(context.Background(), "u1", "", "   ")
	assert.True(t, IsValidationError(err))
	assert.Zero(t, completer.calls)
}

func TestHandleText_GatewayFailureStillPersists(t *testing.T) {
	ctx := context.Background()
	completer := &stubCompleter{err: &gateway.UnavailableError{Op: "completion", Err: errors.New("boom")}}
	orch, st := newTestOrchestrator(t, completer, &stubTranscriber{})

	res, err := orch.HandleText(ctx, "u1", "", "hello")
	require.NoError(t, err)

	assert.Equal(t, ModeError, res.Mode)
	assert.NotEmpty(t, res.Reply)

	msgs, err := st.Messages().Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, res.Reply, msgs[1].Content)
}

func TestHandleText_EmptyReplyBecomesApology(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stubCompleter{reply: "  "}, &stubTranscriber{})

	res, err := orch.HandleText(context.Background(), "u1", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, ModeOpenAI, res.Mode)
	assert.NotEmpty(t, res.Reply)
}

func TestHandleText_TwoTurnsShareConversation(t *testing.T) {
	ctx := context.Background()
	orch, st := newTestOrchestrator(t, &stubCompleter{reply: "reply"}, &stubTranscriber{})

	_, err := orch.HandleText(ctx, "u1", "c1", "first")
	require.NoError(t, err)
	_, err = orch.HandleText(ctx, "u1", "c1", "second")
	require.NoError(t, err)

	msgs, err := st.Messages().Recent(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "reply", msgs[1].Content)
	assert.Equal(t, "second", msgs[2].Content)
	assert.Equal(t, "reply", msgs[3].Content)

	conv, err := st.Conversations().GetActive(ctx, "c1")
	require.NoError(t, err)
	count, err := st.Messages().Count(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestHandleVoice_EmptyAudio(t *testing.T) {
	transcriber := &stubTranscriber{text: "hello"}
	completer := &stubCompleter{reply: "ok"}
	orch, _ := newTestOrchestrator(t, completer, transcriber)

	_, err := orch.HandleVoice(context.Background(), "u1", "", nil, "audio.webm")
	assert.True(t, IsEmptyAudio(err))
	assert.Zero(t, transcriber.calls, "transcriber must not be invoked for empty audio")
	assert.Zero(t, completer.calls)
}

func TestHandleVoice_EmptyTranscription(t *testing.T) {
	ctx := context.Background()
	transcriber := &stubTranscriber{text: "   \n"}
	completer := &stubCompleter{reply: "ok"}
	orch, st := newTestOrchestrator(t, completer, transcriber)

	_, err := orch.HandleVoice(ctx, "u1", "", []byte{1, 2, 3}, "audio.webm")
	assert.True(t, IsEmptyTranscription(err))
	assert.Equal(t, 1, transcriber.calls)
	assert.Zero(t, completer.calls, "completion must not run on empty transcription")

	// Nothing persisted: the session still has no active conversation.
	_, err = st.Conversations().GetActive(ctx, "u1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestHandleVoice_SuccessfulTurn(t *testing.T) {
	ctx := context.Background()
	transcriber := &stubTranscriber{text: " turn on the lights "}
	completer := &stubCompleter{reply: "Done."}
	sink := newStubSink()
	orch, st := newTestOrchestrator(t, completer, transcriber)
	orch.WithRecordingSink(sink)

	res, err := orch.HandleVoice(ctx, "u1", "c-voice", []byte("fake-webm-bytes"), "clip.webm")
	require.NoError(t, err)

	assert.Equal(t, "turn on the lights", res.Transcription, "transcription is trimmed")
	assert.Equal(t, "Done.", res.Reply)
	assert.Equal(t, "c-voice", res.SessionID)
	assert.Equal(t, ModeOpenAI, res.Mode)

	forwarded := sink.wait(t)
	assert.Equal(t, "u1", forwarded.userID)
	assert.Equal(t, "c-voice", forwarded.sessionID)
	assert.Equal(t, "turn on the lights", forwarded.transcription)
	assert.Equal(t, len("fake-webm-bytes"), forwarded.audioSize)

	msgs, err := st.Messages().Recent(ctx, "c-voice", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.MessageTypeVoice, msgs[0].MessageType)
	assert.Equal(t, "turn on the lights", msgs[0].Content)
	assert.Equal(t, model.MessageTypeText, msgs[1].MessageType)
}

// detachedSink blocks until released and then reports the context error it
// observed, to verify that forwarding neither delays the turn nor dies with
// the request context.
type detachedSink struct {
	release chan struct{}
	got     chan error
}

func (s *detachedSink) ForwardRecording(ctx context.Context, _, _, _ string, _ int) {
	<-s.release
	s.got <- ctx.Err()
}

func TestHandleVoice_ForwardingDoesNotBlockTurn(t *testing.T) {
	sink := &detachedSink{release: make(chan struct{}), got: make(chan error, 1)}
	orch, st := newTestOrchestrator(t, &stubCompleter{reply: "ok"}, &stubTranscriber{text: "hi"})
	orch.WithRecordingSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := orch.HandleVoice(ctx, "u1", "c-fwd", []byte{1, 2, 3}, "clip.webm")
	require.NoError(t, err, "turn must complete while the sink is still blocked")
	assert.Equal(t, ModeOpenAI, res.Mode)

	// The turn fully persisted before the forward finished.
	msgs, err := st.Messages().Recent(context.Background(), "c-fwd", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	// Cancelling the request does not cancel the in-flight forward.
	cancel()
	close(sink.release)
	select {
	case fwdErr := <-sink.got:
		assert.NoError(t, fwdErr)
	case <-time.After(2 * time.Second):
		t.Fatal("forward never completed")
	}
}

func TestHandleText_EmptyIdentifiersRejected(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	orch, _ := newTestOrchestrator(t, completer, &stubTranscriber{})

	_, err := orch.HandleText(context.Background(), "", "", "hello")
	assert.True(t, IsValidationError(err))
	assert.Zero(t, completer.calls)
}

func TestHandleVoice_EmptyIdentifiersRejected(t *testing.T) {
	transcriber := &stubTranscriber{text: "hi"}
	orch, _ := newTestOrchestrator(t, &stubCompleter{reply: "ok"}, transcriber)

	_, err := orch.HandleVoice(context.Background(), "", "", []byte{1}, "clip.webm")
	assert.True(t, IsValidationError(err))
	assert.Zero(t, transcriber.calls)
}

func TestHandleVoice_TranscriberFailure(t *testing.T) {
	transcriber := &stubTranscriber{err: &gateway.RejectedError{Op: "transcription", Err: errors.New("bad codec")}}
	completer := &stubCompleter{reply: "ok"}
	orch, _ := newTestOrchestrator(t, completer, transcriber)

	_, err := orch.HandleVoice(context.Background(), "u1", "", []byte{1}, "clip.webm")
	assert.True(t, gateway.IsRejected(err))
	assert.Zero(t, completer.calls)
}

func TestSummarize_TriggersOnExactMultiple(t *testing.T) {
	ctx := context.Background()
	orch, st := newTestOrchestrator(t, &stubCompleter{reply: "reply"}, &stubTranscriber{})

	settings, err := st.Settings().GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	settings.AutoSummarizeAfter = 4
	_, err = st.Settings().Update(ctx, settings)
	require.NoError(t, err)

	// First turn lands 2 messages: below the threshold, no summary.
	_, err = orch.HandleText(ctx, "u1", "c-sum", "first")
	require.NoError(t, err)
	conv, err := st.Conversations().GetActive(ctx, "c-sum")
	require.NoError(t, err)
	assert.Nil(t, conv.Summary)

	// Second turn lands messages 3 and 4: the trigger fires at exactly 4.
	_, err = orch.HandleText(ctx, "u1", "c-sum", "second")
	require.NoError(t, err)
	conv, err = st.Conversations().GetActive(ctx, "c-sum")
	require.NoError(t, err)
	require.NotNil(t, conv.Summary)
	assert.Contains(t, *conv.Summary, "4 messages")

	// Third turn lands messages 5 and 6: counts between multiples leave
	// the existing summary untouched.
	_, err = orch.HandleText(ctx, "u1", "c-sum", "third")
	require.NoError(t, err)
	conv, err = st.Conversations().GetActive(ctx, "c-sum")
	require.NoError(t, err)
	require.NotNil(t, conv.Summary)
	assert.Contains(t, *conv.Summary, "4 messages")
}

func TestSummarize_DisabledByUserSettings(t *testing.T) {
	ctx := context.Background()
	orch, st := newTestOrchestrator(t, &stubCompleter{reply: "reply"}, &stubTranscriber{})

	settings, err := st.Settings().GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	settings.AutoSummarizeAfter = 2
	settings.AutoSummaryEnabled = false
	_, err = st.Settings().Update(ctx, settings)
	require.NoError(t, err)

	_, err = orch.HandleText(ctx, "u1", "c-off", "hello")
	require.NoError(t, err)
	conv, err := st.Conversations().GetActive(ctx, "c-off")
	require.NoError(t, err)
	assert.Nil(t, conv.Summary)
}

func TestContextAndClear(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t, &stubCompleter{reply: "reply"}, &stubTranscriber{})

	_, err := orch.Context(ctx, "c-ctx", 0)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = orch.HandleText(ctx, "u1", "c-ctx", "hello")
	require.NoError(t, err)

	snap, err := orch.Context(ctx, "c-ctx", 0)
	require.NoError(t, err)
	assert.Equal(t, "c-ctx", snap.SessionID)
	assert.NotEmpty(t, snap.ConversationID)
	assert.Equal(t, 2, snap.TotalMessages)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hello", snap.Messages[0].Content)

	require.NoError(t, orch.Clear(ctx, "c-ctx"))
	require.NoError(t, orch.Clear(ctx, "c-ctx"), "clearing twice is a no-op")

	_, err = orch.Context(ctx, "c-ctx", 0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestShouldSummarize(t *testing.T) {
	assert.False(t, shouldSummarize(19, 20))
	assert.True(t, shouldSummarize(20, 20))
	assert.False(t, shouldSummarize(21, 20))
	assert.True(t, shouldSummarize(40, 20))
	assert.False(t, shouldSummarize(0, 20))
	assert.False(t, shouldSummarize(20, 0))
}
