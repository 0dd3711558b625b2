package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voxrelay/voxrelay/internal/gateway"
	"github.com/voxrelay/voxrelay/internal/model"
	"github.com/voxrelay/voxrelay/internal/store"
)

// Mode values signal on every response whether the completion gateway
// produced the reply or an error path did. Error responses keep the exact
// shape of success responses so callers never branch.
const (
	ModeOpenAI = "openai"
	ModeError  = "error"
)

const (
	apologyEmptyReply   = "I'm sorry, I couldn't come up with a response. Please try again."
	apologyGatewayError = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

// RecordingSink receives voice recordings after successful transcription.
// The orchestrator invokes it on its own goroutine with a context detached
// from the request, so implementations may block on their own timeouts
// without delaying or failing the turn.
type RecordingSink interface {
	ForwardRecording(ctx context.Context, userID, sessionID, transcription string, audioSize int)
}

// TurnResult is the outcome of one request/response turn.
type TurnResult struct {
	Reply         string
	Transcription string
	SessionID     string
	Mode          string
}

// ContextSnapshot is the read-side view of a session's window.
type ContextSnapshot struct {
	ConversationID string
	SessionID      string
	Messages       []*model.Message
	TotalMessages  int
	Context        map[string]interface{}
}

// Orchestrator sequences transcribe → assemble context → complete →
// persist → summarize-if-needed for both text and voice entry points, and
// owns the session-identifier derivation rule.
type Orchestrator struct {
	store          store.Store
	completer      gateway.Completer
	transcriber    gateway.Transcriber
	assembler      *Assembler
	summarizeAfter int
	sink           RecordingSink
	log            zerolog.Logger
}

// NewOrchestrator wires the turn pipeline. summarizeAfter is the default
// summarization threshold, overridable per user via settings.
func NewOrchestrator(st store.Store, completer gateway.Completer, transcriber gateway.Transcriber, asm *Assembler, summarizeAfter int, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:          st,
		completer:      completer,
		transcriber:    transcriber,
		assembler:      asm,
		summarizeAfter: summarizeAfter,
		log:            log,
	}
}

// WithRecordingSink wires an optional recording forwarder into voice turns.
func (o *Orchestrator) WithRecordingSink(s RecordingSink) *Orchestrator {
	o.sink = s
	return o
}

// resolveSessionID applies the session-identifier rule: the explicit
// conversation id when provided, otherwise the user id. Absent an explicit
// id, all turns from one user deliberately collapse into a single running
// conversation; callers wanting independent threads must pass distinct
// conversation ids.
func resolveSessionID(userID, conversationID string) string {
	if conversationID != "" {
		return conversationID
	}
	return userID
}

// HandleText runs a complete text turn and returns the reply plus the
// resolved session id. At least one of userID and conversationID must be
// non-empty; the HTTP layer guarantees this by defaulting the user id, but
// direct callers are checked here too.
func (o *Orchestrator) HandleText(ctx context.Context, userID, conversationID, message string) (*TurnResult, error) {
	if resolveSessionID(userID, conversationID) == "" {
		return nil, NewValidationError("userId", "either userId or conversationId is required")
	}
	if strings.TrimSpace(message) == "" {
		return nil, NewValidationError("message", "message is required")
	}
	return o.runTurn(ctx, userID, conversationID, message, model.MessageTypeText, nil)
}

// HandleVoice validates and transcribes the audio, then delegates to the
// text turn logic with messageType=voice on the persisted user message.
func (o *Orchestrator) HandleVoice(ctx context.Context, userID, conversationID string, audio []byte, filename string) (*TurnResult, error) {
	if resolveSessionID(userID, conversationID) == "" {
		return nil, NewValidationError("userId", "either userId or conversationId is required")
	}
	if len(audio) == 0 {
		return nil, EmptyAudioError{}
	}

	text, err := o.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, EmptyTranscriptionError{}
	}

	sessionID := resolveSessionID(userID, conversationID)
	if o.sink != nil {
		// Detached from the request context: cancelling the turn must not
		// cancel an in-flight forward, and the turn never waits on it.
		fwdCtx := context.WithoutCancel(ctx)
		go o.sink.ForwardRecording(fwdCtx, userID, sessionID, text, len(audio))
	}

	res, err := o.runTurn(ctx, userID, conversationID, text, model.MessageTypeVoice, map[string]interface{}{
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	res.Transcription = text
	return res, nil
}

// runTurn is the shared turn pipeline. Completion gateway failures are
// absorbed into an apologetic reply with ModeError. Storage failures after
// a reply was generated are logged but the reply is still returned; the
// user experience takes priority over persistence durability.
func (o *Orchestrator) runTurn(ctx context.Context, userID, conversationID, message string, msgType model.MessageType, metadata map[string]interface{}) (*TurnResult, error) {
	sessionID := resolveSessionID(userID, conversationID)

	settings := o.settingsFor(ctx, userID)

	msgs, err := o.assembler.Assemble(ctx, sessionID, message, settings.ContextWindowSize)
	if err != nil {
		// History is unreadable; degrade to a windowless request rather
		// than failing the turn.
		o.log.Error().Stack().Err(err).Str("session_id", sessionID).Msg("context assembly failed; proceeding without history")
		msgs = []gateway.ChatMessage{
			{Role: "system", Content: o.assembler.systemPrompt},
			{Role: "user", Content: message},
		}
	}

	mode := ModeOpenAI
	reply, err := o.completer.Complete(ctx, msgs)
	if err != nil {
		o.log.Error().Stack().Err(err).Str("session_id", sessionID).Msg("chat completion failed")
		reply = apologyGatewayError
		mode = ModeError
	} else if strings.TrimSpace(reply) == "" {
		reply = apologyEmptyReply
	}

	o.persistTurn(ctx, sessionID, userID, message, reply, msgType, metadata, settings)

	return &TurnResult{Reply: reply, SessionID: sessionID, Mode: mode}, nil
}

// persistTurn appends the user and assistant messages in that order. A
// failure leaves earlier appends in place (no rollback across the turn) and
// is logged for operational visibility because the caller already has the
// reply.
func (o *Orchestrator) persistTurn(ctx context.Context, sessionID, userID, message, reply string, msgType model.MessageType, metadata map[string]interface{}, settings *model.UserSettings) {
	conv, err := o.store.Conversations().GetOrCreate(ctx, sessionID, userID, nil)
	if err != nil {
		o.log.Error().Stack().Err(err).Str("session_id", sessionID).Msg("reply returned but conversation could not be resolved; turn not persisted")
		return
	}

	_, total, err := o.store.Messages().Append(ctx, &model.Message{
		ConversationID: conv.ConversationID,
		Role:           model.RoleUser,
		Content:        message,
		MessageType:    msgType,
		Metadata:       metadata,
	})
	if err != nil {
		o.log.Error().Stack().Err(err).Str("session_id", sessionID).Msg("reply returned but user message not stored")
	} else {
		o.maybeSummarize(ctx, conv.ConversationID, sessionID, total, settings)
	}

	_, total, err = o.store.Messages().Append(ctx, &model.Message{
		ConversationID: conv.ConversationID,
		Role:           model.RoleAssistant,
		Content:        reply,
		MessageType:    model.MessageTypeText,
	})
	if err != nil {
		o.log.Error().Stack().Err(err).Str("session_id", sessionID).Msg("reply returned but assistant message not stored")
		return
	}
	o.maybeSummarize(ctx, conv.ConversationID, sessionID, total, settings)
}

// maybeSummarize writes a rolling summary when the message count reaches an
// exact multiple of the threshold. It never blocks or fails the turn:
// every error is logged and swallowed.
func (o *Orchestrator) maybeSummarize(ctx context.Context, conversationID, sessionID string, total int, settings *model.UserSettings) {
	if !settings.AutoSummaryEnabled {
		return
	}
	threshold := settings.AutoSummarizeAfter
	if threshold <= 0 {
		threshold = o.summarizeAfter
	}
	if !shouldSummarize(total, threshold) {
		return
	}

	msgs, err := o.store.Messages().Recent(ctx, sessionID, summaryWindow)
	if err != nil {
		o.log.Error().Stack().Err(err).Str("conversation_id", conversationID).Msg("summary window read failed")
		return
	}
	if err := o.store.Conversations().SetSummary(ctx, conversationID, describeMessages(msgs, total)); err != nil {
		o.log.Error().Stack().Err(err).Str("conversation_id", conversationID).Msg("summary write failed")
	}
}

// settingsFor returns the user's settings, falling back to defaults when
// the settings row cannot be read or created.
func (o *Orchestrator) settingsFor(ctx context.Context, userID string) *model.UserSettings {
	settings, err := o.store.Settings().GetOrCreate(ctx, userID)
	if err != nil {
		o.log.Error().Stack().Err(err).Str("user_id", userID).Msg("settings unavailable; using defaults")
		return model.DefaultSettings(userID)
	}
	return settings
}

// Context returns the session's conversation window for the read endpoint.
// window <= 0 selects the user's configured default.
func (o *Orchestrator) Context(ctx context.Context, sessionID string, window int) (*ContextSnapshot, error) {
	if window <= 0 {
		window = o.assembler.defaultWindow
	}
	conv, err := o.store.Conversations().GetActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := o.store.Messages().Recent(ctx, sessionID, window)
	if err != nil {
		return nil, err
	}
	total, err := o.store.Messages().Count(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	return &ContextSnapshot{
		ConversationID: conv.ConversationID,
		SessionID:      sessionID,
		Messages:       msgs,
		TotalMessages:  total,
		Context:        conv.Context,
	}, nil
}

// Clear deactivates the session's active conversation. Idempotent.
func (o *Orchestrator) Clear(ctx context.Context, sessionID string) error {
	return o.store.Conversations().Deactivate(ctx, sessionID)
}
