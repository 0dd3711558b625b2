package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxrelay/voxrelay/internal/api/respond"
	"github.com/voxrelay/voxrelay/internal/api/validate"
	"github.com/voxrelay/voxrelay/internal/chat"
	"github.com/voxrelay/voxrelay/internal/model"
)

// maxAudioBytes caps the multipart audio payload.
const maxAudioBytes = 25 << 20

// ChatService is the orchestrator surface the chat handlers depend on.
type ChatService interface {
	HandleText(ctx context.Context, userID, conversationID, message string) (*chat.TurnResult, error)
	HandleVoice(ctx context.Context, userID, conversationID string, audio []byte, filename string) (*chat.TurnResult, error)
	Context(ctx context.Context, sessionID string, window int) (*chat.ContextSnapshot, error)
	Clear(ctx context.Context, sessionID string) error
}

// ChatHandler is a thin HTTP transport over the turn orchestrator.
type ChatHandler struct {
	svc ChatService
	log zerolog.Logger
}

func NewChatHandler(svc ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, log: log}
}

type textTurnRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// turnResponse is the single response shape for both turn endpoints. Error
// paths fill the same fields with mode="error" so clients never branch on
// a separate error schema.
type turnResponse struct {
	Message        string `json:"message"`
	Transcription  string `json:"transcription,omitempty"`
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
	Mode           string `json:"mode"`
}

type contextResponse struct {
	ConversationID string                 `json:"conversationId"`
	SessionID      string                 `json:"sessionId"`
	Messages       []*model.Message       `json:"messages"`
	TotalMessages  int                    `json:"totalMessages"`
	Context        map[string]interface{} `json:"context"`
}

type clearRequest struct {
	SessionID string `json:"sessionId"`
}

func writeTurn(w http.ResponseWriter, res *chat.TurnResult) {
	respond.WriteJSON(w, http.StatusOK, turnResponse{
		Message:        res.Reply,
		Transcription:  res.Transcription,
		ConversationID: res.SessionID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Mode:           res.Mode,
	})
}

func writeTurnError(w http.ResponseWriter, status int, message, conversationID string) {
	respond.WriteJSON(w, status, turnResponse{
		Message:        message,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Mode:           chat.ModeError,
	})
}

// TextTurn POST /api/chat/text
func (h *ChatHandler) TextTurn(w http.ResponseWriter, r *http.Request) {
	var req textTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTurnError(w, http.StatusBadRequest, "Invalid JSON", req.ConversationID)
		return
	}
	if err := validate.ChatMessage(req.Message); err != nil {
		writeTurnError(w, http.StatusBadRequest, err.Error(), req.ConversationID)
		return
	}
	if err := validate.ConversationID(req.ConversationID); err != nil {
		writeTurnError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	userID := validate.UserIDOrDefault(req.UserID)

	res, err := h.svc.HandleText(r.Context(), userID, req.ConversationID, req.Message)
	if err != nil {
		h.writeTurnFailure(w, err, req.ConversationID)
		return
	}
	writeTurn(w, res)
}

// VoiceTurn POST /api/chat/voice (multipart, audio in field "audio")
func (h *ChatHandler) VoiceTurn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeTurnError(w, http.StatusBadRequest, "invalid multipart form", "")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeTurnError(w, http.StatusBadRequest, "audio file is required", "")
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		writeTurnError(w, http.StatusBadRequest, "could not read audio payload", "")
		return
	}
	if len(audio) > maxAudioBytes {
		writeTurnError(w, http.StatusRequestEntityTooLarge, "audio payload too large", "")
		return
	}

	conversationID := r.FormValue("conversationId")
	if err := validate.ConversationID(conversationID); err != nil {
		writeTurnError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	userID := validate.UserIDOrDefault(r.FormValue("userId"))

	res, err := h.svc.HandleVoice(r.Context(), userID, conversationID, audio, header.Filename)
	if err != nil {
		h.writeTurnFailure(w, err, conversationID)
		return
	}
	writeTurn(w, res)
}

// writeTurnFailure maps orchestrator errors onto the uniform turn response
// shape. Gateway failures never reach here (the orchestrator converts them
// into mode=error replies); what remains is boundary rejections and
// storage failures.
func (h *ChatHandler) writeTurnFailure(w http.ResponseWriter, err error, conversationID string) {
	switch {
	case chat.IsValidationError(err), chat.IsEmptyAudio(err):
		writeTurnError(w, http.StatusBadRequest, err.Error(), conversationID)
	case chat.IsEmptyTranscription(err):
		writeTurnError(w, http.StatusBadRequest, "I couldn't hear anything in that recording. Please try again.", conversationID)
	default:
		h.log.Error().Stack().Err(err).Msg("turn failed")
		writeTurnError(w, http.StatusInternalServerError, "I'm sorry, something went wrong. Please try again.", conversationID)
	}
}

// GetContext GET /api/chat/context?sessionId=&windowSize=
func (h *ChatHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if err := validate.SessionID(sessionID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	window, err := validate.WindowSize(r.URL.Query().Get("windowSize"))
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	snap, err := h.svc.Context(r.Context(), sessionID, window)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "no active conversation for sessionId")
			return
		}
		h.log.Error().Stack().Err(err).Str("session_id", sessionID).Msg("context read failed")
		respond.WriteInternalError(w, "could not read conversation context")
		return
	}
	respond.WriteJSON(w, http.StatusOK, contextResponse{
		ConversationID: snap.ConversationID,
		SessionID:      snap.SessionID,
		Messages:       snap.Messages,
		TotalMessages:  snap.TotalMessages,
		Context:        snap.Context,
	})
}

// ClearConversation POST /api/chat/clear
func (h *ChatHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.SessionID(req.SessionID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.svc.Clear(r.Context(), req.SessionID); err != nil {
		h.log.Error().Stack().Err(err).Str("session_id", req.SessionID).Msg("clear failed")
		respond.WriteInternalError(w, "could not clear conversation")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
