package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/voxrelay/voxrelay/internal/api/respond"
	"github.com/voxrelay/voxrelay/internal/store"
)

// SettingsHandler exposes per-user settings. Rows are created lazily with
// defaults on first read, so GET never 404s.
type SettingsHandler struct {
	settings store.Settings
	log      zerolog.Logger
}

func NewSettingsHandler(settings store.Settings, log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, log: log}
}

// updateSettingsRequest carries only the fields the caller wants to change.
type updateSettingsRequest struct {
	MaxConversationHistory    *int    `json:"maxConversationHistory"`
	ContextWindowSize         *int    `json:"contextWindowSize"`
	AutoSummarizeAfter        *int    `json:"autoSummarizeAfter"`
	MemoryRetentionDays       *int    `json:"memoryRetentionDays"`
	PreferredResponseStyle    *string `json:"preferredResponseStyle"`
	AutoSummaryEnabled        *bool   `json:"autoSummaryEnabled"`
	ContextAwarenessEnabled   *bool   `json:"contextAwarenessEnabled"`
	RetainVoiceTranscriptions *bool   `json:"retainVoiceTranscriptions"`
	PersonalizationEnabled    *bool   `json:"personalizationEnabled"`
}

// GetSettings GET /api/users/{userId}/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	s, err := h.settings.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.log.Error().Stack().Err(err).Str("user_id", userID).Msg("settings read failed")
		respond.WriteInternalError(w, "could not load settings")
		return
	}
	respond.WriteJSON(w, http.StatusOK, s)
}

// UpdateSettings PUT /api/users/{userId}/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}

	s, err := h.settings.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.log.Error().Stack().Err(err).Str("user_id", userID).Msg("settings read failed")
		respond.WriteInternalError(w, "could not load settings")
		return
	}

	if req.MaxConversationHistory != nil {
		if *req.MaxConversationHistory < 1 {
			respond.WriteBadRequest(w, "maxConversationHistory must be positive")
			return
		}
		s.MaxConversationHistory = *req.MaxConversationHistory
	}
	if req.ContextWindowSize != nil {
		if *req.ContextWindowSize < 1 {
			respond.WriteBadRequest(w, "contextWindowSize must be positive")
			return
		}
		s.ContextWindowSize = *req.ContextWindowSize
	}
	if req.AutoSummarizeAfter != nil {
		if *req.AutoSummarizeAfter < 1 {
			respond.WriteBadRequest(w, "autoSummarizeAfter must be positive")
			return
		}
		s.AutoSummarizeAfter = *req.AutoSummarizeAfter
	}
	if req.MemoryRetentionDays != nil {
		if *req.MemoryRetentionDays < 1 {
			respond.WriteBadRequest(w, "memoryRetentionDays must be positive")
			return
		}
		s.MemoryRetentionDays = *req.MemoryRetentionDays
	}
	if req.PreferredResponseStyle != nil {
		s.PreferredResponseStyle = *req.PreferredResponseStyle
	}
	if req.AutoSummaryEnabled != nil {
		s.AutoSummaryEnabled = *req.AutoSummaryEnabled
	}
	if req.ContextAwarenessEnabled != nil {
		s.ContextAwarenessEnabled = *req.ContextAwarenessEnabled
	}
	if req.RetainVoiceTranscriptions != nil {
		s.RetainVoiceTranscriptions = *req.RetainVoiceTranscriptions
	}
	if req.PersonalizationEnabled != nil {
		s.PersonalizationEnabled = *req.PersonalizationEnabled
	}

	out, err := h.settings.Update(r.Context(), s)
	if err != nil {
		h.log.Error().Stack().Err(err).Str("user_id", userID).Msg("settings update failed")
		respond.WriteInternalError(w, "could not update settings")
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}
