package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/voxrelay/voxrelay/internal/api/recovery"
	"github.com/voxrelay/voxrelay/internal/store"
)

// NewRouter creates the HTTP router with all chat API routes.
func NewRouter(svc ChatService, settings store.Settings, isHealthy func() bool, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware)

	chatHandler := NewChatHandler(svc, log)
	settingsHandler := NewSettingsHandler(settings, log)
	healthHandler := NewHealthHandler(isHealthy)

	// Health endpoint
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	// Chat endpoints
	router.HandleFunc("/api/chat/text", chatHandler.TextTurn).Methods("POST")
	router.HandleFunc("/api/chat/voice", chatHandler.VoiceTurn).Methods("POST")
	router.HandleFunc("/api/chat/context", chatHandler.GetContext).Methods("GET")
	router.HandleFunc("/api/chat/clear", chatHandler.ClearConversation).Methods("POST")

	// Settings endpoints
	router.HandleFunc("/api/users/{userId}/settings", settingsHandler.GetSettings).Methods("GET")
	router.HandleFunc("/api/users/{userId}/settings", settingsHandler.UpdateSettings).Methods("PUT")

	return router
}
