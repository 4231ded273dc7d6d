package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"physics-chat/internal/handlers"
	"physics-chat/internal/middleware"
)

func New(
	sessionCookie *middleware.SessionCookie,
	chatHandler *handlers.ChatHandler,
	wsHandler http.HandlerFunc,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Chat page ────
	r.Group(func(r chi.Router) {
		r.Use(sessionCookie.Middleware)
		r.Get("/", chatHandler.Page)
		r.Post("/messages", chatHandler.SubmitForm)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(sessionCookie.Middleware)

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Get("/history", chatHandler.GetHistory)
			r.Post("/messages", chatHandler.SendMessage)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHandler)
	})

	return r
}
