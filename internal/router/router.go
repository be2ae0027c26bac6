package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"visionchat-backend/internal/handlers"
	"visionchat-backend/internal/middleware"
	"visionchat-backend/internal/websocket"
)

func New(
	videoHandler *handlers.VideoHandler,
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Uploads and chat both trigger expensive model work
	uploadLimiter := middleware.NewRateLimiter(10, time.Minute)
	chatLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Video Routes ────
		r.Route("/video", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(uploadLimiter.Middleware)
				r.Post("/upload", videoHandler.Upload)
			})
			r.Post("/process", videoHandler.Process)
			r.Get("/status", videoHandler.Status)
			r.Get("/frames", videoHandler.Frames)
			r.Get("/summary", videoHandler.Summary)
		})

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(chatLimiter.Middleware)
				r.Post("/", chatHandler.Ask)
			})
			r.Get("/history", chatHandler.History)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
