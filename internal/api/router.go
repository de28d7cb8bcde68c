package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/ender-calendar-be/internal/api/handlers"
	"github.com/isdelr/ender-calendar-be/internal/auth"
	"github.com/isdelr/ender-calendar-be/internal/services"
	"github.com/isdelr/ender-calendar-be/internal/websocket"
)

// Options tunes the router for the deployment.
type Options struct {
	AllowedOrigins    []string
	LegacyOpenListing bool
	SecureCookies     bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(
	hub *websocket.Hub,
	authenticator *auth.Authenticator,
	tokens *auth.TokenIssuer,
	eventService services.EventServiceProvider,
	userService services.UserServiceProvider,
	opts Options,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Set before any route so mounted sub-routers inherit them.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(eventService, opts.LegacyOpenListing)
	authHandler := handlers.NewAuthHandler(userService, tokens, opts.SecureCookies)
	wsHandler := handlers.NewWebSocketHandler(hub, authenticator, opts.AllowedOrigins)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			handlers.WriteMessage(w, http.StatusOK, "Calendar API is running")
		})
		r.Get("/health", eventHandler.Health)

		// Sign-in endpoints ignore any stale session cookie.
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/admin/login", authHandler.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(authenticator.Middleware())

			r.Get("/ws", wsHandler.Serve)
			r.Get("/calendar.ics", eventHandler.Calendar)

			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.List)
				r.Get("/{id}", eventHandler.Get)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireViewer)
					r.Post("/", eventHandler.Create)
					r.Put("/{id}", eventHandler.Update)
					r.Delete("/{id}", eventHandler.Delete)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireViewer)
				r.Get("/auth/me", authHandler.Me)
				r.Delete("/admin/events", eventHandler.DeleteAdminEvents)
			})
		})
	})

	return r
}
