package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/vision-gateway/app"
	"github.com/upb/vision-gateway/handlers"
	"github.com/upb/vision-gateway/middleware"
	"github.com/upb/vision-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)

	// Session cookies are sent cross-origin, so credentials must be allowed
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", handlers.GraphQLHeaderPrefix + "*"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)

	// Sign-in flows write the auth cookies
	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.Attach)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", deps.Auth.HandleLogin)
			r.Get("/callback", deps.Auth.HandleCallback)
			r.Get("/logout", deps.Auth.HandleLogout)
			r.Post("/sign-in", deps.Auth.HandleSignIn)
			r.Post("/sign-out", deps.Auth.HandleSignOut)
		})
		// Cognito Hosted UI default callback path
		r.Get("/oauth2/idpresponse", deps.Auth.HandleCallback)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.Sessions.Attach)

			r.Get("/auth/session", deps.Session.HandleFetchSession)
			r.Group(func(r chi.Router) {
				r.Use(deps.Sessions.RequireSession)
				r.Get("/auth/user", deps.Session.HandleGetCurrentUser)
				r.Get("/auth/user/attributes", deps.Session.HandleFetchUserAttributes)
			})
			r.Get("/storage", deps.Session.HandleListStorage)
			r.Post("/graphql", deps.Session.HandleGraphQL)
		})

		r.Route("/vision", func(r chi.Router) {
			r.With(chimw.Timeout(deps.Config.Vision.Timeout)).Post("/", deps.Vision.HandleDescribe)

			if deps.Invocations != nil {
				r.Group(func(r chi.Router) {
					r.Use(deps.Sessions.Attach)
					r.Use(deps.Sessions.RequireSession)
					r.Get("/invocations", deps.Invocations.HandleList)
					r.Get("/invocations/stats", deps.Invocations.HandleStats)
					r.Get("/invocations/{id}", deps.Invocations.HandleGet)
				})
			}
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
