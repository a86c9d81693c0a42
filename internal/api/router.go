package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/goals-be/internal/api/handlers"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/metrics"
	"github.com/isdelr/goals-be/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Users       services.UserServiceProvider
	Goals       services.GoalServiceProvider
	Events      services.EventServiceProvider
	Tokens      *auth.TokenService
	Limiter     *auth.Limiter
	DB          handlers.Pinger
	CORSOrigins []string
	// TrustProxy takes the client address from forwarding headers. Leave
	// it off unless a reverse proxy overwrites them.
	TrustProxy bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	if deps.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(log.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps.Users, deps.Tokens)
	goalHandler := handlers.NewGoalHandler(deps.Goals)
	eventHandler := handlers.NewEventHandler(deps.Events)
	healthHandler := handlers.NewHealthHandler(deps.DB)
	gate := auth.Middleware(deps.Tokens, deps.Users)

	routes := func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if deps.Limiter != nil {
					r.Use(deps.Limiter.Middleware)
				}
				r.Post("/register", userHandler.Register)
				r.Post("/login", userHandler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(gate)
				r.Get("/profile", userHandler.GetProfile)
				r.Put("/profile", userHandler.UpdateProfile)
				r.Delete("/profile", userHandler.DeleteProfile)
				r.Get("/activity", eventHandler.GetRecent)
			})
		})

		r.Route("/goals", func(r chi.Router) {
			r.Use(gate)
			r.Get("/", goalHandler.GetAll)
			r.Post("/", goalHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", goalHandler.Get)
				r.Put("/", goalHandler.Update)
				r.Delete("/", goalHandler.Delete)
			})
		})
	}

	// The web client calls /api/...; the same routes are served unprefixed.
	r.Route("/api", routes)
	r.Group(routes)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger attaches logger to each request, tagged with the id set by
// middleware.RequestID, and logs one line per completed request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	withLogger := hlog.NewHandler(logger)
	withID := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := middleware.GetReqID(r.Context()); id != "" {
				zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
					return c.Str("request_id", id)
				})
			}
			next.ServeHTTP(w, r)
		})
	}
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})
	return func(next http.Handler) http.Handler {
		return withLogger(withID(access(next)))
	}
}
