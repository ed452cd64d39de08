package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	fgmiddleware "github.com/fleetworks/fleetgate/internal/middleware"
)

// RouterOptions controls the construction of the fleetgate HTTP router.
// The zero value is valid; sensible defaults are applied where fields are not set.
type RouterOptions struct {
	IAMService     IAMService
	GroupService   GroupService
	RobotService   RobotService
	SettingService SettingService
	Verifier       fgmiddleware.TokenVerifier
	CORSOptions    *cors.Options
	Middleware     []func(http.Handler) http.Handler
	HealthHandler  http.HandlerFunc
	ExtraRoutes    func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the fleetgate handlers mounted. The router can be tailored via RouterOptions
// for CLI usage, tests, or other entrypoints.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	if opts.IAMService != nil {
		authHandlers := NewAuthHandlers(opts.IAMService)
		r.Post("/api/auth/register", authHandlers.Register)
		r.Post("/api/auth/login", authHandlers.Login)

		if opts.Verifier != nil {
			r.Group(func(r chi.Router) {
				r.Use(fgmiddleware.RequireAuth(opts.Verifier))
				r.Get("/api/users/me", authHandlers.Me)
			})
		}
	}

	if opts.Verifier != nil {
		r.Group(func(r chi.Router) {
			r.Use(fgmiddleware.RequireAuth(opts.Verifier))

			if opts.GroupService != nil {
				groupHandlers := NewGroupHandlers(opts.GroupService)
				r.Get("/api/groups", groupHandlers.List)
				r.Post("/api/groups", groupHandlers.Create)
				r.Get("/api/groups/{groupID}/members", groupHandlers.Members)
				r.Post("/api/groups/{groupID}/members", groupHandlers.UpsertMember)
				r.Delete("/api/groups/{groupID}/members/{userID}", groupHandlers.RemoveMember)
			}

			if opts.RobotService != nil {
				robotHandlers := NewRobotHandlers(opts.RobotService)
				r.Get("/api/robots", robotHandlers.List)
				r.Post("/api/robots", robotHandlers.Create)
				r.Get("/api/robots/{serialNumber}", robotHandlers.Get)
				r.Get("/api/robots/{serialNumber}/permissions", robotHandlers.ListPermissions)
				r.Post("/api/robots/{robotID}/permissions", robotHandlers.GrantPermission)
				r.Delete("/api/robots/{robotID}/permissions/{userID}", robotHandlers.RevokePermission)
				r.Post("/api/robots/{robotID}/assign", robotHandlers.Assign)
			}

			if opts.SettingService != nil {
				settingHandlers := NewSettingHandlers(opts.SettingService)
				// The static "user" segment wins over the serial wildcard.
				r.Get("/api/settings/user/all", settingHandlers.ListMine)
				r.Get("/api/settings/{serialNumber}", settingHandlers.Get)
				r.Post("/api/settings/{serialNumber}", settingHandlers.Save)
			}
		})
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the shared router with an h2c server to provide HTTP/2
// over cleartext for local clients that negotiate via prior knowledge.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
