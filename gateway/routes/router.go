package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"launchcore/gateway/middleware"
)

// Config wires the HTTP surface: the engine core plus the middleware stack.
type Config struct {
	Core          *Core
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New builds the router exposing every core operation.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	modules := []struct {
		name   string
		prefix string
		mount  func(chi.Router)
	}{
		{"allocation", "/v1/allocation", (&allocationRoutes{core: cfg.Core}).mount},
		{"vault", "/v1/vault", (&vaultRoutes{core: cfg.Core}).mount},
		{"staking", "/v1/staking", (&stakingRoutes{core: cfg.Core}).mount},
		{"valve", "/v1/valve", (&valveRoutes{core: cfg.Core}).mount},
	}
	for _, module := range modules {
		module := module
		r.Route(module.prefix, func(sr chi.Router) {
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(module.name))
			}
			if obs != nil {
				sr.Use(obs.Middleware(module.name))
			}
			module.mount(sr)
		})
	}

	return r
}
