package checkout

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"InterShop/pkg/kit"
)

const readyTimeout = 1 * time.Second

// Mounter is a group of shop routes.
type Mounter interface {
	Mount(r chi.Router)
}

// ReadyCheck is one dependency probed by /readyz. A failing Optional check
// is reported as degraded but keeps the instance in rotation: the shop keeps
// serving without it.
type ReadyCheck struct {
	Name     string
	Ping     func(ctx context.Context) error
	Optional bool
}

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	Ready []ReadyCheck
}

// NewHandler assembles the shop API from its route groups.
func NewHandler(deps HTTPDeps, groups ...Mounter) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyz(deps))

	for _, g := range groups {
		g.Mount(r)
	}
	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Logging(deps.Log))
	r.Use(kit.Recoverer)
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func readyz(deps HTTPDeps) http.HandlerFunc {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed := map[string]string{}
		degraded := map[string]string{}
		for _, c := range deps.Ready {
			err := c.Ping(ctx)
			if err == nil {
				continue
			}
			log.Warn("readyz failed", zap.String("check", c.Name), zap.Bool("optional", c.Optional), zap.Error(err))
			if c.Optional {
				degraded[c.Name] = err.Error()
			} else {
				failed[c.Name] = err.Error()
			}
		}
		if len(failed) > 0 {
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", failed)
			return
		}
		if len(degraded) > 0 {
			kit.WriteJSON(w, http.StatusOK, map[string]any{"status": "degraded", "degraded": degraded})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
