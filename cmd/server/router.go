package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gcphandler "georef/internal/gcp/handler"
	imagehandler "georef/internal/image/handler"
	"georef/internal/platform/config"
	"georef/internal/platform/metrics"
	"georef/internal/platform/middleware"
	"georef/internal/platform/redis"
	"georef/pkg/platform/httputil"
	"georef/pkg/platform/middleware/requesttime"
)

type routerDeps struct {
	cfg      config.Server
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	images   *imagehandler.Handler
	gcps     *gcphandler.Handler
	db       *sql.DB
	redis    *redis.Client
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(deps.logger, deps.metrics))
	r.Use(middleware.Logger(deps.logger, deps.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(deps.db, deps.redis))
	r.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(deps.cfg.RequestTimeout))
		api.Use(middleware.ContentTypeJSON)
		deps.images.Register(api)
		deps.gcps.Register(api)
	})
	return r
}

// readiness reports unavailable while a configured backend fails its ping.
func readiness(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if db != nil {
			checks["postgres"] = "ok"
			if err := db.PingContext(ctx); err != nil {
				checks["postgres"], healthy = err.Error(), false
			}
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Health(ctx); err != nil {
				checks["redis"], healthy = err.Error(), false
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, checks)
	}
}
