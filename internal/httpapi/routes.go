// Package httpapi is the ancillary, ops-only HTTP surface (§4.5): /ready,
// /healthz, and /metrics, plus the admin live-feed websocket. The
// client-facing contract lives entirely on the TCP gateway; nothing here
// serves rider or driver traffic.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JawadKotaichh/aubus/internal/adminfeed"
)

// Pinger is satisfied by storage.Postgres's pool; /ready fails closed if the
// store can't answer a trivial query within the request's deadline.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(pinger Pinger, feed *adminfeed.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	if feed != nil {
		r.Get("/admin/feed", feed.ServeWS)
	}

	return r
}
