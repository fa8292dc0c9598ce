// Package api serves the mirrored catalog over HTTP: CRUD on every kind plus
// the fetch and vote actions, wrapped in a {"data","error"} JSON envelope.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/njoerd114/holocron/internal/model"
	"github.com/njoerd114/holocron/internal/store"
	syncp "github.com/njoerd114/holocron/internal/sync"
)

// Store is the record persistence the handlers need.
type Store interface {
	Get(ctx context.Context, kind model.Kind, id int64) (model.Record, error)
	List(ctx context.Context, kind model.Kind, opts store.ListOptions) ([]model.Record, int, error)
	Create(ctx context.Context, rec model.Record) (model.Record, error)
	Update(ctx context.Context, rec model.Record) (model.Record, error)
	Delete(ctx context.Context, kind model.Kind, id int64) error
	Ping(ctx context.Context) error
}

// Syncer runs the fetch and vote actions. *sync.Engine implements it.
type Syncer interface {
	Sync(ctx context.Context, kind model.Kind) (syncp.Result, error)
	Vote(ctx context.Context, kind model.Kind, id int64) (model.Record, error)
}

const shutdownTimeout = 10 * time.Second

// Server holds the handler dependencies.
type Server struct {
	store  Store
	syncer Syncer
	log    *slog.Logger
}

// NewServer creates a Server. Call [Server.Routes] for the http.Handler.
func NewServer(store Store, syncer Syncer, logger *slog.Logger) *Server {
	return &Server{store: store, syncer: syncer, log: logger}
}

// Routes builds the router. Trailing slashes are optional on every path.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.StripSlashes)
	r.Use(instrument)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, codeNotFound, "Not found", "No route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, codeNoMethod, "Method not allowed",
			"Method "+r.Method+" is not supported for this endpoint")
	})

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/{kind}", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Post("/fetch", s.fetch)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.retrieve)
			r.Put("/", s.replace)
			r.Patch("/", s.patch)
			r.Delete("/", s.destroy)
			r.Post("/vote", s.vote)
		})
	})

	return r
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving HTTP on %q: %w", addr, err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
