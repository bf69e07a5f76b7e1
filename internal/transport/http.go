// Package transport serves the entity registry as a REST API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rpggio/entityhub/internal/entity"
)

// BasePath prefixes every REST route except the process health check.
const BasePath = "/api/v1"

const maxBodyBytes = 1 << 20

// Registry is the set of entity stores served by the router.
type Registry interface {
	Store(name string) (*entity.Store, error)
	Names() []string
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	// Auth wraps the API routes. Nil attaches caller.Local to every request.
	Auth   func(http.Handler) http.Handler
	Logger *slog.Logger
}

// Server wires HTTP handlers to entity stores.
type Server struct {
	registry Registry
	logger   *slog.Logger
}

type storeKey struct{}

// NewServer creates the REST router with middleware.
func NewServer(registry Registry, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	auth := opts.Auth
	if auth == nil {
		auth = LocalCaller
	}

	srv := &Server{registry: registry, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleLiveness)

	r.Route(BasePath, func(r chi.Router) {
		r.Get("/health", srv.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/collections", srv.handleCollections)

			r.Route("/{collection}", func(r chi.Router) {
				r.Use(srv.withStore)
				r.Get("/", srv.handleList)
				r.Post("/", srv.handleCreate)
				r.Get("/health", srv.handleStoreHealth)
				r.Get("/stats", srv.handleStats)
				r.Get("/{id}", srv.handleGet)
				r.Put("/{id}", srv.handleUpdate)
				r.Patch("/{id}", srv.handleUpdate)
				r.Delete("/{id}", srv.handleDelete)
			})
		})
	})

	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entity.Result{
		Success: true,
		Data:    map[string]any{"status": "healthy", "collections": len(s.registry.Names())},
	})
}

func (s *Server) handleCollections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, entity.Result{
		Success: true,
		Data:    map[string]any{"collections": s.registry.Names()},
	})
}

// withStore resolves {collection} to its store, or answers 404.
func (s *Server) withStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "collection")
		store, err := s.registry.Store(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), storeKey{}, store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func storeFrom(r *http.Request) *entity.Store {
	return r.Context().Value(storeKey{}).(*entity.Store)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeObject(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload = callerFrom(r).Stamp(payload)
	writeResult(w, storeFrom(r).Create(r.Context(), payload), true)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	writeResult(w, storeFrom(r).Get(r.Context(), chi.URLParam(r, "id")), false)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit: "+err.Error())
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset: "+err.Error())
		return
	}

	res := storeFrom(r).List(r.Context(), entity.ListOptions{
		UserID: callerFrom(r).Owner(q.Get("user_id")),
		Limit:  limit,
		Offset: offset,
	})
	writeResult(w, res, false)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeObject(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResult(w, storeFrom(r).Update(r.Context(), chi.URLParam(r, "id"), patch), false)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	writeResult(w, storeFrom(r).Delete(r.Context(), chi.URLParam(r, "id")), false)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := callerFrom(r).Owner(r.URL.Query().Get("user_id"))
	writeResult(w, storeFrom(r).Stats(r.Context(), userID), false)
}

func (s *Server) handleStoreHealth(w http.ResponseWriter, r *http.Request) {
	writeResult(w, storeFrom(r).Health(r.Context()), false)
}

// decodeObject reads a JSON object body. An empty body decodes to an empty object.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var payload map[string]any
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if payload == nil {
		return map[string]any{}, nil
	}
	return payload, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
