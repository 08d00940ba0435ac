// Package httpapi serves configuration collections over HTTP from a local
// SQLite store. It implements the wire contract remote.HTTPClient speaks and
// is meant for development and tests.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/roach88/entitysync/internal/logging"
	"github.com/roach88/entitysync/internal/metrics"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
	"github.com/roach88/entitysync/internal/store"
)

// Error codes specific to the service. The rest live in package remote.
const (
	codePayloadTooLarge = "payload_too_large"
	codePatchTooDeep    = "patch_too_deep"
	codeIDMismatch      = "id_mismatch"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Token, when set, is required as a bearer token on every collection
	// route.
	Token string
	// IDs assigns uids and ids for sinks and sources created without one.
	// Defaults to remote.UUIDv7.
	IDs          remote.IDFunc
	MaxBodyBytes int64
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Server is an http.Handler.
type Server struct {
	store  *store.Store
	cfg    ServerConfig
	logger *slog.Logger
}

// NewServer creates a server with default configuration.
func NewServer(st *store.Store) *Server {
	return NewServerWithConfig(st, ServerConfig{})
}

// NewServerWithConfig creates a server.
func NewServerWithConfig(st *store.Store, cfg ServerConfig) *Server {
	if cfg.IDs == nil {
		cfg.IDs = remote.UUIDv7
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		store:  st,
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "httpapi"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/metrics" && r.Method == http.MethodGet {
		s.cfg.Metrics.Handler().ServeHTTP(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 5 || len(parts) > 6 || parts[0] != "v1" || parts[1] != "workspaces" || parts[3] != "collections" {
		writeError(w, http.StatusNotFound, remote.CodeNotFound, "route not found")
		return
	}
	workspace, name := parts[2], parts[4]
	id := ""
	if len(parts) == 6 {
		id = parts[5]
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		s.cfg.Metrics.HTTPRequest(name, r.Method, strconv.Itoa(rec.status))
		s.logger.Debug("request",
			"method", r.Method, "workspace", workspace, "collection", name, "id", id,
			"status", rec.status, "correlation_id", r.Header.Get("X-Correlation-Id"))
	}()

	if !s.authorized(r) {
		writeError(rec, http.StatusUnauthorized, remote.CodeAuth, "missing or invalid bearer token")
		return
	}

	h, ok := s.handler(workspace, name)
	if !ok {
		writeError(rec, http.StatusNotFound, remote.CodeNotFound, "unknown collection "+name)
		return
	}

	switch {
	case id == "" && r.Method == http.MethodGet:
		s.respond(rec, http.StatusOK, func() (any, error) { return h.list(r.Context()) })
	case id == "" && r.Method == http.MethodPost:
		body, ok := s.readBody(rec, r)
		if !ok {
			return
		}
		s.respond(rec, http.StatusCreated, func() (any, error) { return h.add(r.Context(), body) })
	case id != "" && r.Method == http.MethodGet:
		s.respond(rec, http.StatusOK, func() (any, error) { return h.get(r.Context(), id) })
	case id != "" && r.Method == http.MethodPatch:
		body, ok := s.readBody(rec, r)
		if !ok {
			return
		}
		s.respond(rec, http.StatusNoContent, func() (any, error) { return nil, h.patch(r.Context(), id, body) })
	case id != "" && r.Method == http.MethodPut:
		body, ok := s.readBody(rec, r)
		if !ok {
			return
		}
		s.respond(rec, http.StatusNoContent, func() (any, error) { return nil, h.replace(r.Context(), id, body) })
	case id != "" && r.Method == http.MethodDelete:
		s.respond(rec, http.StatusNoContent, func() (any, error) { return nil, h.delete(r.Context(), id) })
	default:
		writeError(rec, http.StatusMethodNotAllowed, remote.CodeBadRequest, "method not allowed")
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}

func (s *Server) handler(workspace, name string) (collectionHandler, bool) {
	table := s.store.Table(workspace, name)
	switch name {
	case model.CollectionKeys:
		return typedHandler[model.Key]{client: remote.NewStoreClient[model.Key](table, nil)}, true
	case model.CollectionSinks:
		return typedHandler[model.Sink]{client: remote.NewStoreClient(table, remote.AssignSinkUID(s.cfg.IDs))}, true
	case model.CollectionSources:
		return typedHandler[model.Source]{client: remote.NewStoreClient(table, remote.AssignSourceID(s.cfg.IDs))}, true
	}
	return nil, false
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, remote.CodeBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (s *Server) respond(w http.ResponseWriter, status int, fn func() (any, error)) {
	out, err := fn()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.code, reqErr.message)
	case errors.Is(err, remote.ErrNotFound):
		writeError(w, http.StatusNotFound, remote.CodeNotFound, err.Error())
	case errors.Is(err, remote.ErrConflict):
		writeError(w, http.StatusConflict, remote.CodeConflict, err.Error())
	case errors.Is(err, remote.ErrMissingID):
		writeError(w, http.StatusBadRequest, remote.CodeMissingID, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, remote.CodeInternal, "internal error")
	}
}

// requestError is a malformed request.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string { return e.code + ": " + e.message }

func badRequest(code, message string) error {
	return &requestError{code: code, message: message}
}

// collectionHandler adapts a typed client to raw request bodies.
type collectionHandler interface {
	list(ctx context.Context) (any, error)
	get(ctx context.Context, id string) (any, error)
	add(ctx context.Context, body []byte) (any, error)
	patch(ctx context.Context, id string, body []byte) error
	replace(ctx context.Context, id string, body []byte) error
	delete(ctx context.Context, id string) error
}

type typedHandler[T model.Entity] struct {
	client remote.Client[T]
}

func (h typedHandler[T]) list(ctx context.Context) (any, error) {
	return h.client.GetAll(ctx)
}

func (h typedHandler[T]) get(ctx context.Context, id string) (any, error) {
	return h.client.Get(ctx, id)
}

func (h typedHandler[T]) add(ctx context.Context, body []byte) (any, error) {
	var entity T
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, badRequest(remote.CodeBadRequest, "invalid json body")
	}
	return h.client.Add(ctx, entity)
}

func (h typedHandler[T]) patch(ctx context.Context, id string, body []byte) error {
	var patch model.Partial
	if err := json.Unmarshal(body, &patch); err != nil || patch == nil {
		return badRequest(remote.CodeBadRequest, "patch body must be a JSON object")
	}
	depth, err := model.Depth(patch)
	if err != nil {
		return badRequest(remote.CodeBadRequest, err.Error())
	}
	if depth > model.MaxPatchDepth {
		return badRequest(codePatchTooDeep, "patch nesting exceeds "+strconv.Itoa(model.MaxPatchDepth))
	}
	current, err := h.client.Get(ctx, id)
	if err != nil {
		return err
	}
	merged, err := model.Apply(current, patch)
	if err != nil {
		return badRequest(remote.CodeBadRequest, err.Error())
	}
	if merged.EntityID() != id {
		return badRequest(codeIDMismatch, "patch would change the entity id")
	}
	return h.client.Patch(ctx, id, patch)
}

func (h typedHandler[T]) replace(ctx context.Context, id string, body []byte) error {
	var entity T
	if err := json.Unmarshal(body, &entity); err != nil {
		return badRequest(remote.CodeBadRequest, "invalid json body")
	}
	if entity.EntityID() != id {
		return badRequest(codeIDMismatch, "body id does not match path")
	}
	return h.client.Replace(ctx, id, entity)
}

func (h typedHandler[T]) delete(ctx context.Context, id string) error {
	return h.client.Delete(ctx, id)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
