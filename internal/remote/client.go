package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/entitysync/internal/model"
)

// Client is the remote collection contract for entities of type T.
type Client[T model.Entity] interface {
	// GetAll returns every entity in the collection.
	GetAll(ctx context.Context) ([]T, error)
	// Get returns one entity or an error matching ErrNotFound.
	Get(ctx context.Context, id string) (T, error)
	// Add creates the entity and returns the stored form. A nil result
	// with a nil error means the server accepted the write but returned
	// nothing.
	Add(ctx context.Context, entity T) (*T, error)
	// Patch merges the partial's top-level fields into the stored entity.
	Patch(ctx context.Context, id string, patch model.Partial) error
	// Replace overwrites the stored entity.
	Replace(ctx context.Context, id string, entity T) error
	// Delete removes the entity.
	Delete(ctx context.Context, id string) error
}

// Method names, as recorded in call traces and metrics.
const (
	MethodGetAll  = "getAll"
	MethodGet     = "get"
	MethodAdd     = "add"
	MethodPatch   = "patch"
	MethodReplace = "replace"
	MethodDelete  = "delete"
)

var (
	// ErrNotFound is matched by every "no such entity" error.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is matched when creating an entity whose id already exists.
	ErrConflict = errors.New("entity already exists")

	// ErrMissingID is returned when an entity has no id where one is required.
	ErrMissingID = errors.New("entity id is required")
)

// HTTPError is a non-2xx response from the configuration service.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is maps HTTP status codes onto the package sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrConflict:
		return e.StatusCode == 409
	case ErrMissingID:
		return e.StatusCode == 400 && e.Code == CodeMissingID
	}
	return false
}

// Error codes carried in JSON error bodies.
const (
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeMissingID  = "missing_id"
	CodeBadRequest = "bad_request"
	CodeAuth       = "unauthorized"
	CodeInternal   = "internal"
)
