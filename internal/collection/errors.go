package collection

import (
	"errors"
	"fmt"

	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
)

var (
	// ErrRemoteWrite matches *RemoteWriteError.
	ErrRemoteWrite = errors.New("remote write returned no entity")

	// ErrNotFound matches *NotFoundError.
	ErrNotFound = errors.New("entity not in collection")

	// ErrPatchTooDeep matches *PatchTooDeepError.
	ErrPatchTooDeep = errors.New("patch too deep")

	// ErrIDChange matches *IDChangeError.
	ErrIDChange = errors.New("patch changes entity id")

	// ErrFetch matches *FetchError.
	ErrFetch = errors.New("fetch failed")

	// ErrMissingID is returned by Add when the collection requires
	// caller-assigned ids and the entity has none.
	ErrMissingID = remote.ErrMissingID
)

// RemoteWriteError reports a create the server accepted without returning
// the stored entity.
type RemoteWriteError struct {
	Collection string
	ID         string
}

func (e *RemoteWriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: add %q: server returned no entity", e.Collection, e.ID)
	}
	return fmt.Sprintf("%s: add: server returned no entity", e.Collection)
}

// Is reports whether target is ErrRemoteWrite.
func (e *RemoteWriteError) Is(target error) bool { return target == ErrRemoteWrite }

// NotFoundError reports a patch or replace whose target is not cached.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q not found", e.Collection, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PatchTooDeepError reports a patch nested deeper than model.MaxPatchDepth.
// It is returned before any remote call.
type PatchTooDeepError struct {
	Collection string
	ID         string
	Depth      int
}

func (e *PatchTooDeepError) Error() string {
	return fmt.Sprintf("%s: patch %q has depth %d, max %d", e.Collection, e.ID, e.Depth, model.MaxPatchDepth)
}

// Is reports whether target is ErrPatchTooDeep.
func (e *PatchTooDeepError) Is(target error) bool { return target == ErrPatchTooDeep }

// IDChangeError reports a patch that would rewrite the entity's id. It is
// returned before any remote call.
type IDChangeError struct {
	Collection string
	ID         string
	NewID      string
}

func (e *IDChangeError) Error() string {
	return fmt.Sprintf("%s: patch %q would change id to %q", e.Collection, e.ID, e.NewID)
}

// Is reports whether target is ErrIDChange.
func (e *IDChangeError) Is(target error) bool { return target == ErrIDChange }

// FetchError records a failed PullAll. It is stored on the collection,
// never returned.
type FetchError struct {
	Collection string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch failed: %v", e.Collection, e.Err)
}

// Unwrap returns the underlying remote error.
func (e *FetchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }
