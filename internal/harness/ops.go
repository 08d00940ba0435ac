package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/entitysync/internal/collection"
	"github.com/roach88/entitysync/internal/entities"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
)

// ErrInjected is what fail_next injects unless another error is named.
var ErrInjected = errors.New("injected failure")

// errorKinds maps expect_error names to the sentinel the error must match.
var errorKinds = map[string]error{
	"remote_write":     collection.ErrRemoteWrite,
	"not_found":        collection.ErrNotFound,
	"patch_too_deep":   collection.ErrPatchTooDeep,
	"fetch":            collection.ErrFetch,
	"missing_id":       collection.ErrMissingID,
	"cascade":          entities.ErrCascade,
	"immutable_field":  entities.ErrImmutableField,
	"remote_not_found": remote.ErrNotFound,
	"conflict":         remote.ErrConflict,
	"injected":         ErrInjected,
}

// injectable maps fail_next error names to the error the remote returns.
var injectable = map[string]error{
	"":          ErrInjected,
	"injected":  ErrInjected,
	"not_found": remote.ErrNotFound,
	"conflict":  remote.ErrConflict,
}

type operation func(ctx context.Context, h *Harness, args map[string]any) error

var operations = map[string]operation{
	"keys.add":                  keysAdd,
	"keys.create":               keysCreate,
	"keys.patch":                keysPatch,
	"keys.delete":               keysDelete,
	"keys.initial":              keysInitial,
	"sinks.add":                 sinksAdd,
	"sinks.patch":               sinksPatch,
	"sinks.replace":             sinksReplace,
	"sinks.delete":              sinksDelete,
	"sinks.link_keys":           sinksLinkKeys,
	"sinks.update_links_to_key": sinksUpdateLinksToKey,
	"sources.add":               sourcesAdd,
	"sources.patch":             sourcesPatch,
	"sources.replace":           sourcesReplace,
	"sources.delete":            sourcesDelete,
	"pull":                      pull,
	"fail_next":                 failNext,
	"return_nothing":            returnNothing,
}

type entityArgs[T any] struct {
	Entity            json.RawMessage `json:"entity"`
	UpdateConnections *bool           `json:"update_connections,omitempty"`
}

func (a entityArgs[T]) decode() (T, error) {
	var out T
	if len(a.Entity) == 0 {
		return out, errors.New("entity is required")
	}
	if err := json.Unmarshal(a.Entity, &out); err != nil {
		return out, fmt.Errorf("entity: %w", err)
	}
	return out, nil
}

type patchArgs struct {
	ID                string        `json:"id"`
	Patch             model.Partial `json:"patch"`
	UpdateConnections *bool         `json:"update_connections,omitempty"`
}

type idArgs struct {
	ID string `json:"id"`
}

type createKeyArgs struct {
	Comment string   `json:"comment"`
	Origins []string `json:"origins"`
}

type linkKeysArgs struct {
	Keys  []string `json:"keys"`
	Sinks []string `json:"sinks"`
}

type keyLinksArgs struct {
	Key   string   `json:"key"`
	Sinks []string `json:"sinks"`
}

type failArgs struct {
	Collection string `json:"collection"`
	Method     string `json:"method"`
	Error      string `json:"error"`
}

type returnNothingArgs struct {
	Collection string `json:"collection"`
	On         *bool  `json:"on,omitempty"`
}

// defaultTrue reads an optional flag that is on unless set to false.
func defaultTrue(flag *bool) bool {
	return flag == nil || *flag
}

func args[T any](raw map[string]any) (T, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	out, err := decodeValue[T](raw)
	if err != nil {
		return out, fmt.Errorf("args: %w", err)
	}
	return out, nil
}

func keysAdd(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[entityArgs[model.Key]](raw)
	if err != nil {
		return err
	}
	key, err := a.decode()
	if err != nil {
		return err
	}
	_, err = h.registry.Keys.Add(ctx, key)
	return err
}

func keysCreate(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[createKeyArgs](raw)
	if err != nil {
		return err
	}
	_, err = h.registry.Keys.Create(ctx, a.Comment, a.Origins)
	return err
}

func keysPatch(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[patchArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Keys.Patch(ctx, a.ID, a.Patch)
}

func keysDelete(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[idArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Keys.Delete(ctx, a.ID)
}

func keysInitial(ctx context.Context, h *Harness, raw map[string]any) error {
	if _, err := args[struct{}](raw); err != nil {
		return err
	}
	_, _, err := h.registry.Keys.GenerateAddInitialKeyIfNeeded(ctx)
	return err
}

func sinksAdd(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[entityArgs[model.Sink]](raw)
	if err != nil {
		return err
	}
	sink, err := a.decode()
	if err != nil {
		return err
	}
	_, err = h.registry.Sinks.Add(ctx, sink, defaultTrue(a.UpdateConnections))
	return err
}

func sinksPatch(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[patchArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Sinks.Patch(ctx, a.ID, a.Patch, defaultTrue(a.UpdateConnections))
}

func sinksReplace(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[entityArgs[model.Sink]](raw)
	if err != nil {
		return err
	}
	sink, err := a.decode()
	if err != nil {
		return err
	}
	return h.registry.Sinks.Replace(ctx, sink, defaultTrue(a.UpdateConnections))
}

func sinksDelete(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[idArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Sinks.Delete(ctx, a.ID)
}

func sinksLinkKeys(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[linkKeysArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Sinks.LinkKeysToSinks(ctx, a.Keys, a.Sinks)
}

func sinksUpdateLinksToKey(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[keyLinksArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Sinks.UpdateLinksToKey(ctx, a.Key, a.Sinks)
}

func sourcesAdd(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[entityArgs[model.Source]](raw)
	if err != nil {
		return err
	}
	src, err := a.decode()
	if err != nil {
		return err
	}
	_, err = h.registry.Sources.Add(ctx, src, defaultTrue(a.UpdateConnections))
	return err
}

func sourcesPatch(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[patchArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Sources.Patch(ctx, a.ID, a.Patch, defaultTrue(a.UpdateConnections))
}

func sourcesReplace(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[entityArgs[model.Source]](raw)
	if err != nil {
		return err
	}
	src, err := a.decode()
	if err != nil {
		return err
	}
	return h.registry.Sources.Replace(ctx, src, defaultTrue(a.UpdateConnections))
}

func sourcesDelete(ctx context.Context, h *Harness, raw map[string]any) error {
	a, err := args[idArgs](raw)
	if err != nil {
		return err
	}
	return h.registry.Sources.Delete(ctx, a.ID)
}

// pull refreshes the collections one after another so the trace order is
// stable, then reports any pull failure.
func pull(ctx context.Context, h *Harness, raw map[string]any) error {
	if _, err := args[struct{}](raw); err != nil {
		return err
	}
	h.registry.Keys.PullAll(ctx, false)
	h.registry.Sinks.PullAll(ctx, false)
	h.registry.Sources.PullAll(ctx, false)
	return h.registry.Err()
}

func failNext(_ context.Context, h *Harness, raw map[string]any) error {
	a, err := args[failArgs](raw)
	if err != nil {
		return err
	}
	injected, ok := injectable[a.Error]
	if !ok {
		return fmt.Errorf("fail_next: unknown error %q", a.Error)
	}
	return h.remotes.FailNext(a.Collection, a.Method, injected)
}

func returnNothing(_ context.Context, h *Harness, raw map[string]any) error {
	a, err := args[returnNothingArgs](raw)
	if err != nil {
		return err
	}
	return h.remotes.ReturnNothing(a.Collection, defaultTrue(a.On))
}

// matchesKind reports whether err is of the named kind.
func matchesKind(err error, kind string) bool {
	sentinel, ok := errorKinds[kind]
	return ok && errors.Is(err, sentinel)
}
