package entities

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/entitysync/internal/collection"
	"github.com/roach88/entitysync/internal/keygen"
	"github.com/roach88/entitysync/internal/model"
)

// DefaultKeyComment labels the key created by GenerateAddInitialKeyIfNeeded.
const DefaultKeyComment = "Default key"

// Keys is the write-key collection. Key ids are generated client-side.
type Keys struct {
	*collection.Collection[model.Key]

	sinks       *Sinks
	projectID   string
	gen         keygen.Generator
	tokenLength int
	fanout      fanout
	logger      *slog.Logger
}

// NewKey builds a key with fresh uid, serverAuth and jsAuth tokens. The
// key is not stored.
func (k *Keys) NewKey() model.Key {
	return model.Key{
		UID:        keygen.Token(k.gen, keygen.TypeKey, k.projectID, k.tokenLength),
		ServerAuth: keygen.Token(k.gen, keygen.TypeServer, k.projectID, k.tokenLength),
		JSAuth:     keygen.Token(k.gen, keygen.TypeJS, k.projectID, k.tokenLength),
		Origins:    []string{},
	}
}

// Create generates and stores a new key.
func (k *Keys) Create(ctx context.Context, comment string, origins []string) (model.Key, error) {
	key := k.NewKey()
	key.Comment = comment
	if origins != nil {
		key.Origins = origins
	}
	return k.Add(ctx, key)
}

// GenerateAddInitialKeyIfNeeded creates one default key when the collection
// is empty. The bool reports whether a key was created.
func (k *Keys) GenerateAddInitialKeyIfNeeded(ctx context.Context) (model.Key, bool, error) {
	if k.Len() > 0 {
		return model.Key{}, false, nil
	}
	key, err := k.Create(ctx, DefaultKeyComment, []string{})
	if err != nil {
		return model.Key{}, false, err
	}
	k.logger.Info("created initial key", "uid", key.UID)
	return key, true, nil
}

// Patch updates comment or origins. Any other field is rejected with
// *ImmutableFieldError before the remote call.
func (k *Keys) Patch(ctx context.Context, uid string, patch model.Partial) error {
	fields := patch.Keys()
	sort.Strings(fields)
	for _, f := range fields {
		if !model.MutableKeyFields[f] {
			return &ImmutableFieldError{Field: f}
		}
	}
	return k.Collection.Patch(ctx, uid, patch)
}

// Delete removes the key, then prunes it from every sink's onlyKeys.
func (k *Keys) Delete(ctx context.Context, uid string) error {
	if err := k.Collection.Delete(ctx, uid); err != nil {
		return err
	}
	return k.unlinkFromSinks(ctx, uid)
}

func (k *Keys) unlinkFromSinks(ctx context.Context, uid string) error {
	var updates []linkUpdate[model.Sink]
	for _, sink := range k.sinks.ListIncludeHidden() {
		if !model.Contains(sink.OnlyKeys, uid) {
			continue
		}
		updates = append(updates, linkUpdate[model.Sink]{id: sink.UID, derive: withoutKeys(uid)})
	}
	return runLinks(ctx, k.fanout, fmt.Sprintf("delete key %q", uid), k.sinks.Collection, updates)
}

// LinkedSinks returns every sink, hidden ones included, whose onlyKeys
// contains uid.
func (k *Keys) LinkedSinks(uid string) []model.Sink {
	var out []model.Sink
	for _, sink := range k.sinks.ListIncludeHidden() {
		if model.Contains(sink.OnlyKeys, uid) {
			out = append(out, sink)
		}
	}
	return out
}
