// Package userstate synchronizes the user's annotations (hidden/starred
// markers, settings) with the server. It owns all writes to the state
// collection: the UI reads state and calls the toggle/set operations here,
// never writing directly.
//
// Every mutation is applied locally first; remote propagation happens after
// and its failure is never surfaced to the mutating caller.
package userstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/0x0BSoD/feedSync/internal/client"
	"github.com/0x0BSoD/feedSync/internal/model"
)

type StateStore interface {
	Hidden(ctx context.Context) ([]model.HiddenEntry, error)
	SetHidden(ctx context.Context, entries []model.HiddenEntry) error
	Starred(ctx context.Context) ([]model.StarredEntry, error)
	SetStarred(ctx context.Context, entries []model.StarredEntry) error
	SetState(ctx context.Context, key, value string) error
	SetStateJSON(ctx context.Context, key string, value any) error
	StateCursor(ctx context.Context) (string, error)
	SetStateCursor(ctx context.Context, cursor string) error
}

type StateAPI interface {
	PullState(ctx context.Context, cursor string) (*client.StateChanges, error)
	PushState(ctx context.Context, changes map[string]json.RawMessage) (string, error)
	HiddenDelta(ctx context.Context, d model.Delta) error
	StarredDelta(ctx context.Context, d model.Delta) error
}

// OpQueue receives operations whose remote propagation failed so they can be
// replayed when connectivity returns.
type OpQueue interface {
	Enqueue(ctx context.Context, opType model.OpType, payload any) error
}

type Engine struct {
	store StateStore
	api   StateAPI
	queue OpQueue
	buf   *Buffer
	now   func() time.Time
}

// New creates a user-state sync engine. now is the clock used to stamp
// hidden/starred markers; nil means time.Now.
func New(store StateStore, api StateAPI, queue OpQueue, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store: store,
		api:   api,
		queue: queue,
		buf:   NewBuffer(),
		now:   now,
	}
}

// Pull applies server-side state changes since the stored cursor and returns
// the cursor in effect afterwards. A not-modified response leaves both state
// and cursor untouched.
func (e *Engine) Pull(ctx context.Context) (string, error) {
	cursor, err := e.store.StateCursor(ctx)
	if err != nil {
		return "", fmt.Errorf("load state cursor: %w", err)
	}

	res, err := e.api.PullState(ctx, cursor)
	if errors.Is(err, client.ErrNotModified) {
		return cursor, nil
	}
	if err != nil {
		return "", fmt.Errorf("pull user state: %w", err)
	}

	for key, value := range res.Changes {
		if key == model.StateKeyStateSyncCursor {
			continue
		}
		if err := e.store.SetState(ctx, key, string(value)); err != nil {
			return "", fmt.Errorf("apply state change %q: %w", key, err)
		}
	}
	if err := e.store.SetStateCursor(ctx, res.ServerTime); err != nil {
		return "", fmt.Errorf("store state cursor: %w", err)
	}

	return res.ServerTime, nil
}

// Push uploads the buffered local mutations. On HTTP failure the buffer is
// left intact so the next attempt retries the same changes; the server
// applies them last-write-wins per key, which keeps the retry idempotent.
// An offline push is handed to the queue for replay instead.
func (e *Engine) Push(ctx context.Context) error {
	snapshot := e.buf.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	serverTime, err := e.api.PushState(ctx, snapshot)
	if errors.Is(err, client.ErrOffline) {
		// An offline push moves to the durable queue so it survives a
		// restart; the queue replays it once connectivity returns.
		if qerr := e.queue.Enqueue(ctx, model.OpPushUserState, snapshot); qerr != nil {
			return fmt.Errorf("enqueue state push: %w", qerr)
		}
		e.buf.Ack(snapshot)
		log.Printf("[WARN] state push deferred: device offline")
		return nil
	}
	if err != nil {
		return fmt.Errorf("push user state: %w", err)
	}

	e.buf.Ack(snapshot)
	if err := e.store.SetStateCursor(ctx, serverTime); err != nil {
		return fmt.Errorf("store state cursor: %w", err)
	}
	return nil
}

// ToggleHidden flips the hidden marker for id: locally first, then as a
// single delta call. A failed or offline delta is queued for replay, never
// reported to the caller.
func (e *Engine) ToggleHidden(ctx context.Context, id string) (model.DeltaAction, error) {
	entries, err := e.store.Hidden(ctx)
	if err != nil {
		return "", fmt.Errorf("load hidden list: %w", err)
	}

	updated, action := FlipHidden(entries, id, e.now())
	if err := e.store.SetHidden(ctx, updated); err != nil {
		return "", fmt.Errorf("store hidden list: %w", err)
	}

	delta := model.Delta{ID: id, Action: action, Timestamp: e.now()}
	if err := e.api.HiddenDelta(ctx, delta); err != nil {
		log.Printf("[WARN] hidden delta for %s deferred: %v", id, err)
		if err := e.queue.Enqueue(ctx, model.OpHiddenDelta, delta); err != nil {
			return "", fmt.Errorf("enqueue hidden delta: %w", err)
		}
	}

	return action, nil
}

// ToggleStarred is the starred counterpart of ToggleHidden.
func (e *Engine) ToggleStarred(ctx context.Context, id string) (model.DeltaAction, error) {
	entries, err := e.store.Starred(ctx)
	if err != nil {
		return "", fmt.Errorf("load starred list: %w", err)
	}

	updated, action := FlipStarred(entries, id, e.now())
	if err := e.store.SetStarred(ctx, updated); err != nil {
		return "", fmt.Errorf("store starred list: %w", err)
	}

	delta := model.Delta{ID: id, Action: action, Timestamp: e.now()}
	if err := e.api.StarredDelta(ctx, delta); err != nil {
		log.Printf("[WARN] starred delta for %s deferred: %v", id, err)
		if err := e.queue.Enqueue(ctx, model.OpStarDelta, delta); err != nil {
			return "", fmt.Errorf("enqueue starred delta: %w", err)
		}
	}

	return action, nil
}

// SetTheme writes the theme locally and buffers it for the next push.
func (e *Engine) SetTheme(ctx context.Context, theme model.Theme) error {
	if err := e.store.SetStateJSON(ctx, model.StateKeyTheme, theme); err != nil {
		return err
	}
	e.buf.Add(model.StateKeyTheme, theme)
	return nil
}

// SetFilterMode writes the filter mode locally and buffers it for the next
// push.
func (e *Engine) SetFilterMode(ctx context.Context, mode model.FilterMode) error {
	if err := e.store.SetStateJSON(ctx, model.StateKeyFilterMode, mode); err != nil {
		return err
	}
	e.buf.Add(model.StateKeyFilterMode, mode)
	return nil
}

// SetSyncEnabled writes the sync toggle locally and buffers it for the next
// push.
func (e *Engine) SetSyncEnabled(ctx context.Context, enabled bool) error {
	if err := e.store.SetStateJSON(ctx, model.StateKeySyncEnabled, enabled); err != nil {
		return err
	}
	e.buf.Add(model.StateKeySyncEnabled, enabled)
	return nil
}

// SetImagesEnabled writes the images toggle locally and buffers it for the
// next push.
func (e *Engine) SetImagesEnabled(ctx context.Context, enabled bool) error {
	if err := e.store.SetStateJSON(ctx, model.StateKeyImagesEnabled, enabled); err != nil {
		return err
	}
	e.buf.Add(model.StateKeyImagesEnabled, enabled)
	return nil
}

// Pending reports the number of buffered, unsent state changes.
func (e *Engine) Pending() int {
	return e.buf.Len()
}
