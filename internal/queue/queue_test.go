package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/feedSync/internal/model"
)

type fakeOpStore struct {
	ops    []model.PendingOp
	nextID int64
}

func (f *fakeOpStore) AppendOp(ctx context.Context, op model.PendingOp) error {
	f.nextID++
	op.ID = f.nextID
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakeOpStore) TakeOps(ctx context.Context) ([]model.PendingOp, error) {
	out := f.ops
	f.ops = nil
	return out, nil
}

func (f *fakeOpStore) CountOps(ctx context.Context) (int, error) {
	return len(f.ops), nil
}

func deltaPayload(t *testing.T, id string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(model.Delta{ID: id, Action: model.DeltaAdd, Timestamp: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	return raw
}

func TestDrainReplaysInOrder(t *testing.T) {
	st := &fakeOpStore{}
	var replayed []string
	q := New(st, func(ctx context.Context, op model.PendingOp) error {
		var d model.Delta
		require.NoError(t, json.Unmarshal(op.Payload, &d))
		replayed = append(replayed, d.ID)
		return nil
	}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.OpHiddenDelta, model.Delta{ID: "a", Action: model.DeltaAdd}))
	require.NoError(t, q.Enqueue(ctx, model.OpHiddenDelta, model.Delta{ID: "b", Action: model.DeltaAdd}))

	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, []string{"a", "b"}, replayed)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainRequeuesOnlyFailures(t *testing.T) {
	st := &fakeOpStore{}
	failing := map[string]bool{"a": true}
	var replayed []string
	q := New(st, func(ctx context.Context, op model.PendingOp) error {
		var d model.Delta
		require.NoError(t, json.Unmarshal(op.Payload, &d))
		if failing[d.ID] {
			return errors.New("still unreachable")
		}
		replayed = append(replayed, d.ID)
		return nil
	}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.OpHiddenDelta, model.Delta{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, model.OpStarDelta, model.Delta{ID: "b"}))

	// A fails, B succeeds: the drain reports the failure and keeps only A.
	require.Error(t, q.Drain(ctx))
	assert.Equal(t, []string{"b"}, replayed)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The next drain retries only A.
	failing["a"] = false
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, []string{"b", "a"}, replayed)
}

func TestDrainIsReentrantSafe(t *testing.T) {
	st := &fakeOpStore{}
	var q *Queue
	var replayed int
	q = New(st, func(ctx context.Context, op model.PendingOp) error {
		// A drain triggered while this one is in flight must not see the
		// already-claimed operations.
		require.NoError(t, q.Drain(ctx))
		replayed++
		return nil
	}, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.OpHiddenDelta, model.Delta{ID: "a"}))
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, 1, replayed)
}

type fakeDeltaAPI struct {
	hidden  []model.Delta
	starred []model.Delta
	pushed  []map[string]json.RawMessage
}

func (f *fakeDeltaAPI) HiddenDelta(ctx context.Context, d model.Delta) error {
	f.hidden = append(f.hidden, d)
	return nil
}

func (f *fakeDeltaAPI) StarredDelta(ctx context.Context, d model.Delta) error {
	f.starred = append(f.starred, d)
	return nil
}

func (f *fakeDeltaAPI) PushState(ctx context.Context, changes map[string]json.RawMessage) (string, error) {
	f.pushed = append(f.pushed, changes)
	return "t1", nil
}

func TestClientReplayerDispatch(t *testing.T) {
	api := &fakeDeltaAPI{}
	replay := ClientReplayer(api)
	ctx := context.Background()

	require.NoError(t, replay(ctx, model.PendingOp{Type: model.OpHiddenDelta, Payload: deltaPayload(t, "h")}))
	require.NoError(t, replay(ctx, model.PendingOp{Type: model.OpStarDelta, Payload: deltaPayload(t, "s")}))
	require.NoError(t, replay(ctx, model.PendingOp{
		Type:    model.OpPushUserState,
		Payload: []byte(`{"theme":"\"dark\""}`),
	}))

	require.Len(t, api.hidden, 1)
	assert.Equal(t, "h", api.hidden[0].ID)
	require.Len(t, api.starred, 1)
	assert.Equal(t, "s", api.starred[0].ID)
	require.Len(t, api.pushed, 1)
}

func TestClientReplayerDropsCorruptPayload(t *testing.T) {
	api := &fakeDeltaAPI{}
	replay := ClientReplayer(api)

	// Corrupt payloads are dropped, not retried forever.
	require.NoError(t, replay(context.Background(), model.PendingOp{
		Type:    model.OpHiddenDelta,
		Payload: []byte(`{broken`),
	}))
	assert.Empty(t, api.hidden)

	require.NoError(t, replay(context.Background(), model.PendingOp{
		Type:    model.OpType("mystery"),
		Payload: []byte(`{}`),
	}))
}
