// Package queue buffers state-changing operations that could not reach the
// server and replays them in FIFO order once connectivity returns. The queue
// is persisted through the local store, so operations enqueued while offline
// survive a restart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/0x0BSoD/feedSync/internal/model"
)

type OpStore interface {
	AppendOp(ctx context.Context, op model.PendingOp) error
	TakeOps(ctx context.Context) ([]model.PendingOp, error)
	CountOps(ctx context.Context) (int, error)
}

// ReplayFunc re-issues a single claimed operation against the server.
type ReplayFunc func(ctx context.Context, op model.PendingOp) error

type Queue struct {
	store  OpStore
	replay ReplayFunc
	now    func() time.Time
}

func New(store OpStore, replay ReplayFunc, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{store: store, replay: replay, now: now}
}

// Enqueue appends an operation at the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, opType model.OpType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", opType, err)
	}
	op := model.PendingOp{Type: opType, Payload: raw, EnqueuedAt: q.now()}
	if err := q.store.AppendOp(ctx, op); err != nil {
		return fmt.Errorf("persist %s op: %w", opType, err)
	}
	log.Printf("[INFO] queued %s for replay", opType)
	return nil
}

// Drain claims all currently queued operations and replays them in original
// order. Operations that fail again are re-enqueued at the tail, keeping
// their relative order. The claim is atomic, so a drain triggered while
// another is in flight sees an empty queue instead of double-sending.
func (q *Queue) Drain(ctx context.Context) error {
	ops, err := q.store.TakeOps(ctx)
	if err != nil {
		return fmt.Errorf("claim queued ops: %w", err)
	}
	if len(ops) == 0 {
		return nil
	}

	log.Printf("[INFO] draining %d queued operations", len(ops))

	var failed []model.PendingOp
	for _, op := range ops {
		if err := q.replay(ctx, op); err != nil {
			log.Printf("[WARN] replay of %s failed, re-queueing: %v", op.Type, err)
			failed = append(failed, op)
		}
	}

	for _, op := range failed {
		if err := q.store.AppendOp(ctx, op); err != nil {
			return fmt.Errorf("re-enqueue %s op: %w", op.Type, err)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d queued operations failed replay", len(failed), len(ops))
	}
	return nil
}

// Len reports the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.CountOps(ctx)
}
