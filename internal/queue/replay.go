package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/0x0BSoD/feedSync/internal/model"
)

// DeltaAPI is the slice of the server client needed to replay queued
// operations.
type DeltaAPI interface {
	HiddenDelta(ctx context.Context, d model.Delta) error
	StarredDelta(ctx context.Context, d model.Delta) error
	PushState(ctx context.Context, changes map[string]json.RawMessage) (string, error)
}

// ClientReplayer returns a ReplayFunc that re-issues each operation against
// its original endpoint. A corrupt payload is dropped with a warning; it
// can never be replayed and retrying would wedge the queue.
func ClientReplayer(api DeltaAPI) ReplayFunc {
	return func(ctx context.Context, op model.PendingOp) error {
		switch op.Type {
		case model.OpHiddenDelta:
			var d model.Delta
			if err := json.Unmarshal(op.Payload, &d); err != nil {
				log.Printf("[WARN] dropping corrupt %s payload: %v", op.Type, err)
				return nil
			}
			return api.HiddenDelta(ctx, d)

		case model.OpStarDelta:
			var d model.Delta
			if err := json.Unmarshal(op.Payload, &d); err != nil {
				log.Printf("[WARN] dropping corrupt %s payload: %v", op.Type, err)
				return nil
			}
			return api.StarredDelta(ctx, d)

		case model.OpPushUserState:
			var changes map[string]json.RawMessage
			if err := json.Unmarshal(op.Payload, &changes); err != nil {
				log.Printf("[WARN] dropping corrupt %s payload: %v", op.Type, err)
				return nil
			}
			_, err := api.PushState(ctx, changes)
			return err

		default:
			log.Printf("[WARN] dropping queued operation of unknown type %q", op.Type)
			return nil
		}
	}
}
