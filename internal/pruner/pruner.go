// Package pruner removes hidden/starred markers for items the feed no longer
// carries, after a grace window, so local state stays bounded without
// discarding recent user intent.
package pruner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/feedSync/internal/model"
)

type MarkerStore interface {
	Hidden(ctx context.Context) ([]model.HiddenEntry, error)
	SetHidden(ctx context.Context, entries []model.HiddenEntry) error
	Starred(ctx context.Context) ([]model.StarredEntry, error)
	SetStarred(ctx context.Context, entries []model.StarredEntry) error
}

type Pruner struct {
	store       MarkerStore
	graceWindow time.Duration
}

func New(store MarkerStore, graceWindow time.Duration) *Pruner {
	return &Pruner{store: store, graceWindow: graceWindow}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// validitySet builds the set of normalized ids present in the feed snapshot.
// It returns ok=false when the snapshot is empty or contains an entry with
// no usable id; pruning against such a snapshot would treat "feed failed to
// load" as "item deleted".
func validitySet(entries []model.Item) (map[string]struct{}, bool) {
	if len(entries) == 0 {
		return nil, false
	}
	valid := make(map[string]struct{}, len(entries))
	for _, it := range entries {
		id := normalizeID(it.ID)
		if id == "" {
			return nil, false
		}
		valid[id] = struct{}{}
	}
	return valid, true
}

// PruneHidden returns the hidden list filtered against the feed snapshot. A
// marker survives when its item is still in the feed or when it is younger
// than the grace window measured in server time. The second return value
// reports whether anything was dropped.
func PruneHidden(entries []model.Item, hidden []model.HiddenEntry, serverTime time.Time, graceWindow time.Duration) ([]model.HiddenEntry, bool) {
	valid, ok := validitySet(entries)
	if !ok {
		return hidden, false
	}
	kept := lo.Filter(hidden, func(h model.HiddenEntry, _ int) bool {
		if _, present := valid[normalizeID(h.ID)]; present {
			return true
		}
		return serverTime.Sub(h.HiddenAt) < graceWindow
	})
	return kept, len(kept) != len(hidden)
}

// PruneStarred is the starred-list counterpart of PruneHidden.
func PruneStarred(entries []model.Item, starred []model.StarredEntry, serverTime time.Time, graceWindow time.Duration) ([]model.StarredEntry, bool) {
	valid, ok := validitySet(entries)
	if !ok {
		return starred, false
	}
	kept := lo.Filter(starred, func(s model.StarredEntry, _ int) bool {
		if _, present := valid[normalizeID(s.ID)]; present {
			return true
		}
		return serverTime.Sub(s.StarredAt) < graceWindow
	})
	return kept, len(kept) != len(starred)
}

// Run prunes both marker lists against the current feed snapshot and
// persists a list only when something was actually dropped.
func (p *Pruner) Run(ctx context.Context, entries []model.Item, serverTime time.Time) error {
	hidden, err := p.store.Hidden(ctx)
	if err != nil {
		return fmt.Errorf("load hidden list: %w", err)
	}
	if kept, changed := PruneHidden(entries, hidden, serverTime, p.graceWindow); changed {
		if err := p.store.SetHidden(ctx, kept); err != nil {
			return fmt.Errorf("store pruned hidden list: %w", err)
		}
		log.Printf("[INFO] pruned %d hidden markers", len(hidden)-len(kept))
	}

	starred, err := p.store.Starred(ctx)
	if err != nil {
		return fmt.Errorf("load starred list: %w", err)
	}
	if kept, changed := PruneStarred(entries, starred, serverTime, p.graceWindow); changed {
		if err := p.store.SetStarred(ctx, kept); err != nil {
			return fmt.Errorf("store pruned starred list: %w", err)
		}
		log.Printf("[INFO] pruned %d starred markers", len(starred)-len(kept))
	}

	return nil
}
