// Package feed reconciles the local items collection against the server's
// authoritative id set using diff-based sync with a staleness grace window.
package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/feedSync/internal/model"
)

type ItemStore interface {
	GetAllItems(ctx context.Context) ([]model.Item, error)
	CountItems(ctx context.Context) (int, error)
	UpsertItems(ctx context.Context, items []model.Item) error
	DeleteItems(ctx context.Context, ids []string) error
	TouchItems(ctx context.Context, ids []string, serverTime int64) error
	SetFeedSyncTime(ctx context.Context, ts int64) error
}

type FeedAPI interface {
	ServerTime(ctx context.Context) (time.Time, error)
	GUIDs(ctx context.Context) ([]string, error)
	ItemsByGUID(ctx context.Context, guids []string) (map[string]model.Item, error)
}

type Syncer struct {
	items ItemStore
	api   FeedAPI

	graceWindow time.Duration
	batchSize   int
}

func New(items ItemStore, api FeedAPI, graceWindow time.Duration, batchSize int) *Syncer {
	return &Syncer{
		items:       items,
		api:         api,
		graceWindow: graceWindow,
		batchSize:   batchSize,
	}
}

// Sync performs one diff-based reconciliation pass and returns the server
// time watermark it was performed against.
//
// Failures while fetching the server time or id list abort the whole pass
// with no local changes; a failure inside the per-batch content fetch leaves
// the batches committed so far intact. The feed sync timestamp advances only
// when the whole pass succeeds.
func (s *Syncer) Sync(ctx context.Context) (int64, error) {
	serverNow, err := s.api.ServerTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch server time: %w", err)
	}
	serverTime := serverNow.Unix()
	staleCutoff := serverNow.Add(-s.graceWindow).Unix()

	serverIDs, err := s.api.GUIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch guid list: %w", err)
	}

	local, err := s.items.GetAllItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("load local items: %w", err)
	}

	onServer := lo.SliceToMap(serverIDs, func(id string) (string, struct{}) {
		return id, struct{}{}
	})
	localIDs := lo.SliceToMap(local, func(it model.Item) (string, struct{}) {
		return it.ID, struct{}{}
	})

	// Items gone from the server stay until the grace window expires, so a
	// transiently incomplete server list does not wipe recent entries.
	stale := lo.FilterMap(local, func(it model.Item, _ int) (string, bool) {
		_, present := onServer[it.ID]
		return it.ID, !present && it.LastSyncedAt < staleCutoff
	})
	if len(stale) > 0 {
		if err := s.items.DeleteItems(ctx, stale); err != nil {
			return 0, fmt.Errorf("delete stale items: %w", err)
		}
		log.Printf("[INFO] feed sync: deleted %d stale items", len(stale))
	}

	missing := lo.Filter(serverIDs, func(id string, _ int) bool {
		_, ok := localIDs[id]
		return !ok
	})
	for _, batch := range lo.Chunk(missing, s.batchSize) {
		fetched, err := s.api.ItemsByGUID(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("fetch item batch: %w", err)
		}
		items := make([]model.Item, 0, len(batch))
		for _, id := range batch {
			it, ok := fetched[id]
			if !ok {
				log.Printf("[WARN] feed sync: server omitted requested item %s", id)
				continue
			}
			it.ID = id
			it.LastSyncedAt = serverTime
			items = append(items, it)
		}
		if err := s.items.UpsertItems(ctx, items); err != nil {
			return 0, fmt.Errorf("store item batch: %w", err)
		}
	}
	if len(missing) > 0 {
		log.Printf("[INFO] feed sync: fetched %d new items", len(missing))
	}

	// Refresh the staleness clock on everything the server still lists,
	// batch-wise to keep each transaction short.
	survivors := lo.Filter(serverIDs, func(id string, _ int) bool {
		_, ok := localIDs[id]
		return ok
	})
	for _, batch := range lo.Chunk(survivors, s.batchSize) {
		if err := s.items.TouchItems(ctx, batch, serverTime); err != nil {
			return 0, fmt.Errorf("refresh item batch: %w", err)
		}
	}

	if err := s.items.SetFeedSyncTime(ctx, serverTime); err != nil {
		return 0, fmt.Errorf("store feed sync time: %w", err)
	}

	return serverTime, nil
}

// Empty reports whether the local items collection has never been populated,
// which routes startup through a full sync.
func (s *Syncer) Empty(ctx context.Context) (bool, error) {
	n, err := s.items.CountItems(ctx)
	if err != nil {
		return false, fmt.Errorf("count local items: %w", err)
	}
	return n == 0, nil
}
