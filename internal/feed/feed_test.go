package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/feedSync/internal/model"
)

type fakeItemStore struct {
	items map[string]model.Item

	upsertBatches []int
	touchBatches  []int
	feedSyncTime  int64
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[string]model.Item)}
}

func (f *fakeItemStore) GetAllItems(ctx context.Context) ([]model.Item, error) {
	out := make([]model.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeItemStore) CountItems(ctx context.Context) (int, error) {
	return len(f.items), nil
}

func (f *fakeItemStore) UpsertItems(ctx context.Context, items []model.Item) error {
	f.upsertBatches = append(f.upsertBatches, len(items))
	for _, it := range items {
		f.items[it.ID] = it
	}
	return nil
}

func (f *fakeItemStore) DeleteItems(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.items, id)
	}
	return nil
}

func (f *fakeItemStore) TouchItems(ctx context.Context, ids []string, serverTime int64) error {
	f.touchBatches = append(f.touchBatches, len(ids))
	for _, id := range ids {
		it := f.items[id]
		it.LastSyncedAt = serverTime
		f.items[id] = it
	}
	return nil
}

func (f *fakeItemStore) SetFeedSyncTime(ctx context.Context, ts int64) error {
	f.feedSyncTime = ts
	return nil
}

type fakeFeedAPI struct {
	serverTime time.Time
	guids      []string

	guidsErr    error
	failAtBatch int // 1-based; 0 means never fail
	batchesSeen int
	batchSizes  []int
}

func (f *fakeFeedAPI) ServerTime(ctx context.Context) (time.Time, error) {
	return f.serverTime, nil
}

func (f *fakeFeedAPI) GUIDs(ctx context.Context) ([]string, error) {
	if f.guidsErr != nil {
		return nil, f.guidsErr
	}
	return f.guids, nil
}

func (f *fakeFeedAPI) ItemsByGUID(ctx context.Context, guids []string) (map[string]model.Item, error) {
	f.batchesSeen++
	if f.failAtBatch != 0 && f.batchesSeen >= f.failAtBatch {
		return nil, errors.New("batch fetch failed")
	}
	f.batchSizes = append(f.batchSizes, len(guids))
	out := make(map[string]model.Item, len(guids))
	for _, g := range guids {
		out[g] = model.Item{Title: "item " + g}
	}
	return out, nil
}

func guidList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("guid-%03d", i)
	}
	return out
}

const day = 24 * time.Hour

func TestFullPopulationIsBatched(t *testing.T) {
	serverTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeFeedAPI{serverTime: serverTime, guids: guidList(130)}
	items := newFakeItemStore()

	s := New(items, api, 30*day, 50)
	got, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, serverTime.Unix(), got)

	// 130 missing ids fetched as 50+50+30, each committed independently.
	assert.Equal(t, []int{50, 50, 30}, api.batchSizes)
	assert.Equal(t, []int{50, 50, 30}, items.upsertBatches)
	assert.Len(t, items.items, 130)
	for _, it := range items.items {
		assert.Equal(t, serverTime.Unix(), it.LastSyncedAt)
	}
	assert.Equal(t, serverTime.Unix(), items.feedSyncTime)
}

func TestGraceWindowDeletion(t *testing.T) {
	serverTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeFeedAPI{serverTime: serverTime, guids: []string{"kept"}}

	items := newFakeItemStore()
	items.items["kept"] = model.Item{ID: "kept", LastSyncedAt: serverTime.Add(-40 * day).Unix()}
	// Absent from the server but inside the grace window: stays.
	items.items["recent-orphan"] = model.Item{ID: "recent-orphan", LastSyncedAt: serverTime.Add(-29 * day).Unix()}
	// Absent and past the window: goes.
	items.items["stale-orphan"] = model.Item{ID: "stale-orphan", LastSyncedAt: serverTime.Add(-31 * day).Unix()}

	s := New(items, api, 30*day, 50)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Contains(t, items.items, "kept")
	assert.Contains(t, items.items, "recent-orphan")
	assert.NotContains(t, items.items, "stale-orphan")

	// The survivor's staleness clock was refreshed without a content fetch.
	assert.Equal(t, serverTime.Unix(), items.items["kept"].LastSyncedAt)
	assert.Zero(t, api.batchesSeen)
}

func TestGUIDFetchFailureAbortsWithoutChanges(t *testing.T) {
	serverTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeFeedAPI{serverTime: serverTime, guidsErr: errors.New("boom")}

	items := newFakeItemStore()
	items.items["existing"] = model.Item{ID: "existing", LastSyncedAt: 1}
	items.feedSyncTime = 777

	s := New(items, api, 30*day, 50)
	_, err := s.Sync(context.Background())
	require.Error(t, err)

	// No partial credit: items and watermark are untouched.
	assert.EqualValues(t, 1, items.items["existing"].LastSyncedAt)
	assert.EqualValues(t, 777, items.feedSyncTime)
}

func TestBatchFailureKeepsCommittedBatches(t *testing.T) {
	serverTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeFeedAPI{serverTime: serverTime, guids: guidList(130), failAtBatch: 3}
	items := newFakeItemStore()

	s := New(items, api, 30*day, 50)
	_, err := s.Sync(context.Background())
	require.Error(t, err)

	// The first two batches stay committed; the watermark does not advance.
	assert.Len(t, items.items, 100)
	assert.Zero(t, items.feedSyncTime)
}

func TestEmpty(t *testing.T) {
	items := newFakeItemStore()
	s := New(items, &fakeFeedAPI{}, 30*day, 50)

	empty, err := s.Empty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty)

	items.items["x"] = model.Item{ID: "x"}
	empty, err = s.Empty(context.Background())
	require.NoError(t, err)
	assert.False(t, empty)
}
