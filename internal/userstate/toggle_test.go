package userstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/0x0BSoD/feedSync/internal/model"
)

func TestFlipHidden(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	updated, action := FlipHidden(nil, "a", now)
	assert.Equal(t, model.DeltaAdd, action)
	assert.Len(t, updated, 1)
	assert.Equal(t, "a", updated[0].ID)
	assert.True(t, updated[0].HiddenAt.Equal(now))

	// Flipping again restores the original membership.
	updated, action = FlipHidden(updated, "a", now)
	assert.Equal(t, model.DeltaRemove, action)
	assert.Empty(t, updated)
}

func TestFlipHiddenNeverDuplicates(t *testing.T) {
	now := time.Unix(1000, 0)
	entries := []model.HiddenEntry{
		{ID: "a", HiddenAt: now},
		{ID: "a", HiddenAt: now}, // damaged input with a duplicate
		{ID: "b", HiddenAt: now},
	}

	updated, action := FlipHidden(entries, "a", now)
	assert.Equal(t, model.DeltaRemove, action)
	assert.Len(t, updated, 1)
	assert.Equal(t, "b", updated[0].ID)
}

func TestFlipHiddenPreservesOrder(t *testing.T) {
	now := time.Unix(1000, 0)
	entries := []model.HiddenEntry{
		{ID: "a", HiddenAt: now},
		{ID: "b", HiddenAt: now},
	}

	updated, _ := FlipHidden(entries, "c", now.Add(time.Hour))
	assert.Equal(t, []string{"a", "b", "c"}, []string{updated[0].ID, updated[1].ID, updated[2].ID})
}

func TestFlipStarred(t *testing.T) {
	now := time.Unix(1000, 0)

	updated, action := FlipStarred(nil, "a", now)
	assert.Equal(t, model.DeltaAdd, action)
	assert.Len(t, updated, 1)

	updated, action = FlipStarred(updated, "a", now)
	assert.Equal(t, model.DeltaRemove, action)
	assert.Empty(t, updated)
}
