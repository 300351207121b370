package userstate

import (
	"time"

	"github.com/0x0BSoD/feedSync/internal/model"
)

// FlipHidden returns the hidden list with membership of id flipped. The flip
// is a pure state transition with no side effects; duplicates by id never
// survive it. The returned action says which direction the flip took.
func FlipHidden(entries []model.HiddenEntry, id string, now time.Time) ([]model.HiddenEntry, model.DeltaAction) {
	out := make([]model.HiddenEntry, 0, len(entries)+1)
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		out = append(out, e)
	}
	if found {
		return out, model.DeltaRemove
	}
	out = append(out, model.HiddenEntry{ID: id, HiddenAt: now})
	return out, model.DeltaAdd
}

// FlipStarred is the starred-list counterpart of FlipHidden.
func FlipStarred(entries []model.StarredEntry, id string, now time.Time) ([]model.StarredEntry, model.DeltaAction) {
	out := make([]model.StarredEntry, 0, len(entries)+1)
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		out = append(out, e)
	}
	if found {
		return out, model.DeltaRemove
	}
	out = append(out, model.StarredEntry{ID: id, StarredAt: now})
	return out, model.DeltaAdd
}
