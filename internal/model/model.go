// Package model defines the data structures used in the feedSync engine, including Item, the user-state collections (hidden/starred markers, settings), and the queued operations replayed after connectivity loss.
package model

import (
	"encoding/json"
	"time"
)

// Item is one feed entry as issued by the server. ID is the server-assigned
// GUID and is the sole identity; LastSyncedAt is the server time of the last
// sync that confirmed the item present.
type Item struct {
	ID           string `db:"id" json:"id"`
	Title        string `db:"title" json:"title"`
	Link         string `db:"link" json:"link"`
	PublishedAt  string `db:"published_at" json:"pubDate"`
	Description  string `db:"description" json:"description"`
	Source       string `db:"source" json:"source"`
	LastSyncedAt int64  `db:"last_synced_at" json:"-"`
}

// HiddenEntry marks an item the user hid, with the time of hiding.
type HiddenEntry struct {
	ID       string    `json:"id"`
	HiddenAt time.Time `json:"hiddenAt"`
}

// StarredEntry marks an item the user starred, with the time of starring.
type StarredEntry struct {
	ID        string    `json:"id"`
	StarredAt time.Time `json:"starredAt"`
}

type FilterMode string

const (
	FilterAll     FilterMode = "all"
	FilterUnread  FilterMode = "unread"
	FilterHidden  FilterMode = "hidden"
	FilterStarred FilterMode = "starred"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// State keys as stored in the user_state collection. Composite values are
// JSON-serialized under these names.
const (
	StateKeyHidden          = "hidden"
	StateKeyStarred         = "starred"
	StateKeyFilterMode      = "filterMode"
	StateKeyTheme           = "theme"
	StateKeySyncEnabled     = "syncEnabled"
	StateKeyImagesEnabled   = "imagesEnabled"
	StateKeyStateSyncCursor = "lastStateSync"
	StateKeyFeedSyncTime    = "lastFeedSync"
)

type OpType string

const (
	OpPushUserState OpType = "pushUserState"
	OpHiddenDelta   OpType = "hiddenDelta"
	OpStarDelta     OpType = "starDelta"
)

// PendingOp is a state-changing operation buffered while offline or after a
// failed remote call, replayed in FIFO order by the queue.
type PendingOp struct {
	ID         int64           `db:"id"`
	Type       OpType          `db:"op_type"`
	Payload    json.RawMessage `db:"payload"`
	EnqueuedAt time.Time       `db:"enqueued_at"`
}

// DeltaAction is the direction of a single hidden/starred toggle.
type DeltaAction string

const (
	DeltaAdd    DeltaAction = "add"
	DeltaRemove DeltaAction = "remove"
)

// Delta is a single-marker change propagated on its own endpoint instead of a
// full state push.
type Delta struct {
	ID        string      `json:"id"`
	Action    DeltaAction `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
}
