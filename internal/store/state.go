package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"

	"github.com/0x0BSoD/feedSync/internal/model"
)

// GetState returns the raw stored value for key. The second return value is
// false when the key has never been written.
func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM user_state WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// GetStateJSON unmarshals the stored value for key into dest. A corrupt
// stored value is logged and treated as absent so a damaged record can never
// take down a sync cycle; the caller proceeds with the zero value.
func (s *Store) GetStateJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := s.GetState(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		log.Printf("[WARN] corrupt state value for %q, using default: %v", key, err)
		return false, nil
	}
	return true, nil
}

func (s *Store) SetStateJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.SetState(ctx, key, string(raw))
}

// --- Typed accessors with defaults ---

func (s *Store) Hidden(ctx context.Context) ([]model.HiddenEntry, error) {
	var entries []model.HiddenEntry
	if _, err := s.GetStateJSON(ctx, model.StateKeyHidden, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SetHidden(ctx context.Context, entries []model.HiddenEntry) error {
	return s.SetStateJSON(ctx, model.StateKeyHidden, entries)
}

func (s *Store) Starred(ctx context.Context) ([]model.StarredEntry, error) {
	var entries []model.StarredEntry
	if _, err := s.GetStateJSON(ctx, model.StateKeyStarred, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SetStarred(ctx context.Context, entries []model.StarredEntry) error {
	return s.SetStateJSON(ctx, model.StateKeyStarred, entries)
}

func (s *Store) FilterMode(ctx context.Context) (model.FilterMode, error) {
	mode := model.FilterAll
	if _, err := s.GetStateJSON(ctx, model.StateKeyFilterMode, &mode); err != nil {
		return model.FilterAll, err
	}
	return mode, nil
}

func (s *Store) SetFilterMode(ctx context.Context, mode model.FilterMode) error {
	return s.SetStateJSON(ctx, model.StateKeyFilterMode, mode)
}

func (s *Store) Theme(ctx context.Context) (model.Theme, error) {
	theme := model.ThemeLight
	if _, err := s.GetStateJSON(ctx, model.StateKeyTheme, &theme); err != nil {
		return model.ThemeLight, err
	}
	return theme, nil
}

func (s *Store) SetTheme(ctx context.Context, theme model.Theme) error {
	return s.SetStateJSON(ctx, model.StateKeyTheme, theme)
}

// SyncEnabled defaults to true when never set.
func (s *Store) SyncEnabled(ctx context.Context) (bool, error) {
	enabled := true
	if _, err := s.GetStateJSON(ctx, model.StateKeySyncEnabled, &enabled); err != nil {
		return true, err
	}
	return enabled, nil
}

func (s *Store) SetSyncEnabled(ctx context.Context, enabled bool) error {
	return s.SetStateJSON(ctx, model.StateKeySyncEnabled, enabled)
}

// ImagesEnabled defaults to true when never set.
func (s *Store) ImagesEnabled(ctx context.Context) (bool, error) {
	enabled := true
	if _, err := s.GetStateJSON(ctx, model.StateKeyImagesEnabled, &enabled); err != nil {
		return true, err
	}
	return enabled, nil
}

func (s *Store) SetImagesEnabled(ctx context.Context, enabled bool) error {
	return s.SetStateJSON(ctx, model.StateKeyImagesEnabled, enabled)
}

// StateCursor is the opaque server-issued token for incremental state pulls.
func (s *Store) StateCursor(ctx context.Context) (string, error) {
	raw, _, err := s.GetState(ctx, model.StateKeyStateSyncCursor)
	return raw, err
}

func (s *Store) SetStateCursor(ctx context.Context, cursor string) error {
	return s.SetState(ctx, model.StateKeyStateSyncCursor, cursor)
}

// FeedSyncTime is the server time of the last fully successful feed sync,
// zero when no sync has completed yet.
func (s *Store) FeedSyncTime(ctx context.Context) (int64, error) {
	var ts int64
	if _, err := s.GetStateJSON(ctx, model.StateKeyFeedSyncTime, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

func (s *Store) SetFeedSyncTime(ctx context.Context, ts int64) error {
	return s.SetStateJSON(ctx, model.StateKeyFeedSyncTime, ts)
}
