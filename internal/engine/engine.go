// Package engine drives the sync cycle: full sync on first run, periodic
// incremental sync gated by idle/visibility/settings guards, queue draining
// on reconnect, and marker pruning against each sync's server-time
// watermark.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/0x0BSoD/feedSync/internal/model"
)

type FeedSyncer interface {
	Sync(ctx context.Context) (int64, error)
	Empty(ctx context.Context) (bool, error)
}

type StateSyncer interface {
	Pull(ctx context.Context) (string, error)
	Push(ctx context.Context) error
}

type Drainer interface {
	Drain(ctx context.Context) error
}

type MarkerPruner interface {
	Run(ctx context.Context, entries []model.Item, serverTime time.Time) error
}

type LocalData interface {
	GetAllItems(ctx context.Context) ([]model.Item, error)
	FeedSyncTime(ctx context.Context) (int64, error)
	SyncEnabled(ctx context.Context) (bool, error)
}

// Advisor receives user-visible sync advisories ("could not refresh").
// It is nil-safe: a nil Advisor drops the message.
type Advisor interface {
	Notify(msg string)
}

// SyncResult carries the watermarks of a completed full sync.
type SyncResult struct {
	FeedTime  int64
	StateTime string
}

type Engine struct {
	feed   FeedSyncer
	state  StateSyncer
	queue  Drainer
	pruner MarkerPruner
	local  LocalData

	advisor Advisor
	now     func() time.Time

	syncInterval  time.Duration
	idleThreshold time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	settingsOpen bool
	visible      bool
	online       bool
	advisory     string
}

// New creates the sync driver. now is the clock used for idle detection and
// the staleness trigger; nil means time.Now. advisor may be nil.
func New(
	feed FeedSyncer,
	state StateSyncer,
	queue Drainer,
	pruner MarkerPruner,
	local LocalData,
	advisor Advisor,
	syncInterval time.Duration,
	idleThreshold time.Duration,
	now func() time.Time,
) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		feed:          feed,
		state:         state,
		queue:         queue,
		pruner:        pruner,
		local:         local,
		advisor:       advisor,
		now:           now,
		syncInterval:  syncInterval,
		idleThreshold: idleThreshold,
		lastActivity:  now(),
		visible:       true,
		online:        true,
	}
}

// Touch records user activity for idle detection. The UI shell calls it on
// pointer/key/scroll/focus events.
func (e *Engine) Touch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivity = e.now()
}

// SetSettingsOpen gates periodic sync while the settings modal is open.
func (e *Engine) SetSettingsOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settingsOpen = open
}

// SetVisible gates periodic sync while the document is hidden.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = visible
}

// SetOnline records a connectivity transition. Going from offline to online
// drains the queued mutations and runs a sync cycle.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online && !wasOnline {
		log.Printf("[INFO] back online, draining queue")
		if err := e.queue.Drain(ctx); err != nil {
			log.Printf("[WARN] queue drain after reconnect: %v", err)
		}
		// The drain always runs on reconnect; the sync cycle still honors
		// the remaining guards (settings open, hidden, idle, disabled).
		if !e.shouldSkip(ctx) {
			e.syncCycle(ctx)
		}
	}
}

// Advisory returns the current user-visible sync advisory, empty when the
// last cycle succeeded.
func (e *Engine) Advisory() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advisory
}

func (e *Engine) setAdvisory(msg string) {
	e.mu.Lock()
	e.advisory = msg
	e.mu.Unlock()
	// The empty message is forwarded too: it clears the advisor's view.
	if e.advisor != nil {
		e.advisor.Notify(msg)
	}
}

// Start runs the startup decision and then the periodic sync loop until ctx
// is cancelled. Sync failures never stop the loop; they surface through the
// advisory state only.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		log.Printf("[ERROR] startup sync: %v", err)
		e.setAdvisory("could not refresh")
	}

	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.shouldSkip(ctx) {
				continue
			}
			e.syncCycle(ctx)
		}
	}
}

// startup decides between full sync, incremental sync, and serving local
// data, then replays any operations queued before the last shutdown.
func (e *Engine) startup(ctx context.Context) error {
	empty, err := e.feed.Empty(ctx)
	if err != nil {
		return err
	}

	if empty {
		res, err := e.FullSync(ctx)
		if err != nil {
			return err
		}
		log.Printf("[INFO] full sync done: feedTime=%d stateTime=%s", res.FeedTime, res.StateTime)
		return nil
	}

	if err := e.queue.Drain(ctx); err != nil {
		log.Printf("[WARN] startup queue drain: %v", err)
	}

	lastSync, err := e.local.FeedSyncTime(ctx)
	if err != nil {
		return err
	}
	if time.Unix(lastSync, 0).Add(e.syncInterval).After(e.now()) {
		log.Printf("[INFO] local data fresh, serving from cache")
		return nil
	}

	e.syncCycle(ctx)
	return nil
}

// FullSync populates the local store from empty: complete feed pull plus
// complete user-state pull, then a push of anything buffered locally.
func (e *Engine) FullSync(ctx context.Context) (SyncResult, error) {
	feedTime, err := e.feed.Sync(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("feed sync: %w", err)
	}
	stateTime, err := e.state.Pull(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("state pull: %w", err)
	}
	if err := e.state.Push(ctx); err != nil {
		log.Printf("[WARN] state push during full sync: %v", err)
	}
	return SyncResult{FeedTime: feedTime, StateTime: stateTime}, nil
}

// shouldSkip evaluates the periodic-sync guards: sync disabled, settings
// modal open, document hidden, device offline, or user idle beyond the
// threshold.
func (e *Engine) shouldSkip(ctx context.Context) bool {
	enabled, err := e.local.SyncEnabled(ctx)
	if err != nil {
		log.Printf("[WARN] failed to read sync toggle: %v", err)
		enabled = true
	}
	if !enabled {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settingsOpen || !e.visible || !e.online {
		return true
	}
	return e.now().Sub(e.lastActivity) > e.idleThreshold
}

// syncCycle runs one drain + feed sync + prune + state pull/push pass. Every
// failure is caught here: the previous watermark stays in effect and the UI
// sees an advisory instead of an error.
func (e *Engine) syncCycle(ctx context.Context) {
	if err := e.queue.Drain(ctx); err != nil {
		log.Printf("[WARN] queue drain: %v", err)
	}

	feedTime, err := e.feed.Sync(ctx)
	if err != nil {
		log.Printf("[ERROR] feed sync: %v", err)
		e.setAdvisory("could not refresh")
		return
	}

	entries, err := e.local.GetAllItems(ctx)
	if err != nil {
		log.Printf("[ERROR] load items for pruning: %v", err)
	} else if err := e.pruner.Run(ctx, entries, time.Unix(feedTime, 0)); err != nil {
		log.Printf("[WARN] prune markers: %v", err)
	}

	if _, err := e.state.Pull(ctx); err != nil {
		log.Printf("[ERROR] state pull: %v", err)
		e.setAdvisory("could not refresh")
		return
	}
	if err := e.state.Push(ctx); err != nil {
		log.Printf("[WARN] state push: %v", err)
	}

	e.setAdvisory("")
}
