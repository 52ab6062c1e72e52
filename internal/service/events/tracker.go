package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/service/countdown"
	"github.com/kapu/hololive-widget-go/internal/util"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type Source interface {
	Name() string
	FetchEvents(ctx context.Context) ([]domain.Event, error)
}

// Registrar is the part of the countdown engine the tracker drives.
type Registrar interface {
	Register(ctx context.Context, window domain.TimerWindow, tickInterval time.Duration) (countdown.Handle, error)
	Cleanup(handle countdown.Handle)
	IsActive(handle countdown.Handle) bool
	Label(handle countdown.Handle) (string, bool)
}

type Config struct {
	SyncInterval time.Duration
	TickInterval time.Duration
	TargetPrefix string
}

type tracked struct {
	event  domain.Event
	handle countdown.Handle
}

// Tracker keeps one countdown per known event. Events new to the feed are
// registered, events gone from the feed are cleaned up, and events whose
// countdown stopped early (target detached) are registered again until they
// end.
type Tracker struct {
	sources []Source
	engine  Registrar
	clock   util.Clock
	logger  *zap.Logger
	cfg     Config

	mu      sync.Mutex
	tracked map[domain.EventID]*tracked

	runCtx   context.Context
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTracker(sources []Source, engine Registrar, cfg Config, clock util.Clock, logger *zap.Logger) *Tracker {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = constants.EventsConfig.SyncInterval
	}
	if cfg.TargetPrefix == "" {
		cfg.TargetPrefix = constants.EventsConfig.TargetPrefix
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sources: sources,
		engine:  engine,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
		tracked: make(map[domain.EventID]*tracked),
		runCtx:  context.Background(),
		stopCh:  make(chan struct{}),
	}
}

// Sync pulls every source and reconciles registrations. When a source fails
// its error is returned, events from the other sources are still registered
// and nothing is cleaned up, since a missing event may only be missing
// because its source failed.
func (t *Tracker) Sync(ctx context.Context) error {
	var (
		resultsMu sync.Mutex
		results   = make(map[string][]domain.Event, len(t.sources))
	)

	p := pool.New().WithErrors().WithContext(ctx)
	for _, src := range t.sources {
		p.Go(func(ctx context.Context) error {
			events, err := src.FetchEvents(ctx)
			if err != nil {
				return fmt.Errorf("event source %s: %w", src.Name(), err)
			}
			resultsMu.Lock()
			results[src.Name()] = events
			resultsMu.Unlock()
			return nil
		})
	}
	fetchErr := p.Wait()

	current := make(map[domain.EventID]domain.Event)
	order := make([]domain.EventID, 0)
	for _, src := range t.sources {
		for _, event := range results[src.Name()] {
			if _, dup := current[event.ID]; dup {
				continue
			}
			current[event.ID] = event
			order = append(order, event.ID)
		}
	}

	registered, cleaned := t.reconcile(current, order, fetchErr == nil)

	if fetchErr != nil {
		t.logger.Warn("Event sync incomplete", zap.Error(fetchErr))
	}
	t.logger.Debug("Events synced",
		zap.Int("events", len(current)),
		zap.Int("registered", registered),
		zap.Int("cleaned", cleaned),
	)
	return fetchErr
}

func (t *Tracker) reconcile(current map[domain.EventID]domain.Event, order []domain.EventID, complete bool) (registered, cleaned int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()

	for _, id := range order {
		event := current[id]
		existing, known := t.tracked[id]

		if known {
			sameWindow := existing.event.Start.Equal(event.Start) && existing.event.End.Equal(event.End)
			if sameWindow && t.engine.IsActive(existing.handle) {
				existing.event = event
				continue
			}
			if sameWindow && !now.Before(event.End) {
				// Finished and already showed "Event Ended".
				continue
			}
			t.engine.Cleanup(existing.handle)
		}

		handle, err := t.engine.Register(t.runCtx, event.Window(t.cfg.TargetPrefix), t.cfg.TickInterval)
		if err != nil {
			t.logger.Warn("Failed to register event countdown",
				zap.String("event_id", id.String()),
				zap.Error(err))
			continue
		}
		t.tracked[id] = &tracked{event: event, handle: handle}
		registered++
	}

	if !complete {
		return registered, cleaned
	}

	for id, entry := range t.tracked {
		if _, ok := current[id]; ok {
			continue
		}
		t.engine.Cleanup(entry.handle)
		delete(t.tracked, id)
		cleaned++
	}
	return registered, cleaned
}

// Reattach restarts the countdown of the tracked event shown on targetID when
// it stopped because the target was gone. Unknown targets, running countdowns
// and ended events are left alone.
func (t *Tracker) Reattach(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	for id, entry := range t.tracked {
		if entry.event.TargetID(t.cfg.TargetPrefix) != targetID {
			continue
		}
		if t.engine.IsActive(entry.handle) || !now.Before(entry.event.End) {
			return
		}

		handle, err := t.engine.Register(t.runCtx, entry.event.Window(t.cfg.TargetPrefix), t.cfg.TickInterval)
		if err != nil {
			t.logger.Warn("Failed to restart event countdown",
				zap.String("event_id", id.String()),
				zap.Error(err))
			return
		}
		entry.handle = handle
		t.logger.Debug("Event countdown restarted on attach",
			zap.String("event_id", id.String()),
			zap.String("target", targetID))
		return
	}
}

// Run syncs immediately and then every SyncInterval until ctx is done or
// Stop is called. Countdowns registered by Run live as long as ctx.
func (t *Tracker) Run(ctx context.Context) {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	ticker := time.NewTicker(t.cfg.SyncInterval)
	defer ticker.Stop()

	t.logger.Info("Event tracker started",
		zap.Int("sources", len(t.sources)),
		zap.Duration("interval", t.cfg.SyncInterval))

	_ = t.Sync(ctx)
	for {
		select {
		case <-ticker.C:
			_ = t.Sync(ctx)
		case <-t.stopCh:
			t.logger.Info("Event tracker stopped")
			return
		case <-ctx.Done():
			t.logger.Info("Event tracker context cancelled")
			return
		}
	}
}

// Stop ends Run and cleans up every countdown the tracker registered.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, entry := range t.tracked {
		t.engine.Cleanup(entry.handle)
		delete(t.tracked, id)
	}
}

// EventView is an event with its countdown status for presentation.
type EventView struct {
	domain.Event
	TargetID string `json:"target"`
	Label    string `json:"label,omitempty"`
	Active   bool   `json:"active"`
}

// Events lists tracked events ordered by start time.
func (t *Tracker) Events() []EventView {
	t.mu.Lock()
	entries := make([]*tracked, 0, len(t.tracked))
	for _, entry := range t.tracked {
		entries = append(entries, entry)
	}
	t.mu.Unlock()

	views := make([]EventView, 0, len(entries))
	for _, entry := range entries {
		label, active := t.engine.Label(entry.handle)
		views = append(views, EventView{
			Event:    entry.event,
			TargetID: entry.event.TargetID(t.cfg.TargetPrefix),
			Label:    label,
			Active:   active,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Start.Equal(views[j].Start) {
			return views[i].ID < views[j].ID
		}
		return views[i].Start.Before(views[j].Start)
	})
	return views
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}
