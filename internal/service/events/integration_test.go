package events

import (
	"context"
	"testing"
	"time"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/service/countdown"
	"github.com/kapu/hololive-widget-go/internal/service/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTrackerDrivesEngineLabels(t *testing.T) {
	start := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{now: start.Add(-90 * time.Minute)}

	store := display.NewMemoryStore()
	store.Attach("event-live")

	engine := countdown.NewEngine(store, countdown.Config{TickInterval: 5 * time.Millisecond}, clock, zap.NewNop())
	defer engine.Shutdown()

	src := &stubSource{name: "feed", events: []domain.Event{
		{ID: "live", Name: "Live", Start: start, End: start.Add(time.Hour)},
		{ID: "unseen", Name: "Nobody watching", Start: start, End: start.Add(time.Hour)},
	}}
	tracker := NewTracker([]Source{src}, engine, Config{SyncInterval: time.Hour, TickInterval: 5 * time.Millisecond}, clock, nil)
	defer tracker.Stop()

	require.NoError(t, tracker.Sync(context.Background()))

	require.Eventually(t, func() bool {
		label, ok := store.Label("event-live")
		return ok && label == "Starts in: 1h 30m"
	}, time.Second, time.Millisecond)

	// The countdown without a target stops itself on its first tick.
	require.Eventually(t, func() bool { return engine.Active() == 1 }, time.Second, time.Millisecond)

	views := tracker.Events()
	require.Len(t, views, 2)
	for _, view := range views {
		if view.ID == "live" {
			assert.True(t, view.Active)
			assert.Equal(t, "Starts in: 1h 30m", view.Label)
		}
	}
}
