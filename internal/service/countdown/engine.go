package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/util"
	"github.com/kapu/hololive-widget-go/pkg/errors"
	"go.uber.org/zap"
)

// TargetStore is the presentation side of a countdown: it answers whether a
// display target is still attached and receives label writes.
type TargetStore interface {
	Exists(ctx context.Context, targetID string) (bool, error)
	Write(ctx context.Context, targetID, label string) error
}

type Handle string

type Config struct {
	TickInterval time.Duration
	SetupDelay   time.Duration
}

// Engine tracks many countdown windows. Each window runs on its own ticker
// and stops itself when it ends, when its target is gone, or when a tick
// fails. A failing window never affects the others.
type Engine struct {
	store  TargetStore
	clock  util.Clock
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	timers map[Handle]*timer
	closed bool
	wg     sync.WaitGroup
}

type timer struct {
	handle   Handle
	window   domain.TimerWindow
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	label string
}

func (t *timer) stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *timer) setLabel(label string) {
	t.mu.Lock()
	t.label = label
	t.mu.Unlock()
}

func (t *timer) currentLabel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label
}

func NewEngine(store TargetStore, cfg Config, clock util.Clock, logger *zap.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = constants.CountdownConfig.TickInterval
	}
	if cfg.SetupDelay < 0 {
		cfg.SetupDelay = constants.CountdownConfig.SetupDelay
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
		timers: make(map[Handle]*timer),
	}
}

// Register starts recomputing window every tickInterval (the engine default
// when zero). The first recomputation runs after the setup delay so the
// target has a chance to attach. The timer also stops when ctx is done.
func (e *Engine) Register(ctx context.Context, window domain.TimerWindow, tickInterval time.Duration) (Handle, error) {
	if tickInterval <= 0 {
		tickInterval = e.cfg.TickInterval
	}

	t := &timer{
		handle:   Handle(uuid.NewString()),
		window:   window,
		interval: tickInterval,
		stopCh:   make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", errors.NewServiceError("Countdown engine is shut down", "countdown", "register", nil)
	}
	e.timers[t.handle] = t
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Debug("Countdown registered",
		zap.String("handle", string(t.handle)),
		zap.String("target", window.TargetID),
		zap.Time("start", window.Start),
		zap.Time("end", window.End),
	)

	go e.run(ctx, t)
	return t.handle, nil
}

func (e *Engine) run(ctx context.Context, t *timer) {
	defer e.wg.Done()
	defer e.remove(t.handle)

	setup := time.NewTimer(e.cfg.SetupDelay)
	select {
	case <-ctx.Done():
		setup.Stop()
		return
	case <-t.stopCh:
		setup.Stop()
		return
	case <-setup.C:
	}

	if !e.tick(ctx, t) {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !e.tick(ctx, t) {
				return
			}
		}
	}
}

// tick recomputes and writes the label. It reports whether the timer should
// keep running.
func (e *Engine) tick(ctx context.Context, t *timer) bool {
	select {
	case <-t.stopCh:
		return false
	default:
	}

	attached, err := e.store.Exists(ctx, t.window.TargetID)
	if err != nil {
		e.fail(t, "Failed to look up countdown target", err)
		return false
	}
	if !attached {
		e.logger.Debug("Countdown target detached",
			zap.String("handle", string(t.handle)),
			zap.String("target", t.window.TargetID),
		)
		return false
	}

	eval, err := Evaluate(e.clock.Now(), t.window.Start, t.window.End)
	if err != nil {
		e.fail(t, "Failed to compute countdown", err)
		return false
	}

	if err := e.store.Write(ctx, t.window.TargetID, eval.Label); err != nil {
		e.fail(t, "Failed to write countdown label", err)
		return false
	}
	t.setLabel(eval.Label)

	if eval.State == StateEnded {
		e.logger.Debug("Countdown ended",
			zap.String("handle", string(t.handle)),
			zap.String("target", t.window.TargetID),
		)
		return false
	}
	return true
}

func (e *Engine) fail(t *timer, message string, cause error) {
	err := errors.NewTimerComputeError(message, string(t.handle), cause)
	e.logger.Error("Countdown stopped",
		zap.String("handle", string(t.handle)),
		zap.String("target", t.window.TargetID),
		zap.Error(err),
	)
}

func (e *Engine) remove(handle Handle) {
	e.mu.Lock()
	delete(e.timers, handle)
	e.mu.Unlock()
}

// Cleanup cancels a timer and forgets it. Unknown or already removed handles
// are ignored.
func (e *Engine) Cleanup(handle Handle) {
	e.mu.Lock()
	t, ok := e.timers[handle]
	delete(e.timers, handle)
	e.mu.Unlock()

	if ok {
		t.stop()
	}
}

// Shutdown cancels every outstanding timer and waits for all of them to
// exit. Register fails afterwards.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	timers := make([]*timer, 0, len(e.timers))
	for handle, t := range e.timers {
		timers = append(timers, t)
		delete(e.timers, handle)
	}
	e.mu.Unlock()

	for _, t := range timers {
		t.stop()
	}
	e.wg.Wait()

	e.logger.Info("Countdown engine stopped", zap.Int("cancelled", len(timers)))
}

// Active counts timers still scheduled.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

func (e *Engine) IsActive(handle Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[handle]
	return ok
}

// Label returns the last label written by an active timer.
func (e *Engine) Label(handle Handle) (string, bool) {
	e.mu.Lock()
	t, ok := e.timers[handle]
	e.mu.Unlock()
	if !ok {
		return "", false
	}
	return t.currentLabel(), true
}

// Snapshot describes the active timers for diagnostics.
type Snapshot struct {
	Handle   Handle    `json:"handle"`
	TargetID string    `json:"target"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Label    string    `json:"label"`
}

func (e *Engine) Snapshots() []Snapshot {
	e.mu.Lock()
	timers := make([]*timer, 0, len(e.timers))
	for _, t := range e.timers {
		timers = append(timers, t)
	}
	e.mu.Unlock()

	out := make([]Snapshot, 0, len(timers))
	for _, t := range timers {
		out = append(out, Snapshot{
			Handle:   t.handle,
			TargetID: t.window.TargetID,
			Start:    t.window.Start,
			End:      t.window.End,
			Label:    t.currentLabel(),
		})
	}
	return out
}
