package birthday

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/util"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type OfficialSource interface {
	FetchOfficial(ctx context.Context) (*domain.OfficialSet, error)
}

type CustomSource interface {
	FetchCustom(ctx context.Context) ([]domain.CustomRecord, error)
}

// IndexPublisher receives every freshly built index, e.g. to mirror it into
// Redis for external renderers.
type IndexPublisher interface {
	PublishIndex(ctx context.Context, idx *domain.BirthdayIndex) error
}

type PipelineConfig struct {
	RefreshCron string
	RetryDelay  time.Duration
}

type PipelineStatus struct {
	Healthy     bool      `json:"healthy"`
	RunID       string    `json:"run_id,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Records     int       `json:"records"`
	Entries     int       `json:"entries"`
	Rejected    int       `json:"rejected"`
	Skipped     int       `json:"skipped"`
}

// Pipeline fetches both datasets, merges, indexes and publishes the index by
// pointer replacement. Readers see the previous or the new index, never a
// partial one. Only one refresh runs at a time.
type Pipeline struct {
	official  OfficialSource
	custom    CustomSource
	publisher IndexPublisher
	clock     util.Clock
	logger    *zap.Logger
	cfg       PipelineConfig

	current   atomic.Pointer[domain.BirthdayIndex]
	refreshMu sync.Mutex

	statusMu sync.RWMutex
	status   PipelineStatus
}

func NewPipeline(official OfficialSource, custom CustomSource, publisher IndexPublisher, cfg PipelineConfig, clock util.Clock, logger *zap.Logger) (*Pipeline, error) {
	if cfg.RefreshCron == "" {
		cfg.RefreshCron = constants.PipelineConfig.RefreshCron
	}
	if !gronx.IsValid(cfg.RefreshCron) {
		return nil, fmt.Errorf("invalid refresh cron expression %q", cfg.RefreshCron)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = constants.PipelineConfig.RetryDelay
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		official:  official,
		custom:    custom,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Current returns the last published index, or nil before the first success.
func (p *Pipeline) Current() *domain.BirthdayIndex {
	return p.current.Load()
}

func (p *Pipeline) Status() PipelineStatus {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

// Refresh runs one fetch, merge, index, publish cycle. Both fetches run
// concurrently; the first failure cancels the other and nothing is published.
func (p *Pipeline) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	runID := uuid.NewString()
	started := p.clock.Now()
	logger := p.logger.With(zap.String("run_id", runID))

	var (
		official *domain.OfficialSet
		customs  []domain.CustomRecord
	)

	fetches := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	fetches.Go(func(ctx context.Context) error {
		set, err := p.official.FetchOfficial(ctx)
		if err != nil {
			return fmt.Errorf("fetch official records: %w", err)
		}
		official = set
		return nil
	})
	fetches.Go(func(ctx context.Context) error {
		list, err := p.custom.FetchCustom(ctx)
		if err != nil {
			return fmt.Errorf("fetch custom records: %w", err)
		}
		customs = list
		return nil
	})

	if err := fetches.Wait(); err != nil {
		logger.Error("Birthday refresh failed", zap.Error(err))
		p.recordFailure(runID, started, err)
		return err
	}

	merged := Merge(official, customs)
	for _, rejected := range merged.Rejected {
		logger.Warn("Skipping custom record with unknown id",
			zap.String("id", rejected.ID),
			zap.Any("position", rejected.Context["position"]),
		)
	}

	idx, stats := BuildIndex(merged.Records, p.clock.Now())
	if stats.Skipped > 0 {
		logger.Debug("Records without a usable birthday", zap.Int("count", stats.Skipped))
	}

	p.current.Store(idx)

	if p.publisher != nil {
		if err := p.publisher.PublishIndex(ctx, idx); err != nil {
			logger.Warn("Failed to publish index snapshot", zap.Error(err))
		}
	}

	p.statusMu.Lock()
	p.status = PipelineStatus{
		Healthy:     true,
		RunID:       runID,
		LastAttempt: started,
		LastSuccess: p.clock.Now(),
		Records:     merged.Records.Len(),
		Entries:     idx.Len(),
		Rejected:    len(merged.Rejected),
		Skipped:     stats.Skipped,
	}
	p.statusMu.Unlock()

	logger.Info("Birthday index refreshed",
		zap.Int("official", official.Len()),
		zap.Int("custom", len(customs)),
		zap.Int("overridden", merged.Overridden),
		zap.Int("added", merged.Added),
		zap.Int("entries", idx.Len()),
	)
	return nil
}

func (p *Pipeline) recordFailure(runID string, started time.Time, err error) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.Healthy = false
	p.status.RunID = runID
	p.status.LastAttempt = started
	p.status.LastError = err.Error()
}

// Run refreshes immediately, then on every tick of the refresh cron. A failed
// refresh is re-attempted after the fixed retry delay until one succeeds.
// Run returns when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("Birthday pipeline started",
		zap.String("cron", p.cfg.RefreshCron),
		zap.Duration("retry_delay", p.cfg.RetryDelay),
	)

	for {
		var wait time.Duration
		if err := p.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = p.cfg.RetryDelay
			p.logger.Info("Retrying birthday refresh", zap.Duration("after", wait))
		} else {
			wait = p.untilNextTick()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("Birthday pipeline stopped")
			return
		case <-timer.C:
		}
	}
}

func (p *Pipeline) untilNextTick() time.Duration {
	now := p.clock.Now()
	next, err := gronx.NextTickAfter(p.cfg.RefreshCron, now, false)
	if err != nil {
		p.logger.Warn("Failed to compute next refresh, using default TTL", zap.Error(err))
		return constants.CacheTTL.SourceData
	}
	return next.Sub(now)
}
