package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kapu/hololive-widget-go/internal/config"
	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/server"
	"github.com/kapu/hololive-widget-go/internal/service/birthday"
	"github.com/kapu/hololive-widget-go/internal/service/cache"
	"github.com/kapu/hololive-widget-go/internal/service/countdown"
	"github.com/kapu/hololive-widget-go/internal/service/database"
	"github.com/kapu/hololive-widget-go/internal/service/display"
	"github.com/kapu/hololive-widget-go/internal/service/events"
	"github.com/kapu/hololive-widget-go/internal/service/fetch"
	"github.com/kapu/hololive-widget-go/internal/service/schedule"
	"github.com/kapu/hololive-widget-go/internal/service/source"
	"github.com/kapu/hololive-widget-go/internal/util"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Container bundles the assembled services of the widget runtime.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Pipeline *birthday.Pipeline
	Engine   *countdown.Engine
	Tracker  *events.Tracker
	Hub      *server.Hub
	Server   *server.Server

	closers []func()
}

// Build assembles all services. Connections to Redis and PostgreSQL are only
// opened when the configuration selects them.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	clock := util.RealClock{}
	location := util.LoadLocation(cfg.Server.Timezone)

	// Fetching
	bodyCache := cache.NewTTLCache[[]byte](cache.Config{
		Enabled:       cfg.Cache.Enabled,
		DedupInFlight: cfg.Cache.DedupInFlight,
	}, clock, logger)
	httpClient := &http.Client{Timeout: constants.APIConfig.HTTPTimeout}
	fetcher := fetch.NewFetcher(httpClient, bodyCache, cfg.Cache.TTL, logger)

	// Official dataset
	var official birthday.OfficialSource
	switch cfg.Sources.Official {
	case config.OfficialSourcePostgres:
		postgresSvc, pgErr := database.NewPostgresService(ctx, database.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		}, logger)
		if pgErr != nil {
			return nil, fmt.Errorf("failed to create postgres service: %w", pgErr)
		}
		closers = append(closers, func() {
			_ = postgresSvc.Close()
		})
		if err := postgresSvc.Migrate(ctx); err != nil {
			return nil, err
		}
		official = database.NewTalentRepository(postgresSvc, logger)
	default:
		official = source.NewOfficialHTTPSource(fetcher, cfg.Sources.OfficialURL, logger)
	}
	custom := source.NewCustomHTTPSource(fetcher, cfg.Sources.CustomURL, logger)

	// Display targets
	var (
		hub       *server.Hub
		store     countdown.TargetStore
		publisher birthday.IndexPublisher
	)
	switch cfg.Targets.Backend {
	case config.TargetBackendRedis:
		redisStore, redisErr := display.NewRedisStore(ctx, display.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if redisErr != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", redisErr)
		}
		closers = append(closers, func() {
			_ = redisStore.Close()
		})
		store = redisStore
		publisher = redisStore
	default:
		hub = server.NewHub(logger)
		closers = append(closers, hub.Close)
		store = hub
	}

	engine := countdown.NewEngine(store, countdown.Config{
		TickInterval: cfg.Countdown.TickInterval,
		SetupDelay:   cfg.Countdown.SetupDelay,
	}, clock, logger)
	closers = append(closers, engine.Shutdown)

	pipeline, err := birthday.NewPipeline(official, custom, publisher, birthday.PipelineConfig{
		RefreshCron: cfg.Pipeline.RefreshCron,
		RetryDelay:  cfg.Pipeline.RetryDelay,
	}, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create birthday pipeline: %w", err)
	}

	// Events
	var tracker *events.Tracker
	if cfg.EventsEnabled() {
		var sources []events.Source
		if cfg.Sources.EventsURL != "" {
			sources = append(sources, source.NewEventHTTPSource(fetcher, cfg.Sources.EventsURL, logger))
		}
		if cfg.Sources.ScheduleURL != "" {
			sources = append(sources, schedule.NewScraper(fetcher, schedule.ScraperConfig{
				URL:      cfg.Sources.ScheduleURL,
				Timezone: cfg.Server.Timezone,
			}, clock, logger))
		}
		tracker = events.NewTracker(sources, engine, events.Config{
			SyncInterval: cfg.Events.SyncInterval,
			TickInterval: cfg.Countdown.TickInterval,
		}, clock, logger)
		closers = append(closers, tracker.Stop)
		if hub != nil {
			hub.OnAttach(tracker.Reattach)
		}
	}

	deps := server.Dependencies{
		Index:      pipeline,
		Countdowns: engine,
		Hub:        hub,
		Location:   location,
		Clock:      clock,
		Logger:     logger,
	}
	if tracker != nil {
		deps.Events = tracker
	}

	logger.Info("Widget services assembled",
		zap.String("official_source", cfg.Sources.Official),
		zap.String("target_backend", cfg.Targets.Backend),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("events_enabled", tracker != nil),
	)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Pipeline: pipeline,
		Engine:   engine,
		Tracker:  tracker,
		Hub:      hub,
		Server:   server.New(deps),
		closers:  closers,
	}, nil
}

// Run drives the pipeline, the event tracker and the HTTP server until ctx
// is cancelled or one of them fails.
func (c *Container) Run(ctx context.Context) error {
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		c.Pipeline.Run(ctx)
		return nil
	})
	if c.Tracker != nil {
		p.Go(func(ctx context.Context) error {
			c.Tracker.Run(ctx)
			return nil
		})
	}
	p.Go(func(ctx context.Context) error {
		return c.Server.Start(ctx, c.Config.Server.Addr)
	})

	return p.Wait()
}

// Close releases everything Build opened, in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
