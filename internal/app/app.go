package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/handlers"
	"github.com/ternarybob/covera/internal/jobs"
	"github.com/ternarybob/covera/internal/pipeline"
	"github.com/ternarybob/covera/internal/services/classify"
	"github.com/ternarybob/covera/internal/services/crawler"
	"github.com/ternarybob/covera/internal/services/events"
	"github.com/ternarybob/covera/internal/services/llm"
	"github.com/ternarybob/covera/internal/services/pricing"
	"github.com/ternarybob/covera/internal/services/scheduler"
	"github.com/ternarybob/covera/internal/storage"
)

// App holds every long-lived service and handler of the server
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	Store storage.Backend

	// Services
	EventService *events.Service
	Categories   *pipeline.CategoryTable
	Pricer       *pricing.Service
	Provider     llm.Provider
	Fetcher      *crawler.FetchService
	Registry     *jobs.Registry
	Supervisor   *jobs.Supervisor
	JobManager   *jobs.Manager
	Scheduler    *scheduler.Service

	// Handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	WSHandler  *handlers.WebSocketHandler
}

// New builds the application. Anything opened before a failure is closed again.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if app.Scheduler != nil {
		app.Scheduler.Start()
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Str("classifier", app.classifierName()).
		Bool("javascript", cfg.Crawler.EnableJavaScript).
		Bool("scheduler_enabled", app.Scheduler != nil).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initDatabase(ctx context.Context) error {
	store, err := storage.NewResultStore(ctx, &a.Config.Storage, a.Logger)
	if err != nil {
		return err
	}
	a.Store = store
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	var err error

	a.Categories, err = pipeline.LoadCategoryTable(a.Config.Categories.File)
	if err != nil {
		return err
	}

	rates, err := pricing.LoadRateTable(a.Config.Pricing.RatesFile)
	if err != nil {
		return err
	}
	a.Pricer = pricing.NewService(rates, a.Logger)

	classifier, provider, err := classify.NewClassifier(ctx, a.Config, a.Pricer.Profiles(), a.Logger)
	if err != nil {
		return err
	}
	a.Provider = provider

	limiter := crawler.NewRateLimiter(a.Config.Crawler.RequestDelay)
	discovery := crawler.NewDiscoveryService(a.Config.Crawler, nil, limiter, a.Logger)
	a.Fetcher = crawler.NewFetchService(a.Config.Crawler, limiter, a.Logger)

	runner := pipeline.NewRunner(
		discovery,
		a.Fetcher,
		pipeline.NewEnricher(classifier, a.Pricer, a.Logger),
		a.Store,
		a.Categories,
		pipeline.NewRunnerOptions(a.Config),
		a.Logger,
	)

	a.Registry = jobs.NewRegistry(a.Logger,
		jobs.WithEventService(a.EventService),
		jobs.WithHistory(a.Store),
	)
	if err := a.Registry.Restore(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to restore job history")
	}

	a.Supervisor = jobs.NewSupervisor(a.Registry, runner, a.Logger)
	a.JobManager = jobs.NewManager(a.Registry, a.Supervisor, a.Logger)

	if a.Config.Scheduler.Enabled {
		a.Scheduler = scheduler.NewService(a.JobManager, a.Logger)
		if err := a.Scheduler.LoadConfig(a.Config.Scheduler); err != nil {
			return fmt.Errorf("failed to load scheduled entries: %w", err)
		}
	}

	return nil
}

func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Config, a.Categories, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobManager, a.Store, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
	return a.WSHandler.SubscribeToJobEvents()
}

func (a *App) classifierName() string {
	if a.Provider != nil {
		return string(a.Provider.GetProviderType())
	}
	return "rules"
}

// Close stops jobs within ctx and releases every resource. Safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.JobManager != nil {
		if err := a.JobManager.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Jobs did not stop before the shutdown deadline")
			errs = append(errs, err)
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.Fetcher != nil {
		a.Fetcher.Close()
	}

	if a.Provider != nil {
		if err := a.Provider.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM provider")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		} else {
			a.Logger.Info().Msg("Storage closed")
		}
	}

	return errors.Join(errs...)
}
