// Package server builds the lottery crawler's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/api"
	"github.com/JakeFAU/lottery-crawler/internal/clock/system"
	"github.com/JakeFAU/lottery-crawler/internal/config"
	"github.com/JakeFAU/lottery-crawler/internal/crawl"
	"github.com/JakeFAU/lottery-crawler/internal/fetcher/cwl"
	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/normalize"
	"github.com/JakeFAU/lottery-crawler/internal/retention"
	"github.com/JakeFAU/lottery-crawler/internal/scheduler"
	gcsstorage "github.com/JakeFAU/lottery-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/lottery-crawler/internal/storage/local"
	"github.com/JakeFAU/lottery-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/lottery-crawler/internal/storage/postgres"
)

// Scheduled job names.
const (
	JobDailyCrawl    = "daily_crawl"
	JobWeeklyCleanup = "weekly_cleanup"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	loc          *time.Location
	store        lottery.Store
	gcs          *storage.Client
	orchestrator *crawl.Orchestrator
	cleaner      *retention.Cleaner
	scheduler    *scheduler.Service
	apiServer    *api.Server
}

// Build creates the application's dependencies. Callers own the returned App
// and must Close it.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Crawler.Location()
	if err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, logger: logger, loc: loc}
	clock := system.New()

	logger.Info("building application dependencies",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("backup_kind", cfg.Retention.BackupKind),
		zap.Strings("codes", cfg.Crawler.Codes),
		zap.String("timezone", loc.String()),
	)

	if err := app.setupStore(ctx, clock); err != nil {
		return nil, err
	}
	backup, err := app.setupBackup(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	fetcher := cwl.New(cwl.Config{
		Endpoint:        cfg.Fetcher.Endpoint,
		Homepage:        cfg.Fetcher.Homepage,
		Timeout:         cfg.Fetcher.Timeout(),
		MaxRetries:      cfg.Fetcher.MaxRetries,
		BaseDelay:       cfg.Fetcher.BaseDelay,
		MinDelay:        cfg.Fetcher.MinDelay,
		MaxDelay:        cfg.Fetcher.MaxDelay,
		UserAgents:      cfg.Fetcher.UserAgents,
		FallbackEnabled: cfg.Fetcher.FallbackEnabled,
	}, logger.Named("fetcher"))

	gate := crawl.NewGate(app.store, clock, loc)
	app.orchestrator = crawl.NewOrchestrator(crawl.Config{
		Codes:        cfg.Crawler.Codes,
		PageSize:     cfg.Crawler.PageSize,
		ResolveScope: cfg.Crawler.ResolveScope,
	}, gate, fetcher, normalize.New(), app.store, clock, logger)

	app.cleaner = retention.NewCleaner(retention.Config{
		Days:     cfg.Retention.Days,
		Location: loc,
	}, app.store, backup, clock, logger)

	app.apiServer, err = api.NewServer(app.store, app.orchestrator, app.cleaner, cfg, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

func (a *App) setupStore(ctx context.Context, clock lottery.Clock) error {
	if a.cfg.DB.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory store; draws are lost on restart")
		a.store = memory.NewStore(memory.WithClock(clock))
		return nil
	}
	if a.cfg.DB.MigrateOnStart {
		changed, err := pgstore.MigrateUp(a.cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		a.logger.Info("database migrations applied", zap.Bool("changed", changed))
	}
	store, err := pgstore.NewStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	}, pgstore.WithClock(clock))
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.store = store
	a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return nil
}

func (a *App) setupBackup(ctx context.Context) (lottery.BlobStore, error) {
	switch a.cfg.Retention.BackupKind {
	case config.BackupGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Retention.GCSBucket,
			Prefix: a.cfg.Retention.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS backups", zap.String("bucket", a.cfg.Retention.GCSBucket))
		return blobs, nil
	case config.BackupLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Retention.BackupDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local backups", zap.String("path", a.cfg.Retention.BackupDir))
		return blobs, nil
	default:
		a.logger.Warn("backups disabled; cleanup deletes without a snapshot")
		return nil, nil
	}
}

// Orchestrator exposes the crawl pipeline for one-shot commands.
func (a *App) Orchestrator() *crawl.Orchestrator {
	return a.orchestrator
}

// Cleaner exposes the retention job for one-shot commands.
func (a *App) Cleaner() *retention.Cleaner {
	return a.cleaner
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scheduler builds the cron service with the daily crawl and weekly cleanup jobs.
func (a *App) Scheduler() (*scheduler.Service, error) {
	if a.scheduler != nil {
		return a.scheduler, nil
	}
	svc := scheduler.New(a.loc, a.logger)
	if err := svc.Register(JobDailyCrawl, a.cfg.Scheduler.CrawlSpec, a.dailyCrawl); err != nil {
		return nil, fmt.Errorf("register %s: %w", JobDailyCrawl, err)
	}
	if err := svc.Register(JobWeeklyCleanup, a.cfg.Scheduler.CleanupSpec, a.weeklyCleanup); err != nil {
		return nil, fmt.Errorf("register %s: %w", JobWeeklyCleanup, err)
	}
	a.scheduler = svc
	return svc, nil
}

func (a *App) dailyCrawl(ctx context.Context) {
	summary, ran, err := a.orchestrator.RunScheduled(ctx)
	if err != nil {
		a.logger.Error("scheduled crawl failed", zap.Error(err))
		return
	}
	if ran && !summary.OK() {
		a.logger.Warn("scheduled crawl finished with failures", zap.Any("results", summary.Outcomes))
	}
}

func (a *App) weeklyCleanup(ctx context.Context) {
	if _, err := a.cleaner.Run(ctx); err != nil {
		a.logger.Error("scheduled cleanup failed", zap.Error(err))
	}
}

// Run serves HTTP and runs the scheduler until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var sched *scheduler.Service
	if a.cfg.Scheduler.Enabled {
		var err error
		sched, err = a.Scheduler()
		if err != nil {
			return err
		}
		sched.Start()
		for _, e := range sched.Entries() {
			a.logger.Info("scheduled job", zap.String("job", e.Name), zap.String("spec", e.Spec), zap.Time("next", e.Next))
		}
		if a.cfg.Scheduler.RunOnStart {
			go func() {
				if err := sched.RunOnce(JobDailyCrawl); err != nil {
					a.logger.Warn("startup crawl failed", zap.Error(err))
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop timed out", zap.Error(err))
		}
	}
	return nil
}

// Close releases the store and cloud clients.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
