package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/drive-index/internal/adapters/driven/auth"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/drive"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/index"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/memory"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/postgres"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/ratelimit"
	redisadapter "github.com/custodia-labs/drive-index/internal/adapters/driven/redis"
	httpapi "github.com/custodia-labs/drive-index/internal/adapters/driving/http"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
	"github.com/custodia-labs/drive-index/internal/core/ports/driving"
	"github.com/custodia-labs/drive-index/internal/core/services"
	"github.com/custodia-labs/drive-index/internal/taxonomy"
	"github.com/custodia-labs/drive-index/internal/worker"
)

// dedupWindow bounds how long a change event key is remembered
const dedupWindow = 24 * time.Hour

// stores holds the driven adapters selected by configuration
type stores struct {
	assets    driven.AssetStore
	perms     driven.PermissionStore
	jobs      driven.CrawlJobStore
	cursors   driven.CursorStore
	schedules driven.ScheduleStore
	lock      driven.DistributedLock
	deduper   driven.ChangeDeduper
	alerter   driven.Alerter
	alerts    driven.AlertHistory
	checks    map[string]driven.Pinger

	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStores picks PostgreSQL when DATABASE_URL is set and Redis for
// coordination when REDIS_URL is set, falling back to in-process adapters.
func openStores(ctx context.Context, cfg config, logger *slog.Logger) (*stores, error) {
	s := &stores{checks: make(map[string]driven.Pinger)}

	if cfg.durable() {
		logger.Info("connecting to postgres")
		db, err := postgres.Connect(ctx, dbConfig(cfg.databaseURL))
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}

		s.assets = postgres.NewAssetStore(db)
		s.perms = postgres.NewPermissionStore(db)
		s.jobs = postgres.NewCrawlJobStore(db)
		s.cursors = postgres.NewCursorStore(db)
		s.schedules = postgres.NewScheduleStore(db)
		s.lock = postgres.NewAdvisoryLock(db)
		s.checks["postgres"] = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-process stores; state is lost on exit")
		s.assets = memory.NewAssetStore()
		s.perms = memory.NewPermissionStore()
		s.jobs = memory.NewCrawlJobStore()
		s.cursors = memory.NewCursorStore()
		s.schedules = memory.NewScheduleStore()
		s.lock = memory.NewLock()
	}

	if cfg.redisURL != "" {
		logger.Info("connecting to redis")
		opts, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		s.closers = append(s.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		lock := redisadapter.NewLock(client)
		alerter := redisadapter.NewAlerter(client, logger)
		s.lock = lock
		s.deduper = redisadapter.NewDeduper(client, dedupWindow)
		s.alerter, s.alerts = alerter, alerter
		s.checks["redis"] = lock
	} else {
		deduper, err := memory.NewDeduper(memory.DefaultDedupWindow)
		if err != nil {
			s.Close()
			return nil, err
		}
		alerter := memory.NewAlerter(logger)
		s.deduper = deduper
		s.alerter, s.alerts = alerter, alerter
	}

	return s, nil
}

func dbConfig(url string) postgres.Config {
	cfg := postgres.DefaultConfig(url)
	cfg.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.ConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", cfg.ConnMaxIdleTime)
	return cfg
}

// app is the assembled engine
type app struct {
	cfg    config
	logger *slog.Logger
	stores *stores

	index   *index.Index
	mirror  *services.PermissionMirror
	builder *services.IndexBuilder
	search  driving.SearchService

	// Set by withCrawler
	orchestrator *services.CrawlOrchestrator
	scheduler    *services.Scheduler
	ingestor     *services.ChangeIngestor
}

func newApp(ctx context.Context, cfg config, logger *slog.Logger) (*app, error) {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ix, err := index.New()
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, stores: st, index: ix}
	a.mirror = services.NewPermissionMirror(services.PermissionMirrorConfig{
		Store:  st.perms,
		Logger: logger,
	})
	a.builder = services.NewIndexBuilder(st.assets, st.perms, a.index, logger)
	a.search = services.NewSearchService(services.SearchServiceConfig{
		Index:       a.index,
		Permissions: a.mirror,
		Logger:      logger,
	})
	return a, nil
}

// withCrawler wires the Drive connector, orchestrator, ingestor and scheduler
func (a *app) withCrawler(ctx context.Context) error {
	if err := a.cfg.validateWorker(); err != nil {
		return err
	}

	files, err := a.fileStore(ctx)
	if err != nil {
		return err
	}
	parser, err := loadParser(a.cfg.taxonomyFile)
	if err != nil {
		return err
	}

	retry := a.cfg.retry()
	a.orchestrator, err = services.NewCrawlOrchestrator(services.CrawlOrchestratorConfig{
		Files:           files,
		Assets:          a.stores.assets,
		Permissions:     a.mirror,
		Index:           a.index,
		Jobs:            a.stores.jobs,
		Alerter:         a.stores.alerter,
		Parser:          parser,
		Logger:          a.logger,
		Retry:           &retry,
		FileConcurrency: a.cfg.fileConcurrency,
		Scopes:          a.cfg.scopes,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	a.ingestor = services.NewChangeIngestor(services.ChangeIngestorConfig{
		Files:        files,
		Cursors:      a.stores.cursors,
		Deduper:      a.stores.deduper,
		Jobs:         a.stores.jobs,
		Lock:         a.stores.lock,
		Logger:       a.logger,
		Retry:        &retry,
		PollInterval: a.cfg.ingestPollInterval,
		BatchSize:    a.cfg.ingestBatchSize,
		Scopes:       a.cfg.scopes,
	})

	if a.cfg.schedulerEnabled {
		a.scheduler = services.NewScheduler(services.SchedulerConfig{
			Store:         a.stores.schedules,
			Jobs:          a.stores.jobs,
			Lock:          a.stores.lock,
			Logger:        a.logger,
			CrawlInterval: a.cfg.crawlInterval,
		})
		for _, scope := range a.cfg.scopes {
			if err := a.scheduler.ScheduleScope(ctx, scope); err != nil {
				return fmt.Errorf("schedule scope %s: %w", scope, err)
			}
		}
		a.logger.Info("scheduler enabled", "scopes", a.cfg.scopes, "interval", a.cfg.crawlInterval)
	}
	return nil
}

// crawlService builds the dashboard service; a local orchestrator, when
// present, lets cancellation reach in-process jobs.
func (a *app) crawlService() driving.CrawlService {
	cfg := services.CrawlServiceConfig{
		Jobs:   a.stores.jobs,
		Assets: a.stores.assets,
		Index:  a.index,
		Logger: a.logger,
	}
	if a.orchestrator != nil {
		cfg.Canceler = a.orchestrator
	}
	return services.NewCrawlService(cfg)
}

func (a *app) fileStore(ctx context.Context) (driven.FileStore, error) {
	ts, err := drive.TokenSourceFromFiles(ctx, a.cfg.credentialsFile, a.cfg.tokenFile)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	fs, err := drive.New(svc, drive.DefaultConfig())
	if err != nil {
		return nil, err
	}

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerSecond = a.cfg.sourceRPS
	limits.Burst = a.cfg.sourceBurst
	return ratelimit.New(fs, limits), nil
}

func (a *app) newWorker() *worker.Worker {
	return worker.NewWorker(worker.WorkerConfig{
		Jobs:        a.stores.jobs,
		Runner:      a.orchestrator,
		Scheduler:   a.scheduler,
		Ingestor:    a.ingestor,
		Logger:      a.logger,
		Concurrency: a.cfg.workerConcurrency,
		Liveness:    a.cfg.liveness,
	})
}

func (a *app) newServer() *httpapi.Server {
	deps := httpapi.Dependencies{
		Search:   a.search,
		Crawl:    a.crawlService(),
		Alerts:   a.stores.alerts,
		Verifier: auth.NewAdapter(a.cfg.jwtSecret, a.cfg.operatorKey),
		Checks:   a.stores.checks,
	}
	if a.scheduler != nil {
		deps.Schedules = a.scheduler
	}

	return httpapi.NewServer(httpapi.Config{
		Host:           a.cfg.host,
		Port:           a.cfg.port,
		Version:        version,
		AllowedOrigins: a.cfg.allowedOrigins,
		Logger:         a.logger,
	}, deps)
}

// rebuildIndex loads servable assets from the durable stores
func (a *app) rebuildIndex(ctx context.Context) error {
	n, err := a.builder.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	a.logger.Info("search index loaded", "assets", n)
	return nil
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		a.logger.Warn("failed to close search index", "error", err)
	}
	a.stores.Close()
}

// loadParser reads a YAML grammar, or returns the built-in one when path is empty
func loadParser(path string) (*taxonomy.Parser, error) {
	if path == "" {
		return taxonomy.NewDefaultParser(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy file: %w", err)
	}
	defer f.Close()

	grammar, err := taxonomy.LoadGrammar(f)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewParser(grammar)
}
