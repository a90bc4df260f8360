package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/serpwatch/internal/admin"
	"github.com/MrSnakeDoc/serpwatch/internal/backup"
	"github.com/MrSnakeDoc/serpwatch/internal/config"
	"github.com/MrSnakeDoc/serpwatch/internal/connect"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver"
	"github.com/MrSnakeDoc/serpwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/serpwatch/internal/index"
	"github.com/MrSnakeDoc/serpwatch/internal/keypool"
	"github.com/MrSnakeDoc/serpwatch/internal/logger"
	"github.com/MrSnakeDoc/serpwatch/internal/metrics"
	"github.com/MrSnakeDoc/serpwatch/internal/redis"
	"github.com/MrSnakeDoc/serpwatch/internal/schedule"
	"github.com/MrSnakeDoc/serpwatch/internal/scheduler"
	"github.com/MrSnakeDoc/serpwatch/internal/serp"
	"github.com/MrSnakeDoc/serpwatch/internal/settings"
	"github.com/MrSnakeDoc/serpwatch/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/serpwatch/internal/store/redis"
	"github.com/MrSnakeDoc/serpwatch/internal/telegram"
	"github.com/MrSnakeDoc/serpwatch/internal/utils"
	"github.com/MrSnakeDoc/serpwatch/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	db          *sqlx.DB
	reloader    *scheduler.CatalogReloader
	autoCheck   *scheduler.AutoCheck
	backup      *scheduler.Backup
	retention   *scheduler.RetentionPruner
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	loc := schedule.LoadLocation(cfg.Timezone)
	ctx := context.Background()

	retry := connect.Policy{
		Timeout:       cfg.ConnectTimeout,
		RetryInterval: cfg.RetryInterval,
		MaxWait:       cfg.MaxWait,
		PingTimeout:   cfg.PingTimeout,
		WarnThreshold: cfg.WarnThreshold,
	}

	// Initialize Redis early - fail fast if unavailable
	redisClient, err := redis.New(ctx, redis.ConnectOptions{
		Addr:         cfg.RedisAddr,
		User:         cfg.RedisUser,
		Password:     cfg.RedisPassword,
		RedisDB:      cfg.RedisDB,
		DialTimeout:  cfg.RedisDT,
		ReadTimeout:  cfg.RedisRT,
		WriteTimeout: cfg.RedisWT,
		PoolSize:     cfg.RedisPoolSize,
		Retry:        retry,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	db, err := postgres.Open(ctx, postgres.ConnectOptions{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Retry:           retry,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Postgres: %v", err)
		os.Exit(1)
	}
	if err := postgres.Migrate(db.DB); err != nil {
		loggerClient.Errorf("Failed to migrate Postgres schema: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Postgres initialized successfully")

	store := redisstore.NewStore(redisClient)
	pg := postgres.New(db)
	settingsRepo := store.Settings()

	if _, err := settings.Migrate(ctx, settingsRepo, settings.Defaults{
		IntervalMinutes: cfg.DefaultIntervalMinutes,
		EnvSecrets:      cfg.SerpAPIKeys,
		ChatTargets:     cfg.TelegramChatIDs,
		Location:        loc,
	}, time.Now()); err != nil {
		loggerClient.Errorf("Failed to migrate settings: %v", err)
		os.Exit(1)
	}

	// Warm the memory index from Postgres, or from the Redis snapshot
	catalogIndex := index.NewCatalogIndex()
	syncer := scheduler.NewCatalogSyncer(pg, store, catalogIndex, loggerClient)
	if err := syncer.Sync(ctx); err != nil {
		loggerClient.Warn("failed to sync catalog on startup", logger.Error(err))
	}

	var (
		reloader      *scheduler.CatalogReloader
		reloadTrigger chan struct{}
	)
	if cfg.CatalogFile != "" {
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewCatalogReloader(
			cfg.CatalogFile,
			pg,
			store,
			catalogIndex,
			loggerClient,
			cfg.CatalogReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("catalog file not configured, catalog is managed in postgres")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	observers := scheduler.NewObservers(loggerClient, scheduler.NewRedisPublisher(store, loggerClient))
	locker := store.Locker()

	tg := telegram.New(telegram.Config{APIURL: cfg.TelegramAPIURL, Timeout: cfg.TelegramTimeout})
	pool := keypool.New(settingsRepo, pg, cfg.SerpMonthlyLimit, loc, loggerClient)

	autoCheck := scheduler.NewAutoCheck(scheduler.AutoCheckConfig{
		Settings: settingsRepo,
		Catalog:  catalogIndex,
		Pool:     pool,
		Searcher: serp.New(serp.Config{
			URL:        cfg.SerpAPIURL,
			Timeout:    cfg.SerpTimeout,
			Country:    cfg.SerpCountry,
			Language:   cfg.SerpLanguage,
			Results:    cfg.SerpResults,
			RatePerSec: cfg.SerpRatePerSec,
		}),
		Runs:           pg,
		Locker:         locker,
		Observers:      observers,
		Metrics:        m,
		Logger:         loggerClient.With(logger.String("scheduler", metrics.SchedulerAutoCheck)),
		RefreshCatalog: syncer.Sync,
		PollInterval:   cfg.PollInterval,
	})

	backupScheduler := scheduler.NewBackup(scheduler.BackupConfig{
		Settings:      settingsRepo,
		Runner:        backup.NewRunner(pg, cfg.BackupRowsPerFile, loc, loggerClient),
		Runs:          pg,
		Messenger:     tg.Messenger,
		Locker:        locker,
		Observers:     observers,
		Metrics:       m,
		Logger:        loggerClient.With(logger.String("scheduler", metrics.SchedulerBackup)),
		Location:      loc,
		FallbackToken: cfg.TelegramBotToken,
		PollInterval:  cfg.PollInterval,
	})

	retention := scheduler.NewRetentionPruner(pg, loggerClient, cfg.RetentionInterval, cfg.Retention)

	adminService := admin.New(admin.Config{
		Settings:      settingsRepo,
		AutoCheck:     autoCheck,
		Backup:        backupScheduler,
		History:       pg,
		Keys:          pool,
		Catalog:       catalogIndex,
		Messenger:     tg.Messenger,
		FallbackToken: cfg.TelegramBotToken,
		Observers:     observers,
		Location:      loc,
		Logger:        loggerClient,
	})

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		AdminRateBurst:  cfg.AdminRateBurst,
		AdminRatePerMin: cfg.AdminRatePerMin,
		Admin:           adminService,
		Readiness: map[string]deps.Pinger{
			"redis":    store.Ping,
			"postgres": pg.Ping,
		},
		Gatherer:      prometheus.DefaultGatherer,
		ReloadTrigger: reloadTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		db:          db,
		reloader:    reloader,
		autoCheck:   autoCheck,
		backup:      backupScheduler,
		retention:   retention,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting serpwatch v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start catalog reloader (loads the file and starts periodic refresh)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start catalog reloader: %w", err)
		}
		a.logger.Info("catalog reloader started",
			logger.Duration("interval", a.cfg.CatalogReloadInterval))
	}

	if err := a.autoCheck.Start(ctx); err != nil {
		return fmt.Errorf("failed to start auto-check scheduler: %w", err)
	}
	if err := a.backup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backup scheduler: %w", err)
	}
	a.logger.Info("schedulers started",
		logger.Duration("poll_interval", a.cfg.PollInterval))

	if err := a.retention.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention pruner: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.retention.Stop()
	// Both wait for an in-flight run to reach its next checkpoint.
	a.autoCheck.Stop()
	a.backup.Stop()

	if utils.Close(a.db, "postgres", a.logger) {
		a.logger.Info("✅ Postgres closed cleanly")
	}
	if utils.Close(a.redisClient, "redis", a.logger) {
		a.logger.Info("✅ Redis closed cleanly")
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ serpwatch stopped cleanly")
	return nil
}
