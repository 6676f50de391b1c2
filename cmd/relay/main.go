// Command relay is the orchestrator binary. By default it runs the
// due-source fetch/publish cycle once and exits, for invocation by an
// external scheduler (cron, k8s CronJob), matching the one-run-per-process
// model the control flow is specified around. If webhook intake is
// enabled it instead runs as a long-lived process: it serves the intake
// endpoint and re-runs the cycle on a fixed tick, since accepting
// out-of-cycle webhooks needs a scheduler instance that stays alive between
// scheduled runs.
//
// Grounded on the teacher's cmd/worker/main.go WorkerApp shape (dependency
// struct, NewXApp constructor, Start/Cleanup, signal-driven shutdown),
// adapted from job processors to the orchestrator's single RunOnce cycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/techappsUT/feedrelay/internal/applog"
	"github.com/techappsUT/feedrelay/internal/config"
	"github.com/techappsUT/feedrelay/internal/relay/pipeline"
	"github.com/techappsUT/feedrelay/internal/relay/publisher"
	"github.com/techappsUT/feedrelay/internal/relay/scheduler"
	"github.com/techappsUT/feedrelay/internal/relay/source/atproto"
	"github.com/techappsUT/feedrelay/internal/relay/source/feed"
	"github.com/techappsUT/feedrelay/internal/relay/source/twitterscrape"
	"github.com/techappsUT/feedrelay/internal/relay/source/video"
	"github.com/techappsUT/feedrelay/internal/relay/store"
	"github.com/techappsUT/feedrelay/internal/relay/webhook"
)

// lockTTL bounds how long a per-source Redis lock survives an orchestrator
// crash mid-run, before another process is allowed to retry that source.
const lockTTL = 15 * time.Minute

// tickInterval is how often the daemon mode re-runs the cycle when webhook
// intake keeps the process alive between external cron invocations.
const tickInterval = time.Minute

// App holds the orchestrator's wired dependencies for one process lifetime.
type App struct {
	conn      *store.Conn
	redis     *redis.Client
	logger    applog.Logger
	scheduler *Scheduler
	webhook   *webhook.Server
	cfg       *config.Config
}

// Scheduler is a local alias so this file doesn't repeat the scheduler
// package's own type name.
type Scheduler = scheduler.Scheduler

// schedAdapter is the adapter map value type the scheduler expects.
type schedAdapter = pipeline.SourceAdapter

func main() {
	sourcesPath := flag.String("sources", "sources.yaml", "path to the source configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using environment variables")
	}

	app, err := NewApp(*sourcesPath)
	if err != nil {
		log.Fatalf("failed to initialize relay: %v", err)
	}
	defer app.Cleanup()

	os.Exit(app.Run())
}

// NewApp wires the store, scheduler, source adapters, publisher adapter and
// optional webhook server from process configuration.
func NewApp(sourcesPath string) (*App, error) {
	logger := applog.New()
	cfg := config.Load()

	sources, err := config.LoadSources(sourcesPath)
	if err != nil {
		return nil, fmt.Errorf("load source config: %w", err)
	}

	if err := store.Migrate(cfg.Database.DSN()); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	conn, err := store.Open(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to redis")

	st := store.New(conn)

	sourceAdapters := buildSourceAdapters(cfg)

	mastodon := publisher.NewMastodonPublisher(cfg.Downstream.BaseURL, cfg.Downstream.Token, logger)
	limiter := publisher.NewAccountLimiter(cfg.Downstream.PublishRatePerMin, cfg.Downstream.PublishBurst)
	pub := publisher.NewAdapter(mastodon, limiter, logger)

	locker := scheduler.NewLocker(redisClient, lockTTL)

	sched := scheduler.New(
		sources,
		st.PublishedPosts,
		st.SourceState,
		st.ActivityLog,
		st.EditBuffer,
		sourceAdapters,
		pub,
		locker,
		cfg.Run,
		logger,
	)

	var webhookServer *webhook.Server
	if cfg.Webhook.Enabled {
		webhookServer = webhook.NewServer(cfg.Webhook, sched, logger)
	}

	return &App{
		conn:      conn,
		redis:     redisClient,
		logger:    logger,
		scheduler: sched,
		webhook:   webhookServer,
		cfg:       cfg,
	}, nil
}

// buildSourceAdapters registers one adapter per supported platform name
// (config.Source.Platform's validated oneof set).
func buildSourceAdapters(cfg *config.Config) map[string]schedAdapter {
	tw := twitterscrape.New()
	if cfg.Platforms.TwitterScrapeBaseURL != "" {
		tw.BaseURL = cfg.Platforms.TwitterScrapeBaseURL
	}

	videoBaseURL := cfg.Platforms.VideoPlatformBaseURL
	if videoBaseURL == "" {
		videoBaseURL = "http://localhost"
	}

	return map[string]schedAdapter{
		"twitterscrape": tw,
		"atproto":       atproto.New(),
		"feed":          feed.New(),
		"video":         video.New(videoBaseURL),
	}
}

// Run executes either a single cycle (webhook intake disabled, the default
// cron-invoked mode) or a long-lived daemon loop (webhook intake enabled).
// It returns the process exit code.
func (a *App) Run() int {
	if a.webhook == nil {
		return a.runOnce(context.Background())
	}
	return a.runDaemon()
}

func (a *App) runOnce(ctx context.Context) int {
	summary, err := a.scheduler.RunOnce(ctx)
	if err != nil {
		a.logger.Error("orchestrator run failed to start", "err", err)
		return 2
	}
	a.logger.Info("orchestrator run completed",
		"considered", summary.SourcesConsidered,
		"ran", summary.SourcesRun,
		"published", summary.Published,
		"updated", summary.Updated,
		"errored", summary.Errored,
	)
	return summary.ExitCode
}

func (a *App) runDaemon() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &httpServerHandle{addr: a.cfg.Webhook.Addr, handler: a.webhook}
	srv.start(a.logger)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if code := a.runOnce(ctx); code == 2 {
				a.logger.Warn("skipping tick after run failed to start")
			}
		case <-quit:
			a.logger.Info("shutting down relay")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			srv.stop(shutdownCtx, a.logger)
			return 0
		}
	}
}

// httpServerHandle owns the webhook intake HTTP server's lifecycle,
// separated from App so Run can stay focused on the orchestrator cycle.
type httpServerHandle struct {
	addr    string
	handler *webhook.Server
	srv     *http.Server
}

func (h *httpServerHandle) start(logger applog.Logger) {
	h.srv = &http.Server{Addr: h.addr, Handler: h.handler}
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("webhook intake server stopped unexpectedly", "err", err)
		}
	}()
	logger.Info("webhook intake listening", "addr", h.addr)
}

func (h *httpServerHandle) stop(ctx context.Context, logger applog.Logger) {
	if err := h.srv.Shutdown(ctx); err != nil {
		logger.Warn("webhook intake shutdown did not complete cleanly", "err", err)
	}
}

// Cleanup releases the database and redis connections.
func (a *App) Cleanup() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}
