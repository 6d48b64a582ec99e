// Package server wires configuration into the publisher and consumer daemons
// and owns their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	chanmem "github.com/JakeFAU/noticewatch/internal/channel/memory"
	"github.com/JakeFAU/noticewatch/internal/config"
	"github.com/JakeFAU/noticewatch/internal/logging"
	"github.com/JakeFAU/noticewatch/internal/metrics"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App holds the clients shared by both daemons.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	checks         map[string]Pinger
	closers        []closer
	tracerShutdown func(context.Context) error
	memChannel     *chanmem.Channel
	docStore       notice.NoticeStore
	archive        notice.BlobStore
	extractor      notice.StructuredExtractor
	sleep          notice.Sleeper
}

// Option customizes a build.
type Option func(*App)

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithChannel shares one in-process channel between daemons built in the
// same process. It only applies to the memory channel backend.
func WithChannel(ch *chanmem.Channel) Option {
	return func(a *App) { a.memChannel = ch }
}

// WithDocStore uses store instead of the configured document store.
func WithDocStore(store notice.NoticeStore) Option {
	return func(a *App) { a.docStore = store }
}

// WithArchive uses store instead of the configured archive.
func WithArchive(store notice.BlobStore) Option {
	return func(a *App) { a.archive = store }
}

// WithExtractor replaces the model-backed structured extractor.
func WithExtractor(ext notice.StructuredExtractor) Option {
	return func(a *App) { a.extractor = ext }
}

// WithSleeper replaces the real sleeper used between retries.
func WithSleeper(s notice.Sleeper) Option {
	return func(a *App) { a.sleep = s }
}

func newApp(ctx context.Context, cfg config.Config, service string, opts ...Option) (*App, error) {
	app := &App{cfg: cfg, checks: make(map[string]Pinger)}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, service)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		zap.ReplaceGlobals(logger)
	}

	tp, err := telemetry.InitTracerProvider(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	metrics.Init()

	app.logStartup(service)
	return app, nil
}

// Logger returns the daemon logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) logStartup(service string) {
	c := a.cfg
	a.logger.Info("starting "+service,
		zap.Int("interval_seconds", c.Scheduler.IntervalSeconds),
		zap.String("timezone", c.Scheduler.Timezone),
		zap.String("source_url", c.Source.BaseURL),
		zap.String("source_service_key", config.Mask(c.Source.ServiceKey)),
		zap.String("redis_backend", c.Redis.Backend),
		zap.String("redis_addr", c.Redis.Addr),
		zap.String("channel_backend", c.Channel.Backend),
		zap.String("channel_topic", c.Channel.Topic),
		zap.String("channel_subscription", c.Channel.Subscription),
		zap.String("docstore_backend", c.DocStore.Backend),
		zap.String("docstore_database", c.DocStore.Database),
		zap.String("archive_backend", c.Archive.Backend),
		zap.String("archive_bucket", c.Archive.Bucket),
		zap.String("geocode_key_id", config.Mask(c.Geocode.KeyID)),
		zap.String("geocode_key", config.Mask(c.Geocode.Key)),
		zap.String("model", c.Model.Name),
		zap.String("model_api_key", config.Mask(c.Model.APIKey)),
		zap.Int("workers", c.Consumer.Workers),
		zap.Int("ops_port", c.Ops.Port),
	)
}

// onClose registers fn to run during Close. Closers run in reverse order of
// registration.
func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) addCheck(name string, p Pinger) {
	a.checks[name] = p
}

// run blocks in loop until ctx ends or a termination signal arrives, serving
// the ops endpoints meanwhile, then releases every client.
func (a *App) run(ctx context.Context, loop func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := a.startOps(stop)

	loopErr := loop(ctx)
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		a.logger.Error("main loop failed", zap.Error(loopErr))
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("ops server shutdown error", zap.Error(err))
		}
	}
	closeErr := a.Close(shutdownCtx)
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	return closeErr
}

func (a *App) startOps(stop context.CancelFunc) *http.Server {
	if a.cfg.Ops.Port == 0 {
		a.logger.Info("ops server disabled")
		return nil
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Ops.Port),
		Handler:           NewOpsRouter(a.checks, a.logger.Named("ops")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("ops server started", zap.Int("port", a.cfg.Ops.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server error", zap.Error(err))
			stop()
		}
	}()
	return srv
}

// Close releases clients in reverse order of creation, then flushes
// observability. It returns the first close failure.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn(c.name+" close failed", zap.Error(err))
			if first == nil {
				first = fmt.Errorf("close %s: %w", c.name, err)
			}
		}
	}
	a.closers = nil
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return first
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}
