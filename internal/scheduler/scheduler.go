// Package scheduler runs the publisher cycle: fetch the current window,
// claim unseen notices, persist them and emit one event each.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/metrics"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

const dateLayout = "2006-01-02"

// Claimer decides whether a notice id is new.
type Claimer interface {
	Claim(ctx context.Context, noticeID string) (bool, error)
}

// Config controls cadence and the date window.
type Config struct {
	Interval   time.Duration
	WindowDays int
	Location   *time.Location
}

// CycleResult counts what one cycle did.
type CycleResult struct {
	RunID     string
	Window    notice.Window
	Fetched   int
	New       int
	Published int
	Dropped   int
}

// Scheduler is the publisher loop.
type Scheduler struct {
	source   notice.Source
	claimer  Claimer
	store    notice.NoticeStore
	producer notice.Producer
	clock    notice.Clock
	ids      notice.IDGenerator
	cfg      Config
	logger   *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Scheduler.
func New(
	source notice.Source,
	claimer Claimer,
	store notice.NoticeStore,
	producer notice.Producer,
	clock notice.Clock,
	ids notice.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		source:   source,
		claimer:  claimer,
		store:    store,
		producer: producer,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// FetchWindow returns [today, today+days] in loc.
func FetchWindow(now time.Time, loc *time.Location, days int) notice.Window {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	return notice.Window{
		Start: today.Format(dateLayout),
		End:   today.AddDate(0, 0, days).Format(dateLayout),
	}
}

// Run starts one cycle immediately and another on every tick until ctx ends.
// A tick that finds the previous cycle still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("window_days", s.cfg.WindowDays),
		zap.String("timezone", s.cfg.Location.String()),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a cycle in the background unless the previous one is still
// in flight.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous cycle still running, skipping tick")
		metrics.ObserveCycleSkipped()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_, _ = s.RunOnce(ctx)
	}()
}

// RunOnce executes a single cycle. Per notice the order is claim, persist,
// send; a notice whose persist or send fails after the claim is dropped for
// good. All sends of the cycle are flushed together.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return CycleResult{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := telemetry.Tracer().Start(ctx, "scheduler.cycle")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	res := CycleResult{
		RunID:  runID,
		Window: FetchWindow(s.clock.Now(), s.cfg.Location, s.cfg.WindowDays),
	}
	logger := s.logger.With(zap.String("run_id", runID))
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	logger.Info("checking for new notices",
		zap.String("from", res.Window.Start),
		zap.String("to", res.Window.End),
	)

	notices, err := s.source.FetchNotices(ctx, res.Window)
	if err != nil {
		logger.Error("fetch notices failed", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveCycle("fetch_error")
		return res, fmt.Errorf("fetch notices: %w", err)
	}
	res.Fetched = len(notices)

	for _, n := range notices {
		if ctx.Err() != nil {
			break
		}
		s.handle(ctx, logger, n, &res)
	}

	flushErr := s.producer.Flush(ctx)
	s.record(res)
	if flushErr != nil {
		logger.Error("flush failed", zap.Int("pending", res.Published), zap.Error(flushErr))
		metrics.ObserveCycle("flush_error")
		return res, fmt.Errorf("flush: %w", flushErr)
	}

	if res.New == 0 {
		logger.Info("no new notices", zap.Int("fetched", res.Fetched))
	} else {
		logger.Info(fmt.Sprintf("published %d", res.Published),
			zap.Int("fetched", res.Fetched),
			zap.Int("new", res.New),
			zap.Int("published", res.Published),
			zap.Int("dropped", res.Dropped),
		)
	}
	if err := ctx.Err(); err != nil {
		metrics.ObserveCycle("aborted")
		return res, err
	}
	metrics.ObserveCycle("ok")
	return res, nil
}

func (s *Scheduler) handle(ctx context.Context, logger *zap.Logger, n notice.Notice, res *CycleResult) {
	logger = logger.With(zap.String("notice_id", n.ID))
	claimed, err := s.claimer.Claim(ctx, n.ID)
	if err != nil {
		logger.Error("dedup claim failed", zap.Error(err))
		return
	}
	if !claimed {
		return
	}
	res.New++

	if err := s.store.UpsertNotice(ctx, n); err != nil {
		res.Dropped++
		logger.Error("persist failed, notice dropped", zap.Error(err))
		return
	}
	if err := s.producer.Send(ctx, n.Event()); err != nil {
		res.Dropped++
		logger.Error("send failed, notice dropped", zap.Error(err))
		return
	}
	res.Published++
	logger.Debug("notice queued", zap.String("title", n.Title))
}

func (s *Scheduler) record(res CycleResult) {
	metrics.AddNotices("fetched", res.Fetched)
	metrics.AddNotices("new", res.New)
	metrics.AddNotices("published", res.Published)
	metrics.AddNotices("dropped", res.Dropped)
}
