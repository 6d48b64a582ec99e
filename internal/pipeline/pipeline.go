// Package pipeline runs the two consumer stages for one event and decides,
// from their typed outcomes, whether to continue.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/enrich"
	"github.com/JakeFAU/noticewatch/internal/metrics"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

// Status is the result of one stage.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusNoPDF    Status = "no_pdf"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Outcome records how a stage ended.
type Outcome struct {
	Stage    notice.Stage
	Status   Status
	Err      error
	Duration time.Duration
}

// Failed reports whether the stage ended in error.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// Report collects both stage outcomes for an event.
type Report struct {
	NoticeID string
	Geocode  Outcome
	Enrich   Outcome
}

// Resolver is Stage A.
type Resolver interface {
	Resolve(ctx context.Context, noticeID, region string) (notice.CoordinateRecord, error)
}

// Enricher is Stage B.
type Enricher interface {
	Enrich(ctx context.Context, noticeID, pblancNo, detailURL string) (enrich.Result, error)
}

// Pipeline implements notice.EventHandler.
type Pipeline struct {
	resolver Resolver
	enricher Enricher
	logger   *zap.Logger
}

// New builds a Pipeline.
func New(resolver Resolver, enricher Enricher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{resolver: resolver, enricher: enricher, logger: logger}
}

// HandleEvent processes ev to completion. Failures are logged, never returned,
// so the message is acknowledged regardless.
func (p *Pipeline) HandleEvent(ctx context.Context, ev notice.NoticeEvent) {
	p.Process(ctx, ev)
}

// Process runs Stage A, then Stage B unless Stage A failed.
func (p *Pipeline) Process(ctx context.Context, ev notice.NoticeEvent) Report {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("notice_id", ev.NoticeID))

	logger := p.logger.With(zap.String("notice_id", ev.NoticeID))
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	logger.Info("event received", zap.String("title", ev.Title))

	report := Report{NoticeID: ev.NoticeID}
	report.Geocode = p.runStage(ctx, notice.StageGeocode, logger, func(ctx context.Context) (Status, error) {
		rec, err := p.resolver.Resolve(ctx, ev.NoticeID, ev.Region)
		if err != nil {
			return StatusFailed, err
		}
		if rec.Status == notice.GeocodeNotFound {
			return StatusNotFound, nil
		}
		return StatusOK, nil
	})
	if report.Geocode.Failed() {
		report.Enrich = Outcome{Stage: notice.StageEnrich, Status: StatusSkipped}
		logger.Warn("skipping enrichment after geocode failure")
		return report
	}

	report.Enrich = p.runStage(ctx, notice.StageEnrich, logger, func(ctx context.Context) (Status, error) {
		res, err := p.enricher.Enrich(ctx, ev.NoticeID, ev.NoticeID, ev.URL)
		if err != nil {
			return StatusFailed, err
		}
		if res.Status == enrich.StatusNoPDF {
			return StatusNoPDF, nil
		}
		return StatusOK, nil
	})
	return report
}

func (p *Pipeline) runStage(
	ctx context.Context,
	stage notice.Stage,
	logger *zap.Logger,
	fn func(context.Context) (Status, error),
) Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "stage."+string(stage))
	defer span.End()

	start := time.Now()
	status, err := fn(ctx)
	out := Outcome{Stage: stage, Status: status, Duration: time.Since(start)}
	if err != nil {
		out.Err = tagStage(stage, err)
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "stage failed")
		logger.Error("stage failed",
			zap.String("stage", string(stage)),
			zap.String("kind", notice.KindOf(err).String()),
			zap.Error(out.Err),
		)
	} else {
		logger.Info("stage finished",
			zap.String("stage", string(stage)),
			zap.String("status", string(status)),
			zap.Duration("took", out.Duration),
		)
	}
	span.SetAttributes(attribute.String("status", string(status)))
	metrics.ObserveStage(string(stage), string(status), out.Duration)
	return out
}

func tagStage(stage notice.Stage, err error) error {
	return &notice.StageError{Stage: stage, Kind: notice.KindOf(err), Op: "failed", Err: err}
}
