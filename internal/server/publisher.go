package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/noticewatch/internal/clock/system"
	"github.com/JakeFAU/noticewatch/internal/config"
	"github.com/JakeFAU/noticewatch/internal/dedup"
	"github.com/JakeFAU/noticewatch/internal/id/uuid"
	"github.com/JakeFAU/noticewatch/internal/scheduler"
)

// PublisherService is the name the publisher logs and traces under.
const PublisherService = "noticewatch-publisher"

// Publisher is the scheduler daemon.
type Publisher struct {
	*App
	scheduler *scheduler.Scheduler
}

// BuildPublisher validates cfg and connects every publisher dependency. A
// dedup store that does not answer a ping fails the build with a fatal error.
func BuildPublisher(ctx context.Context, cfg config.Config, opts ...Option) (*Publisher, error) {
	if err := cfg.ValidatePublisher(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app, err := newApp(ctx, cfg, PublisherService, opts...)
	if err != nil {
		return nil, err
	}

	p, err := buildPublisher(ctx, app)
	if err != nil {
		return nil, errors.Join(err, app.Close(ctx))
	}
	return p, nil
}

func buildPublisher(ctx context.Context, app *App) (*Publisher, error) {
	app.logger.Info("building publisher dependencies")

	dedupStore, err := setupDedup(ctx, app)
	if err != nil {
		return nil, err
	}
	store, err := setupDocStore(ctx, app)
	if err != nil {
		return nil, err
	}
	producer, err := setupProducer(ctx, app)
	if err != nil {
		return nil, err
	}
	source, err := setupSource(app)
	if err != nil {
		return nil, err
	}

	loc := app.cfg.Location()
	sched := scheduler.New(
		source,
		dedup.NewClaimer(dedupStore, app.cfg.DedupTTL()),
		store,
		producer,
		system.New(loc),
		uuid.New(),
		scheduler.Config{
			Interval:   app.cfg.Interval(),
			WindowDays: app.cfg.Scheduler.WindowDays,
			Location:   loc,
		},
		app.logger.Named("scheduler"),
	)
	return &Publisher{App: app, scheduler: sched}, nil
}

// Scheduler exposes the publisher loop.
func (p *Publisher) Scheduler() *scheduler.Scheduler {
	return p.scheduler
}

// Run schedules cycles until ctx ends or a termination signal arrives, then
// shuts everything down.
func (p *Publisher) Run(ctx context.Context) error {
	return p.run(ctx, p.scheduler.Run)
}
