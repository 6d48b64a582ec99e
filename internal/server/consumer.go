package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/noticewatch/internal/config"
	"github.com/JakeFAU/noticewatch/internal/dispatcher"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/pipeline"
)

// ConsumerService is the name the consumer logs and traces under.
const ConsumerService = "noticewatch-consumer"

// Consumer is the pipeline daemon.
type Consumer struct {
	*App
	subscriber notice.Subscriber
	pipeline   *pipeline.Pipeline
	dispatch   *dispatcher.Dispatcher
}

// BuildConsumer validates cfg and connects every consumer dependency. The
// message channel is retried before the build gives up.
func BuildConsumer(ctx context.Context, cfg config.Config, opts ...Option) (*Consumer, error) {
	if err := cfg.ValidateConsumer(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app, err := newApp(ctx, cfg, ConsumerService, opts...)
	if err != nil {
		return nil, err
	}

	c, err := buildConsumer(ctx, app)
	if err != nil {
		return nil, errors.Join(err, app.Close(ctx))
	}
	return c, nil
}

func buildConsumer(ctx context.Context, app *App) (*Consumer, error) {
	app.logger.Info("building consumer dependencies")

	store, err := setupDocStore(ctx, app)
	if err != nil {
		return nil, err
	}
	archive, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	resolver, err := setupResolver(app, store)
	if err != nil {
		return nil, err
	}
	enricher, err := setupEnricher(ctx, app, store, archive)
	if err != nil {
		return nil, err
	}
	subscriber, err := setupSubscriber(ctx, app)
	if err != nil {
		return nil, err
	}

	pipe := pipeline.New(resolver, enricher, app.logger.Named("pipeline"))
	dispatch := dispatcher.New(pipe, dispatcher.Config{
		Workers:    app.cfg.Consumer.Workers,
		QueueDepth: app.cfg.Consumer.QueueDepth,
	}, app.logger.Named("dispatcher"))

	return &Consumer{
		App:        app,
		subscriber: subscriber,
		pipeline:   pipe,
		dispatch:   dispatch,
	}, nil
}

// Pipeline exposes the per-event handler.
func (c *Consumer) Pipeline() *pipeline.Pipeline {
	return c.pipeline
}

// Run receives events until ctx ends or a termination signal arrives, then
// drains the workers and shuts everything down.
func (c *Consumer) Run(ctx context.Context) error {
	return c.run(ctx, c.receive)
}

func (c *Consumer) receive(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.dispatch.Run(workerCtx)
	}()

	c.logger.Info("waiting for events")
	err := c.subscriber.Receive(ctx, c.dispatch)

	cancel()
	wg.Wait()
	return err
}
