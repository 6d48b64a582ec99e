// Package worker drains one shard queue and runs each event through the
// pipeline.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/metrics"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/queue/memory"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

// Queue is the source of work items.
type Queue interface {
	Dequeue(ctx context.Context) (notice.QueueItem, error)
}

// Worker consumes queue items one at a time.
type Worker struct {
	id      int
	queue   Queue
	handler notice.EventHandler
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, queue Queue, handler notice.EventHandler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		handler: handler,
		logger:  logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item notice.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if item.Done != nil {
			close(item.Done)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event handler panicked",
				zap.String("notice_id", item.Event.NoticeID),
				zap.Any("panic", r),
			)
		}
	}()

	w.logger.Debug("dequeued event", zap.String("notice_id", item.Event.NoticeID))
	w.handler.HandleEvent(telemetry.Extract(ctx, item.Trace), item.Event)
}
