// Package dispatcher fans delivered events out to a pool of workers, keeping
// every event of one notice on the same worker.
package dispatcher

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/queue/memory"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
	"github.com/JakeFAU/noticewatch/internal/worker"
)

// Config sizes the pool.
type Config struct {
	Workers    int
	QueueDepth int
}

// Dispatcher implements notice.EventHandler by routing each event to a
// shard and waiting until its worker finished it.
type Dispatcher struct {
	queues  []*memory.Queue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates one queue and one worker per shard, all calling handler.
func New(handler notice.EventHandler, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{logger: logger}
	for i := 0; i < cfg.Workers; i++ {
		q := memory.NewQueue(cfg.QueueDepth)
		d.queues = append(d.queues, q)
		d.workers = append(d.workers, worker.New(i, q, handler, logger))
	}
	return d
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	for _, q := range d.queues {
		q.Close()
	}
	wg.Wait()
}

// Shard returns the worker index for noticeID.
func (d *Dispatcher) Shard(noticeID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(noticeID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Enqueue hands ev to its shard without waiting for it to be processed.
func (d *Dispatcher) Enqueue(ctx context.Context, item notice.QueueItem) error {
	if err := d.queues[d.Shard(item.Event.NoticeID)].Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// HandleEvent enqueues ev and blocks until a worker finished it or ctx ends.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev notice.NoticeEvent) {
	done := make(chan struct{})
	trace := make(map[string]string)
	telemetry.Inject(ctx, trace)
	if err := d.Enqueue(ctx, notice.QueueItem{Event: ev, Trace: trace, Done: done}); err != nil {
		d.logger.Warn("event not dispatched", zap.String("notice_id", ev.NoticeID), zap.Error(err))
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}
