package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/queue/memory"
)

type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	panic bool
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev notice.NoticeEvent) {
	h.mu.Lock()
	h.seen = append(h.seen, ev.NoticeID)
	h.mu.Unlock()
	if h.panic {
		panic("boom")
	}
}

func (h *recordingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func TestWorkerProcessesInOrderAndSignalsDone(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	h := &recordingHandler{}
	w := New(0, q, h, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	var dones []chan struct{}
	for _, id := range []string{"a", "b", "c"} {
		done := make(chan struct{})
		dones = append(dones, done)
		require.NoError(t, q.Enqueue(ctx, notice.QueueItem{Event: notice.NoticeEvent{NoticeID: id}, Done: done}))
	}
	for _, done := range dones {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("item was not marked done")
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, h.ids())

	q.Close()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestWorkerSurvivesHandlerPanic(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(2)
	h := &recordingHandler{panic: true}
	w := New(1, q, h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for _, id := range []string{"x", "y"} {
		done := make(chan struct{})
		require.NoError(t, q.Enqueue(ctx, notice.QueueItem{Event: notice.NoticeEvent{NoticeID: id}, Done: done}))
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("panicking handler did not release item")
		}
	}
	require.Equal(t, []string{"x", "y"}, h.ids())
}
