package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

type collector struct {
	mu     sync.Mutex
	events []notice.NoticeEvent
}

func (c *collector) HandleEvent(_ context.Context, e notice.NoticeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []notice.NoticeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notice.NoticeEvent(nil), c.events...)
}

func TestSendIsDeliveredOnlyAfterFlush(t *testing.T) {
	t.Parallel()

	ch := New(8)
	got := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Receive(ctx, got) }()

	require.NoError(t, ch.Send(ctx, notice.NoticeEvent{NoticeID: "a"}))
	require.NoError(t, ch.Send(ctx, notice.NoticeEvent{NoticeID: "b"}))
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, got.snapshot())

	require.NoError(t, ch.Flush(ctx))
	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "a", got.snapshot()[0].NoticeID)
	require.Equal(t, "b", got.snapshot()[1].NoticeID)
	require.Equal(t, 1, ch.Flushes())
	require.Len(t, ch.Sent(), 2)
}

func TestReceiveDropsMalformedPayloads(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	ch := New(4, WithLogger(zap.New(core)))
	got := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Receive(ctx, got) }()

	require.NoError(t, ch.Deliver(ctx, []byte("{broken")))
	require.NoError(t, ch.Deliver(ctx, []byte(`{"notice_id":"ok"}`)))
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "ok", got.snapshot()[0].NoticeID)

	dropped := logs.FilterMessage("dropping undecodable message").All()
	require.Len(t, dropped, 1)
	require.EqualValues(t, 7, dropped[0].ContextMap()["bytes"])
}

func TestCloseFlushesAndRejectsSends(t *testing.T) {
	t.Parallel()

	ch := New(4)
	require.NoError(t, ch.Send(context.Background(), notice.NoticeEvent{NoticeID: "a"}))
	require.NoError(t, ch.Close())
	require.ErrorIs(t, ch.Send(context.Background(), notice.NoticeEvent{NoticeID: "b"}), ErrClosed)
	require.Len(t, ch.ch, 1)
}
