// Package memory provides an in-process message channel for tests and local
// runs. It implements both notice.Producer and notice.Subscriber.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/channel"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("channel closed")

// Channel buffers sent events until Flush makes them deliverable.
type Channel struct {
	mu      sync.Mutex
	pending [][]byte
	sent    []notice.NoticeEvent
	flushes int
	closed  bool
	ch      chan []byte
	logger  *zap.Logger
}

// Option customizes a Channel.
type Option func(*Channel)

// WithLogger sets the logger used for dropped payloads.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Channel able to hold capacity flushed, undelivered events.
func New(capacity int, opts ...Option) *Channel {
	if capacity <= 0 {
		capacity = 1024
	}
	c := &Channel{ch: make(chan []byte, capacity), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send encodes the event and holds it until the next Flush.
func (c *Channel) Send(_ context.Context, event notice.NoticeEvent) error {
	data, err := channel.Encode(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.pending = append(c.pending, data)
	c.sent = append(c.sent, event)
	return nil
}

// Flush delivers every pending event in send order.
func (c *Channel) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.flushes++
	c.mu.Unlock()

	for _, data := range batch {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush canceled: %w", ctx.Err())
		case c.ch <- data:
		}
	}
	return nil
}

// Close flushes what is pending and stops accepting sends.
func (c *Channel) Close() error {
	err := c.Flush(context.Background())
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return err
}

// Receive hands delivered events to handler one at a time until ctx ends.
// Undecodable payloads are logged and dropped.
func (c *Channel) Receive(ctx context.Context, handler notice.EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-c.ch:
			event, err := channel.Decode(data)
			if err != nil {
				c.logger.Warn("dropping undecodable message",
					zap.Int("bytes", len(data)),
					zap.Error(err),
				)
				continue
			}
			handler.HandleEvent(ctx, event)
		}
	}
}

// Deliver injects a raw payload as if it came off the wire.
func (c *Channel) Deliver(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.ch <- data:
		return nil
	}
}

// Sent returns a copy of every event passed to Send.
func (c *Channel) Sent() []notice.NoticeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notice.NoticeEvent, len(c.sent))
	copy(out, c.sent)
	return out
}

// Flushes reports how many times Flush ran.
func (c *Channel) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}
