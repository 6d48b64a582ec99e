package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/channel"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

// SubscriberConfig bounds in-flight deliveries.
type SubscriberConfig struct {
	// MaxOutstanding caps unacknowledged messages. 1 processes strictly one
	// event at a time.
	MaxOutstanding int
}

// Subscriber delivers events from a subscription and acknowledges each one
// after the handler returns, whatever the outcome.
type Subscriber struct {
	sub    *pubsub.Subscription
	logger *zap.Logger
}

// NewSubscriber wraps sub.
func NewSubscriber(sub *pubsub.Subscription, cfg SubscriberConfig, logger *zap.Logger) (*Subscriber, error) {
	if sub == nil {
		return nil, fmt.Errorf("pubsub subscription is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 1
	}
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	sub.ReceiveSettings.NumGoroutines = 1
	return &Subscriber{sub: sub, logger: logger}, nil
}

// Receive blocks until ctx ends or the subscription fails.
func (s *Subscriber) Receive(ctx context.Context, handler notice.EventHandler) error {
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		defer msg.Ack()
		ctx = telemetry.Extract(ctx, msg.Attributes)
		event, err := channel.Decode(msg.Data)
		if err != nil {
			s.logger.Warn("dropping undecodable message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			return
		}
		handler.HandleEvent(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}
