// Package pubsub implements the message channel on Google Cloud Pub/Sub with
// per-notice ordering keys.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/noticewatch/internal/channel"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/telemetry"
)

// Producer publishes events with the notice id as ordering key.
type Producer struct {
	topic *pubsub.Topic

	mu      sync.Mutex
	pending []pendingResult
}

type pendingResult struct {
	key    string
	result *pubsub.PublishResult
}

// NewProducer wraps topic and enables message ordering on it.
func NewProducer(topic *pubsub.Topic) (*Producer, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	topic.EnableMessageOrdering = true
	return &Producer{topic: topic}, nil
}

// Send publishes without waiting for the server acknowledgement.
func (p *Producer) Send(ctx context.Context, event notice.NoticeEvent) error {
	data, err := channel.Encode(event)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data:        data,
		OrderingKey: event.NoticeID,
		Attributes:  map[string]string{"notice_id": event.NoticeID},
	}
	telemetry.Inject(ctx, msg.Attributes)

	res := p.topic.Publish(ctx, msg)
	p.mu.Lock()
	p.pending = append(p.pending, pendingResult{key: event.NoticeID, result: res})
	p.mu.Unlock()
	return nil
}

// Flush waits for every pending publish and returns the first failure. Keys
// whose publish failed are resumed so later sends are not rejected.
func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	p.topic.Flush()

	var first error
	for _, pr := range batch {
		if _, err := pr.result.Get(ctx); err != nil {
			if first == nil {
				first = fmt.Errorf("publish %s: %w", pr.key, err)
			}
			if pr.key != "" {
				p.topic.ResumePublish(pr.key)
			}
		}
	}
	return first
}

// Close flushes outstanding publishes and stops the topic's goroutines.
func (p *Producer) Close() error {
	err := p.Flush(context.Background())
	p.topic.Stop()
	return err
}

// EnsureTopic returns the topic, creating it when missing.
func EnsureTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", topicID, err)
	}
	if ok {
		return topic, nil
	}
	topic, err = client.CreateTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("create topic %s: %w", topicID, err)
	}
	return topic, nil
}

// EnsureSubscription returns the subscription, creating it on topic when
// missing. A fresh subscription only sees messages published after it exists.
func EnsureSubscription(ctx context.Context, client *pubsub.Client, subID string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	if topic == nil {
		return nil, errors.New("topic is required")
	}
	sub := client.Subscription(subID)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %s: %w", subID, err)
	}
	if ok {
		return sub, nil
	}
	sub, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic:                 topic,
		EnableMessageOrdering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %s: %w", subID, err)
	}
	return sub, nil
}
