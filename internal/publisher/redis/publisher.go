// Package redis appends status events to a Redis list.
package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
)

// Publisher RPUSHes JSON payloads onto the list named by topic.
type Publisher struct {
	queue crawler.Queue
}

// New wraps the queue used for status events.
func New(queue crawler.Queue) *Publisher {
	return &Publisher{queue: queue}
}

// Publish serializes payload and appends it to topic. The returned ID is the
// list name since Redis lists carry no message IDs.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.queue == nil {
		return "", fmt.Errorf("redis publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.queue.Enqueue(ctx, topic, data); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return topic, nil
}
