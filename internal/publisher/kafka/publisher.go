// Package kafka publishes status events to Kafka topics.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	kgo "github.com/segmentio/kafka-go"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Publisher wraps a Kafka writer. The topic is chosen per message.
type Publisher struct {
	writer messageWriter
}

// New creates a Publisher for the given brokers.
func New(brokers []string) *Publisher {
	return &Publisher{
		writer: &kgo.Writer{
			Addr:                   kgo.TCP(brokers...),
			Balancer:               &kgo.Hash{},
			RequiredAcks:           kgo.RequireAll,
			AllowAutoTopicCreation: false,
		},
	}
}

// NewWithWriter builds a Publisher around a custom writer (tests).
func NewWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish writes payload as JSON to topic. Status events are keyed by crawl
// ID so all events of one crawl land on the same partition.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := kgo.Message{
		Topic: topic,
		Value: data,
		Time:  time.Now().UTC(),
	}
	if ev, ok := payload.(crawler.StatusEvent); ok && ev.CrawlID != "" {
		msg.Key = []byte(ev.CrawlID)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write to %s: %w", topic, err)
	}
	return string(msg.Key), nil
}
