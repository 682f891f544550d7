// Package events publishes job lifecycle events to the status queue.
package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
)

// Reporter builds StatusEvents for a job and hands them to a Publisher.
type Reporter struct {
	publisher  crawler.Publisher
	topic      string
	instanceID string
	logger     *zap.Logger
}

// NewReporter publishes to topic, stamping every event with instanceID.
func NewReporter(publisher crawler.Publisher, topic, instanceID string, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{publisher: publisher, topic: topic, instanceID: instanceID, logger: logger}
}

// PublishProcessing announces a claimed job before its crawl starts.
func (r *Reporter) PublishProcessing(ctx context.Context, job crawler.Job) error {
	return r.publish(ctx, r.event(job, crawler.EventProcessing))
}

// PublishTerminal emits the single SUCCESS or FAILURE event for job. s3Path
// and chain are included when non-empty.
func (r *Reporter) PublishTerminal(ctx context.Context, job crawler.Job, success bool, s3Path string, chain []string) error {
	kind := crawler.EventFailure
	if success {
		kind = crawler.EventSuccess
	}
	ev := r.event(job, kind)
	ev.S3Path = s3Path
	ev.RedirectionChain = chain
	return r.publish(ctx, ev)
}

func (r *Reporter) event(job crawler.Job, kind crawler.EventType) crawler.StatusEvent {
	return crawler.StatusEvent{
		URL:        job.URL,
		Event:      kind,
		Domain:     job.Domain,
		Level:      job.Level,
		Retry:      job.Retry,
		CrawlID:    job.ID,
		InstanceID: r.instanceID,
	}
}

func (r *Reporter) publish(ctx context.Context, ev crawler.StatusEvent) error {
	id, err := r.publisher.Publish(ctx, r.topic, ev)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Event, err)
	}
	r.logger.Debug("status event published",
		zap.String("event", string(ev.Event)),
		zap.String("crawl_id", ev.CrawlID),
		zap.String("message_id", id),
	)
	return nil
}
