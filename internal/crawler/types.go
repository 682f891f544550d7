// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"time"
)

// EventType is the lifecycle marker carried by a StatusEvent.
type EventType string

// Status event values published to the status queue.
const (
	EventProcessing EventType = "PROCESSING"
	EventSuccess    EventType = "SUCCESS"
	EventFailure    EventType = "FAILURE"
)

// Outcome classifies how the crawl process finished.
type Outcome int

// Crawl outcomes derived from the process exit status.
const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeArtifactsReady
)

// String returns a label suitable for logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeArtifactsReady:
		return "artifacts_ready"
	default:
		return "failure"
	}
}

// Succeeded reports whether the outcome counts as a successful crawl.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeArtifactsReady
}

// Exit statuses understood from the crawl executable.
const (
	ExitSuccess        = 0
	ExitArtifactsReady = 54
	ExitFailure        = 55
)

var (
	// ErrMissingField is returned when a job payload lacks a required key.
	ErrMissingField = errors.New("missing required field")
	// ErrLockNotHeld reports a release attempted with a token that no longer owns the lock.
	ErrLockNotHeld = errors.New("lock not held")
)

// Job is one crawl request, materialized from a dequeued payload.
type Job struct {
	URL        string `json:"url"`
	Domain     string `json:"domain"`
	Level      int    `json:"level"`
	Retry      int    `json:"retry"`
	Collection string `json:"collection,omitempty"`
	ID         string `json:"id,omitempty"`
}

// StatusEvent describes job progress on the status queue.
type StatusEvent struct {
	URL              string    `json:"url"`
	Event            EventType `json:"event"`
	Domain           string    `json:"domain"`
	Level            int       `json:"level"`
	Retry            int       `json:"retry"`
	CrawlID          string    `json:"crawlId"`
	S3Path           string    `json:"s3Path,omitempty"`
	RedirectionChain []string  `json:"redirectionChain,omitempty"`
	InstanceID       string    `json:"instanceId"`
}

// CrawlResult captures a finished crawl process.
type CrawlResult struct {
	ExitCode int
	Signaled bool
	TimedOut bool
	Duration time.Duration
	Outcome  Outcome
}

// UploadReport summarizes one artifact upload pass.
type UploadReport struct {
	Prefix   string
	BaseURI  string
	Uploaded []string
	Failed   []string
}
