package crawler

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type jobPayload struct {
	URL        *string `json:"url"`
	Domain     *string `json:"domain"`
	Level      *int    `json:"level"`
	Retry      *int    `json:"retry"`
	Collection *string `json:"collection"`
	ID         *string `json:"id"`
}

// DecodeJob parses one job queue payload. url, domain and level are required;
// retry defaults to 0.
func DecodeJob(payload []byte) (Job, error) {
	var raw jobPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	var missing []string
	if raw.URL == nil || strings.TrimSpace(*raw.URL) == "" {
		missing = append(missing, "url")
	}
	if raw.Domain == nil || strings.TrimSpace(*raw.Domain) == "" {
		missing = append(missing, "domain")
	}
	if raw.Level == nil {
		missing = append(missing, "level")
	}
	if len(missing) > 0 {
		return Job{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	if *raw.Level < 0 {
		return Job{}, fmt.Errorf("decode job: level must be >= 0, got %d", *raw.Level)
	}

	job := Job{
		URL:    *raw.URL,
		Domain: *raw.Domain,
		Level:  *raw.Level,
	}
	if raw.Retry != nil {
		if *raw.Retry < 0 {
			return Job{}, fmt.Errorf("decode job: retry must be >= 0, got %d", *raw.Retry)
		}
		job.Retry = *raw.Retry
	}
	if raw.Collection != nil {
		job.Collection = *raw.Collection
	}
	if raw.ID != nil {
		job.ID = *raw.ID
	}
	return job, nil
}

// EncodeJob serializes a job for the job queue.
func EncodeJob(job Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return data, nil
}

// EncodeEvent serializes a status event.
func EncodeEvent(event StatusEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a status event payload.
func DecodeEvent(payload []byte) (StatusEvent, error) {
	var event StatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return StatusEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}
