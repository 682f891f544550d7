package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJob_DefaultsRetry(t *testing.T) {
	t.Parallel()

	job, err := DecodeJob([]byte(`{"url":"https://example.com","domain":"example.com","level":1}`))
	require.NoError(t, err)
	require.Equal(t, Job{URL: "https://example.com", Domain: "example.com", Level: 1}, job)
}

func TestDecodeJob_KeepsOptionalFields(t *testing.T) {
	t.Parallel()

	job, err := DecodeJob([]byte(
		`{"url":"https://a.test","domain":"a.test","level":0,"retry":2,"collection":"c1","id":"x"}`,
	))
	require.NoError(t, err)
	require.Equal(t, 2, job.Retry)
	require.Equal(t, "c1", job.Collection)
	require.Equal(t, "x", job.ID)
}

func TestDecodeJob_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		missing bool
	}{
		{name: "invalid json", payload: `{not json`},
		{name: "missing url", payload: `{"domain":"a","level":1}`, missing: true},
		{name: "missing domain", payload: `{"url":"https://a","level":1}`, missing: true},
		{name: "missing level", payload: `{"url":"https://a","domain":"a"}`, missing: true},
		{name: "negative level", payload: `{"url":"https://a","domain":"a","level":-1}`},
		{name: "negative retry", payload: `{"url":"https://a","domain":"a","level":1,"retry":-3}`},
		{name: "null", payload: `null`, missing: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeJob([]byte(tt.payload))
			require.Error(t, err)
			require.Equal(t, tt.missing, errors.Is(err, ErrMissingField))
		})
	}
}

func TestEncodeEvent_UsesWireKeys(t *testing.T) {
	t.Parallel()

	data, err := EncodeEvent(StatusEvent{
		URL:        "https://example.com",
		Event:      EventProcessing,
		Domain:     "example.com",
		Level:      1,
		CrawlID:    "id-1",
		InstanceID: "dev-testing",
	})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"url":"https://example.com",
		"event":"PROCESSING",
		"domain":"example.com",
		"level":1,
		"retry":0,
		"crawlId":"id-1",
		"instanceId":"dev-testing"
	}`, string(data))
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	require.True(t, OutcomeSuccess.Succeeded())
	require.True(t, OutcomeArtifactsReady.Succeeded())
	require.False(t, OutcomeFailure.Succeeded())
	require.Equal(t, "artifacts_ready", OutcomeArtifactsReady.String())
	require.Equal(t, "failure", Outcome(42).String())
}
