package instance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func metadataServer(t *testing.T, id string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/latest/api/token":
			w.Header().Set("X-Aws-Ec2-Metadata-Token-Ttl-Seconds", "21600")
			fmt.Fprint(w, "test-token")
		case r.Method == http.MethodGet && r.URL.Path == "/latest/meta-data/instance-id":
			if r.Header.Get("X-Aws-Ec2-Metadata-Token") != "test-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(status)
			fmt.Fprint(w, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_FromMetadata(t *testing.T) {
	t.Parallel()

	srv := metadataServer(t, "i-0abc123", http.StatusOK)
	r := NewResolver(Options{FallbackID: "dev-testing", Endpoint: srv.URL, Timeout: 2 * time.Second}, nil)
	assert.Equal(t, "i-0abc123", r.Resolve(context.Background()))
}

func TestResolve_FallbackOnError(t *testing.T) {
	t.Parallel()

	srv := metadataServer(t, "", http.StatusNotFound)
	r := NewResolver(Options{FallbackID: "dev-testing", Endpoint: srv.URL, Timeout: 2 * time.Second}, nil)
	assert.Equal(t, "dev-testing", r.Resolve(context.Background()))
}

func TestResolve_FallbackOnUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewResolver(Options{FallbackID: "dev-testing", Endpoint: url, Timeout: 500 * time.Millisecond}, nil)
	assert.Equal(t, "dev-testing", r.Resolve(context.Background()))
}

func TestResolve_ExplicitIDWins(t *testing.T) {
	t.Parallel()

	r := newResolver(nil, Options{ID: "worker-7", FallbackID: "dev-testing"}, nil)
	assert.Equal(t, "worker-7", r.Resolve(context.Background()))
}
