package databento

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
)

func TestGuardRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	retry := config.DefaultRetryConfig()
	retry.MaxAttempts = 3
	retry.BaseDelayMS = 10
	g := NewGuard(retry, 1000, 10)

	start := time.Now()
	resp, err := g.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		return http.Get(srv.URL)
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, elapsed, 1*time.Second, "must honor Retry-After hint")
}

func TestGuardNonRetryableAbortsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	retry := config.DefaultRetryConfig()
	retry.BaseDelayMS = 10
	g := NewGuard(retry, 1000, 10)

	_, err := g.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		return http.Get(srv.URL)
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGuardExhaustsRetriesOnPersistentTransientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	retry := config.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.BaseDelayMS = 5
	retry.MaxDelayMS = 20
	g := NewGuard(retry, 1000, 10)

	_, err := g.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		return http.Get(srv.URL)
	})
	require.Error(t, err)
}
