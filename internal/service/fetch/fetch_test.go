package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/version"
)

func testConfig() config.FetchConfig {
	return config.FetchConfig{
		Attempts: 3,
		Delay:    time.Millisecond,
		Timeout:  5 * time.Second,
	}
}

// flakyServer fails with status for the first failures requests and then serves body.
func flakyServer(t *testing.T, failures int32, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != version.UserAgent() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if calls.Add(1) <= failures {
			w.WriteHeader(status)
			return
		}

		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

// TestFetcher_RetriesServerErrors checks 5xx responses are retried until success.
func TestFetcher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	server, calls := flakyServer(t, 2, http.StatusServiceUnavailable, "components: []")

	text, err := New(testConfig()).Text(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "components: []", text)
	require.EqualValues(t, 3, calls.Load())
}

// TestFetcher_ExhaustedAttempts checks persistent failures surface as transient network errors.
func TestFetcher_ExhaustedAttempts(t *testing.T) {
	t.Parallel()

	server, calls := flakyServer(t, 100, http.StatusBadGateway, "")

	_, err := New(testConfig()).Binary(context.Background(), server.URL)
	require.ErrorIs(t, err, release.ErrTransientNetwork)
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.EqualValues(t, 3, calls.Load())
}

// TestFetcher_ClientErrorsFailFast checks 4xx responses are not retried.
func TestFetcher_ClientErrorsFailFast(t *testing.T) {
	t.Parallel()

	server, calls := flakyServer(t, 100, http.StatusNotFound, "")

	_, err := New(testConfig()).Binary(context.Background(), server.URL)
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.NotErrorIs(t, err, release.ErrTransientNetwork)
	require.EqualValues(t, 1, calls.Load())
}

// TestFetcher_NetworkErrors checks connection failures are retried and then reported as transient.
func TestFetcher_NetworkErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(testConfig()).Binary(context.Background(), url)
	require.ErrorIs(t, err, release.ErrTransientNetwork)
}

// TestFetcher_SingleAttempt checks a non-positive attempt count still performs one try.
func TestFetcher_SingleAttempt(t *testing.T) {
	t.Parallel()

	server, calls := flakyServer(t, 100, http.StatusInternalServerError, "")

	_, err := New(config.FetchConfig{}).Binary(context.Background(), server.URL)
	require.ErrorIs(t, err, release.ErrTransientNetwork)
	require.EqualValues(t, 1, calls.Load())
}

// TestFetcher_Canceled checks a canceled context is not reported as a transient network error.
func TestFetcher_Canceled(t *testing.T) {
	t.Parallel()

	server, _ := flakyServer(t, 100, http.StatusInternalServerError, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig()).Binary(ctx, server.URL)
	require.Error(t, err)
	require.NotErrorIs(t, err, release.ErrTransientNetwork)
}
