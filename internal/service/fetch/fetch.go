package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	"github.com/oshokin/crx-release/internal/version"
)

// errBadHTTPStatus indicates a response status other than 200 OK.
var errBadHTTPStatus = errors.New("unexpected http status")

// Doer performs HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads resources with a bounded number of attempts.
type Fetcher struct {
	// client performs the requests.
	client Doer
	// attempts is the total number of tries per resource, at least one.
	attempts int
	// delay is the fixed pause between tries.
	delay time.Duration
	// timeout bounds a single try; zero means no per-try bound.
	timeout time.Duration
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the default HTTP client.
func WithClient(client Doer) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// New builds a Fetcher from the fetch settings.
func New(cfg config.FetchConfig, options ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		timeout:  cfg.Timeout,
	}

	if f.attempts < 1 {
		f.attempts = 1
	}

	if f.delay <= 0 {
		f.delay = config.DefaultFetchDelay
	}

	for _, option := range options {
		option(f)
	}

	return f
}

// Text downloads url and returns the body as a string.
func (f *Fetcher) Text(ctx context.Context, url string) (string, error) {
	body, err := f.Binary(ctx, url)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// Binary downloads url and returns the raw body.
// Network errors and 5xx responses are retried; other statuses fail at once.
// When every attempt fails the error wraps release.ErrTransientNetwork.
func (f *Fetcher) Binary(ctx context.Context, url string) ([]byte, error) {
	ctx = logger.WithKV(ctx, "url", url)

	var (
		body      []byte
		attempt   int
		transient bool
	)

	//nolint:gosec // attempts is always at least one.
	backoff := retry.WithMaxRetries(uint64(f.attempts-1), retry.NewConstant(f.delay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		var fetchErr error

		body, transient, fetchErr = f.get(ctx, url)
		if fetchErr == nil {
			return nil
		}

		if !transient {
			return fetchErr
		}

		logger.WarnKV(ctx, "Fetch attempt failed", "attempt", attempt, "attempts", f.attempts, "error", fetchErr)

		return retry.RetryableError(fetchErr)
	})
	if err != nil {
		if transient && ctx.Err() == nil {
			return nil, fmt.Errorf("fetch %s after %d attempts: %w: %w", url, attempt, release.ErrTransientNetwork, err)
		}

		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	logger.DebugKV(ctx, "Fetched resource", "bytes", len(body))

	return body, nil
}

// get performs one attempt and reports whether a failure is worth retrying.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, bool, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := f.client.Do(req)
	if err != nil {
		return nil, true, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)

		return nil, response.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("%s: %w", response.Status, errBadHTTPStatus)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	return body, false, nil
}
