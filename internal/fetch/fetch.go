package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

// Config configures the fetcher.
type Config struct {
	UserAgent    string
	Timeout      time.Duration // per-request timeout. Default: 30s.
	MaxAttempts  int           // total tries per URL. Default: 3.
	BaseDelay    time.Duration // first backoff, doubled each retry. Default: 2s.
	MaxRedirects int           // Default: 5.
	MaxBytes     int64         // response body cap. Default: 10MB.
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; RivalWatch/1.0)"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
}

// Page is a successfully fetched document.
type Page struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
}

// FetchError is returned once every attempt for a URL has failed.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int // last HTTP status seen, 0 for transport errors
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s failed after %d attempts (HTTP %d): %v", e.URL, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher issues GET requests with exponential-backoff retries.
type Fetcher struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

// New creates a Fetcher with bounded redirects.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	cfg.defaults()
	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
		logger: logging.Or(logger),
	}
}

// Fetch retrieves url, retrying network errors, timeouts and non-2xx
// responses. Exhausted retries return a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	var lastErr error
	var lastStatus int
	delay := f.config.BaseDelay

	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		page, status, err := f.fetchOnce(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr, lastStatus = err, status

		if ctx.Err() != nil {
			return nil, &FetchError{URL: url, Attempts: attempt, StatusCode: lastStatus, Err: ctx.Err()}
		}

		if attempt < f.config.MaxAttempts {
			f.logger.Warn("fetch failed, retrying",
				"url", url, "attempt", attempt, "max_attempts", f.config.MaxAttempts,
				"delay", delay, "error", err)
			if err := sleep(ctx, delay); err != nil {
				return nil, &FetchError{URL: url, Attempts: attempt, StatusCode: lastStatus, Err: err}
			}
			delay *= 2
		}
	}

	return nil, &FetchError{URL: url, Attempts: f.config.MaxAttempts, StatusCode: lastStatus, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Page, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
