// Package fetcher downloads public channel preview pages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"tgwatch/internal/cache"
	"tgwatch/internal/model"
)

// DefaultBaseURL is the public web preview of a channel.
const DefaultBaseURL = "https://t.me/s/"

const (
	maxBodySize    = 5 * 1024 * 1024
	attemptTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// messageMarker appears on every preview page that lists posts.
	messageMarker = "tgme_widget_message"
)

var forbiddenMarkers = []string{
	"this channel is private",
	"channel is private",
	"access denied",
	"доступ запрещен",
	"закрытый канал",
}

var notFoundMarkers = []string{
	"channel does not exist",
	"не существует",
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client with connect, read and total timeouts suited
// to the preview pages.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConns:          10,
			MaxConnsPerHost:       2,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Fetcher retrieves channel pages through a Cache, retrying transient failures.
type Fetcher struct {
	client   HTTPClient
	cache    *cache.Cache
	counters Counters
	policy   RetryPolicy
	baseURL  string
	timeout  time.Duration
	group    singleflight.Group
	log      *slog.Logger
}

// New creates a Fetcher. A nil counters disables request accounting.
func New(client HTTPClient, c *cache.Cache, counters Counters, log *slog.Logger) *Fetcher {
	if counters == nil {
		counters = nopCounters{}
	}
	return &Fetcher{
		client:   client,
		cache:    c,
		counters: counters,
		policy:   DefaultRetryPolicy(),
		baseURL:  DefaultBaseURL,
		timeout:  attemptTimeout,
		log:      log,
	}
}

// SetRetryPolicy replaces the default retry policy.
func (f *Fetcher) SetRetryPolicy(p RetryPolicy) {
	f.policy = p
}

// SetBaseURL overrides the page URL prefix the channel name is appended to.
func (f *Fetcher) SetBaseURL(u string) {
	if u != "" && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	f.baseURL = u
}

// SetAttemptTimeout overrides the per-attempt deadline.
func (f *Fetcher) SetAttemptTimeout(d time.Duration) {
	f.timeout = d
}

// Fetch returns the raw page of a channel, from cache when fresh.
func (f *Fetcher) Fetch(ctx context.Context, id model.ChannelID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("fetch: %w: empty channel", ErrNotFound)
	}
	if raw, ok := f.cache.Get(id); ok {
		return raw, nil
	}
	return f.load(ctx, id)
}

// FetchFresh skips the cache lookup but still stores the result.
func (f *Fetcher) FetchFresh(ctx context.Context, id model.ChannelID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("fetch: %w: empty channel", ErrNotFound)
	}
	return f.load(ctx, id)
}

// load collapses concurrent misses for the same channel into one request.
func (f *Fetcher) load(ctx context.Context, id model.ChannelID) (string, error) {
	v, err, _ := f.group.Do(string(id), func() (any, error) {
		raw, err := f.fetchWithRetry(ctx, id)
		if err != nil {
			return "", err
		}
		f.cache.Put(id, raw)
		return raw, nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", id, err)
	}
	return v.(string), nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, id model.ChannelID) (string, error) {
	url := f.baseURL + string(id)

	var raw string
	attempt := 0
	err := retry.Do(ctx, f.policy.backoff(), func(ctx context.Context) error {
		attempt++
		body, err := f.get(ctx, url)
		if err == nil {
			raw = body
			return nil
		}
		if f.policy.retryable(err) {
			f.log.Warn("fetch attempt failed", "channel", id, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	actx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ru;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			f.counters.IncFailure()
			return "", fmt.Errorf("http get: %w", ctx.Err())
		}
		if isTimeout(err) {
			f.counters.IncTimeout()
			return "", fmt.Errorf("%w: timeout: %w", ErrTransient, err)
		}
		f.counters.IncFailure()
		return "", fmt.Errorf("%w: http get: %w", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		f.counters.IncFailure()
		return "", ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		f.counters.IncFailure()
		return "", fmt.Errorf("%w: unexpected status %d", ErrTransient, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			f.counters.IncTimeout()
		} else {
			f.counters.IncFailure()
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("read body: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: read body: %w", ErrTransient, err)
	}

	page := string(body)
	if err := classifyPage(page); err != nil {
		f.counters.IncFailure()
		return "", err
	}

	f.counters.IncSuccess()
	return page, nil
}

// classifyPage detects error pages served with a 2xx status.
// Only pages without any post container are inspected, so a post quoting
// one of the markers does not poison the channel.
func classifyPage(page string) error {
	if strings.Contains(page, messageMarker) {
		return nil
	}
	lower := strings.ToLower(page)
	for _, m := range forbiddenMarkers {
		if strings.Contains(lower, m) {
			return ErrForbidden
		}
	}
	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			return ErrNotFound
		}
	}
	return nil
}

// Describe returns a short user-facing reason for a fetch failure.
func Describe(err error) string {
	switch KindOf(err) {
	case KindNotFound:
		return "channel does not exist"
	case KindForbidden:
		return "channel is private or restricted"
	case KindTransient:
		return "channel page is temporarily unavailable"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return "unexpected error"
}
