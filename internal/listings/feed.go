package listings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is the user agent string for feed requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; JobMatcher/1.0)"

// maxFeedBytes bounds a single feed response.
const maxFeedBytes = 16 << 20

// FetchError represents an error during feed fetching.
type FetchError struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// HostLimiter rate-limits requests per hostname so several feeds on one board
// share a budget.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter allows reqPerSec requests per host with the given burst.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(reqPerSec),
		b: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

// WaitURL blocks until a request to raw's host is allowed.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}

// FeedOptions configures a FeedSource.
type FeedOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Limiter   *HostLimiter
}

// FeedSource reads postings from an HTTP JSON feed. The query is passed as the
// q, location and limit URL parameters.
type FeedSource struct {
	name     string
	endpoint string
	client   *http.Client
	opts     FeedOptions
}

// NewFeedSource creates a feed source. A nil Limiter allows one request per second
// per host.
func NewFeedSource(name, endpoint string, opts FeedOptions) *FeedSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Limiter == nil {
		opts.Limiter = NewHostLimiter(1, 1)
	}
	return &FeedSource{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
	}
}

// Name returns the source name stored on every listing.
func (s *FeedSource) Name() string { return s.name }

// Fetch requests the feed and decodes its postings.
func (s *FeedSource) Fetch(ctx context.Context, q SourceQuery) ([]RawPosting, error) {
	target, err := s.queryURL(q)
	if err != nil {
		return nil, err
	}

	if err := s.opts.Limiter.WaitURL(ctx, target); err != nil {
		return nil, &FetchError{URL: target, Message: "rate limiter wait aborted", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	for key, value := range s.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: target, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{URL: target, Message: "failed to read response body", Cause: err}
	}

	postings, err := decodePostings(body)
	if err != nil {
		return nil, &FetchError{URL: target, Message: "invalid feed JSON", Cause: err}
	}
	return postings, nil
}

func (s *FeedSource) queryURL(q SourceQuery) (string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &FetchError{URL: s.endpoint, Message: "invalid URL", Cause: err}
	}
	values := u.Query()
	if len(q.Keywords) > 0 {
		values.Set("q", strings.Join(q.Keywords, " "))
	}
	if q.Location != "" {
		values.Set("location", q.Location)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}
