package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// ErrHostUnavailable is returned while a host's breaker is open.
var ErrHostUnavailable = errors.New("host unavailable: circuit breaker open")

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	RateLimit float64
	UserAgent string
	MaxBody   int64
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		Retries:   2,
		UserAgent: "scripthost/1.0",
		MaxBody:   32 << 20,
	}
}

// Request describes one trusted request.
type Request struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	User     string
	Password string
	// Anonymous sends no cookies and stores none.
	Anonymous bool
	// Stream leaves the body unread; the caller must close RawBody().
	Stream bool
}

// Client wraps resty with rate limiting and one circuit breaker per host.
type Client struct {
	resty   *resty.Client
	anon    *resty.Client
	limiter *rate.Limiter
	// Breakers is keyed by URL host.
	Breakers *resilience.Group
	maxBody  int64
	mu       sync.RWMutex
}

// NewClient creates the trusted HTTP client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOptions().UserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	build := func() *resty.Client {
		return resty.New().
			SetTimeout(opts.Timeout).
			SetRetryCount(opts.Retries).
			SetRetryWaitTime(200*time.Millisecond).
			SetRetryMaxWaitTime(5*time.Second).
			SetHeader("User-Agent", opts.UserAgent).
			SetTransport(retryClient.HTTPClient.Transport)
	}
	anon := build()
	anon.SetCookieJar(nil)

	c := &Client{
		resty:   build(),
		anon:    anon,
		limiter: rate.NewLimiter(rate.Inf, 0),
		maxBody: opts.MaxBody,
		Breakers: resilience.NewGroup("http", resilience.Settings{
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5 ||
					(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
			},
		}),
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// SetRateLimit configures requests per second; <= 0 means unlimited.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Resty exposes the underlying client, for tests.
func (c *Client) Resty() *resty.Client { return c.resty }

// Do performs r. Transport errors and 5xx responses count against the host
// breaker; other statuses are returned as-is.
func (c *Client) Do(ctx context.Context, r Request) (*resty.Response, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	breaker := c.Breakers.Get(u.Host)
	res, err := breaker.Execute(func() (interface{}, error) {
		resp, err := c.request(ctx, r).Execute(method(r.Method), r.URL)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("server error: %s", resp.Status())
		}
		return resp, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrHostUnavailable, u.Host)
	}
	resp, _ := res.(*resty.Response)
	if resp != nil && resp.StatusCode() >= http.StatusInternalServerError {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) request(ctx context.Context, r Request) *resty.Request {
	base := c.resty
	if r.Anonymous {
		base = c.anon
	}
	req := base.R().SetContext(ctx)
	for k, v := range r.Headers {
		req.SetHeader(k, v)
	}
	if r.User != "" || r.Password != "" {
		req.SetBasicAuth(r.User, r.Password)
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}
	if r.Stream {
		req.SetDoNotParseResponse(true)
	}
	return req
}

// MaxBody is the largest response body the client reads.
func (c *Client) MaxBody() int64 { return c.maxBody }

func method(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}
