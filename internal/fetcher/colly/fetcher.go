// Package collyfetcher implements the crawler's Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	Backoff crawler.BackoffPolicy
}

// IdentitySource hands out one request header set per attempt.
type IdentitySource interface {
	Pick() http.Header
}

// Waiter paces outgoing requests.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Client implements crawler.SessionFactory. Each session owns its own colly
// backend, so cookies and pooled connections never cross regions.
type Client struct {
	cfg        Config
	identities IdentitySource
	detector   *detector.Challenge
	limiter    Waiter
	sleeper    crawler.Sleeper
	recorder   crawler.DiagnosticRecorder
	logger     *zap.Logger
	transport  func() http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter paces every attempt through w.
func WithLimiter(w Waiter) Option {
	return func(c *Client) { c.limiter = w }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s crawler.Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

// WithRecorder persists diagnostics for blocked and exhausted fetches.
func WithRecorder(r crawler.DiagnosticRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransport overrides the per-session transport constructor.
func WithTransport(fn func() http.RoundTripper) Option {
	return func(c *Client) { c.transport = fn }
}

// New builds a Client.
func New(cfg Config, identities IdentitySource, challenge *detector.Challenge, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Backoff == (crawler.BackoffPolicy{}) {
		cfg.Backoff = crawler.NewBackoffPolicy(0, 0)
	}
	if challenge == nil {
		challenge = detector.NewChallenge(nil, 0)
	}
	c := &Client{
		cfg:        cfg,
		identities: identities,
		detector:   challenge,
		sleeper:    sleepFunc(crawler.ChunkedSleep),
		logger:     zap.NewNop(),
		transport:  func() http.RoundTripper { return newHTTPTransport() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession implements crawler.SessionFactory.
func (c *Client) NewSession(region crawler.Region) (crawler.Session, error) {
	if c.identities == nil {
		return nil, errors.New("collyfetcher: identity source is required")
	}
	collector := colly.NewCollector(colly.Async(false))
	transport := c.transport()
	collector.WithTransport(transport)
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true

	return &Session{
		client:    c,
		region:    region,
		base:      collector,
		transport: transport,
		logger:    c.logger.With(zap.String("region", region.Name())),
	}, nil
}

// Session implements crawler.Session for one region crawl.
type Session struct {
	client    *Client
	region    crawler.Region
	base      *colly.Collector
	transport http.RoundTripper
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attemptResult is filled by the collector callbacks of one attempt.
type attemptResult struct {
	status  int
	body    []byte
	headers http.Header
	err     error
}

// Fetch implements crawler.Fetcher. Transient failures are retried with
// linear backoff up to maxAttempts; blocked responses are returned at once.
func (s *Session) Fetch(ctx context.Context, url string, maxAttempts int) crawler.FetchOutcome {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	policy := s.client.cfg.Backoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return s.finish(canceled(url, attempt-1, err), start)
		}
		if s.client.limiter != nil {
			if err := s.client.limiter.Wait(ctx, url); err != nil {
				return s.finish(canceled(url, attempt-1, err), start)
			}
		}

		outcome := s.attempt(ctx, url)
		outcome.Attempts = attempt
		metrics.ObserveAttempt(outcome.Kind.String(), outcome.Status, len(outcome.Body))

		switch outcome.Kind {
		case crawler.OutcomeSuccess:
			return s.finish(outcome, start)
		case crawler.OutcomeBlocked:
			metrics.ObserveBlocked(string(outcome.BlockReason))
			s.logger.Warn("blocked response",
				zap.String("url", url),
				zap.Int("status", outcome.Status),
				zap.String("reason", outcome.Reason),
			)
			s.record(ctx, outcome, outcome.Reason)
			return s.finish(outcome, start)
		case crawler.OutcomeFatal:
			return s.finish(outcome, start)
		}

		if ctx.Err() != nil {
			return s.finish(canceled(url, attempt, ctx.Err()), start)
		}
		if outcome.Status == http.StatusTooManyRequests {
			s.record(ctx, outcome, "rate limited")
		}
		if !policy.ShouldRetry(outcome, attempt, maxAttempts) {
			s.logger.Error("fetch retries exhausted",
				zap.String("url", url),
				zap.Int("attempts", attempt),
				zap.String("reason", outcome.Reason),
			)
			final := outcome
			final.Kind = crawler.OutcomeFatal
			final.Err = fmt.Errorf("%w after %d attempts: %s", crawler.ErrFetchExhausted, attempt, outcome.Reason)
			s.record(ctx, final, final.Err.Error())
			return s.finish(final, start)
		}

		wait := policy.Backoff(outcome, attempt)
		cause := "network"
		if outcome.Status == http.StatusTooManyRequests {
			cause = "rate_limited"
		}
		metrics.ObserveBackoff(cause, wait)
		s.logger.Warn("transient fetch failure, backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("reason", outcome.Reason),
			zap.Duration("wait", wait),
		)
		if err := s.client.sleeper.Sleep(ctx, wait); err != nil {
			return s.finish(canceled(url, attempt, err), start)
		}
	}
}

// Close releases the session's idle connections.
func (s *Session) Close() {
	if closer, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

func (s *Session) attempt(ctx context.Context, url string) crawler.FetchOutcome {
	collector := s.base.Clone()
	headers := s.client.identities.Pick()
	result := &attemptResult{}
	configureCollectorHooks(collector, headers, result)

	if err := runCollector(ctx, collector, url); err != nil {
		if ctx.Err() != nil {
			return canceled(url, 0, ctx.Err())
		}
		if result.err == nil {
			result.err = err
		}
	}
	outcome := s.client.classify(url, result)
	outcome.RequestHeaders = headers
	return outcome
}

func configureCollectorHooks(hooks collectorHooks, headers http.Header, result *attemptResult) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			result.headers = r.Headers.Clone()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		result.err = err
		if r != nil && r.StatusCode > 0 {
			result.status = r.StatusCode
			result.body = append([]byte(nil), r.Body...)
		}
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// classify maps one attempt to an outcome: 403 is forbidden, 429 and network
// faults are transient, other errors are blocked, and a 200 carrying
// challenge content is blocked with its body kept.
func (c *Client) classify(url string, r *attemptResult) crawler.FetchOutcome {
	outcome := crawler.FetchOutcome{
		URL:     url,
		Status:  r.status,
		Body:    r.body,
		Headers: r.headers,
	}
	switch {
	case r.status == 0:
		outcome.Kind = crawler.OutcomeTransient
		outcome.Err = r.err
		outcome.Reason = "network error"
		if r.err != nil {
			outcome.Reason = "network error: " + r.err.Error()
		}
	case r.status == http.StatusForbidden:
		outcome.Kind = crawler.OutcomeBlocked
		outcome.BlockReason = crawler.BlockForbidden
		outcome.Reason = "access forbidden (403)"
		outcome.Err = crawler.ErrBlocked
	case r.status == http.StatusTooManyRequests:
		outcome.Kind = crawler.OutcomeTransient
		outcome.Reason = "rate limited (429)"
	case r.status >= http.StatusBadRequest:
		outcome.Kind = crawler.OutcomeBlocked
		outcome.BlockReason = crawler.BlockHTTPError
		outcome.Reason = fmt.Sprintf("http error (%d)", r.status)
		outcome.Err = crawler.ErrBlocked
	case r.err != nil:
		outcome.Kind = crawler.OutcomeTransient
		outcome.Err = r.err
		outcome.Reason = "incomplete response: " + r.err.Error()
	default:
		outcome.Kind = crawler.OutcomeSuccess
		if r.status == http.StatusOK {
			if reason, blocked := c.detector.Detect(r.body); blocked {
				outcome.Kind = crawler.OutcomeBlocked
				outcome.BlockReason = crawler.BlockChallenge
				outcome.Reason = "challenge content: " + reason
				outcome.Err = crawler.ErrBlocked
			}
		}
	}
	return outcome
}

func (s *Session) record(ctx context.Context, outcome crawler.FetchOutcome, message string) {
	if s.client.recorder == nil {
		return
	}
	uri, err := s.client.recorder.Record(context.WithoutCancel(ctx), crawler.Diagnostic{
		URL:            outcome.URL,
		Status:         outcome.Status,
		Body:           outcome.Body,
		RequestHeaders: outcome.RequestHeaders,
		Message:        message,
	})
	if err != nil {
		s.logger.Error("failed to record diagnostic", zap.String("url", outcome.URL), zap.Error(err))
		return
	}
	s.logger.Info("diagnostic recorded", zap.String("url", outcome.URL), zap.String("uri", uri))
}

func (s *Session) finish(outcome crawler.FetchOutcome, start time.Time) crawler.FetchOutcome {
	outcome.Duration = time.Since(start)
	metrics.ObserveFetch(outcome.Kind.String(), outcome.Duration)
	return outcome
}

func canceled(url string, attempts int, err error) crawler.FetchOutcome {
	return crawler.FetchOutcome{
		Kind:     crawler.OutcomeFatal,
		URL:      url,
		Attempts: attempts,
		Reason:   "canceled",
		Err:      err,
	}
}

type sleepFunc func(context.Context, time.Duration) error

func (f sleepFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
