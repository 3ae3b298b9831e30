// Package cwl fetches draw notices from the China Welfare Lottery endpoint using gocolly.
package cwl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/metrics"
)

// Default upstream locations.
const (
	DefaultEndpoint = "https://www.cwl.gov.cn/cwl_admin/front/cwlkj/search/kjxx/findDrawNotice"
	DefaultHomepage = "https://www.cwl.gov.cn/"
)

// Config controls request shape, timeouts and the retry schedule.
type Config struct {
	Endpoint        string
	Homepage        string
	Timeout         time.Duration
	MaxRetries      int
	BaseDelay       time.Duration
	MinDelay        time.Duration
	MaxDelay        time.Duration
	UserAgents      []string
	FallbackEnabled bool
}

// DefaultConfig mirrors the production upstream settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		Homepage:        DefaultHomepage,
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		BaseDelay:       2 * time.Second,
		MinDelay:        time.Second,
		MaxDelay:        3 * time.Second,
		UserAgents:      DefaultUserAgents,
		FallbackEnabled: true,
	}
}

// Fetcher implements lottery.Fetcher on top of a shared Colly collector.
// Clones share the HTTP backend, so cookies from the warm-up visit stick.
type Fetcher struct {
	cfg      Config
	base     *colly.Collector
	backoff  Backoff
	sleep    Sleeper
	logger   *zap.Logger
	warmOnce sync.Once
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the HTTP transport (used by tests).
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.base.WithTransport(rt)
	}
}

// WithSleeper replaces the delay function (used by tests).
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) {
		f.sleep = s
	}
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Homepage == "" {
		cfg.Homepage = DefaultHomepage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	f := &Fetcher{
		cfg:  cfg,
		base: c,
		backoff: Backoff{
			BaseDelay: cfg.BaseDelay,
			MinDelay:  cfg.MinDelay,
			MaxDelay:  cfg.MaxDelay,
		},
		sleep:  sleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the draw payload for code. Transport failures are retried
// with backoff; once retries are exhausted the embedded fallback is served.
// When no fallback exists the returned payload carries a non-zero state.
// Only context cancellation is reported as an error.
func (f *Fetcher) Fetch(ctx context.Context, code string, pageSize int) (lottery.Payload, error) {
	f.warmOnce.Do(func() { f.warmUp(ctx) })

	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		delay := f.backoff.Jitter()
		f.logger.Debug("waiting before request", zap.String("code", code), zap.Duration("delay", delay))
		if err := f.sleep(ctx, delay); err != nil {
			return lottery.Payload{}, fmt.Errorf("fetch %s canceled: %w", code, err)
		}

		payload, err := f.attempt(ctx, code, pageSize)
		if err == nil {
			metrics.ObserveFetchAttempt(code, "success")
			f.logger.Info("fetched draw notices",
				zap.String("code", code),
				zap.Int("items", len(payload.Result)),
				zap.Int("state", payload.State),
			)
			return payload, nil
		}
		if ctx.Err() != nil {
			return lottery.Payload{}, fmt.Errorf("fetch %s canceled: %w", code, ctx.Err())
		}
		metrics.ObserveFetchAttempt(code, "failure")
		lastErr = err
		f.logger.Warn("fetch attempt failed",
			zap.String("code", code),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.cfg.MaxRetries),
			zap.Error(err),
		)
		if attempt < f.cfg.MaxRetries-1 {
			if err := f.sleep(ctx, f.backoff.Delay(attempt)); err != nil {
				return lottery.Payload{}, fmt.Errorf("fetch %s canceled: %w", code, err)
			}
		}
	}

	if f.cfg.FallbackEnabled {
		if payload, ok := Fallback(code); ok {
			metrics.ObserveFallback(code)
			f.logger.Warn("serving embedded fallback dataset",
				zap.String("code", code),
				zap.Int("items", len(payload.Result)),
				zap.Error(lastErr),
			)
			return payload, nil
		}
	}
	return lottery.Payload{
		State:   1,
		Message: fmt.Sprintf("no data after %d attempts: %v", f.cfg.MaxRetries, lastErr),
	}, nil
}

func (f *Fetcher) attempt(ctx context.Context, code string, pageSize int) (lottery.Payload, error) {
	body, err := f.get(ctx, f.queryURL(code, pageSize))
	if err != nil {
		return lottery.Payload{}, err
	}
	var payload lottery.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return lottery.Payload{}, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

func (f *Fetcher) warmUp(ctx context.Context) {
	if _, err := f.get(ctx, f.cfg.Homepage); err != nil {
		f.logger.Warn("homepage warm-up failed; continuing", zap.String("url", f.cfg.Homepage), zap.Error(err))
		return
	}
	f.logger.Debug("homepage warm-up complete", zap.String("url", f.cfg.Homepage))
}

func (f *Fetcher) queryURL(code string, pageSize int) string {
	params := url.Values{}
	params.Set("name", code)
	params.Set("issueCount", "")
	params.Set("issueStart", "")
	params.Set("issueEnd", "")
	params.Set("dayStart", "")
	params.Set("dayEnd", "")
	params.Set("pageNo", "1")
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("week", "")
	params.Set("systemType", "PC")
	return f.cfg.Endpoint + "?" + params.Encode()
}

// get performs one GET with a freshly rebuilt header set and returns the
// body of a 200 response.
func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := f.base.Clone()
	collector.Context = ctx
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			fetchErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("unexpected status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	headers := headerSet(f.cfg.UserAgents, f.cfg.Homepage, origin(f.cfg.Homepage))
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(http.MethodGet, target, nil, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("request canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fmt.Errorf("request %s: %w", target, fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", target, err)
		}
		if body == nil {
			return nil, errors.New("empty response")
		}
		return body, nil
	}
}

func origin(homepage string) string {
	u, err := url.Parse(homepage)
	if err != nil || u.Host == "" {
		return homepage
	}
	return u.Scheme + "://" + u.Host
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
