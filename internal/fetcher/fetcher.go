// Package fetcher is the outbound HTTP client for the feed document and image
// downloads. Each concern has its own circuit breaker so a failing image host does
// not block feed syncs.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Guizzs26/go-feed-sync/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const userAgent = "go-feed-sync/1.0"

var (
	// ErrCircuitOpen is returned while a breaker rejects calls
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrTooLarge is returned when a download exceeds its byte ceiling
	ErrTooLarge = errors.New("response body exceeds size limit")
)

// StatusError is a completed request with a status other than 200
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Response is a completed 200 response
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// BreakerConfig tunes when a breaker opens and how long it stays open
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

var DefaultBreaker = BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}

// Client wraps resty with per-concern circuit breakers. Image requests also pass
// through a rate limiter, unlimited until LimitImages is called.
type Client struct {
	http       *resty.Client
	feedCB     *gobreaker.CircuitBreaker[*resty.Response]
	imageCB    *gobreaker.CircuitBreaker[*resty.Response]
	imageLimit *rate.Limiter
	logger     *slog.Logger
}

func New(cfg BreakerConfig, logger *slog.Logger) *Client {
	hc := resty.New().
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Client{
		http:       hc,
		feedCB:     newBreaker("feed", cfg, logger),
		imageCB:    newBreaker("images", cfg, logger),
		imageLimit: rate.NewLimiter(rate.Inf, 1),
		logger:     logger,
	}
}

// LimitImages caps HEAD and GET requests to image hosts at perSecond. Zero or less
// removes the cap.
func (c *Client) LimitImages(perSecond float64, burst int) *Client {
	if perSecond <= 0 {
		c.imageLimit.SetLimit(rate.Inf)
		return c
	}
	c.imageLimit.SetLimit(rate.Limit(perSecond))
	c.imageLimit.SetBurst(max(burst, 1))
	return c
}

// throttle waits for an image request slot on the caller's context, before the
// request timeout starts counting
func (c *Client) throttle(ctx context.Context, url string) error {
	if err := c.imageLimit.Wait(ctx); err != nil {
		return fmt.Errorf("image rate limit for %s: %w", url, err)
	}
	return nil
}

func newBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*resty.Response] {
	metrics.CircuitState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Fetch GETs url within timeout. Transport failures, timeouts and 5xx responses count
// against the feed breaker; any non-200 status is returned as *StatusError.
func (c *Client) Fetch(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.feedCB.Execute(func() (*resty.Response, error) {
		r, err := c.http.R().
			SetContext(ctx).
			SetHeader("Accept", "application/xml, text/xml;q=0.9, */*;q=0.5").
			Get(url)
		if err != nil {
			return nil, err
		}
		if r.StatusCode() >= http.StatusInternalServerError {
			return r, &StatusError{Code: r.StatusCode(), URL: url}
		}
		return r, nil
	})
	observe("feed", resp, err, start)
	if err != nil {
		return nil, c.wrap("feed", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode(), URL: url}
	}

	return &Response{
		Status:      resp.StatusCode(),
		Body:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

// Head returns the advertised content length of url, or -1 when the server sends none
func (c *Client) Head(ctx context.Context, url string, timeout time.Duration) (int64, error) {
	if err := c.throttle(ctx, url); err != nil {
		return -1, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.imageCB.Execute(func() (*resty.Response, error) {
		r, err := c.http.R().SetContext(ctx).Head(url)
		if err != nil {
			return nil, err
		}
		if r.StatusCode() >= http.StatusInternalServerError {
			return r, &StatusError{Code: r.StatusCode(), URL: url}
		}
		return r, nil
	})
	observe("image_head", resp, err, start)
	if err != nil {
		return -1, c.wrap("images", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return -1, &StatusError{Code: resp.StatusCode(), URL: url}
	}

	n, err := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64)
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// Download GETs url reading at most maxBytes of body; larger bodies fail with ErrTooLarge
func (c *Client) Download(ctx context.Context, url string, timeout time.Duration, maxBytes int64) ([]byte, error) {
	if err := c.throttle(ctx, url); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.imageCB.Execute(func() (*resty.Response, error) {
		r, err := c.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(url)
		if err != nil {
			return nil, err
		}
		if r.StatusCode() >= http.StatusInternalServerError {
			r.RawBody().Close()
			return r, &StatusError{Code: r.StatusCode(), URL: url}
		}
		return r, nil
	})
	observe("image_get", resp, err, start)
	if err != nil {
		return nil, c.wrap("images", url, err)
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode(), URL: url}
	}

	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (c *Client) wrap(breaker, url string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Request rejected by circuit breaker", "breaker", breaker, "url", url)
		return fmt.Errorf("%s: %w", url, ErrCircuitOpen)
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return fmt.Errorf("request %s: %w", url, err)
}

func observe(kind string, resp *resty.Response, err error, start time.Time) {
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode())
	} else if err == nil {
		status = "ok"
	}
	metrics.FetchDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}
