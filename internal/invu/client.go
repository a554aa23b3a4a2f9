// Package invu talks to the INVU point-of-sale query API.
package invu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"invusync/backend/internal/bizdate"
	"invusync/backend/internal/metrics"
)

const maxBodyBytes = 32 << 20

type Options struct {
	Timeout    time.Duration
	Attempts   int
	Backoff    time.Duration
	AuthScheme string
	RPS        float64
	Burst      int
}

type Client struct {
	http       *http.Client
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
	authScheme string
	limiter    *rate.Limiter
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Attempts < 1 {
		opts.Attempts = 2
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	return &Client{
		http:       httpClient,
		timeout:    opts.Timeout,
		attempts:   opts.Attempts,
		backoff:    opts.Backoff,
		authScheme: strings.TrimSpace(opts.AuthScheme),
		limiter:    rate.NewLimiter(limit, opts.Burst),
	}
}

type Request struct {
	Branch   string
	Token    string
	Endpoint Endpoint
	Range    bizdate.Range
}

// Result is a successful fetch. Payload is nil when the body was empty.
type Result struct {
	URL      string
	Status   int
	Payload  any
	Bytes    int
	Attempts int
}

// Fetch issues the GET for one (branch, range) unit of work. 5xx responses and
// transport failures are retried with linear backoff up to the attempt bound;
// 4xx responses are terminal.
func (c *Client) Fetch(ctx context.Context, req Request) (Result, error) {
	url := req.Endpoint.URL(req.Range)
	res := Result{URL: url}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, c.backoff*time.Duration(attempt-1)); err != nil {
				return res, fmt.Errorf("fetch %s: %w", url, err)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("fetch %s: %w", url, ctx.Err())
			}
			return res, fmt.Errorf("%w: %s: %v", ErrTimeout, url, err)
		}
		res.Attempts = attempt

		status, body, err := c.do(ctx, req, url)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("fetch %s: %w", url, ctx.Err())
			}
			lastErr = fmt.Errorf("%w: %s: %v", ErrTimeout, url, err)
			log.Printf("[invu] branch=%s endpoint=%s attempt=%d/%d transport error: %v", req.Branch, req.Endpoint.label(), attempt, c.attempts, err)
			continue
		}
		res.Status = status

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return res, &StatusError{Kind: ErrAuth, Status: status, URL: url}
		case status >= 500:
			lastErr = &StatusError{Kind: ErrUpstreamStatus, Status: status, URL: url}
			log.Printf("[invu] branch=%s endpoint=%s attempt=%d/%d status=%d", req.Branch, req.Endpoint.label(), attempt, c.attempts, status)
			continue
		case status < 200 || status >= 300:
			return res, &StatusError{Kind: ErrUpstreamStatus, Status: status, URL: url}
		}

		payload, err := decodePayload(body)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(req.Endpoint.label(), "format").Inc()
			return res, fmt.Errorf("%w: %s: %v", ErrFormat, url, err)
		}
		res.Payload = payload
		res.Bytes = len(body)
		return res, nil
	}

	return res, lastErr
}

func (c *Client) do(ctx context.Context, req Request, url string) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		if c.authScheme != "" {
			httpReq.Header.Set("Authorization", c.authScheme+" "+req.Token)
		} else {
			httpReq.Header.Set("Authorization", req.Token)
		}
	}

	label := req.Endpoint.label()
	startedAt := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues(label).Observe(time.Since(startedAt).Seconds())
		metrics.UpstreamRequests.WithLabelValues(label, "transport").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.UpstreamDuration.WithLabelValues(label).Observe(time.Since(startedAt).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(label, "transport").Inc()
		return 0, nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(label, outcomeFor(resp.StatusCode)).Inc()
	return resp.StatusCode, body, nil
}

// decodePayload keeps numbers as json.Number so large order ids survive.
func decodePayload(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return payload, nil
}

func outcomeFor(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	case status >= 200 && status < 300:
		return "ok"
	default:
		return strconv.Itoa(status)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
