package vehicle

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/retry"
)

// maxStateSize bounds one vehicle state response.
const maxStateSize = 1 << 20

// ErrUpstreamStatus is returned for a non-200 answer from the vehicle API.
var ErrUpstreamStatus = stderrors.New("unexpected vehicle api status")

// StateFetcher returns the latest raw state of each vehicle. A partial
// result comes with a non-nil error naming the vehicles that failed.
type StateFetcher interface {
	FetchLatestState(ctx context.Context, vins []string) ([]json.RawMessage, error)
}

// HTTPFetcher reads vehicle state from a REST endpoint at
// <base>/vehicles/<vin>/state using a bearer token. Requests are paced by
// a token bucket shared across all vehicles.
type HTTPFetcher struct {
	base    *url.URL
	token   string
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Config
}

// FetcherOption customizes an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithTLS sets the client TLS configuration. Nil keeps the default transport.
func WithTLS(cfg *tls.Config) FetcherOption {
	return func(f *HTTPFetcher) {
		if cfg == nil {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = cfg
		f.client.Transport = transport
	}
}

// NewHTTPFetcher returns a fetcher for baseURL. rps <= 0 disables pacing.
func NewHTTPFetcher(baseURL, token string, rps float64, burst int, timeout time.Duration, opts ...FetcherOption) (*HTTPFetcher, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: api_base_url %q", errors.ErrInvalidConfig, baseURL), "HTTPFetcher", "New", "parse base url")
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	cfg := retry.DefaultConfig()
	cfg.Retryable = errors.IsTransient
	f := &HTTPFetcher{
		base:    base,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		retry:   cfg,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// FetchLatestState implements StateFetcher.
func (f *HTTPFetcher) FetchLatestState(ctx context.Context, vins []string) ([]json.RawMessage, error) {
	states := make([]json.RawMessage, 0, len(vins))
	var errs []error
	for _, vin := range vins {
		state, err := retry.DoWithResult(ctx, f.retry, func() (json.RawMessage, error) {
			return f.fetch(ctx, vin)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("vin %s: %w", vin, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		states = append(states, state)
	}
	return states, stderrors.Join(errs...)
}

func (f *HTTPFetcher) fetch(ctx context.Context, vin string) (json.RawMessage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, retry.NonRetryable(err)
	}

	endpoint := f.base.JoinPath("vehicles", vin, "state")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPFetcher", "fetch", "build request")
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPFetcher", "fetch", "request state")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStateSize+1))
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPFetcher", "fetch", "read body")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.WrapTransient(fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode), "HTTPFetcher", "fetch", "check status")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.WrapFatal(fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode), "HTTPFetcher", "fetch", "authenticate")
	case resp.StatusCode != http.StatusOK:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode), "HTTPFetcher", "fetch", "check status")
	}
	if len(body) > maxStateSize {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: state exceeds %d bytes", errors.ErrInvalidData, maxStateSize), "HTTPFetcher", "fetch", "read body")
	}
	if !json.Valid(body) {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "HTTPFetcher", "fetch", "validate body")
	}
	return json.RawMessage(body), nil
}
