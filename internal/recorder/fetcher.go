package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"segment-recorder/internal/platform/metrics"
)

// Policy API query parameters.
const (
	paramStream  = "n"
	paramAction  = "act"
	paramTitle   = "title"
	paramComment = "comment"
)

// maxPolicyBody caps how much of a policy response is read.
const maxPolicyBody = 1 << 20

// PolicyFetcher asks the policy API how a stream should be recorded.
type PolicyFetcher interface {
	FetchPolicy(ctx context.Context, stream string, opts FetchOptions) (Policy, error)
}

// HTTPPolicyFetcher queries the policy API over HTTP GET.
type HTTPPolicyFetcher struct {
	endpoint string
	referer  string
	cli      *http.Client
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHTTPPolicyFetcher returns a fetcher for endpoint. referer is copied into
// every fetched policy. Metrics may be nil.
func NewHTTPPolicyFetcher(endpoint, referer string, timeout time.Duration, log *slog.Logger, m *metrics.Metrics) *HTTPPolicyFetcher {
	return &HTTPPolicyFetcher{
		endpoint: endpoint,
		referer:  referer,
		cli:      &http.Client{Timeout: timeout},
		log:      log.With("component", "policy_fetcher"),
		metrics:  m,
	}
}

// FetchPolicy implements PolicyFetcher.
func (f *HTTPPolicyFetcher) FetchPolicy(ctx context.Context, stream string, opts FetchOptions) (Policy, error) {
	p, err := f.fetch(ctx, stream, opts)
	f.metrics.ObservePolicyFetch(err)
	return p, err
}

func (f *HTTPPolicyFetcher) fetch(ctx context.Context, stream string, opts FetchOptions) (Policy, error) {
	target, err := f.requestURL(stream, opts)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %w", ErrPolicyFetch, err)
	}
	f.log.Info("policy request", slog.String("stream", stream), slog.String("url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %w", ErrPolicyFetch, err)
	}
	resp, err := f.cli.Do(req)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %w", ErrPolicyFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPolicyBody))
	if err != nil {
		return Policy{}, fmt.Errorf("%w: read body: %w", ErrPolicyFetch, err)
	}
	f.log.Info("policy response",
		slog.String("stream", stream),
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(body)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Policy{}, fmt.Errorf("%w: unexpected status %d", ErrPolicyFetch, resp.StatusCode)
	}

	p, err := ParsePolicy(body, f.referer)
	if err != nil {
		return Policy{}, err
	}
	f.log.Debug("policy parsed", slog.String("stream", stream), slog.Any("policy", p))
	return p, nil
}

func (f *HTTPPolicyFetcher) requestURL(stream string, opts FetchOptions) (string, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(paramStream, stream)
	if opts.TextAction != "" {
		q.Set(paramAction, strings.ToLower(opts.TextAction))
	}
	if opts.Title != "" {
		q.Set(paramTitle, opts.Title)
	}
	if opts.Comment != "" {
		q.Set(paramComment, opts.Comment)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
