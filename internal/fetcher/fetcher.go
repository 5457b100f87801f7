package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobharvest/internal/metrics"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/ratelimit"
	"github.com/amishk599/jobharvest/internal/retry"
)

// maxBodyBytes bounds how much of a page is read into memory.
const maxBodyBytes = 10 << 20

// errHostWait marks a request that never left because the host gap could
// not be waited out before the context ended.
var errHostWait = errors.New("host gap wait")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options configures a PoliteFetcher. Politeness and Policy are required.
type Options struct {
	Site          string
	Client        *http.Client
	Politeness    *ratelimit.Jitter
	Hosts         *ratelimit.HostLimiter // optional, shared across fetchers
	Policy        retry.Policy
	Identities    *IdentityPool
	StaticHeaders http.Header
	Sleep         Sleeper
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// PoliteFetcher issues one page request at a time with a randomized
// politeness delay, a rotated client identity, and exponential backoff on
// rate-limit, server and transport errors.
type PoliteFetcher struct {
	site          string
	client        *http.Client
	politeness    *ratelimit.Jitter
	hosts         *ratelimit.HostLimiter
	policy        retry.Policy
	identities    *IdentityPool
	staticHeaders http.Header
	sleep         Sleeper
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

var _ model.PageFetcher = (*PoliteFetcher)(nil)

// New creates a PoliteFetcher from opts, filling in defaults for the
// optional collaborators.
func New(opts Options) *PoliteFetcher {
	f := &PoliteFetcher{
		site:          opts.Site,
		client:        opts.Client,
		politeness:    opts.Politeness,
		hosts:         opts.Hosts,
		policy:        opts.Policy,
		identities:    opts.Identities,
		staticHeaders: opts.StaticHeaders,
		sleep:         opts.Sleep,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}
	if f.sleep == nil {
		f.sleep = retry.Sleep
	}
	if f.metrics == nil {
		f.metrics = metrics.Discard()
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return f
}

// Fetch sleeps for the politeness delay and then requests req, retrying
// transient failures. It returns a *model.FetchError when the request
// cannot succeed, or the context's error when cancelled.
func (f *PoliteFetcher) Fetch(ctx context.Context, req model.RequestDescriptor) (model.Response, error) {
	delay := f.politeness.Next()
	f.logger.Debug("politeness delay", "site", f.site, "url", req.URL, "delay", delay)
	if err := f.sleep(ctx, delay); err != nil {
		return model.Response{}, f.cancelled(req, err)
	}

	machine := f.policy.Start()
	for {
		resp, err := f.do(ctx, req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Response{}, f.cancelled(req, ctxErr)
		}
		if errors.Is(err, errHostWait) {
			return model.Response{}, f.cancelled(req, err)
		}

		step := machine.Next(err)
		switch step.State {
		case retry.Success:
			f.metrics.FetchRequests.WithLabelValues(f.site, "ok").Inc()
			return resp, nil

		case retry.Retryable:
			f.metrics.FetchRetries.WithLabelValues(f.site).Inc()
			f.logger.Warn("retrying after transient error",
				"site", f.site,
				"url", req.URL,
				"attempt", step.Attempt,
				"max_retries", f.policy.MaxRetries,
				"delay", step.Wait,
				"error", err,
			)
			if err := f.sleep(ctx, step.Wait); err != nil {
				return model.Response{}, f.cancelled(req, err)
			}

		case retry.Exhausted:
			f.metrics.FetchRequests.WithLabelValues(f.site, "exhausted").Inc()
			return model.Response{}, &model.FetchError{
				Kind:     model.FetchExhausted,
				URL:      req.URL,
				Attempts: step.Attempt,
				Err:      err,
			}

		default:
			f.metrics.FetchRequests.WithLabelValues(f.site, "fatal").Inc()
			return model.Response{}, &model.FetchError{
				Kind:     model.FetchFatal,
				URL:      req.URL,
				Attempts: step.Attempt,
				Err:      err,
			}
		}
	}
}

func (f *PoliteFetcher) cancelled(req model.RequestDescriptor, err error) error {
	f.metrics.FetchRequests.WithLabelValues(f.site, "cancelled").Inc()
	return fmt.Errorf("fetch %s: %w", req.URL, err)
}

// do performs a single HTTP attempt. Non-2xx statuses come back as
// *model.HTTPError and transport failures as *retry.TransientError.
func (f *PoliteFetcher) do(ctx context.Context, req model.RequestDescriptor) (model.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		// A malformed request can never succeed.
		return model.Response{}, &model.HTTPError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("build request: %w", err)}
	}

	for k, vs := range f.staticHeaders {
		httpReq.Header[k] = vs
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}
	if f.identities != nil {
		for k, vs := range f.identities.Next() {
			httpReq.Header[k] = vs
		}
	}

	if err := f.hosts.Wait(ctx, hostOf(req.URL)); err != nil {
		return model.Response{}, fmt.Errorf("%w: %w", errHostWait, err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return model.Response{}, &retry.TransientError{Err: err}
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return model.Response{}, &retry.TransientError{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Response{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s %s: unexpected status %d", method, req.URL, resp.StatusCode),
		}
	}

	return model.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// readBody reads the response body, handling gzip compression if necessary.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds ("120") and HTTP-date forms. Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
