// Package fetcher retrieves page markup through a Session with rate
// limiting, retry and throttling cooldown. a call either returns the full
// page or an error, never partial content.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/diagnostics"
	"keiba-scraper/lib/telemetry"

	"dario.cat/mergo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("keiba-scraper/lib/fetcher")

// WaitUntil is the readiness condition a navigation waits for.
type WaitUntil int

const (
	DOMReady WaitUntil = iota
	NetworkIdle
)

func (w WaitUntil) String() string {
	if w == NetworkIdle {
		return "networkidle"
	}
	return "domcontentloaded"
}

// Response is the outcome of one navigation. Status is 0 when the
// session could not observe it.
type Response struct {
	HTML     string
	Status   int
	FinalURL string
	Header   http.Header
}

// Session performs a single navigation. a session is owned by one race
// scrape at a time.
type Session interface {
	Navigate(ctx context.Context, url string, wait WaitUntil, timeout time.Duration) (Response, error)
}

// Limiter is called before every navigation, retries included.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Trace is the per attempt telemetry record handed to Options.OnTrace.
type Trace struct {
	URL       string
	FinalURL  string
	Status    int
	Attempt   int
	Throttled bool
	Err       error
	Waited    time.Duration
	Navigate  time.Duration
	Total     time.Duration
}

type Options struct {
	// MaxRetries is the number of attempts for transient failures.
	MaxRetries int
	Timeout    time.Duration
	WaitUntil  WaitUntil
	// Backoff is multiplied by the failed attempt count between attempts.
	Backoff time.Duration
	// MaxThrottleWaits bounds throttling cooldowns, which are not
	// counted as attempts.
	MaxThrottleWaits int
	OnTrace          func(Trace)
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:       3,
		Timeout:          30 * time.Second,
		WaitUntil:        DOMReady,
		Backoff:          2 * time.Second,
		MaxThrottleWaits: 4,
	}
}

// withDefaults fills a missing retry count and timeout. a zero backoff or
// throttle wait count is a valid setting and stays zero.
func (o Options) withDefaults() Options {
	o.MaxRetries = max(o.MaxRetries, 0)
	o.Timeout = max(o.Timeout, 0)
	o.Backoff = max(o.Backoff, 0)
	o.MaxThrottleWaits = max(o.MaxThrottleWaits, 0)
	def := DefaultOptions()
	// only fails on mismatched types
	_ = mergo.Merge(&o, Options{MaxRetries: def.MaxRetries, Timeout: def.Timeout})
	return o
}

const (
	throttleBase = 5 * time.Second
	throttleCap  = 30 * time.Second
)

// ThrottleCooldown returns the cooldown for the n-th (1 based) throttled
// response: 5s, 10s, 20s then capped at 30s. a larger Retry-After is
// honored up to the cap.
func ThrottleCooldown(n int, retryAfter time.Duration) time.Duration {
	d := throttleBase
	for i := 1; i < n && d < throttleCap; i++ {
		d *= 2
	}
	if retryAfter > d {
		d = retryAfter
	}
	if d > throttleCap {
		d = throttleCap
	}
	return d
}

func retryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err == nil {
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err == nil {
		return time.Until(at), true
	}
	return 0, true
}

func throttled(res Response) (bool, time.Duration) {
	switch res.Status {
	case http.StatusTooManyRequests:
		d, _ := retryAfter(res.Header)
		return true, d
	case http.StatusServiceUnavailable:
		d, ok := retryAfter(res.Header)
		return ok, d
	}
	return false, 0
}

type Fetcher struct {
	limiter Limiter
	time    chrono.TimeAPI
	robots  *RobotsGuard
	sink    diagnostics.Sink
	metrics *metrics
}

type Option func(f *Fetcher)

func WithTime(t chrono.TimeAPI) Option {
	return func(f *Fetcher) { f.time = t }
}

// WithRobots refuses urls the guard disallows.
func WithRobots(guard *RobotsGuard) Option {
	return func(f *Fetcher) { f.robots = guard }
}

// WithDiagnostics hands every fetched page to the sink.
func WithDiagnostics(sink diagnostics.Sink) Option {
	return func(f *Fetcher) { f.sink = sink }
}

func New(limiter Limiter, opts ...Option) *Fetcher {
	f := &Fetcher{
		limiter: limiter,
		time:    chrono.NewStandardTime(),
		sink:    diagnostics.Nop{},
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.sink = diagnostics.Gate(f.sink)
	return f
}

// Fetch returns the markup of url or a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, session Session, url string, opts Options) (string, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	html, attempts, err := f.fetch(ctx, session, url, opts.withDefaults())
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		f.metrics.record(ctx, "failure", 0)
		return "", &FetchError{URL: url, Attempts: attempts, Err: err}
	}
	f.sink.Write("page_"+url, html)
	return html, nil
}

func (f *Fetcher) fetch(ctx context.Context, session Session, url string, opts Options) (string, int, error) {
	if f.robots != nil {
		allowed, err := f.robots.Allowed(ctx, url)
		if err != nil {
			slog.WarnContext(ctx, "robots check failed, continuing", "url", url, "err", err)
		} else if !allowed {
			return "", 0, ErrDisallowed
		}
	}

	started := time.Now()
	failures := 0
	throttles := 0
	attempt := 0
	var lastErr error

	for failures < opts.MaxRetries {
		if err := ctx.Err(); err != nil {
			return "", attempt, err
		}
		attempt++

		waitStart := time.Now()
		if err := f.limiter.Wait(ctx); err != nil {
			return "", attempt, err
		}
		waited := time.Since(waitStart)

		navStart := time.Now()
		res, err := session.Navigate(ctx, url, opts.WaitUntil, opts.Timeout)
		navigated := time.Since(navStart)

		trace := Trace{
			URL:      url,
			FinalURL: res.FinalURL,
			Status:   res.Status,
			Attempt:  attempt,
			Err:      err,
			Waited:   waited,
			Navigate: navigated,
			Total:    time.Since(started),
		}

		if err == nil {
			if isThrottled, after := throttled(res); isThrottled {
				trace.Throttled = true
				f.emit(opts, trace)
				f.metrics.record(ctx, "throttled", navigated)

				throttles++
				lastErr = &StatusError{Status: res.Status}
				if throttles > opts.MaxThrottleWaits {
					return "", attempt, fmt.Errorf("gave up after %d throttled responses: %w", throttles-1, lastErr)
				}
				cooldown := ThrottleCooldown(throttles, after)
				slog.WarnContext(ctx, "throttled, cooling down", "url", url, "status", res.Status, "cooldown", cooldown)
				if err := f.time.Sleep(ctx, cooldown); err != nil {
					return "", attempt, err
				}
				continue
			}
		}
		f.emit(opts, trace)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", attempt, ctx.Err()
			}
			lastErr = err
			f.metrics.record(ctx, "error", navigated)
		case res.Status >= 500:
			lastErr = &StatusError{Status: res.Status}
			f.metrics.record(ctx, "server_error", navigated)
		case res.Status >= 400:
			f.metrics.record(ctx, "client_error", navigated)
			return "", attempt, &StatusError{Status: res.Status}
		case strings.TrimSpace(res.HTML) == "":
			lastErr = ErrEmptyBody
			f.metrics.record(ctx, "empty", navigated)
		default:
			f.metrics.record(ctx, "success", navigated)
			slog.DebugContext(ctx, "fetched", "url", url, "status", res.Status, "attempt", attempt, "duration", navigated)
			return res.HTML, attempt, nil
		}

		failures++
		slog.WarnContext(ctx, "fetch attempt failed", "url", url, "attempt", attempt, "err", lastErr)
		if failures < opts.MaxRetries {
			if err := f.time.Sleep(ctx, opts.Backoff*time.Duration(failures)); err != nil {
				return "", attempt, err
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return "", attempt, lastErr
}

func (f *Fetcher) emit(opts Options, trace Trace) {
	if opts.OnTrace != nil {
		opts.OnTrace(trace)
	}
}
