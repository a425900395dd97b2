package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/lib/auth"
	"keiba-scraper/lib/browser"
	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/fetcher"
	"keiba-scraper/lib/ratelimit"
	"keiba-scraper/lib/schedule"
	"keiba-scraper/lib/scraper"
	"keiba-scraper/lib/timezone"
	"keiba-scraper/lib/venue"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// sessionFlags select the session a command fetches with.
type sessionFlags struct {
	http    bool
	headful bool
}

func openSession(ctx context.Context, v *globals.Value, flags sessionFlags) (fetcher.Session, func(), error) {
	if flags.http {
		session, err := fetcher.NewHTTPSession(fetcher.HTTPSessionOptions{
			UserAgent:   v.Settings.UserAgent,
			Diagnostics: v.Diagnostics,
		})
		if err != nil {
			return nil, nil, err
		}
		return session, func() {}, nil
	}

	session, err := browser.Launch(ctx, browser.Options{
		Headless:  v.Settings.IsHeadless() && !flags.headful,
		Bin:       v.Settings.BrowserBin,
		UserAgent: v.Settings.UserAgent,
	})
	if err != nil {
		return nil, nil, err
	}
	return session, func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close browser", "err", err)
		}
	}, nil
}

// newFetcher builds a page fetcher. shared may be nil.
func newFetcher(v *globals.Value, policy ratelimit.Policy, shared *rate.Limiter) *fetcher.Fetcher {
	opts := []ratelimit.Option{}
	if shared != nil {
		opts = append(opts, ratelimit.WithShared(shared))
	}
	fetchOpts := []fetcher.Option{fetcher.WithDiagnostics(v.Diagnostics)}
	if v.Settings.RespectRobots {
		agent := v.Settings.UserAgent
		if agent == "" {
			agent = fetcher.DefaultUserAgent
		}
		fetchOpts = append(fetchOpts, fetcher.WithRobots(fetcher.NewRobotsGuard(resty.New(), agent)))
	}
	return fetcher.New(ratelimit.New(policy, opts...), fetchOpts...)
}

func sharedLimiter(v *globals.Value) *rate.Limiter {
	perSecond := v.Settings.RateLimit.AggregatePerSecond
	if perSecond <= 0 {
		return nil
	}
	return ratelimit.NewShared(perSecond, 1)
}

func fetchOptions(v *globals.Value) fetcher.Options {
	opts := fetcher.DefaultOptions()
	if timeout := v.Settings.Timeout(); timeout > 0 {
		opts.Timeout = timeout
	}
	return opts
}

// loginFunc logs every race session in once, sessions without a cookie
// store run anonymously.
func loginFunc(v *globals.Value) scraper.LoginFunc {
	authenticator := auth.New(auth.DefaultConfig())
	creds := auth.Credentials{LoginID: v.Settings.LoginID, Password: v.Settings.Password}
	return func(ctx context.Context, session fetcher.Session) (bool, error) {
		jar, _ := session.(auth.CookieJar)
		return authenticator.EnsureLoggedIn(ctx, jar, creds, v.Settings.CookieFile)
	}
}

// loginGate runs logins one at a time. once the site rejected the
// credentials every later call fails with that error without logging in.
type loginGate struct {
	mu     sync.Mutex
	login  scraper.LoginFunc
	failed error
}

func newLoginGate(login scraper.LoginFunc) *loginGate {
	return &loginGate{login: login}
}

func (g *loginGate) Login(ctx context.Context, session fetcher.Session) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failed != nil {
		return false, g.failed
	}
	ok, err := g.login(ctx, session)
	if errors.Is(err, auth.ErrLoginFailed) {
		g.failed = err
	}
	return ok, err
}

func newScraper(v *globals.Value, session fetcher.Session, f *fetcher.Fetcher, login scraper.LoginFunc) *scraper.Scraper {
	return scraper.New(session, f, v.Log, v.Store, scraper.WithLogin(login))
}

// resolveSchedule resolves and stores the schedule of one category.
func resolveSchedule(ctx context.Context, v *globals.Value, session fetcher.Session, f *fetcher.Fetcher, date time.Time, category venue.Category) (schedule.Resolution, error) {
	getter := schedule.FetchGetter{Fetcher: f, Session: session, Options: fetchOptions(v)}
	resolver := schedule.Default(getter, chrono.NewStandardTime())
	res, err := resolver.Resolve(ctx, date, category)
	if err != nil {
		return schedule.Resolution{}, err
	}
	err = v.Store.SaveSchedule(timezone.FormatDate(date), category, res, timezone.Now())
	if err != nil {
		return schedule.Resolution{}, fmt.Errorf("save schedule: %w", err)
	}
	return res, nil
}

func categories(raw string) ([]venue.Category, error) {
	if raw == "" {
		return []venue.Category{venue.Central, venue.Regional}, nil
	}
	c := venue.Category(raw)
	if !c.Valid() {
		return nil, fmt.Errorf("unknown category %q, expected central or regional", raw)
	}
	return []venue.Category{c}, nil
}

// discardUntrusted cleans up after an abort or a failed save. the race
// keeps its last saved record and is fetched again on the next run.
func discardUntrusted(v *globals.Value, raceID string) {
	err := v.Store.Discard(raceID)
	if err != nil {
		slog.Warn("failed to discard partial output", "race_id", raceID, "err", err)
	}
}
