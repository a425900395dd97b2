// Package auth logs a session into netkeiba. premium pages (the ai index,
// some training comments) only render for a logged in member.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("keiba-scraper/lib/auth")

var ErrLoginFailed = errors.New("login failed")

// CookieJar is the part of a session that holds cookies, both the http
// and the browser sessions implement it.
type CookieJar interface {
	Cookies(u *url.URL) []*http.Cookie
	SetCookies(u *url.URL, cookies []*http.Cookie)
}

type Credentials struct {
	LoginID  string
	Password string
}

func (c Credentials) Empty() bool {
	return c.LoginID == "" || c.Password == ""
}

type Authenticator struct {
	config Config
	http   *resty.Client
	time   chrono.TimeAPI
}

type Option func(a *Authenticator)

func WithTime(t chrono.TimeAPI) Option {
	return func(a *Authenticator) {
		a.time = t
	}
}

// WithClient replaces the http client used for the login form, it must
// carry its own cookie jar.
func WithClient(client *resty.Client) Option {
	return func(a *Authenticator) {
		a.http = client
	}
}

func New(config Config, opts ...Option) *Authenticator {
	a := &Authenticator{config: config, time: chrono.NewStandardTime()}
	for _, opt := range opts {
		opt(a)
	}
	if a.http == nil {
		jar, _ := cookiejar.New(nil)
		a.http = resty.New().
			SetCookieJar(jar).
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
			SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
		telemetry.InstrumentResty(a.http, "keiba-scraper/lib/auth/http")
	}
	return a
}

// EnsureLoggedIn makes sure the session carries member cookies.
//
// without credentials it returns (false, nil) and the caller continues
// anonymously. saved cookies are tried first, then the login form. a
// failed login with credentials present returns ErrLoginFailed.
func (a *Authenticator) EnsureLoggedIn(ctx context.Context, session CookieJar, creds Credentials, cookieFile string) (bool, error) {
	ctx, span := tracer.Start(ctx, "EnsureLoggedIn")
	defer span.End()

	if creds.Empty() {
		slog.InfoContext(ctx, "no login credentials, continuing anonymously")
		span.SetAttributes(attribute.Bool("anonymous", true))
		return false, nil
	}

	if cookieFile != "" {
		cookies, err := LoadCookies(cookieFile, a.time.Now())
		if err != nil {
			slog.WarnContext(ctx, "failed to read cookie file", "path", cookieFile, "err", err)
		}
		if len(cookies) > 0 {
			a.install(cookies)
			ok, err := a.check(ctx)
			if err != nil {
				slog.WarnContext(ctx, "failed to verify saved cookies", "err", err)
			}
			if ok {
				slog.InfoContext(ctx, "reusing saved login cookies", "path", cookieFile)
				a.copyTo(session)
				span.SetAttributes(attribute.Bool("reused_cookies", true))
				return true, nil
			}
		}
	}

	err := a.login(ctx, creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	a.copyTo(session)

	if cookieFile != "" {
		err = SaveCookies(cookieFile, a.collect())
		if err != nil {
			slog.WarnContext(ctx, "failed to save cookie file", "path", cookieFile, "err", err)
		}
	}
	slog.InfoContext(ctx, "logged in", "login_id", creds.LoginID)
	return true, nil
}

// EnsureLoggedIn logs session in against netkeiba with the default
// configuration.
func EnsureLoggedIn(ctx context.Context, session CookieJar, id, password, cookieFile string) (bool, error) {
	return New(DefaultConfig()).EnsureLoggedIn(ctx, session, Credentials{LoginID: id, Password: password}, cookieFile)
}

func (a *Authenticator) login(ctx context.Context, creds Credentials) error {
	res, err := a.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"pid":      "login",
			"action":   "auth",
			"login_id": creds.LoginID,
			"pswd":     creds.Password,
		}).
		Post(a.config.LoginURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if res.IsError() {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, res.StatusCode())
	}

	ok, err := a.check(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: rejected credentials", ErrLoginFailed)
	}
	return nil
}

func (a *Authenticator) check(ctx context.Context) (bool, error) {
	res, err := a.http.R().
		SetContext(ctx).
		Get(a.config.CheckURL)
	if err != nil {
		return false, err
	}
	markup, err := htmlutil.Decode(res.Body(), res.Header().Get("content-type"))
	if err != nil {
		return false, err
	}
	return LoggedIn(markup), nil
}

// LoggedIn reports whether a netkeiba page was rendered for a member.
func LoggedIn(markup string) bool {
	doc, err := htmlutil.ParseDocument(markup)
	if err != nil {
		return false
	}
	if doc.Find(`a[href*="logout"]`).Length() > 0 {
		return true
	}
	found := false
	doc.Find("a, button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(s.Text(), "ログアウト")
		return !found
	})
	return found
}

func (a *Authenticator) domains() []*url.URL {
	var out []*url.URL
	for _, raw := range a.config.Domains {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	for _, raw := range []string{a.config.LoginURL, a.config.CheckURL} {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"})
	}
	return out
}

func (a *Authenticator) install(cookies []*http.Cookie) {
	jar := a.http.GetClient().Jar
	for _, u := range a.domains() {
		var matched []*http.Cookie
		for _, c := range cookies {
			if c.Domain == "" || domainMatch(u.Hostname(), c.Domain) {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			jar.SetCookies(u, matched)
		}
	}
}

// collect reads the login cookies back out of the jar. the jar only
// reports name and value so the domain is filled from the url.
func (a *Authenticator) collect() []*http.Cookie {
	jar := a.http.GetClient().Jar
	seen := map[string]bool{}
	var out []*http.Cookie
	for _, u := range a.domains() {
		for _, c := range jar.Cookies(u) {
			key := u.Hostname() + "|" + c.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: u.Hostname(),
				Path:   "/",
			})
		}
	}
	return out
}

func (a *Authenticator) copyTo(session CookieJar) {
	if session == nil {
		return
	}
	jar := a.http.GetClient().Jar
	for _, u := range a.domains() {
		cookies := jar.Cookies(u)
		if len(cookies) > 0 {
			session.SetCookies(u, cookies)
		}
	}
}

func domainMatch(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}
