// Package browser implements fetcher.Session on a real Chromium through
// the devtools protocol. it is needed for pages whose content is
// rendered by scripts (the ai index) and for logging in.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"keiba-scraper/lib/fetcher"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type Options struct {
	Headless bool
	// Bin is the chromium binary, a managed one is downloaded when empty.
	Bin       string
	UserAgent string
}

type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	ua       string
}

func Launch(ctx context.Context, opts Options) (*Session, error) {
	bin := opts.Bin
	if bin == "" {
		slog.InfoContext(ctx, "no browser binary specified, downloading default")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Bin(bin).
		NoSandbox(true)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = fetcher.DefaultUserAgent
	}
	slog.InfoContext(ctx, "browser started", "bin", bin, "headless", opts.Headless)
	return &Session{browser: b, launcher: l, ua: ua}, nil
}

func (s *Session) Close() error {
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

// Navigate opens a fresh tab per call so event listeners never outlive
// the navigation. cookies live on the browser and are shared.
func (s *Session) Navigate(ctx context.Context, target string, wait fetcher.WaitUntil, timeout time.Duration) (fetcher.Response, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if timeout > 0 {
		page = page.Timeout(timeout)
	}
	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.ua})
	if err != nil {
		return fetcher.Response{}, err
	}

	var (
		mu     sync.Mutex
		status int
	)
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		mu.Lock()
		status = e.Response.Status
		mu.Unlock()
		return true
	})
	go waitDocument()

	if err := page.Navigate(target); err != nil {
		return fetcher.Response{}, fmt.Errorf("navigate: %w", err)
	}

	switch wait {
	case fetcher.NetworkIdle:
		err = page.WaitIdle(timeout)
	default:
		err = page.WaitLoad()
	}
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("wait %s: %w", wait, err)
	}

	markup, err := page.HTML()
	if err != nil {
		return fetcher.Response{}, err
	}

	finalURL := target
	info, err := page.Info()
	if err == nil {
		finalURL = info.URL
	}

	mu.Lock()
	defer mu.Unlock()
	return fetcher.Response{
		HTML:     markup,
		Status:   status,
		FinalURL: finalURL,
	}, nil
}

// Page exposes a raw tab for flows that need to interact with forms.
func (s *Session) Page(ctx context.Context, target string) (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, err
	}
	return page.Context(ctx), nil
}

func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		slog.Warn("failed to read browser cookies", "err", err)
		return nil
	}
	return FromNetworkCookies(cookies, u)
}

func (s *Session) SetCookies(u *url.URL, cookies []*http.Cookie) {
	err := s.browser.SetCookies(ToNetworkCookies(cookies, u))
	if err != nil {
		slog.Warn("failed to set browser cookies", "err", err)
	}
}
