package fetcher

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"keiba-scraper/lib/diagnostics"
	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// HTTPSession fetches pages with plain http requests. it cannot run
// scripts, which is enough for every netkeiba page except the ai index.
type HTTPSession struct {
	Http *resty.Client
	jar  http.CookieJar
}

type HTTPSessionOptions struct {
	UserAgent string
	// Diagnostics receives every request/response pair.
	Diagnostics diagnostics.Sink
}

func NewHTTPSession(opts HTTPSessionOptions) (*HTTPSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	client.SetHeader("user-agent", ua)
	client.SetHeader("accept-language", "ja,en;q=0.8")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	telemetry.InstrumentResty(client, "keiba-scraper/lib/fetcher/http")
	if opts.Diagnostics != nil {
		diagnostics.InstrumentClient(client, "session", diagnostics.Gate(opts.Diagnostics))
	}

	return &HTTPSession{Http: client, jar: jar}, nil
}

func (s *HTTPSession) Navigate(ctx context.Context, target string, _ WaitUntil, timeout time.Duration) (Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := s.Http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return Response{}, err
	}

	finalURL := target
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}

	markup, err := htmlutil.Decode(res.Body(), res.Header().Get("Content-Type"))
	if err != nil {
		return Response{}, err
	}

	return Response{
		HTML:     markup,
		Status:   res.StatusCode(),
		FinalURL: finalURL,
		Header:   res.Header(),
	}, nil
}

func (s *HTTPSession) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

func (s *HTTPSession) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)
}
