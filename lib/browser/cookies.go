package browser

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func domainMatches(cookieDomain, host string) bool {
	d := strings.TrimPrefix(cookieDomain, ".")
	return host == d || strings.HasSuffix(host, "."+d)
}

// FromNetworkCookies keeps the devtools cookies visible to u.
func FromNetworkCookies(cookies []*proto.NetworkCookie, u *url.URL) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range cookies {
		if u != nil && !domainMatches(c.Domain, u.Hostname()) {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// ToNetworkCookies converts cookies for the browser, cookies without a
// domain are scoped to u.
func ToNetworkCookies(cookies []*http.Cookie, u *url.URL) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" && u != nil {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		out = append(out, param)
	}
	return out
}
