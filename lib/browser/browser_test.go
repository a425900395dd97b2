package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"keiba-scraper/lib/fetcher"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/require"
)

func TestCookieConversion(t *testing.T) {
	u, _ := url.Parse("https://race.netkeiba.com/race/shutuba.html")
	expires := time.Unix(1893456000, 0)

	params := ToNetworkCookies([]*http.Cookie{
		{Name: "nkauth", Value: "abc", Domain: ".netkeiba.com", Expires: expires},
		{Name: "local", Value: "x"},
	}, u)
	require.Len(t, params, 2)
	require.Equal(t, ".netkeiba.com", params[0].Domain)
	require.Equal(t, "/", params[0].Path)
	require.Equal(t, proto.TimeSinceEpoch(expires.Unix()), params[0].Expires)
	require.Equal(t, "race.netkeiba.com", params[1].Domain)

	back := FromNetworkCookies([]*proto.NetworkCookie{
		{Name: "nkauth", Value: "abc", Domain: ".netkeiba.com", Path: "/", Expires: proto.TimeSinceEpoch(expires.Unix())},
		{Name: "other", Value: "y", Domain: "example.com", Path: "/"},
	}, u)
	require.Len(t, back, 1)
	require.Equal(t, "nkauth", back[0].Name)
	require.True(t, back[0].Expires.Equal(expires))
}

// launching chromium is too heavy for every test run.
func TestNavigate(t *testing.T) {
	if os.Getenv("KEIBA_BROWSER_TEST") == "" {
		t.Skip("set KEIBA_BROWSER_TEST to run browser tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><div id=x>hello</div></body></html>"))
	}))
	defer srv.Close()

	ctx := context.Background()
	session, err := Launch(ctx, Options{Headless: true, Bin: os.Getenv("KEIBA_BROWSER_BIN")})
	require.NoError(t, err)
	defer session.Close()

	res, err := session.Navigate(ctx, srv.URL, fetcher.DOMReady, 10*time.Second)
	require.NoError(t, err)
	require.Contains(t, res.HTML, "hello")
	require.Equal(t, 200, res.Status)
}
