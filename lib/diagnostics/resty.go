package diagnostics

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// form fields never written out, the login form posts the password.
var redactedFields = map[string]bool{
	"pswd":     true,
	"password": true,
	"passwd":   true,
}

func writeHeaders(out *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			if k == "Cookie" || k == "Set-Cookie" {
				v = "<redacted>"
			}
			fmt.Fprintf(out, "%s: %s\n", k, v)
		}
	}
}

func requestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	if !strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return string(raw)
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return string(raw)
	}
	for field := range form {
		if redactedFields[strings.ToLower(field)] {
			form.Set(field, "<redacted>")
		}
	}
	return form.Encode()
}

// formatExchange renders a request/response pair as plain text.
func formatExchange(res *resty.Response) string {
	var out strings.Builder

	out.WriteString("---- REQUEST ----\n\n")
	fmt.Fprintf(&out, "%s %s\n\n", res.Request.Method, res.Request.URL)
	if raw := res.Request.RawRequest; raw != nil {
		writeHeaders(&out, raw.Header)
		if body := requestBody(raw); body != "" {
			fmt.Fprintf(&out, "\n%s\n", body)
		}
	}

	finalURL := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	out.WriteString("\n---- RESPONSE ----\n\n")
	fmt.Fprintf(&out, "%d %s\n\n", res.StatusCode(), finalURL)
	writeHeaders(&out, res.Header())
	out.WriteString("\n")
	out.WriteString(res.String())

	return out.String()
}

// exchangeID names an artifact after the page, shutuba.html?race_id=x
// becomes <prefix>_<n>_shutuba_x.
func exchangeID(prefix string, n uint64, rawURL string) string {
	id := fmt.Sprintf("%s_%d", prefix, n)
	u, err := url.Parse(rawURL)
	if err != nil {
		return id
	}
	if page := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path)); page != "" && page != "/" && page != "." {
		id += "_" + page
	}
	if key := u.Query().Get("race_id"); key != "" {
		id += "_" + key
	}
	return id
}

// InstrumentClient writes every response of the client to the sink as a
// formatted request/response pair.
func InstrumentClient(client *resty.Client, name string, sink Sink) {
	if sink == nil {
		return
	}
	var counter atomic.Uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		n := counter.Add(1)
		sink.Write(exchangeID(name, n, res.Request.URL), formatExchange(res))
		return nil
	})
}
