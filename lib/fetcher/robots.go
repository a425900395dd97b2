package fetcher

import (
	"context"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
)

// RobotsGuard answers whether a url may be fetched according to the
// robots.txt of its host. rules are fetched once per host.
type RobotsGuard struct {
	client *resty.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

func NewRobotsGuard(client *resty.Client, agent string) *RobotsGuard {
	if client == nil {
		client = resty.New()
	}
	if agent == "" {
		agent = "*"
	}
	return &RobotsGuard{
		client: client,
		agent:  agent,
		hosts:  make(map[string]*robotstxt.Group),
	}
}

func (g *RobotsGuard) group(ctx context.Context, u *url.URL) (*robotstxt.Group, error) {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	cached, ok := g.hosts[key]
	g.mu.Unlock()
	if ok {
		return cached, nil
	}

	res, err := g.client.R().
		SetContext(ctx).
		Get(key + "/robots.txt")
	if err != nil {
		return nil, err
	}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode(), res.Body())
	if err != nil {
		return nil, err
	}
	group := data.FindGroup(g.agent)

	g.mu.Lock()
	g.hosts[key] = group
	g.mu.Unlock()
	return group, nil
}

func (g *RobotsGuard) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}
	group, err := g.group(ctx, u)
	if err != nil {
		return true, err
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), nil
}
