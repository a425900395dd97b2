// Package ratelimit decides how long to wait before the next page fetch.
// the delay depends on the hour of day (japan time), carries jitter so the
// cadence is not fixed, and occasionally adds a longer pause.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"keiba-scraper/lib/chrono"

	"golang.org/x/time/rate"
)

// HourRange is a half-open [Start, End) range of hours, End may be lower
// than Start to wrap past midnight.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r HourRange) Contains(hour int) bool {
	if r.Start == r.End {
		return false
	}
	if r.Start < r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

// Policy is the tunable delay policy. none of the defaults are load
// bearing, they were picked empirically.
type Policy struct {
	BaseDelay       time.Duration `json:"base_delay"`
	LowTrafficDelay time.Duration `json:"low_traffic_delay"`
	LowTrafficHours []HourRange   `json:"low_traffic_hours"`
	JitterRatio     float64       `json:"jitter_ratio"`
	PenaltyChance   float64       `json:"penalty_chance"`
	PenaltyMin      time.Duration `json:"penalty_min"`
	PenaltyMax      time.Duration `json:"penalty_max"`
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:       2 * time.Second,
		LowTrafficDelay: 1 * time.Second,
		LowTrafficHours: []HourRange{{Start: 0, End: 7}},
		JitterRatio:     0.3,
		PenaltyChance:   0.05,
		PenaltyMin:      3 * time.Second,
		PenaltyMax:      8 * time.Second,
	}
}

// WithBase returns a copy of the policy with both base delays replaced,
// used by the --rate-limit override.
func (p Policy) WithBase(d time.Duration) Policy {
	p.BaseDelay = d
	if p.LowTrafficDelay > d || p.LowTrafficDelay == 0 {
		p.LowTrafficDelay = d
	}
	return p
}

func (p Policy) lowTraffic(hour int) bool {
	for _, r := range p.LowTrafficHours {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// Limiter applies a Policy. it is safe for concurrent use.
type Limiter struct {
	policy Policy
	time   chrono.TimeAPI
	shared *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(l *Limiter)

// WithTime injects the clock used for hour lookup and sleeping.
func WithTime(t chrono.TimeAPI) Option {
	return func(l *Limiter) { l.time = t }
}

// WithRand injects the randomness source.
func WithRand(rng *rand.Rand) Option {
	return func(l *Limiter) { l.rng = rng }
}

// WithShared adds a token bucket shared by every limiter that receives
// it, bounding the aggregate request rate of concurrent race scrapes.
func WithShared(shared *rate.Limiter) Option {
	return func(l *Limiter) { l.shared = shared }
}

// NewShared creates a token bucket allowing perSecond requests with the
// given burst.
func NewShared(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func New(policy Policy, opts ...Option) *Limiter {
	l := &Limiter{
		policy: policy,
		time:   chrono.NewStandardTime(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

func (l *Limiter) float() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

// Delay computes the next delay without sleeping.
func (l *Limiter) Delay() time.Duration {
	p := l.policy
	base := p.BaseDelay
	if p.lowTraffic(l.time.Now().Hour()) {
		base = p.LowTrafficDelay
	}

	delay := float64(base)
	if p.JitterRatio > 0 {
		// uniform in [1-ratio, 1+ratio]
		delay *= 1 + p.JitterRatio*(2*l.float()-1)
	}

	if p.PenaltyChance > 0 && l.float() < p.PenaltyChance {
		extra := float64(p.PenaltyMin)
		if p.PenaltyMax > p.PenaltyMin {
			extra += l.float() * float64(p.PenaltyMax-p.PenaltyMin)
		}
		delay += extra
	}

	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// Wait suspends the caller for the next delay. it must be called before
// every external page fetch, retries included.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.shared != nil {
		err := l.shared.Wait(ctx)
		if err != nil {
			return err
		}
	}
	d := l.Delay()
	slog.DebugContext(ctx, "rate limit wait", "delay", d)
	return l.time.Sleep(ctx, d)
}
