package globals

import (
	"errors"
	"os"
	"time"

	"keiba-scraper/lib/configutil"
	"keiba-scraper/lib/ratelimit"
)

// RateLimit is the settings form of ratelimit.Policy, durations are in
// seconds.
type RateLimit struct {
	BaseSeconds       float64               `json:"base_seconds"`
	LowTrafficSeconds float64               `json:"low_traffic_seconds"`
	LowTrafficHours   []ratelimit.HourRange `json:"low_traffic_hours"`
	JitterRatio       float64               `json:"jitter_ratio"`
	PenaltyChance     float64               `json:"penalty_chance"`
	PenaltyMinSeconds float64               `json:"penalty_min_seconds"`
	PenaltyMaxSeconds float64               `json:"penalty_max_seconds"`
	// AggregatePerSecond caps the request rate of all concurrently
	// scraped races together, 0 disables the cap.
	AggregatePerSecond float64 `json:"aggregate_per_second"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r RateLimit) Policy() ratelimit.Policy {
	return ratelimit.Policy{
		BaseDelay:       seconds(r.BaseSeconds),
		LowTrafficDelay: seconds(r.LowTrafficSeconds),
		LowTrafficHours: r.LowTrafficHours,
		JitterRatio:     r.JitterRatio,
		PenaltyChance:   r.PenaltyChance,
		PenaltyMin:      seconds(r.PenaltyMinSeconds),
		PenaltyMax:      seconds(r.PenaltyMaxSeconds),
	}
}

type Settings struct {
	OutputDir    string `json:"output_dir"`
	FetchTimeout string `json:"fetch_timeout"`
	// Headless defaults to true when unset.
	Headless   *bool  `json:"headless"`
	BrowserBin string `json:"browser_bin"`
	UserAgent  string `json:"user_agent"`

	LoginID    string `json:"login_id"`
	Password   string `json:"password"`
	CookieFile string `json:"cookie_file"`

	RateLimit RateLimit `json:"rate_limit"`
	// TTL is how long a fetched page counts as fresh, empty means forever.
	TTL           string `json:"ttl"`
	RespectRobots bool   `json:"respect_robots"`
	TagSources    bool   `json:"tag_sources"`

	// DiagnosticsDir receives raw pages and http exchanges when set.
	DiagnosticsDir string `json:"diagnostics_dir"`
}

func DefaultSettings() Settings {
	policy := ratelimit.DefaultPolicy()
	return Settings{
		OutputDir:    "data",
		FetchTimeout: "30s",
		CookieFile:   ".keiba/cookies.json",
		TTL:          "6h",
		RateLimit: RateLimit{
			BaseSeconds:       policy.BaseDelay.Seconds(),
			LowTrafficSeconds: policy.LowTrafficDelay.Seconds(),
			LowTrafficHours:   policy.LowTrafficHours,
			JitterRatio:       policy.JitterRatio,
			PenaltyChance:     policy.PenaltyChance,
			PenaltyMinSeconds: policy.PenaltyMin.Seconds(),
			PenaltyMaxSeconds: policy.PenaltyMax.Seconds(),
		},
	}
}

// LoadSettings reads path (and its .local override) over the defaults,
// then applies the environment. a missing settings file is not an error.
func LoadSettings(path string) (Settings, error) {
	settings, err := configutil.ReadConfig(path, DefaultSettings())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, err
	}
	settings.applyEnv()
	return settings, nil
}

func (s *Settings) applyEnv() {
	configutil.OverrideString(&s.LoginID, "KEIBA_LOGIN_ID")
	configutil.OverrideString(&s.Password, "KEIBA_PASSWORD")
	configutil.OverrideString(&s.CookieFile, "KEIBA_COOKIE_FILE")
	configutil.OverrideString(&s.OutputDir, "KEIBA_OUTPUT_DIR")
	headless := s.IsHeadless()
	configutil.OverrideBool(&headless, "KEIBA_HEADLESS")
	s.Headless = &headless
}

func (s Settings) IsHeadless() bool {
	return s.Headless == nil || *s.Headless
}

// Timeout parses FetchTimeout, 0 when unset or invalid.
func (s Settings) Timeout() time.Duration {
	d, _ := time.ParseDuration(s.FetchTimeout)
	return d
}

// MaxAge parses TTL, 0 (never stale) when unset or invalid.
func (s Settings) MaxAge() time.Duration {
	d, _ := time.ParseDuration(s.TTL)
	return d
}
