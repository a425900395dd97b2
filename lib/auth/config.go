package auth

type Config struct {
	// LoginURL receives the login form.
	LoginURL string `json:"login_url"`
	// CheckURL is a page whose markup tells whether the session is
	// logged in.
	CheckURL string `json:"check_url"`
	// Domains lists the sites that share the login cookies.
	Domains []string `json:"domains"`
}

func DefaultConfig() Config {
	return Config{
		LoginURL: "https://regist.netkeiba.com/account/",
		CheckURL: "https://www.netkeiba.com/",
		Domains: []string{
			"https://www.netkeiba.com/",
			"https://race.netkeiba.com/",
			"https://nar.netkeiba.com/",
			"https://db.netkeiba.com/",
			"https://regist.netkeiba.com/",
		},
	}
}
