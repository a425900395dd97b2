package race

// ByHorse is a partial record of a horse scoped page, keyed by horse number.
type ByHorse[T any] map[string]T

// Meta is the race level part of the entries page.
type Meta struct {
	RaceName   string
	RaceGrade  string
	Distance   string
	Surface    string
	Meters     int
	Weather    string
	Going      string
	StartTime  string
	Pace       string
	RaceDetail string
}

// Entries is the partial record of the entries page. Horses keeps page order.
type Entries struct {
	Meta   Meta
	Horses []Horse
}

// Odds of one horse.
type Odds struct {
	Win        string
	PlaceLow   string
	PlaceHigh  string
	Popularity string
}

// ResultPage is the partial record of a result page.
type ResultPage struct {
	Result   Result
	Finishes ByHorse[Finish]
	Payouts  []Payout
}

// PointPage is the partial record of the regional point page.
type PointPage struct {
	Info    PointInfo
	Reasons ByHorse[[]string]
}

// Reasons collects point fragments that name a horse.
func (p PointInfo) Reasons() ByHorse[[]string] {
	out := ByHorse[[]string]{}
	for _, f := range p.Points {
		if f.HorseNumber == "" || f.Reason == "" {
			continue
		}
		out[f.HorseNumber] = append(out[f.HorseNumber], f.Reason)
	}
	return out
}
