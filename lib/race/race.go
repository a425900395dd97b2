// Package race defines the consolidated race record and the partial
// records produced by the page parsers.
package race

import (
	"time"

	"keiba-scraper/lib/venue"
)

// PageType names one sub-page of a race.
type PageType string

const (
	PageEntries          PageType = "entries"
	PageTraining         PageType = "training"
	PagePedigree         PageType = "pedigree"
	PageStableComments   PageType = "stable_comments"
	PagePreviousComments PageType = "previous_comments"
	PagePastResults      PageType = "past_results"
	PageOdds             PageType = "odds"
	PagePrediction       PageType = "prediction"
	PageAIIndex          PageType = "ai_index"
	PagePoint            PageType = "point"
	PageResult           PageType = "result"
)

// Record is the consolidated output of one race scrape. it is the only
// contract offered to the analytics and report consumers, none of its
// fields are guaranteed to be non-empty.
type Record struct {
	RaceID     string         `json:"race_id"`
	RaceKey    string         `json:"race_key"`
	Date       string         `json:"date"`
	Venue      string         `json:"venue"`
	Category   venue.Category `json:"category"`
	RaceNumber int            `json:"race_number"`

	RaceName  string `json:"race_name"`
	RaceGrade string `json:"race_grade"`
	// Distance is the raw distance/course/weather line, e.g. "芝2400m (左) / 天候:晴 / 馬場:良".
	Distance   string `json:"distance"`
	Surface    string `json:"surface,omitempty"`
	Meters     int    `json:"meters,omitempty"`
	Weather    string `json:"weather,omitempty"`
	Going      string `json:"going,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	Pace       string `json:"pace,omitempty"`
	RaceDetail string `json:"race_detail,omitempty"`

	Horses []Horse `json:"horses"`

	PointInfo *PointInfo `json:"point_info,omitempty"`
	Result    *Result    `json:"result,omitempty"`
	Payouts   []Payout   `json:"payouts,omitempty"`

	Pages     map[PageType]PageStatus `json:"pages,omitempty"`
	ScrapedAt time.Time               `json:"scraped_at"`
}

// PageStatus records what happened to one page type during the last scrape.
type PageStatus struct {
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

const (
	StatusFetched = "fetched"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusCarried = "carried"
)

// Horse is one runner. Number is the only join key between pages.
type Horse struct {
	Number     string `json:"number"`
	Frame      string `json:"frame,omitempty"`
	Name       string `json:"name"`
	HorseID    string `json:"horse_id,omitempty"`
	SexAge     string `json:"sex_age,omitempty"`
	Jockey     string `json:"jockey"`
	Weight     string `json:"weight"`
	BodyWeight string `json:"body_weight,omitempty"`
	Trainer    string `json:"trainer,omitempty"`
	Odds       string `json:"odds"`
	Popularity string `json:"popularity"`
	Scratched  bool   `json:"scratched,omitempty"`

	Marks   Marks   `json:"marks"`
	AIIndex AIIndex `json:"ai_index"`

	Training Training `json:"training"`
	Pedigree Pedigree `json:"pedigree"`

	StableComment     string `json:"stable_comment"`
	PreviousComment   string `json:"previous_comment"`
	IndividualComment string `json:"individual_comment"`

	PastResults []PastResult `json:"past_results"`
	Finish      *Finish      `json:"finish,omitempty"`
}

// Marks holds prediction marks (◎○▲△☆) keyed by the predictor name.
type Marks struct {
	CPU        string            `json:"cpu,omitempty"`
	Score      string            `json:"score,omitempty"`
	Predictors map[string]string `json:"predictors,omitempty"`
}

type AIIndex struct {
	Index string `json:"index,omitempty"`
	Rank  string `json:"rank,omitempty"`
	Win   string `json:"win_rate,omitempty"`
	Place string `json:"place_rate,omitempty"`
}

type Training struct {
	Evaluation string            `json:"evaluation,omitempty"`
	Rank       string            `json:"rank,omitempty"`
	Sessions   []TrainingSession `json:"sessions"`
}

// TrainingSession is one workout. Splits are the raw strings as printed,
// Seconds their parsed values and Converted the facility adjusted values
// so that workouts at different training centers can be compared.
type TrainingSession struct {
	Date      string    `json:"date,omitempty"`
	Facility  string    `json:"facility,omitempty"`
	Course    string    `json:"course,omitempty"`
	Going     string    `json:"going,omitempty"`
	Rider     string    `json:"rider,omitempty"`
	Splits    []string  `json:"splits,omitempty"`
	Seconds   []float64 `json:"seconds,omitempty"`
	Converted []float64 `json:"converted,omitempty"`
	Distance  int       `json:"distance,omitempty"`
	Intensity string    `json:"intensity,omitempty"`
	Comment   string    `json:"comment,omitempty"`
}

type Pedigree struct {
	Sire    string `json:"sire"`
	Dam     string `json:"dam"`
	DamSire string `json:"damsire"`
}

// Empty reports whether no pedigree field is set.
func (p Pedigree) Empty() bool {
	return p == Pedigree{}
}

type PastResult struct {
	Date     string `json:"date,omitempty"`
	Venue    string `json:"venue,omitempty"`
	RaceName string `json:"race_name,omitempty"`
	Distance string `json:"distance,omitempty"`
	Going    string `json:"going,omitempty"`
	Finish   string `json:"finish,omitempty"`
	Runners  string `json:"runners,omitempty"`
	Jockey   string `json:"jockey,omitempty"`
	Time     string `json:"time,omitempty"`
	Last3F   string `json:"last_3f,omitempty"`
	Passing  string `json:"passing,omitempty"`
	Weight   string `json:"body_weight,omitempty"`
	Winner   string `json:"winner,omitempty"`
}

type Finish struct {
	Position string `json:"position"`
	Time     string `json:"time,omitempty"`
	Margin   string `json:"margin,omitempty"`
	Passing  string `json:"passing,omitempty"`
	Last3F   string `json:"last_3f,omitempty"`
}

type Result struct {
	Order   []string `json:"order"`
	Laps    string   `json:"laps,omitempty"`
	Pace    string   `json:"pace,omitempty"`
	Corners []string `json:"corners,omitempty"`
}

type Payout struct {
	Kind       string `json:"kind"`
	Numbers    string `json:"numbers"`
	Amount     string `json:"amount"`
	Popularity string `json:"popularity,omitempty"`
}

// PointInfo is the regional point page: curated insight fragments.
type PointInfo struct {
	Title   string          `json:"title,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Points  []PointFragment `json:"points"`
}

type PointFragment struct {
	HorseNumber string `json:"horse_number,omitempty"`
	Label       string `json:"label,omitempty"`
	Reason      string `json:"reason"`
}

// Horse returns a pointer to the horse with the given number.
func (r *Record) Horse(number string) *Horse {
	for i := range r.Horses {
		if r.Horses[i].Number == number {
			return &r.Horses[i]
		}
	}
	return nil
}
