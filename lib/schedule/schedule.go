// Package schedule discovers which races run on a date. several
// unreliable sources are tried in priority order and the first non-empty
// answer wins.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"keiba-scraper/lib/telemetry"
	"keiba-scraper/lib/timezone"
	"keiba-scraper/lib/venue"

	"go.opentelemetry.io/otel/attribute"
)

var tracer = telemetry.Tracer("keiba-scraper/lib/schedule")

type Race struct {
	Number    int    `json:"number"`
	StartTime string `json:"start_time,omitempty"`
	Name      string `json:"name,omitempty"`
	// RaceKey is the netkeiba race_id, empty when the source cannot
	// provide or derive it.
	RaceKey string `json:"race_key,omitempty"`
}

// Entry is the schedule of one venue on one day.
type Entry struct {
	Date     string         `json:"date"`
	Venue    string         `json:"venue"`
	Category venue.Category `json:"category"`
	Meeting  venue.Meeting  `json:"meeting"`
	Races    []Race         `json:"races"`
}

// RaceID builds the identifier of one race of the entry.
func (e Entry) RaceID(number int) (string, error) {
	date, err := timezone.ParseDate(e.Date)
	if err != nil {
		return "", err
	}
	return venue.BuildRaceID(date, e.Venue, number)
}

// Source fetches a schedule. a source returning an empty list without an
// error has no races for the date.
type Source interface {
	Name() string
	Fetch(ctx context.Context, date time.Time, category venue.Category) ([]Entry, error)
}

// Resolution is a resolved schedule and the source that produced it.
type Resolution struct {
	Entries []Entry
	Source  string
}

type Resolver struct {
	sources map[venue.Category][]Source
	today   map[venue.Category]Source
}

func NewResolver() *Resolver {
	return &Resolver{
		sources: map[venue.Category][]Source{},
		today:   map[venue.Category]Source{},
	}
}

// Add appends a date scoped source for category, sources are tried in
// the order they were added.
func (r *Resolver) Add(category venue.Category, source Source) *Resolver {
	r.sources[category] = append(r.sources[category], source)
	return r
}

// SetToday sets the last resort source, which can only answer for the
// current day.
func (r *Resolver) SetToday(category venue.Category, source Source) *Resolver {
	r.today[category] = source
	return r
}

// Resolve never fails because a schedule is absent: a rest day resolves
// to an empty list. errors are only returned for an invalid category or a
// cancelled context.
func (r *Resolver) Resolve(ctx context.Context, date time.Time, category venue.Category) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("date", timezone.FormatDate(date)),
		attribute.String("category", string(category)),
	)

	if !category.Valid() {
		return Resolution{}, fmt.Errorf("invalid category %q", category)
	}

	for _, source := range r.sources[category] {
		entries, err := r.try(ctx, source, date, category)
		if ctx.Err() != nil {
			return Resolution{}, ctx.Err()
		}
		if err != nil {
			slog.WarnContext(ctx, "schedule source failed", "source", source.Name(), "err", err)
			continue
		}
		if len(entries) > 0 {
			span.SetAttributes(attribute.String("source", source.Name()))
			return Resolution{Entries: entries, Source: source.Name()}, nil
		}
		slog.InfoContext(ctx, "schedule source returned nothing", "source", source.Name())
	}

	today, ok := r.today[category]
	if !ok {
		return Resolution{Entries: []Entry{}}, nil
	}
	entries, err := r.try(ctx, today, date, category)
	if ctx.Err() != nil {
		return Resolution{}, ctx.Err()
	}
	if err != nil {
		slog.WarnContext(ctx, "today schedule source failed", "source", today.Name(), "err", err)
		return Resolution{Entries: []Entry{}}, nil
	}

	// the today page cannot be asked about another day
	want := timezone.FormatDate(date)
	kept := []Entry{}
	for _, e := range entries {
		if e.Date != "" && e.Date != want {
			continue
		}
		e.Date = want
		kept = append(kept, e)
	}
	if len(kept) < len(entries) {
		slog.WarnContext(ctx, "today schedule is for another day", "source", today.Name(), "date", want)
	}
	if len(kept) == 0 {
		return Resolution{Entries: kept}, nil
	}
	span.SetAttributes(attribute.String("source", today.Name()))
	return Resolution{Entries: kept, Source: today.Name()}, nil
}

// try calls a source, turning a panic into an error so a broken source
// can never abort resolution.
func (r *Resolver) try(ctx context.Context, source Source, date time.Time, category venue.Category) (entries []Entry, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source %s panicked: %v", source.Name(), p)
		}
	}()
	entries, err = source.Fetch(ctx, date, category)
	if err != nil {
		return nil, err
	}
	return clean(entries, date, category), nil
}

var errNoRaces = errors.New("no races")

// clean drops entries with an unknown venue or no races, normalizes the
// venue names and sorts races by number.
func clean(entries []Entry, date time.Time, category venue.Category) []Entry {
	out := []Entry{}
	for _, e := range entries {
		v, ok := venue.Resolve(e.Venue)
		if !ok || v.Category != category {
			slog.Debug("dropping schedule entry", "venue", e.Venue, "reason", "unknown venue")
			continue
		}
		e.Venue = v.Name
		e.Category = v.Category
		if e.Date == "" {
			e.Date = timezone.FormatDate(date)
		}

		seen := map[int]bool{}
		races := []Race{}
		for _, r := range e.Races {
			if r.Number < 1 || seen[r.Number] {
				continue
			}
			seen[r.Number] = true
			if r.RaceKey == "" {
				r.RaceKey = deriveKey(e, v, r.Number)
			}
			races = append(races, r)
		}
		if len(races) == 0 {
			slog.Debug("dropping schedule entry", "venue", e.Venue, "reason", errNoRaces)
			continue
		}
		sort.Slice(races, func(i, j int) bool { return races[i].Number < races[j].Number })
		e.Races = races
		out = append(out, e)
	}
	return out
}

func deriveKey(e Entry, v venue.Venue, number int) string {
	date, err := timezone.ParseDate(e.Date)
	if err != nil {
		return ""
	}
	key, err := venue.NetkeibaKey(date, v, e.Meeting, number)
	if err != nil {
		return ""
	}
	return key
}
