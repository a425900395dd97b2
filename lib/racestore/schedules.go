package racestore

import (
	"strconv"
	"time"

	"keiba-scraper/lib/schedule"
	"keiba-scraper/lib/venue"
)

var scheduleHeader = []string{
	"date", "category", "venue", "race_number", "race_id", "race_key",
	"start_time", "race_name", "source", "resolved_at",
}

// ScheduledRace is one row of schedules.csv.
type ScheduledRace struct {
	Date       string
	Category   venue.Category
	Venue      string
	Number     int
	RaceID     string
	RaceKey    string
	StartTime  string
	Name       string
	Source     string
	ResolvedAt time.Time
}

// SaveSchedule replaces the rows of (date, category) with a resolved
// schedule.
func (s *Store) SaveSchedule(date string, category venue.Category, res schedule.Resolution, resolvedAt time.Time) error {
	var rows [][]string
	for _, e := range res.Entries {
		for _, r := range e.Races {
			id, err := e.RaceID(r.Number)
			if err != nil {
				continue
			}
			rows = append(rows, []string{
				e.Date, string(e.Category), e.Venue, strconv.Itoa(r.Number), id, r.RaceKey,
				r.StartTime, r.Name, res.Source, resolvedAt.Format(time.RFC3339),
			})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dateCol := s.schedules.column("date")
	catCol := s.schedules.column("category")
	return s.schedules.replace(func(row []string) bool {
		return row[dateCol] == date && row[catCol] == string(category)
	}, rows)
}

// Schedule returns the stored schedule rows for date, every date when
// date is empty.
func (s *Store) Schedule(date string) ([]ScheduledRace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.schedules.read()
	if err != nil {
		return nil, err
	}
	var out []ScheduledRace
	for _, row := range rows {
		f := fields(scheduleHeader, row)
		if date != "" && f["date"] != date {
			continue
		}
		number, _ := strconv.Atoi(f["race_number"])
		resolved, _ := time.Parse(time.RFC3339, f["resolved_at"])
		out = append(out, ScheduledRace{
			Date:       f["date"],
			Category:   venue.Category(f["category"]),
			Venue:      f["venue"],
			Number:     number,
			RaceID:     f["race_id"],
			RaceKey:    f["race_key"],
			StartTime:  f["start_time"],
			Name:       f["race_name"],
			Source:     f["source"],
			ResolvedAt: resolved,
		})
	}
	return out, nil
}
