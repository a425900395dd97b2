package racestore

import (
	"time"
)

var trackBiasHeader = []string{"date", "venue", "surface", "race_id", "bias", "note", "recorded_at"}

// TrackBias is one observation appended by the analytics consumer. the
// store only keeps the history, it never computes a bias.
type TrackBias struct {
	Date       string
	Venue      string
	Surface    string
	RaceID     string
	Bias       string
	Note       string
	RecordedAt time.Time
}

func (s *Store) AppendTrackBias(rows ...TrackBias) error {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]string, 0, len(rows))
	for _, b := range rows {
		out = append(out, []string{b.Date, b.Venue, b.Surface, b.RaceID, b.Bias, b.Note, b.RecordedAt.Format(time.RFC3339)})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackBias.replace(func([]string) bool { return false }, out)
}

// TrackBias returns the history of venueName, oldest first. an empty
// venue returns every row.
func (s *Store) TrackBias(venueName string) ([]TrackBias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.trackBias.read()
	if err != nil {
		return nil, err
	}
	var out []TrackBias
	for _, row := range rows {
		f := fields(trackBiasHeader, row)
		if venueName != "" && f["venue"] != venueName {
			continue
		}
		recorded, _ := time.Parse(time.RFC3339, f["recorded_at"])
		out = append(out, TrackBias{
			Date:       f["date"],
			Venue:      f["venue"],
			Surface:    f["surface"],
			RaceID:     f["race_id"],
			Bias:       f["bias"],
			Note:       f["note"],
			RecordedAt: recorded,
		})
	}
	return out, nil
}
