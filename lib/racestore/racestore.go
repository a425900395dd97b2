// Package racestore persists race records: one pretty printed json file
// per race plus flat csv tables (races, horses, schedules, track bias)
// keyed by race id.
package racestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"keiba-scraper/lib/race"
	"keiba-scraper/lib/venue"
)

var ErrNotFound = errors.New("race not found")

const (
	RacesFile     = "races.csv"
	HorsesFile    = "horses.csv"
	SchedulesFile = "schedules.csv"
	TrackBiasFile = "track_bias.csv"
	racesDir      = "races"
	aiDir         = "ai"
	jsonIndent    = "  "
	jsonPrefix    = ""
)

// Paths are the files written by Save.
type Paths struct {
	JSON   string
	Races  string
	Horses string
}

// Store writes are serialized, concurrent writers to the same race id
// from different processes are not supported.
type Store struct {
	dir string

	races     table
	horses    table
	schedules table
	trackBias table

	mu sync.Mutex
}

func Open(dir string) (*Store, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:       dir,
		races:     table{path: filepath.Join(dir, RacesFile), header: raceHeader},
		horses:    table{path: filepath.Join(dir, HorsesFile), header: horseHeader},
		schedules: table{path: filepath.Join(dir, SchedulesFile), header: scheduleHeader},
		trackBias: table{path: filepath.Join(dir, TrackBiasFile), header: trackBiasHeader},
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// JSONPath is where the record of raceID lives: races/<YYYYMMDD>/<race_id>.json.
func (s *Store) JSONPath(raceID string) (string, error) {
	if _, err := venue.ParseRaceID(raceID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, racesDir, raceID[:8], raceID+".json"), nil
}

// Save writes the record json, upserts its row in races.csv and replaces
// its rows in horses.csv. raceID and raceKey override the record's own
// fields when set. when a step fails the earlier steps are rolled back,
// so a previously saved record of the race stays intact.
func (s *Store) Save(record race.Record, raceID, raceKey string) (Paths, error) {
	if raceID != "" {
		record.RaceID = raceID
	}
	if raceKey != "" {
		record.RaceKey = raceKey
	}
	record.FillDefaults()

	path, err := s.JSONPath(record.RaceID)
	if err != nil {
		return Paths{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(record, jsonPrefix, jsonIndent)
	if err != nil {
		return Paths{}, err
	}

	var undo []func() error
	rollback := func(err error) (Paths, error) {
		errs := []error{err}
		for i := len(undo) - 1; i >= 0; i-- {
			if undoErr := undo[i](); undoErr != nil {
				errs = append(errs, fmt.Errorf("rollback: %w", undoErr))
			}
		}
		slog.Warn("save failed, rolled back", "race_id", record.RaceID, "err", err)
		return Paths{}, errors.Join(errs...)
	}

	previous, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		undo = append(undo, func() error { return os.Remove(path) })
	case err != nil:
		return Paths{}, fmt.Errorf("read race json: %w", err)
	default:
		undo = append(undo, func() error { return writeFile(path, previous) })
	}
	err = writeFile(path, raw)
	if err != nil {
		// the rename never happened, nothing to undo
		return Paths{}, fmt.Errorf("write race json: %w", err)
	}

	undoRaces, err := s.races.snapshot(record.RaceID)
	if err != nil {
		return rollback(fmt.Errorf("read %s: %w", RacesFile, err))
	}
	err = s.races.replace(s.races.where("race_id", record.RaceID), [][]string{raceRow(record, path)})
	if err != nil {
		return rollback(fmt.Errorf("write %s: %w", RacesFile, err))
	}
	undo = append(undo, undoRaces)

	rows := make([][]string, 0, len(record.Horses))
	for _, h := range record.Horses {
		rows = append(rows, horseRow(record.RaceID, h))
	}
	err = s.horses.replace(s.horses.where("race_id", record.RaceID), rows)
	if err != nil {
		return rollback(fmt.Errorf("write %s: %w", HorsesFile, err))
	}

	slog.Debug("saved race", "race_id", record.RaceID, "path", path, "horses", len(record.Horses))
	return Paths{JSON: path, Races: s.races.path, Horses: s.horses.path}, nil
}

// Load reads the json record of raceID, ErrNotFound when it was never
// saved.
func (s *Store) Load(raceID string) (race.Record, error) {
	path, err := s.JSONPath(raceID)
	if err != nil {
		return race.Record{}, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return race.Record{}, fmt.Errorf("%s: %w", raceID, ErrNotFound)
	}
	if err != nil {
		return race.Record{}, err
	}
	var record race.Record
	err = json.Unmarshal(raw, &record)
	if err != nil {
		return race.Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	record.FillDefaults()
	return record, nil
}

// Discard removes the temp files an interrupted Save of raceID may have
// left behind. the saved record and its table rows are kept, Save only
// replaces them once a complete record is written. missing files are not
// an error.
func (s *Store) Discard(raceID string) error {
	path, err := s.JSONPath(raceID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, target := range []string{path, s.races.path, s.horses.path} {
		leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp"))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, tmp := range leftovers {
			err := os.Remove(tmp)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FromTables rebuilds a record from races.csv and horses.csv alone.
func (s *Store) FromTables(raceID string) (race.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	races, err := s.races.read()
	if err != nil {
		return race.Record{}, err
	}
	match := s.races.where("race_id", raceID)
	var (
		record race.Record
		found  bool
	)
	for _, row := range races {
		if match(row) {
			record = recordFromRow(row)
			found = true
		}
	}
	if !found {
		return race.Record{}, fmt.Errorf("%s: %w", raceID, ErrNotFound)
	}

	horses, err := s.horses.read()
	if err != nil {
		return race.Record{}, err
	}
	match = s.horses.where("race_id", raceID)
	for _, row := range horses {
		if match(row) {
			record.Horses = append(record.Horses, horseFromRow(row))
		}
	}
	record.FillDefaults()
	return record, nil
}

// ExportForAI writes the record rebuilt from the tables to
// ai/<race_id>.json and returns the path.
func (s *Store) ExportForAI(raceID string) (string, error) {
	record, err := s.FromTables(raceID)
	if err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(record, jsonPrefix, jsonIndent)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, aiDir, raceID+".json")
	err = writeFile(path, raw)
	if err != nil {
		return "", err
	}
	return path, nil
}

// Races returns every row of races.csv as records without horses.
func (s *Store) Races() ([]race.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.races.read()
	if err != nil {
		return nil, err
	}
	out := make([]race.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, recordFromRow(row))
	}
	return out, nil
}

// Horses returns every row of horses.csv keyed by race id.
func (s *Store) Horses() (map[string][]race.Horse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.horses.read()
	if err != nil {
		return nil, err
	}
	out := map[string][]race.Horse{}
	for _, row := range rows {
		id := fields(horseHeader, row)["race_id"]
		out[id] = append(out[id], horseFromRow(row))
	}
	return out, nil
}
