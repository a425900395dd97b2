// Package racedb is a sqlite index built from the flat files, for
// queries the csv tables cannot answer well.
package racedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"keiba-scraper/lib/fetchlog"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/racedb/db"
	"keiba-scraper/lib/racestore"
	"keiba-scraper/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"

	_ "modernc.org/sqlite"
)

var tracer = telemetry.Tracer("keiba-scraper/lib/racedb")

// Tables is the flat file store the index is built from.
type Tables interface {
	Races() ([]race.Record, error)
	Horses() (map[string][]race.Horse, error)
	Schedule(date string) ([]racestore.ScheduledRace, error)
}

type FetchLog interface {
	Entries() ([]fetchlog.Entry, error)
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	// sqlite allows a single writer
	database.SetMaxOpenConns(1)
	_, err = database.ExecContext(ctx, "pragma foreign_keys = on")
	if err != nil {
		database.Close()
		return Store{}, err
	}
	_, err = database.ExecContext(ctx, db.Schema)
	if err != nil {
		database.Close()
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}
	return NewStore(database), nil
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

func (s Store) Close() error {
	return s.db.Close()
}

type ImportStats struct {
	Races     int
	Horses    int
	Fetches   int
	Schedules int
}

// Import loads the flat files into the database. rows of every imported
// race id are deleted then inserted again inside one transaction, the
// url log and schedules are replaced as a whole.
func (s Store) Import(ctx context.Context, tables Tables, log FetchLog) (ImportStats, error) {
	ctx, span := tracer.Start(ctx, "Import")
	defer span.End()

	races, err := tables.Races()
	if err != nil {
		return ImportStats{}, err
	}
	horses, err := tables.Horses()
	if err != nil {
		return ImportStats{}, err
	}
	schedules, err := tables.Schedule("")
	if err != nil {
		return ImportStats{}, err
	}
	var entries []fetchlog.Entry
	if log != nil {
		entries, err = log.Entries()
		if err != nil {
			return ImportStats{}, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportStats{}, err
	}
	defer tx.Rollback()

	var stats ImportStats
	for _, r := range races {
		_, err = tx.ExecContext(ctx, "delete from horses where race_id = ?", r.RaceID)
		if err != nil {
			return ImportStats{}, err
		}
		_, err = tx.ExecContext(ctx, "delete from races where race_id = ?", r.RaceID)
		if err != nil {
			return ImportStats{}, err
		}
		_, err = tx.ExecContext(ctx, `insert into races (
			race_id, race_key, date, venue, category, race_number, race_name,
			race_grade, distance, surface, meters, going, start_time, scraped_at
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RaceID, r.RaceKey, r.Date, r.Venue, string(r.Category), r.RaceNumber, r.RaceName,
			r.RaceGrade, r.Distance, r.Surface, r.Meters, r.Going, r.StartTime, unix(r.ScrapedAt),
		)
		if err != nil {
			return ImportStats{}, fmt.Errorf("insert race %s: %w", r.RaceID, err)
		}
		stats.Races++

		for _, h := range horses[r.RaceID] {
			finish := ""
			if h.Finish != nil {
				finish = h.Finish.Position
			}
			_, err = tx.ExecContext(ctx, `insert or replace into horses (
				race_id, number, name, horse_id, jockey, trainer, odds, popularity,
				sire, dam, damsire, finish_position, individual_comment
			) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.RaceID, h.Number, h.Name, h.HorseID, h.Jockey, h.Trainer, h.Odds, h.Popularity,
				h.Pedigree.Sire, h.Pedigree.Dam, h.Pedigree.DamSire, finish, h.IndividualComment,
			)
			if err != nil {
				return ImportStats{}, fmt.Errorf("insert horse %s/%s: %w", r.RaceID, h.Number, err)
			}
			stats.Horses++
		}
	}

	_, err = tx.ExecContext(ctx, "delete from url_log")
	if err != nil {
		return ImportStats{}, err
	}
	for _, e := range entries {
		_, err = tx.ExecContext(ctx,
			"insert into url_log (url, race_id, page_type, fetched_at, status) values (?, ?, ?, ?, ?)",
			e.URL, e.RaceID, string(e.PageType), unix(e.FetchedAt), string(e.Status),
		)
		if err != nil {
			return ImportStats{}, err
		}
		stats.Fetches++
	}

	_, err = tx.ExecContext(ctx, "delete from schedules")
	if err != nil {
		return ImportStats{}, err
	}
	for _, sr := range schedules {
		_, err = tx.ExecContext(ctx, `insert or replace into schedules (
			date, category, venue, race_number, race_id, race_key, start_time, source
		) values (?, ?, ?, ?, ?, ?, ?, ?)`,
			sr.Date, string(sr.Category), sr.Venue, sr.Number, sr.RaceID, sr.RaceKey, sr.StartTime, sr.Source,
		)
		if err != nil {
			return ImportStats{}, err
		}
		stats.Schedules++
	}

	err = tx.Commit()
	if err != nil {
		return ImportStats{}, err
	}
	span.SetAttributes(
		attribute.Int("races", stats.Races),
		attribute.Int("horses", stats.Horses),
	)
	return stats, nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Appearance is one start of a horse.
type Appearance struct {
	RaceID   string
	Date     string
	Venue    string
	RaceName string
	Number   string
	Name     string
	Jockey   string
	Odds     string
	Finish   string
}

// HorsesBy returns every start of the horses whose name contains name,
// newest race first.
func (s Store) HorsesBy(ctx context.Context, name string) ([]Appearance, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.race_id, r.date, r.venue, r.race_name, h.number, h.name, h.jockey, h.odds, h.finish_position
		from horses h
		join races r on r.race_id = h.race_id
		where h.name like '%' || ? || '%'
		order by r.date desc, r.race_id desc`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appearance
	for rows.Next() {
		var a Appearance
		err := rows.Scan(&a.RaceID, &a.Date, &a.Venue, &a.RaceName, &a.Number, &a.Name, &a.Jockey, &a.Odds, &a.Finish)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RaceSummary is one indexed race.
type RaceSummary struct {
	RaceID    string
	Venue     string
	Number    int
	RaceName  string
	Grade     string
	StartTime string
	Horses    int
}

// RacesOn returns the indexed races of a YYYYMMDD date ordered by race id.
func (s Store) RacesOn(ctx context.Context, date string) ([]RaceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.race_id, r.venue, r.race_number, r.race_name, r.race_grade, r.start_time,
			(select count(*) from horses h where h.race_id = r.race_id)
		from races r
		where r.date = ?
		order by r.race_id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RaceSummary
	for rows.Next() {
		var r RaceSummary
		err := rows.Scan(&r.RaceID, &r.Venue, &r.Number, &r.RaceName, &r.Grade, &r.StartTime, &r.Horses)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
