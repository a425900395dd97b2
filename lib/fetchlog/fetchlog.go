// Package fetchlog is the append-only record of every page fetch. it
// answers whether a url (or a whole race) was fetched recently enough to
// be skipped.
package fetchlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/race"
)

const FileName = "url_log.csv"

var header = []string{"url", "race_id", "page_type", "fetched_at", "status"}

type Status string

const (
	// Success marks a page whose data made it into a saved record.
	Success Status = "success"
	Failed  Status = "failed"
	// Pending marks a page that was fetched by a run that has not saved
	// the race yet. it does not count as fetched.
	Pending Status = "pending"
)

type Entry struct {
	URL       string
	RaceID    string
	PageType  race.PageType
	FetchedAt time.Time
	// Raw is the stored timestamp, kept when it does not parse.
	Raw    string
	Status Status
}

func (e Entry) validTime() bool {
	return !e.FetchedAt.IsZero()
}

// Log is safe for concurrent use by the races of one process. rows are
// written with a single O_APPEND write each so earlier rows are never
// touched.
type Log struct {
	path string
	time chrono.TimeAPI

	mu sync.Mutex
}

type Option func(l *Log)

func WithTime(t chrono.TimeAPI) Option {
	return func(l *Log) { l.time = t }
}

// Open prepares the log inside dir, writing the header when the file is
// new.
func Open(dir string, opts ...Option) (*Log, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	l := &Log{
		path: filepath.Join(dir, FileName),
		time: chrono.NewStandardTime(),
	}
	for _, opt := range opts {
		opt(l)
	}

	info, err := os.Stat(l.path)
	if err == nil && info.Size() > 0 {
		return l, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	err = l.appendRecords([][]string{header})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) appendRecords(records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	err := w.WriteAll(records)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = f.Write(buf.Bytes())
	closeErr := f.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Log appends one entry stamped with the current time.
func (l *Log) Log(url, raceID string, pageType race.PageType, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.appendRecords([][]string{{
		url,
		raceID,
		string(pageType),
		l.time.Now().Format(time.RFC3339),
		string(status),
	}})
	if err != nil {
		return fmt.Errorf("append fetch log: %w", err)
	}
	return nil
}

// Entries returns every row in file order.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []Entry
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// a torn row from a crashed writer, keep the rest readable
			slog.Warn("skipping malformed fetch log row", "err", err)
			continue
		}
		if first {
			first = false
			if len(record) > 0 && record[0] == header[0] {
				continue
			}
		}
		if len(record) < len(header) {
			continue
		}

		entry := Entry{
			URL:      record[0],
			RaceID:   record[1],
			PageType: race.PageType(record[2]),
			Raw:      record[3],
			Status:   Status(record[4]),
		}
		fetchedAt, err := time.Parse(time.RFC3339, record[3])
		if err == nil {
			entry.FetchedAt = fetchedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// fresh reports whether the latest successful entry matching keep is
// within maxAge. maxAge <= 0 means any success counts.
func (l *Log) fresh(maxAge time.Duration, keep func(e Entry) bool) (bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}

	var latest *Entry
	for i := range entries {
		e := &entries[i]
		if e.Status != Success || !keep(*e) {
			continue
		}
		if maxAge <= 0 {
			return true, nil
		}
		// unparseable timestamps count as fresh to avoid refetch storms
		if !e.validTime() {
			return true, nil
		}
		if latest == nil || e.FetchedAt.After(latest.FetchedAt) {
			latest = e
		}
	}
	if latest == nil {
		return false, nil
	}
	return !l.time.Now().After(latest.FetchedAt.Add(maxAge)), nil
}

// IsFetched reports whether url has a successful fetch, within maxAge
// when maxAge > 0.
func (l *Log) IsFetched(url string, maxAge time.Duration) (bool, error) {
	return l.fresh(maxAge, func(e Entry) bool {
		return e.URL == url
	})
}

// IsRaceFetched checks for a successful entries page of raceID, which is
// only logged once the race has been saved.
func (l *Log) IsRaceFetched(raceID string, maxAge time.Duration) (bool, error) {
	return l.fresh(maxAge, func(e Entry) bool {
		return e.RaceID == raceID && e.PageType == race.PageEntries
	})
}

// History filters entries by url or race id, empty filters match all.
func (l *Log) History(url, raceID string) ([]Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if url != "" && e.URL != url {
			continue
		}
		if raceID != "" && e.RaceID != raceID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
