package racestore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// table is one flat csv file with a fixed header. rows are rewritten as a
// whole through a temp file so readers never see a half written table.
type table struct {
	path   string
	header []string
}

func (t table) read() ([][]string, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(t.path), err)
	}
	if len(records) > 0 && slices.Equal(records[0], t.header) {
		records = records[1:]
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		// pad rows written before a column was added
		for len(rec) < len(t.header) {
			rec = append(rec, "")
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (t table) write(rows [][]string) error {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	err := w.Write(t.header)
	if err != nil {
		return err
	}
	err = w.WriteAll(rows)
	if err != nil {
		return err
	}
	return writeFile(t.path, buf.Bytes())
}

// replace drops the rows matched by drop and appends rows.
func (t table) replace(drop func(row []string) bool, rows [][]string) error {
	existing, err := t.read()
	if err != nil {
		return err
	}
	out := make([][]string, 0, len(existing)+len(rows))
	for _, row := range existing {
		if drop(row) {
			continue
		}
		out = append(out, row)
	}
	out = append(out, rows...)
	return t.write(out)
}

// snapshot captures the rows of raceID and returns a func that puts them
// back in place of whatever rows the race has by then.
func (t table) snapshot(raceID string) (func() error, error) {
	existing, err := t.read()
	if err != nil {
		return nil, err
	}
	match := t.where("race_id", raceID)
	var kept [][]string
	for _, row := range existing {
		if match(row) {
			kept = append(kept, row)
		}
	}
	return func() error { return t.replace(match, kept) }, nil
}

func (t table) column(name string) int {
	return slices.Index(t.header, name)
}

// where returns a row filter on the equality of one column.
func (t table) where(name, value string) func(row []string) bool {
	i := t.column(name)
	return func(row []string) bool {
		return i >= 0 && i < len(row) && row[i] == value
	}
}

// writeFile replaces path atomically by renaming a temp file over it.
func writeFile(path string, contents []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(contents)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	err = os.Rename(tmp.Name(), path)
	if err != nil {
		os.Remove(tmp.Name())
	}
	return err
}
