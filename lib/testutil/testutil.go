package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"keiba-scraper/lib/telemetry"

	_ "modernc.org/sqlite"
)

type DBParams struct {
	Name string
	// if unspecified, it will skip applying a schema
	Schema string
	// if unspecified, a database in a temporary directory is used
	Path string
}

type DBResult struct {
	DB *sql.DB
}

// SetupDB opens a sqlite database for a test with telemetry set up, the
// returned function closes both.
func SetupDB(t testing.TB, params DBParams) (DBResult, func()) {
	cleanupTelemetry := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	path := params.Path
	if path == "" {
		path = filepath.Join(t.TempDir(), "test.db")
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	database.SetMaxOpenConns(1)
	if params.Schema != "" {
		_, err = database.Exec(params.Schema)
		if err != nil {
			t.Fatal(err)
		}
	}

	return DBResult{DB: database}, func() {
		database.Close()
		cleanupTelemetry()
	}
}
