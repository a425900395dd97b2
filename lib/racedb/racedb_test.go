package racedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/fetchlog"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/racedb/db"
	"keiba-scraper/lib/racestore"
	"keiba-scraper/lib/schedule"
	"keiba-scraper/lib/testutil"
	"keiba-scraper/lib/venue"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func record(id, name string, horses ...race.Horse) race.Record {
	return race.Record{
		RaceID:     id,
		RaceKey:    id,
		Date:       id[:8],
		Venue:      "Tokyo",
		Category:   venue.Central,
		RaceNumber: 11,
		RaceName:   name,
		Horses:     horses,
	}
}

func TestImportAndQuery(t *testing.T) {
	res, cleanup := testutil.SetupDB(t, testutil.DBParams{Name: "racedb", Schema: db.Schema})
	defer cleanup()
	index := NewStore(res.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	store, err := racestore.Open(dir)
	require.NoError(t, err)
	clock := chrono.NewFakeTime(time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC))
	log, err := fetchlog.Open(dir, fetchlog.WithTime(clock))
	require.NoError(t, err)

	_, err = store.Save(record("202505050511", "NHKマイルC",
		race.Horse{Number: "1", Name: "Horse A", Jockey: "J1", Finish: &race.Finish{Position: "1"}},
		race.Horse{Number: "2", Name: "Horse B", Jockey: "J2"},
	), "", "")
	require.NoError(t, err)
	_, err = store.Save(record("202505040511", "プリンシパルS",
		race.Horse{Number: "5", Name: "Horse A", Jockey: "J3"},
	), "", "")
	require.NoError(t, err)
	require.NoError(t, log.Log("https://race.netkeiba.com/race/shutuba.html?race_id=x", "202505050511", race.PageEntries, fetchlog.Success))
	require.NoError(t, store.SaveSchedule("20250505", venue.Central, schedule.Resolution{
		Source:  "netkeiba",
		Entries: []schedule.Entry{{Date: "20250505", Venue: "Tokyo", Category: venue.Central, Races: []schedule.Race{{Number: 11}}}},
	}, clock.Now()))

	stats, err := index.Import(ctx, store, log)
	require.NoError(t, err)
	require.Equal(t, ImportStats{Races: 2, Horses: 3, Fetches: 1, Schedules: 1}, stats)

	// importing again replaces rather than duplicates
	stats, err = index.Import(ctx, store, log)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Horses)

	starts, err := index.HorsesBy(ctx, "Horse A")
	require.NoError(t, err)
	if diff := cmp.Diff([]Appearance{
		{RaceID: "202505050511", Date: "20250505", Venue: "Tokyo", RaceName: "NHKマイルC", Number: "1", Name: "Horse A", Jockey: "J1", Finish: "1"},
		{RaceID: "202505040511", Date: "20250504", Venue: "Tokyo", RaceName: "プリンシパルS", Number: "5", Name: "Horse A", Jockey: "J3"},
	}, starts); diff != "" {
		t.Fatalf("appearances differ (-want +got):\n%s", diff)
	}

	races, err := index.RacesOn(ctx, "20250505")
	require.NoError(t, err)
	require.Len(t, races, 1)
	require.Equal(t, 2, races[0].Horses)
	require.Equal(t, "NHKマイルC", races[0].RaceName)

	none, err := index.RacesOn(ctx, "20250506")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestOpenAppliesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// opening an existing database keeps it
	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	races, err := store.RacesOn(ctx, "20250505")
	require.NoError(t, err)
	require.Empty(t, races)
}
