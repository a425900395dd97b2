package racestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"keiba-scraper/lib/race"
	"keiba-scraper/lib/schedule"
	"keiba-scraper/lib/venue"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const raceID = "202505050511"

func sampleRecord() race.Record {
	r := race.Record{
		RaceID:     raceID,
		RaceKey:    "202505020811",
		Date:       "20250505",
		Venue:      "Tokyo",
		Category:   venue.Central,
		RaceNumber: 11,
		RaceName:   "NHKマイルC",
		RaceGrade:  "G1",
		Distance:   "芝1600m (左) / 天候:晴 / 馬場:良",
		Meters:     1600,
		ScrapedAt:  time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC),
		Horses: []race.Horse{
			{
				Number:  "1",
				Name:    "Horse A",
				Jockey:  "J1",
				Odds:    "3.4",
				Marks:   race.Marks{CPU: "◎"},
				AIIndex: race.AIIndex{Index: "82"},
				Training: race.Training{Sessions: []race.TrainingSession{
					{Facility: "美浦", Course: "南W", Seconds: []float64{52.3, 38.1}, Converted: []float64{52.5, 38.2}},
				}},
				Pedigree:          race.Pedigree{Sire: "Sire A", Dam: "Dam A"},
				IndividualComment: "good",
				PastResults:       []race.PastResult{{Date: "2025.04.05", Finish: "1"}},
				Finish:            &race.Finish{Position: "2", Time: "1:32.4"},
			},
			{Number: "2", Name: "Horse B", Jockey: "J2"},
		},
		Result:  &race.Result{Order: []string{"3", "1", "2"}},
		Payouts: []race.Payout{{Kind: "単勝", Numbers: "3", Amount: "560"}},
	}
	r.FillDefaults()
	return r
}

func countLines(t *testing.T, path string) int {
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	n := 0
	for _, b := range raw {
		if b == '\n' {
			n++
		}
	}
	return n
}

func TestSaveLoad(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	paths, err := store.Save(sampleRecord(), raceID, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(store.Dir(), "races", "20250505", raceID+".json"), paths.JSON)

	loaded, err := store.Load(raceID)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleRecord(), loaded); diff != "" {
		t.Fatalf("loaded record differs (-want +got):\n%s", diff)
	}
}

func TestSaveUpserts(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	first := sampleRecord()
	_, err = store.Save(first, raceID, "")
	require.NoError(t, err)

	second := sampleRecord()
	second.RaceName = "renamed"
	second.Horses = second.Horses[:1]
	paths, err := store.Save(second, raceID, "")
	require.NoError(t, err)

	// header plus one row each
	require.Equal(t, 2, countLines(t, paths.Races))
	require.Equal(t, 2, countLines(t, paths.Horses))

	races, err := store.Races()
	require.NoError(t, err)
	require.Len(t, races, 1)
	require.Equal(t, "renamed", races[0].RaceName)
}

func TestExportForAIUsesTables(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	paths, err := store.Save(sampleRecord(), raceID, "")
	require.NoError(t, err)

	// the export must not depend on the json file
	require.NoError(t, os.Remove(paths.JSON))

	path, err := store.ExportForAI(raceID)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(store.Dir(), "ai", raceID+".json"), path)

	record, err := store.FromTables(raceID)
	require.NoError(t, err)
	want := sampleRecord()
	// the page statuses only live in the json file
	want.Pages = map[race.PageType]race.PageStatus{}
	if diff := cmp.Diff(want, record); diff != "" {
		t.Fatalf("rebuilt record differs (-want +got):\n%s", diff)
	}

	_, err = store.ExportForAI("202505050512")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDiscardKeepsSavedRecord(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	paths, err := store.Save(sampleRecord(), raceID, "")
	require.NoError(t, err)

	// temp files of a save that never finished
	leftover := filepath.Join(filepath.Dir(paths.JSON), "."+raceID+".json.123.tmp")
	require.NoError(t, os.WriteFile(leftover, []byte("{"), 0644))
	tableLeftover := filepath.Join(store.Dir(), ".horses.csv.456.tmp")
	require.NoError(t, os.WriteFile(tableLeftover, []byte("race_id"), 0644))

	require.NoError(t, store.Discard(raceID))
	for _, path := range []string{leftover, tableLeftover} {
		_, err = os.Stat(path)
		require.True(t, errors.Is(err, os.ErrNotExist), path)
	}

	saved, err := store.Load(raceID)
	require.NoError(t, err)
	require.Equal(t, "NHKマイルC", saved.RaceName)
	horses, err := store.Horses()
	require.NoError(t, err)
	require.Len(t, horses[raceID], len(sampleRecord().Horses))

	// discarding a race that was never saved is fine
	require.NoError(t, store.Discard("202505050512"))
}

func TestFailedSaveRollsBack(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save(sampleRecord(), "", "")
	require.NoError(t, err)

	// a directory in place of horses.csv makes the last step fail
	horsesPath := filepath.Join(store.Dir(), HorsesFile)
	require.NoError(t, os.Remove(horsesPath))
	require.NoError(t, os.Mkdir(horsesPath, 0755))

	changed := sampleRecord()
	changed.RaceName = "renamed"
	_, err = store.Save(changed, "", "")
	require.Error(t, err)

	saved, err := store.Load(raceID)
	require.NoError(t, err)
	require.Equal(t, "NHKマイルC", saved.RaceName)
	races, err := store.Races()
	require.NoError(t, err)
	require.Len(t, races, 1)
	require.Equal(t, "NHKマイルC", races[0].RaceName)

	// a race saved for the first time leaves no json behind
	fresh := sampleRecord()
	fresh.RaceID = "202505050512"
	_, err = store.Save(fresh, "", "")
	require.Error(t, err)
	_, err = store.Load(fresh.RaceID)
	require.True(t, errors.Is(err, ErrNotFound))
	races, err = store.Races()
	require.NoError(t, err)
	require.Len(t, races, 1)
}

func TestInvalidRaceID(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save(sampleRecord(), "nope", "")
	require.Error(t, err)
}

func TestSaveSchedule(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	now := time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)

	res := schedule.Resolution{
		Source: "netkeiba",
		Entries: []schedule.Entry{{
			Date:     "20250505",
			Venue:    "Tokyo",
			Category: venue.Central,
			Races:    []schedule.Race{{Number: 1, StartTime: "10:05"}, {Number: 11, StartTime: "15:40", RaceKey: "202505020811"}},
		}},
	}
	require.NoError(t, store.SaveSchedule("20250505", venue.Central, res, now))
	require.NoError(t, store.SaveSchedule("20250505", venue.Central, res, now))

	rows, err := store.Schedule("20250505")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "202505050501", rows[0].RaceID)
	require.Equal(t, "202505020811", rows[1].RaceKey)
	require.Equal(t, "netkeiba", rows[1].Source)

	none, err := store.Schedule("20250506")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestTrackBias(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	at := time.Date(2025, 5, 5, 17, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendTrackBias(
		TrackBias{Date: "20250505", Venue: "Tokyo", Surface: "芝", Bias: "inside", RecordedAt: at},
		TrackBias{Date: "20250505", Venue: "Kyoto", Surface: "ダ", Bias: "front", RecordedAt: at},
	))
	require.NoError(t, store.AppendTrackBias(TrackBias{Date: "20250506", Venue: "Tokyo", Bias: "outside", RecordedAt: at}))

	tokyo, err := store.TrackBias("Tokyo")
	require.NoError(t, err)
	require.Len(t, tokyo, 2)
	require.Equal(t, "inside", tokyo[0].Bias)
	require.Equal(t, "outside", tokyo[1].Bias)
	require.True(t, at.Equal(tokyo[0].RecordedAt))

	all, err := store.TrackBias("")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
