package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"keiba-scraper/lib/auth"
	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/fetcher"
	"keiba-scraper/lib/fetchlog"
	"keiba-scraper/lib/parsers"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/racestore"
	"keiba-scraper/lib/venue"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	testRaceID  = "202511300512"
	testRaceKey = "202505080812"
)

const entriesPage = `<html><body>
<div class="RaceList_Item02">
  <h1 class="RaceName">ジャパンC</h1>
  <div class="RaceData01">15:40発走 / 芝2400m (左 B) / 天候:晴<span class="Item04">/ 馬場:良</span></div>
</div>
<table class="Shutuba_Table RaceTable01">
<tr class="HorseList" id="tr_1">
  <td class="Waku1 Txt_C"><span>1</span></td>
  <td class="Umaban1 Txt_C">1</td>
  <td class="CheckMark"></td>
  <td class="HorseInfo"><span class="HorseName"><a href="https://db.netkeiba.com/horse/2021105898">Horse A</a></span></td>
  <td class="Barei Txt_C">牡4</td>
  <td class="Txt_C">58.0</td>
  <td class="Jockey"><a>J1</a></td>
</tr>
<tr class="HorseList" id="tr_2">
  <td class="Waku2 Txt_C"><span>2</span></td>
  <td class="Umaban2 Txt_C">2</td>
  <td class="CheckMark"></td>
  <td class="HorseInfo"><span class="HorseName"><a href="https://db.netkeiba.com/horse/2020100001">Horse B</a></span></td>
  <td class="Barei Txt_C">牝5</td>
  <td class="Txt_C">56.0</td>
  <td class="Jockey"><a>J2</a></td>
</tr>
</table>
</body></html>`

const pastPage = `<table class="Shutuba_Table Shutuba_Past5_Table">
<tr class="HorseList">
  <td class="Waku1">1</td><td class="Waku">1</td>
  <td class="Horse_Info">
    <div class="Horse01 fc">Sire A</div>
    <div class="Horse02"><a href="https://db.netkeiba.com/horse/2021105898">Horse A</a></div>
    <div class="Horse03">Dam A</div>
  </td>
</tr>
<tr class="HorseList">
  <td class="Waku2">2</td><td class="Waku">2</td>
  <td class="Horse_Info"><div class="Horse02"><a>Horse B</a></div></td>
</tr>
</table>`

const stablePage = `<table class="Stable_Comment">
<tr><td class="Waku">1</td><td class="Umaban">1</td><td class="Comment"><p class="Comment_Txt">same comment</p></td></tr>
</table>`

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ fetcher.Session, url string, _ fetcher.Options) (string, error) {
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return "", &fetcher.FetchError{URL: url, Attempts: 3, Err: err}
	}
	if markup, ok := f.pages[url]; ok {
		return markup, nil
	}
	return "<html><body></body></html>", nil
}

func (f *fakeFetcher) count(url string) int {
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func pageURL(page race.PageType) string {
	return DefaultURLs().For(page, venue.Central, testRaceKey)
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: map[string]string{
			pageURL(race.PageEntries):        entriesPage,
			pageURL(race.PagePedigree):       pastPage,
			pageURL(race.PageStableComments): stablePage,
		},
		errs: map[string]error{},
	}
}

type fixture struct {
	fetcher *fakeFetcher
	log     *fetchlog.Log
	store   *racestore.Store
	clock   *chrono.FakeTime
}

func newFixture(t *testing.T) fixture {
	clock := chrono.NewFakeTime(time.Date(2025, 11, 30, 9, 0, 0, 0, time.UTC))
	log, err := fetchlog.Open(t.TempDir(), fetchlog.WithTime(clock))
	require.NoError(t, err)
	store, err := racestore.Open(t.TempDir())
	require.NoError(t, err)
	return fixture{fetcher: newFetcher(), log: log, store: store, clock: clock}
}

func (f fixture) scraper(opts ...Option) *Scraper {
	return New(nil, f.fetcher, f.log, f.store, append([]Option{WithTime(f.clock)}, opts...)...)
}

var target = Target{RaceID: testRaceID, RaceKey: testRaceKey}

func TestScrapeRaceMergesByHorseNumber(t *testing.T) {
	f := newFixture(t)

	var states []State
	res, err := f.scraper().ScrapeRace(context.Background(), target, Options{
		OnState: func(e Event) {
			if len(states) == 0 || states[len(states)-1] != e.State {
				states = append(states, e.State)
			}
		},
	})
	require.NoError(t, err)

	require.Equal(t, []State{StateInit, StateFetchingEntries, StateFetchingAuxiliary, StateMerging, StatePersisted}, states)

	record := res.Record
	require.Equal(t, "ジャパンC", record.RaceName)
	require.Equal(t, "Tokyo", record.Venue)
	require.Equal(t, 12, record.RaceNumber)
	require.Len(t, record.Horses, 2)

	one, two := record.Horse("1"), record.Horse("2")
	require.Equal(t, "J1", one.Jockey)
	require.Equal(t, race.Pedigree{Sire: "Sire A", Dam: "Dam A"}, one.Pedigree)
	require.Equal(t, "J2", two.Jockey)
	require.True(t, two.Pedigree.Empty())
	require.Equal(t, "same comment", one.IndividualComment)
	require.NotNil(t, two.Training.Sessions)

	// pedigree and past results share one page
	require.Equal(t, 1, f.fetcher.count(pageURL(race.PagePedigree)))
	require.Equal(t, race.StatusFetched, record.Pages[race.PagePastResults].Status)

	saved, err := f.store.Load(testRaceID)
	require.NoError(t, err)
	if diff := cmp.Diff(record.Horses, saved.Horses); diff != "" {
		t.Fatalf("saved horses differ (-want +got):\n%s", diff)
	}

	fetched, err := f.log.IsRaceFetched(testRaceID, 0)
	require.NoError(t, err)
	require.True(t, fetched)
}

func TestTrainingFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	s := f.scraper(WithParsers(Parsers{
		Training: func(*goquery.Document, parsers.Variant) race.ByHorse[race.Training] {
			panic("broken training table")
		},
	}))

	res, err := s.ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)

	record := res.Record
	require.Equal(t, race.StatusFailed, record.Pages[race.PageTraining].Status)
	require.Contains(t, record.Pages[race.PageTraining].Error, "broken training table")
	for _, h := range record.Horses {
		require.Empty(t, h.Training.Sessions)
	}
	require.Equal(t, "Sire A", record.Horse("1").Pedigree.Sire)
	require.Equal(t, "same comment", record.Horse("1").StableComment)
	require.Equal(t, race.StatusFetched, record.Pages[race.PageStableComments].Status)

	// the broken page stays due for the next run
	fetched, err := f.log.IsFetched(pageURL(race.PageTraining), time.Hour)
	require.NoError(t, err)
	require.False(t, fetched)
	fetched, err = f.log.IsFetched(pageURL(race.PageStableComments), time.Hour)
	require.NoError(t, err)
	require.True(t, fetched)
}

func TestFetchFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.fetcher.errs[pageURL(race.PageStableComments)] = fmt.Errorf("timeout")

	res, err := f.scraper().ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)
	require.Equal(t, race.StatusFailed, res.Record.Pages[race.PageStableComments].Status)
	require.Empty(t, res.Record.Horse("1").StableComment)

	history, err := f.log.History(pageURL(race.PageStableComments), "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, fetchlog.Failed, history[0].Status)
}

func TestEntriesFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.fetcher.errs[pageURL(race.PageEntries)] = fmt.Errorf("status 404")

	_, err := f.scraper().ScrapeRace(context.Background(), target, Options{})
	require.True(t, errors.Is(err, ErrEntriesFailed))
	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Len(t, f.fetcher.calls, 1)

	_, err = f.store.Load(testRaceID)
	require.True(t, errors.Is(err, racestore.ErrNotFound))
}

func TestEmptyEntriesIsFatal(t *testing.T) {
	f := newFixture(t)
	f.fetcher.pages[pageURL(race.PageEntries)] = "<html><body>準備中</body></html>"

	_, err := f.scraper().ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.True(t, errors.Is(err, ErrEntriesFailed))

	f.fetcher.pages[pageURL(race.PageEntries)] = entriesPage
	res, err := f.scraper().ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.NoError(t, err)
	require.Len(t, res.Record.Horses, 2)
}

func TestAlreadyFetched(t *testing.T) {
	f := newFixture(t)
	s := f.scraper()
	_, err := s.ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.NoError(t, err)
	calls := len(f.fetcher.calls)

	_, err = s.ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.True(t, errors.Is(err, ErrAlreadyFetched))
	require.Len(t, f.fetcher.calls, calls)

	_, err = s.ScrapeRace(context.Background(), target, Options{TTL: time.Hour, SkipDupCheck: true})
	require.NoError(t, err)
	require.Len(t, f.fetcher.calls, 2*calls)

	f.clock.Advance(2 * time.Hour)
	_, err = s.ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.NoError(t, err)
}

// pageLog reports every page as fetched but never the race itself.
type pageLog struct {
	inner *fetchlog.Log
}

func (pageLog) IsFetched(string, time.Duration) (bool, error)     { return true, nil }
func (pageLog) IsRaceFetched(string, time.Duration) (bool, error) { return false, nil }

func (l pageLog) Log(url, raceID string, pageType race.PageType, status fetchlog.Status) error {
	return l.inner.Log(url, raceID, pageType, status)
}

type readOnlyStore struct {
	*racestore.Store
}

func (readOnlyStore) Save(race.Record, string, string) (racestore.Paths, error) {
	return racestore.Paths{}, errors.New("disk full")
}

func TestSaveFailureIsReported(t *testing.T) {
	f := newFixture(t)
	s := New(nil, f.fetcher, f.log, readOnlyStore{f.store}, WithTime(f.clock))

	_, err := s.ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.ErrorIs(t, err, ErrPersistFailed)
	require.ErrorContains(t, err, "disk full")

	fetched, err := f.log.IsRaceFetched(testRaceID, time.Hour)
	require.NoError(t, err)
	require.False(t, fetched)

	_, err = f.scraper().ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.NoError(t, err)
	_, err = f.store.Load(testRaceID)
	require.NoError(t, err)
}

func TestSkippedPagesCarryForward(t *testing.T) {
	f := newFixture(t)
	_, err := f.scraper().ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)

	f.fetcher.calls = nil
	s := New(nil, f.fetcher, pageLog{f.log}, f.store, WithTime(f.clock))
	res, err := s.ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)

	// only the entries page is fetched again
	require.Equal(t, []string{pageURL(race.PageEntries)}, f.fetcher.calls)
	require.Equal(t, race.StatusCarried, res.Record.Pages[race.PagePedigree].Status)
	require.Equal(t, "Sire A", res.Record.Horse("1").Pedigree.Sire)
	require.Equal(t, "same comment", res.Record.Horse("1").IndividualComment)
}

func TestFailedPageIsNotCarried(t *testing.T) {
	f := newFixture(t)
	comments := pageURL(race.PageStableComments)
	f.fetcher.errs[comments] = fmt.Errorf("timeout")
	_, err := f.scraper().ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, f.fetcher.count(comments))

	delete(f.fetcher.errs, comments)
	s := New(nil, f.fetcher, pageLog{f.log}, f.store, WithTime(f.clock))
	res, err := s.ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)

	require.Equal(t, 2, f.fetcher.count(comments))
	require.Equal(t, race.StatusFetched, res.Record.Pages[race.PageStableComments].Status)
	require.Equal(t, "same comment", res.Record.Horse("1").StableComment)
	require.Equal(t, race.StatusCarried, res.Record.Pages[race.PagePedigree].Status)
}

func TestSkippedPageWithoutSavedRecordIsFetched(t *testing.T) {
	f := newFixture(t)
	s := New(nil, f.fetcher, pageLog{f.log}, f.store, WithTime(f.clock))
	res, err := s.ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)
	require.Equal(t, race.StatusFetched, res.Record.Pages[race.PagePedigree].Status)
	require.Equal(t, "Sire A", res.Record.Horse("1").Pedigree.Sire)
}

func TestAbortBetweenPages(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.scraper().ScrapeRace(ctx, target, Options{
		OnState: func(e Event) {
			if e.Page == race.PagePedigree {
				cancel()
			}
		},
	})
	require.True(t, errors.Is(err, ErrAborted))
	require.Zero(t, f.fetcher.count(pageURL(race.PageStableComments)))

	_, err = f.store.Load(testRaceID)
	require.True(t, errors.Is(err, racestore.ErrNotFound))

	fetched, err := f.log.IsRaceFetched(testRaceID, time.Hour)
	require.NoError(t, err)
	require.False(t, fetched)

	res, err := f.scraper().ScrapeRace(context.Background(), target, Options{TTL: time.Hour})
	require.NoError(t, err)
	require.Equal(t, "same comment", res.Record.Horse("1").StableComment)
}

func TestAbortedRescrapeKeepsSavedRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.scraper().ScrapeRace(context.Background(), target, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = f.scraper().ScrapeRace(ctx, target, Options{
		SkipDupCheck: true,
		OnState: func(e Event) {
			if e.Page == race.PagePedigree {
				cancel()
			}
		},
	})
	require.True(t, errors.Is(err, ErrAborted))
	require.NoError(t, f.store.Discard(testRaceID))

	saved, err := f.store.Load(testRaceID)
	require.NoError(t, err)
	require.Equal(t, "same comment", saved.Horse("1").StableComment)
}

func TestLoginFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	s := f.scraper(WithLogin(func(context.Context, fetcher.Session) (bool, error) {
		return false, auth.ErrLoginFailed
	}))
	_, err := s.ScrapeRace(context.Background(), target, Options{})
	require.True(t, errors.Is(err, auth.ErrLoginFailed))
	require.Empty(t, f.fetcher.calls)
}

func TestURLOverride(t *testing.T) {
	f := newFixture(t)
	f.fetcher.pages["https://example.test/shutuba"] = entriesPage
	res, err := f.scraper().ScrapeRace(context.Background(), Target{RaceID: testRaceID, URL: "https://example.test/shutuba"}, Options{})
	require.NoError(t, err)
	require.Equal(t, "https://example.test/shutuba", f.fetcher.calls[0])
	// the race id doubles as the key when none is given
	require.Equal(t, testRaceID, res.Record.RaceKey)
}

func TestPlan(t *testing.T) {
	base := []race.PageType{race.PageTraining, race.PagePedigree, race.PageStableComments, race.PagePreviousComments, race.PagePastResults}

	require.Equal(t, append(append([]race.PageType{}, base...), race.PageOdds, race.PagePrediction, race.PageAIIndex), Plan(venue.Central, false, false))
	require.Equal(t, append(append([]race.PageType{}, base...), race.PageOdds, race.PagePrediction, race.PagePoint, race.PageResult), Plan(venue.Regional, true, false))

	full := Plan(venue.Central, false, true)
	require.Contains(t, full, race.PagePoint)
	require.Contains(t, full, race.PageAIIndex)
	require.Equal(t, race.PageResult, full[len(full)-1])
}

func TestURLs(t *testing.T) {
	urls := DefaultURLs()
	require.Equal(t, "https://race.netkeiba.com/race/shutuba.html?race_id=202505080812", urls.For(race.PageEntries, venue.Central, "202505080812"))
	require.Equal(t, "https://nar.netkeiba.com/race/point.html?race_id=202544113001", urls.For(race.PagePoint, venue.Regional, "202544113001"))
	require.Equal(t, urls.For(race.PagePedigree, venue.Central, "x"), urls.For(race.PagePastResults, venue.Central, "x"))
	require.Empty(t, urls.For(race.PageEntries, venue.Category("moon"), "x"))
}
