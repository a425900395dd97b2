// Package scraper drives the scrape of one race: it fetches the entries
// page, then every auxiliary page in a fixed order, merges the partial
// records by horse number and persists the result.
package scraper

// each page of a race goes through the same three steps:
// 1) race key -> url 2) url -> html (fetcher) 3) html -> partial record (parsers)
// the scraper is the part that combines the partial records into one data
// model and decides which pages need fetching at all.

// fetches for one race are sequential, the session is owned by one race
// run. only the fetch log is shared between concurrently scraped races.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/comments"
	"keiba-scraper/lib/fetcher"
	"keiba-scraper/lib/fetchlog"
	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/racestore"
	"keiba-scraper/lib/telemetry"
	"keiba-scraper/lib/timezone"
	"keiba-scraper/lib/venue"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("keiba-scraper/lib/scraper")

var (
	ErrEntriesFailed  = errors.New("entries page failed")
	ErrAborted        = errors.New("aborted")
	ErrAlreadyFetched = errors.New("race already fetched")
	// the race's output files may be inconsistent after this error
	ErrPersistFailed = errors.New("persisting race failed")
)

type State string

const (
	StateInit              State = "INIT"
	StateFetchingEntries   State = "FETCHING_ENTRIES"
	StateFetchingAuxiliary State = "FETCHING_AUXILIARY_PAGES"
	StateMerging           State = "MERGING"
	StatePersisted         State = "PERSISTED"
)

// Event is handed to Options.OnState on every state change. Page is set
// while fetching auxiliary pages.
type Event struct {
	RaceID string
	State  State
	Page   race.PageType
}

type Fetcher interface {
	Fetch(ctx context.Context, session fetcher.Session, url string, opts fetcher.Options) (string, error)
}

type FetchLog interface {
	IsFetched(url string, maxAge time.Duration) (bool, error)
	IsRaceFetched(raceID string, maxAge time.Duration) (bool, error)
	Log(url, raceID string, pageType race.PageType, status fetchlog.Status) error
}

type Store interface {
	Load(raceID string) (race.Record, error)
	Save(record race.Record, raceID, raceKey string) (racestore.Paths, error)
}

// LoginFunc logs the session in, it returns false when running
// anonymously.
type LoginFunc func(ctx context.Context, session fetcher.Session) (bool, error)

type Target struct {
	RaceID string
	// RaceKey is netkeiba's race_id, the race id is used when empty.
	RaceKey string
	// URL overrides the entries page url.
	URL string
}

type Options struct {
	// FullFetch fetches every page regardless of the race category.
	FullFetch bool
	// SkipDupCheck fetches every page even when the fetch log has it.
	SkipDupCheck bool
	// TTL is the age after which a logged fetch is stale, 0 means a
	// logged fetch never goes stale.
	TTL time.Duration
	// PostRace adds the result page.
	PostRace   bool
	TagSources bool
	Fetch      fetcher.Options
	OnState    func(Event)
}

type Result struct {
	Record   race.Record
	Paths    racestore.Paths
	LoggedIn bool
}

type Scraper struct {
	session fetcher.Session
	fetcher Fetcher
	log     FetchLog
	store   Store
	parsers Parsers
	urls    URLs
	login   LoginFunc
	time    chrono.TimeAPI
}

type Option func(s *Scraper)

func WithParsers(p Parsers) Option {
	return func(s *Scraper) {
		s.parsers = p.withDefaults()
	}
}

func WithURLs(u URLs) Option {
	return func(s *Scraper) {
		s.urls = u
	}
}

func WithLogin(login LoginFunc) Option {
	return func(s *Scraper) {
		s.login = login
	}
}

func WithTime(t chrono.TimeAPI) Option {
	return func(s *Scraper) {
		s.time = t
	}
}

func New(session fetcher.Session, f Fetcher, log FetchLog, store Store, opts ...Option) *Scraper {
	s := &Scraper{
		session: session,
		fetcher: f,
		log:     log,
		store:   store,
		parsers: DefaultParsers(),
		urls:    DefaultURLs(),
		time:    chrono.NewStandardTime(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run is the state of one ScrapeRace call.
type run struct {
	*Scraper
	target   Target
	id       venue.RaceID
	category venue.Category
	opts     Options
	record   race.Record
	// memo holds the html of every url fetched during this run, pages
	// sharing a url are parsed from it without refetching.
	memo map[string]string
	prev *race.Record
	// loadedPrev is set once the previous record was looked up.
	loadedPrev bool
	plan       []race.PageType
}

func (r *run) emit(state State, page race.PageType) {
	slog.Debug("scrape state", "race_id", r.target.RaceID, "state", state, "page", page)
	if r.opts.OnState != nil {
		r.opts.OnState(Event{RaceID: r.target.RaceID, State: state, Page: page})
	}
}

func aborted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// ScrapeRace scrapes and persists one race. ErrAlreadyFetched is returned
// when the race was saved within the ttl, ErrEntriesFailed when the
// entries page cannot be fetched or holds no horses, ErrAborted when ctx
// is cancelled between two steps and ErrPersistFailed when Save fails.
// nothing is written to the store before Save, and the fetch log only
// marks pages as fetched once the race is saved, so a race that ends in
// an error is fetched again by the next run.
func (s *Scraper) ScrapeRace(ctx context.Context, target Target, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "ScrapeRace")
	defer span.End()
	span.SetAttributes(attribute.String("race_id", target.RaceID))

	result, err := s.scrape(ctx, target, opts)
	if err != nil && !errors.Is(err, ErrAlreadyFetched) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *Scraper) scrape(ctx context.Context, target Target, opts Options) (Result, error) {
	id, err := venue.ParseRaceID(target.RaceID)
	if err != nil {
		return Result{}, err
	}
	if target.RaceKey == "" {
		target.RaceKey = target.RaceID
	}
	r := &run{
		Scraper:  s,
		target:   target,
		id:       id,
		category: id.Venue.Category,
		opts:     opts,
		memo:     map[string]string{},
	}
	r.emit(StateInit, "")

	if err := aborted(ctx); err != nil {
		return Result{}, err
	}

	if !opts.SkipDupCheck {
		fetched, err := s.log.IsRaceFetched(target.RaceID, opts.TTL)
		if err != nil {
			slog.WarnContext(ctx, "failed to read fetch log", "err", err)
		}
		if fetched {
			slog.InfoContext(ctx, "race already fetched, skipping", "race_id", target.RaceID)
			return Result{}, fmt.Errorf("%s: %w", target.RaceID, ErrAlreadyFetched)
		}
	}

	var result Result
	if s.login != nil {
		loggedIn, err := s.login(ctx, s.session)
		if err != nil {
			return Result{}, fmt.Errorf("login: %w", err)
		}
		result.LoggedIn = loggedIn
	}

	r.emit(StateFetchingEntries, race.PageEntries)
	err = r.entries(ctx)
	if err != nil {
		return Result{}, err
	}

	r.plan = Plan(r.category, opts.PostRace, opts.FullFetch)
	for _, page := range r.plan {
		if err := aborted(ctx); err != nil {
			return Result{}, err
		}
		r.emit(StateFetchingAuxiliary, page)
		r.auxiliary(ctx, page)
	}

	if err := aborted(ctx); err != nil {
		return Result{}, err
	}
	r.emit(StateMerging, "")
	src := comments.SourcesOf(&r.record)
	comments.Aggregate(r.record.Horses, src.Stable, src.Previous, src.Training, src.Point, opts.TagSources)
	r.record.FillDefaults()
	r.record.ScrapedAt = s.time.Now()

	paths, err := s.store.Save(r.record, target.RaceID, target.RaceKey)
	if err != nil {
		return Result{}, fmt.Errorf("save %s: %w: %w", target.RaceID, ErrPersistFailed, err)
	}
	r.markSaved(ctx)
	r.emit(StatePersisted, "")

	result.Record = r.record
	result.Paths = paths
	return result, nil
}

func (r *run) url(page race.PageType) string {
	if page == race.PageEntries && r.target.URL != "" {
		return r.target.URL
	}
	return r.urls.For(page, r.category, r.target.RaceKey)
}

func (r *run) fetchOptions(page race.PageType) fetcher.Options {
	opts := r.opts.Fetch
	if page == race.PageAIIndex {
		opts.WaitUntil = fetcher.NetworkIdle
	}
	return opts
}

func (r *run) fetch(ctx context.Context, page race.PageType, url string) (string, error) {
	if markup, ok := r.memo[url]; ok {
		return markup, nil
	}
	markup, err := r.fetcher.Fetch(ctx, r.session, url, r.fetchOptions(page))
	status := fetchlog.Pending
	if err != nil {
		status = fetchlog.Failed
	}
	if logErr := r.log.Log(url, r.target.RaceID, page, status); logErr != nil {
		slog.WarnContext(ctx, "failed to write fetch log", "url", url, "err", logErr)
	}
	if err != nil {
		return "", err
	}
	r.memo[url] = markup
	return markup, nil
}

// markSaved logs success for every page of the saved record that was
// fetched and parsed by this run. carried and failed pages are left alone.
func (r *run) markSaved(ctx context.Context) {
	seen := map[string]bool{}
	for _, page := range append([]race.PageType{race.PageEntries}, r.plan...) {
		status, ok := r.record.Pages[page]
		if !ok || status.Status != race.StatusFetched || seen[status.URL] {
			continue
		}
		seen[status.URL] = true
		if err := r.log.Log(status.URL, r.target.RaceID, page, fetchlog.Success); err != nil {
			slog.WarnContext(ctx, "failed to write fetch log", "url", status.URL, "err", err)
		}
	}
}

// carriable reports whether the previous record holds usable data for
// page, a page that failed back then is fetched again.
func carriable(prev *race.Record, page race.PageType) bool {
	old, ok := prev.Pages[page]
	return ok && (old.Status == race.StatusFetched || old.Status == race.StatusCarried)
}

func (r *run) entries(ctx context.Context) error {
	url := r.url(race.PageEntries)
	markup, err := r.fetch(ctx, race.PageEntries, url)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
		return fmt.Errorf("%s: %w: %w", r.target.RaceID, ErrEntriesFailed, err)
	}

	var entries race.Entries
	err = parse(markup, func(doc *goquery.Document) {
		entries = r.parsers.Entries(doc, r.category)
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.target.RaceID, ErrEntriesFailed, err)
	}
	if len(entries.Horses) == 0 {
		return fmt.Errorf("%s: %w: no horses on %s", r.target.RaceID, ErrEntriesFailed, url)
	}

	r.record = race.FromEntries(entries)
	r.record.RaceID = r.target.RaceID
	r.record.RaceKey = r.target.RaceKey
	r.record.Date = timezone.FormatDate(r.id.Date)
	r.record.Venue = r.id.Venue.Name
	r.record.Category = r.category
	r.record.RaceNumber = r.id.Number
	r.record.Pages[race.PageEntries] = race.PageStatus{
		Status:    race.StatusFetched,
		URL:       url,
		FetchedAt: r.time.Now(),
	}
	return nil
}

func (r *run) previous() *race.Record {
	if r.loadedPrev {
		return r.prev
	}
	r.loadedPrev = true
	prev, err := r.store.Load(r.target.RaceID)
	if err != nil {
		if !errors.Is(err, racestore.ErrNotFound) {
			slog.Warn("failed to load previous record", "race_id", r.target.RaceID, "err", err)
		}
		return nil
	}
	r.prev = &prev
	return r.prev
}

// auxiliary fetches, parses and merges one page. failures only affect
// that page: the horses get default values and the status is recorded.
func (r *run) auxiliary(ctx context.Context, page race.PageType) {
	ctx, span := tracer.Start(ctx, "page")
	defer span.End()
	span.SetAttributes(attribute.String("page", string(page)))

	url := r.url(page)
	status := race.PageStatus{URL: url}

	_, memoized := r.memo[url]
	if !memoized && !r.opts.SkipDupCheck {
		fetched, err := r.log.IsFetched(url, r.opts.TTL)
		if err != nil {
			slog.WarnContext(ctx, "failed to read fetch log", "err", err)
		}
		if fetched {
			if prev := r.previous(); prev != nil && carriable(prev, page) {
				r.record.CarryForward(prev, page)
				status.Status = race.StatusCarried
				status.FetchedAt = prev.Pages[page].FetchedAt
				r.record.Pages[page] = status
				slog.InfoContext(ctx, "page fetched recently, carried forward", "race_id", r.target.RaceID, "page", page)
				return
			}
			slog.InfoContext(ctx, "page fetched recently but not in the saved record, refetching", "race_id", r.target.RaceID, "page", page)
		}
	}

	markup, err := r.fetch(ctx, page, url)
	if err == nil {
		err = parse(markup, func(doc *goquery.Document) {
			r.parsers.merge(&r.record, page, doc, r.category)
		})
	}
	if err != nil {
		slog.WarnContext(ctx, "page failed, continuing", "race_id", r.target.RaceID, "page", page, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.parsers.merge(&r.record, page, nil, r.category)
		status.Status = race.StatusFailed
		status.Error = err.Error()
		r.record.Pages[page] = status
		return
	}

	status.Status = race.StatusFetched
	status.FetchedAt = r.time.Now()
	r.record.Pages[page] = status
}

// parse runs fn on the parsed document, a panic inside fn is returned as
// an error.
func parse(markup string, fn func(doc *goquery.Document)) (err error) {
	doc, err := htmlutil.ParseDocument(markup)
	if err != nil {
		return err
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parser panic: %v", rec)
		}
	}()
	fn(doc)
	return nil
}
