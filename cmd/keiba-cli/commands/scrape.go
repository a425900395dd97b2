package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/lib/fetcher"
	"keiba-scraper/lib/osutil"
	"keiba-scraper/lib/scraper"
	"keiba-scraper/lib/timezone"
	"keiba-scraper/lib/venue"

	"github.com/spf13/cobra"
)

// exit code of a run stopped by Ctrl+C
const exitAborted = 130

type scrapeFlags struct {
	venue        string
	race         int
	date         string
	category     string
	rateLimit    float64
	full         bool
	skipDupCheck bool
	raceID       string
	raceKey      string
	url          string
	result       bool
	session      sessionFlags
}

var scrapeOpts scrapeFlags

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeOpts.venue, "venue", "", "The venue, any spelling (東京, Tokyo, 5回東京8日).")
	f.IntVar(&scrapeOpts.race, "race", 0, "The race number.")
	f.StringVar(&scrapeOpts.date, "date", "", "The race date as YYYYMMDD, defaults to today.")
	f.StringVar(&scrapeOpts.category, "category", "", "central or regional, checked against the venue when set.")
	f.Float64Var(&scrapeOpts.rateLimit, "rate-limit", 0, "Override the base delay between requests in seconds.")
	f.BoolVar(&scrapeOpts.full, "full", false, "Fetch every page type regardless of the race category.")
	f.BoolVar(&scrapeOpts.skipDupCheck, "skip-dup-check", false, "Fetch pages even when the fetch log has them.")
	f.StringVar(&scrapeOpts.raceID, "race-id", "", "The race id (YYYYMMDD + venue code + race number), replaces --venue/--race/--date.")
	f.StringVar(&scrapeOpts.raceKey, "race-key", "", "netkeiba's race_id, looked up from the schedule when empty.")
	f.StringVar(&scrapeOpts.url, "url", "", "Override the entries page url.")
	f.BoolVar(&scrapeOpts.result, "result", false, "Also fetch the result page, implied for past races.")
	f.BoolVar(&scrapeOpts.session.headful, "headful", false, "Show the browser window.")
	f.BoolVar(&scrapeOpts.session.http, "http", false, "Fetch with plain http requests instead of a browser.")
	rootCmd.AddCommand(scrapeCmd)
}

func unknownVenue(raw string) error {
	suggestions := venue.Suggest(raw, 3)
	if len(suggestions) == 0 {
		return fmt.Errorf("unknown venue %q", raw)
	}
	return fmt.Errorf("unknown venue %q, did you mean %s?", raw, strings.Join(suggestions, ", "))
}

func raceIDFromFlags(flags scrapeFlags) (venue.RaceID, error) {
	if flags.raceID != "" {
		return venue.ParseRaceID(flags.raceID)
	}
	if flags.venue == "" || flags.race == 0 {
		return venue.RaceID{}, fmt.Errorf("either --race-id or --venue and --race are required")
	}
	date := timezone.Now()
	if flags.date != "" {
		parsed, err := timezone.ParseDate(flags.date)
		if err != nil {
			return venue.RaceID{}, err
		}
		date = parsed
	}
	id, err := venue.BuildRaceID(date, flags.venue, flags.race)
	var unknown *venue.UnknownVenueError
	if errors.As(err, &unknown) {
		return venue.RaceID{}, unknownVenue(unknown.Raw)
	}
	if err != nil {
		return venue.RaceID{}, err
	}
	return venue.ParseRaceID(id)
}

// lookupKey finds netkeiba's key for a race: regional keys are derived
// from the date, central keys need the meeting numbers from a schedule.
func lookupKey(ctx context.Context, v *globals.Value, session fetcher.Session, f *fetcher.Fetcher, id venue.RaceID) string {
	key, err := venue.NetkeibaKey(id.Date, id.Venue, venue.Meeting{}, id.Number)
	if err == nil {
		return key
	}

	find := func() string {
		rows, err := v.Store.Schedule(timezone.FormatDate(id.Date))
		if err != nil {
			slog.WarnContext(ctx, "failed to read schedules", "err", err)
			return ""
		}
		for _, row := range rows {
			if row.RaceID == id.String() && row.RaceKey != "" {
				return row.RaceKey
			}
		}
		return ""
	}
	if key := find(); key != "" {
		return key
	}
	_, err = resolveSchedule(ctx, v, session, f, id.Date, id.Venue.Category)
	if err != nil {
		slog.WarnContext(ctx, "failed to resolve schedule", "err", err)
		return ""
	}
	return find()
}

func postRace(id venue.RaceID, now time.Time) bool {
	return timezone.FormatDate(id.Date) < timezone.FormatDate(now)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape (--venue <venue> --race <n> [--date YYYYMMDD] | --race-id <id>)",
	Short: "Scrapes one race and saves it as json and csv rows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v := globals.Get(ctx)
		flags := scrapeOpts

		id, err := raceIDFromFlags(flags)
		if err != nil {
			return err
		}
		if flags.category != "" && venue.Category(flags.category) != id.Venue.Category {
			return fmt.Errorf("%s is a %s venue, not %s", id.Venue.Name, id.Venue.Category, flags.category)
		}

		policy := v.Settings.RateLimit.Policy()
		if flags.rateLimit > 0 {
			policy = policy.WithBase(time.Duration(flags.rateLimit * float64(time.Second)))
		}

		session, closeSession, err := openSession(ctx, v, flags.session)
		if err != nil {
			return err
		}
		defer closeSession()
		f := newFetcher(v, policy, nil)

		key := flags.raceKey
		if key == "" && flags.url == "" {
			key = lookupKey(ctx, v, session, f, id)
			if key == "" {
				slog.WarnContext(ctx, "no netkeiba key found, using the race id", "race_id", id.String())
			}
		}

		res, err := newScraper(v, session, f, loginFunc(v)).ScrapeRace(ctx, scraper.Target{
			RaceID:  id.String(),
			RaceKey: key,
			URL:     flags.url,
		}, scraper.Options{
			FullFetch:    flags.full,
			SkipDupCheck: flags.skipDupCheck,
			TTL:          v.Settings.MaxAge(),
			PostRace:     flags.result || postRace(id, timezone.Now()),
			TagSources:   v.Settings.TagSources,
			Fetch:        fetchOptions(v),
			OnState: func(e scraper.Event) {
				slog.Info("scrape", "race_id", e.RaceID, "state", e.State, "page", e.Page)
			},
		})
		switch {
		case errors.Is(err, scraper.ErrAborted) || osutil.Interrupted(ctx):
			discardUntrusted(v, id.String())
			fmt.Println("aborted")
			closeSession()
			os.Exit(exitAborted)
		case errors.Is(err, scraper.ErrPersistFailed):
			discardUntrusted(v, id.String())
			return err
		case errors.Is(err, scraper.ErrAlreadyFetched):
			fmt.Printf("%s was fetched recently, use --skip-dup-check to fetch it again\n", id.String())
			return nil
		case err != nil:
			return err
		}

		fmt.Printf("saved %s (%s %dR, %d horses) to %s\n", id.String(), id.Venue.Name, id.Number, len(res.Record.Horses), res.Paths.JSON)
		return nil
	},
}
