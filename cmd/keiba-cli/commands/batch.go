package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/cmd/keiba-cli/utils"
	"keiba-scraper/lib/auth"
	"keiba-scraper/lib/osutil"
	"keiba-scraper/lib/schedule"
	"keiba-scraper/lib/scraper"
	"keiba-scraper/lib/telemetry"
	"keiba-scraper/lib/timezone"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type batchFlags struct {
	date         string
	category     string
	concurrency  int
	full         bool
	skipDupCheck bool
	session      sessionFlags
}

var batchOpts batchFlags

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchOpts.date, "date", "", "The date as YYYYMMDD, defaults to today.")
	f.StringVar(&batchOpts.category, "category", "", "central or regional, both when empty.")
	f.IntVar(&batchOpts.concurrency, "concurrency", 2, "How many races are scraped at the same time.")
	f.BoolVar(&batchOpts.full, "full", false, "Fetch every page type regardless of the race category.")
	f.BoolVar(&batchOpts.skipDupCheck, "skip-dup-check", false, "Fetch pages even when the fetch log has them.")
	f.BoolVar(&batchOpts.session.headful, "headful", false, "Show the browser windows.")
	f.BoolVar(&batchOpts.session.http, "http", false, "Fetch with plain http requests instead of a browser.")
	rootCmd.AddCommand(batchCmd)
}

type batchJob struct {
	raceID  string
	raceKey string
	venue   string
	number  int
}

type batchOutcome struct {
	job    batchJob
	status string
	horses int
	err    error
}

func jobsOf(entries []schedule.Entry) []batchJob {
	var jobs []batchJob
	for _, e := range entries {
		for _, r := range e.Races {
			id, err := e.RaceID(r.Number)
			if err != nil {
				slog.Warn("skipping race with invalid id", "venue", e.Venue, "race", r.Number, "err", err)
				continue
			}
			jobs = append(jobs, batchJob{raceID: id, raceKey: r.RaceKey, venue: e.Venue, number: r.Number})
		}
	}
	return jobs
}

// scrapeJob scrapes one race on its own session.
func scrapeJob(ctx context.Context, v *globals.Value, flags batchFlags, login scraper.LoginFunc, job batchJob, postRace bool) (scraper.Result, error) {
	session, closeSession, err := openSession(ctx, v, flags.session)
	if err != nil {
		return scraper.Result{}, err
	}
	defer closeSession()

	f := newFetcher(v, v.Settings.RateLimit.Policy(), sharedLimiter(v))
	return newScraper(v, session, f, login).ScrapeRace(ctx, scraper.Target{RaceID: job.raceID, RaceKey: job.raceKey}, scraper.Options{
		FullFetch:    flags.full,
		SkipDupCheck: flags.skipDupCheck,
		TTL:          v.Settings.MaxAge(),
		PostRace:     postRace,
		TagSources:   v.Settings.TagSources,
		Fetch:        fetchOptions(v),
	})
}

// outcomeOf turns the result of one race into its summary row. discard is
// set when the race's output is untrusted.
func outcomeOf(job batchJob, res scraper.Result, err error) (out batchOutcome, discard bool) {
	out.job = job
	switch {
	case errors.Is(err, scraper.ErrAborted):
		out.status, out.err = "aborted", err
		discard = true
	case errors.Is(err, scraper.ErrPersistFailed):
		out.status, out.err = "failed", err
		discard = true
	case errors.Is(err, scraper.ErrAlreadyFetched):
		out.status = "skipped"
	case err != nil:
		out.status, out.err = "failed", err
	default:
		out.status = "saved"
		out.horses = len(res.Record.Horses)
	}
	return out, discard
}

type scrapeFunc func(ctx context.Context, job batchJob) (scraper.Result, error)

// runJobs scrapes jobs, at most concurrency at a time. a rejected login
// stops the batch: races that have not started are reported as cancelled
// and the login error is returned.
func runJobs(ctx context.Context, jobs []batchJob, concurrency int, scrape scrapeFunc, discard func(raceID string)) ([]batchOutcome, error) {
	outcomes := make([]batchOutcome, len(jobs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(concurrency, 1))
	for i, job := range jobs {
		i, job := i, job
		group.Go(func() error {
			if groupCtx.Err() != nil {
				outcomes[i] = batchOutcome{job: job, status: "cancelled"}
				return nil
			}
			res, err := scrape(groupCtx, job)
			out, untrusted := outcomeOf(job, res, err)
			if untrusted {
				discard(job.raceID)
			}
			outcomes[i] = out
			slog.InfoContext(ctx, "race done", "race_id", job.raceID, "status", out.status)
			if errors.Is(err, auth.ErrLoginFailed) {
				return err
			}
			return nil
		})
	}
	err := group.Wait()
	return outcomes, err
}

var batchCmd = &cobra.Command{
	Use:   "batch [--date YYYYMMDD] [--category central|regional] [--concurrency n]",
	Short: "Resolves the schedule of a day and scrapes every race on it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v := globals.Get(ctx)
		flags := batchOpts

		date := timezone.Now()
		if flags.date != "" {
			parsed, err := timezone.ParseDate(flags.date)
			if err != nil {
				return err
			}
			date = parsed
		}
		cats, err := categories(flags.category)
		if err != nil {
			return err
		}

		runID := uuid.New().String()
		slog.InfoContext(ctx, "starting batch", "run_id", runID, "date", timezone.FormatDate(date))
		perfCtx, stopPerf := context.WithCancel(ctx)
		defer stopPerf()
		telemetry.InstrumentPerfStats(perfCtx, 10*time.Second)

		session, closeSession, err := openSession(ctx, v, sessionFlags{http: true})
		if err != nil {
			return err
		}
		f := newFetcher(v, v.Settings.RateLimit.Policy(), nil)
		var jobs []batchJob
		for _, c := range cats {
			res, err := resolveSchedule(ctx, v, session, f, date, c)
			if err != nil {
				closeSession()
				return err
			}
			slog.InfoContext(ctx, "resolved schedule", "category", c, "source", res.Source, "venues", len(res.Entries))
			jobs = append(jobs, jobsOf(res.Entries)...)
		}
		closeSession()

		if len(jobs) == 0 {
			fmt.Println("no races scheduled")
			return nil
		}

		postRace := timezone.FormatDate(date) < timezone.FormatDate(timezone.Now())
		login := newLoginGate(loginFunc(v)).Login
		outcomes, stopErr := runJobs(ctx, jobs, flags.concurrency, func(ctx context.Context, job batchJob) (scraper.Result, error) {
			return scrapeJob(ctx, v, flags, login, job, postRace)
		}, func(raceID string) {
			discardUntrusted(v, raceID)
		})

		t := utils.NewTable(cmd.OutOrStdout(), "race id", "venue", "R", "status", "horses", "error")
		utils.Clip(t, 60, "error")
		failed := 0
		for _, out := range outcomes {
			msg := ""
			if out.err != nil {
				msg = out.err.Error()
				if out.status == "failed" {
					failed++
				}
			}
			t.AppendRow(table.Row{out.job.raceID, out.job.venue, out.job.number, out.status, out.horses, msg})
		}
		t.Render()

		if osutil.Interrupted(ctx) {
			fmt.Println("aborted")
			os.Exit(exitAborted)
		}
		if stopErr != nil {
			return fmt.Errorf("batch stopped (run %s): %w", runID, stopErr)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d races failed (run %s)", failed, len(jobs), runID)
		}
		return nil
	},
}
