package commands

import (
	"fmt"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/cmd/keiba-cli/utils"
	"keiba-scraper/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scheduleDate     string
	scheduleCategory string
	scheduleSession  sessionFlags
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "The date as YYYYMMDD, defaults to today.")
	scheduleCmd.Flags().StringVar(&scheduleCategory, "category", "", "central or regional, both when empty.")
	scheduleCmd.Flags().BoolVar(&scheduleSession.headful, "headful", false, "Show the browser window.")
	scheduleCmd.Flags().BoolVar(&scheduleSession.http, "http", true, "Fetch with plain http requests instead of a browser.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--date YYYYMMDD] [--category central|regional]",
	Short: "Resolves, stores and prints the race schedule of a day.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v := globals.Get(ctx)

		date := timezone.Now()
		if scheduleDate != "" {
			parsed, err := timezone.ParseDate(scheduleDate)
			if err != nil {
				return err
			}
			date = parsed
		}
		cats, err := categories(scheduleCategory)
		if err != nil {
			return err
		}

		session, closeSession, err := openSession(ctx, v, scheduleSession)
		if err != nil {
			return err
		}
		defer closeSession()
		f := newFetcher(v, v.Settings.RateLimit.Policy(), nil)

		t := utils.NewTable(cmd.OutOrStdout(), "category", "venue", "R", "start", "race id", "race key", "name", "source")
		count := 0
		for _, c := range cats {
			res, err := resolveSchedule(ctx, v, session, f, date, c)
			if err != nil {
				return err
			}
			for _, e := range res.Entries {
				for _, r := range e.Races {
					id, _ := e.RaceID(r.Number)
					t.AppendRow(table.Row{e.Category, e.Venue, r.Number, r.StartTime, id, r.RaceKey, r.Name, res.Source})
					count++
				}
			}
		}
		if count == 0 {
			fmt.Printf("no races on %s\n", timezone.FormatDate(date))
			return nil
		}
		t.Render()
		return nil
	},
}
