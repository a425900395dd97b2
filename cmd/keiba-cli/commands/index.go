package commands

import (
	"fmt"
	"path/filepath"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/cmd/keiba-cli/utils"
	"keiba-scraper/lib/racedb"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	indexDB    string
	indexHorse string
	indexDate  string
)

func init() {
	indexCmd.Flags().StringVar(&indexDB, "db", "", "The sqlite database, defaults to index.db in the output directory.")
	indexCmd.Flags().StringVar(&indexHorse, "horse", "", "After indexing, list the starts of horses matching this name.")
	indexCmd.Flags().StringVar(&indexDate, "on", "", "After indexing, list the races of this YYYYMMDD date.")
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [--db <path>] [--horse <name>] [--on YYYYMMDD]",
	Short: "Builds a sqlite index from the csv tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v := globals.Get(ctx)

		path := indexDB
		if path == "" {
			path = filepath.Join(v.Settings.OutputDir, "index.db")
		}
		db, err := racedb.Open(ctx, path)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Import(ctx, v.Store, v.Log)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d races, %d horses, %d fetches, %d scheduled races into %s\n", stats.Races, stats.Horses, stats.Fetches, stats.Schedules, path)

		if indexHorse != "" {
			starts, err := db.HorsesBy(ctx, indexHorse)
			if err != nil {
				return err
			}
			t := utils.NewTable(cmd.OutOrStdout(), "date", "venue", "race", "horse", "#", "jockey", "odds", "finish")
			for _, s := range starts {
				t.AppendRow(table.Row{s.Date, s.Venue, s.RaceName, s.Name, s.Number, s.Jockey, s.Odds, s.Finish})
			}
			t.Render()
		}
		if indexDate != "" {
			races, err := db.RacesOn(ctx, indexDate)
			if err != nil {
				return err
			}
			t := utils.NewTable(cmd.OutOrStdout(), "race id", "venue", "R", "name", "grade", "start", "horses")
			for _, r := range races {
				t.AppendRow(table.Row{r.RaceID, r.Venue, r.Number, r.RaceName, r.Grade, r.StartTime, r.Horses})
			}
			t.Render()
		}
		return nil
	},
}
