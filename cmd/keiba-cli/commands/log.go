package commands

import (
	"fmt"
	"time"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/cmd/keiba-cli/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	logURL    string
	logRaceID string
)

func init() {
	logCmd.Flags().StringVar(&logURL, "url", "", "Only show fetches of this url.")
	logCmd.Flags().StringVar(&logRaceID, "race-id", "", "Only show fetches of this race.")
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log [--url <url> | --race-id <id>]",
	Short: "Prints the fetch history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := globals.Get(cmd.Context())
		entries, err := v.Log.History(logURL, logRaceID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no fetches logged")
			return nil
		}

		t := utils.NewTable(cmd.OutOrStdout(), "fetched at", "race id", "page", "status", "url")
		utils.Clip(t, 80, "url")
		for _, e := range entries {
			at := e.Raw
			if !e.FetchedAt.IsZero() {
				at = e.FetchedAt.Format(time.DateTime)
			}
			t.AppendRow(table.Row{at, e.RaceID, e.PageType, e.Status, e.URL})
		}
		t.Render()
		return nil
	},
}
