package commands

import (
	"fmt"

	"keiba-scraper/cmd/keiba-cli/globals"

	"github.com/spf13/cobra"
)

var exportRaceID string

func init() {
	exportCmd.Flags().StringVar(&exportRaceID, "race-id", "", "The race id to export.")
	exportCmd.MarkFlagRequired("race-id")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export --race-id <id>",
	Short: "Rebuilds a race json from the csv tables for the ai consumers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := globals.Get(cmd.Context())
		path, err := v.Store.ExportForAI(exportRaceID)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
