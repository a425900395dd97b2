package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"keiba-scraper/cmd/keiba-cli/globals"
	"keiba-scraper/lib/configutil"
	"keiba-scraper/lib/diagnostics"
	"keiba-scraper/lib/fetchlog"
	"keiba-scraper/lib/racestore"
	"keiba-scraper/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	settingsPath string
	debug        bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "settings.json5", "The settings file, a settings.local.json5 next to it overrides it.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging.")
}

var rootCmd = &cobra.Command{
	Use:           "keiba-cli",
	Short:         "keiba-cli scrapes netkeiba race pages into json and csv files.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug)

		err := configutil.LoadDotenv()
		if err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		settings, err := globals.LoadSettings(settingsPath)
		if err != nil {
			return fmt.Errorf("read settings: %w", err)
		}

		tel, err := telemetry.SetupFromEnv(cmd.Context(), "keiba-cli")
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
		}

		store, err := racestore.Open(settings.OutputDir)
		if err != nil {
			return err
		}
		log, err := fetchlog.Open(settings.OutputDir)
		if err != nil {
			return err
		}

		var sink diagnostics.Sink = diagnostics.Nop{}
		if settings.DiagnosticsDir != "" {
			out, err := diagnostics.NewFilesystemOutput(settings.DiagnosticsDir)
			if err != nil {
				return err
			}
			diagnostics.SetEnabled(true)
			sink = out
		}

		cmd.SetContext(globals.Set(cmd.Context(), &globals.Value{
			Settings:    settings,
			Store:       store,
			Log:         log,
			Diagnostics: sink,
			Telemetry:   tel,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := globals.Get(cmd.Context()).Telemetry.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
