package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// InitSlog installs the default slog logger, text output on stderr
// so stdout stays clean for command output.
func InitSlog(debug bool) {
	InitSlogWriter(os.Stderr, debug)
}

func InitSlogWriter(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	slog.SetDefault(slog.New(handler))
}
