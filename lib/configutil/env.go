package configutil

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotenv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. variables that are already set are not
// overwritten, so the real environment always wins over the file.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		slog.Debug("loaded dotenv", "file", f)
	}
	return nil
}

// OverrideString replaces *dst with the value of the environment variable
// if it is set and non-empty.
func OverrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func OverrideBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid boolean env var", "key", key, "value", v)
		return
	}
	*dst = parsed
}

func OverrideDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration env var", "key", key, "value", v)
		return
	}
	*dst = parsed
}
