package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// LocalPath returns the path of the local override file for a config,
// settings.json5 -> settings.local.json5
func LocalPath(name string) string {
	prefixname, ext := splitExt(filepath.Base(name))
	if ext == "" {
		return filepath.Join(filepath.Dir(name), prefixname+".local")
	}
	return filepath.Join(
		filepath.Dir(name),
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
}

// ReadConfig reads a json5 configuration file and its local override,
// higher number wins:
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// values already present in `defaults` are kept unless a file sets the
// key, an explicit false, 0 or "" included. os.ErrNotExist is returned when neither file has content.
func ReadConfig[T any](name string, defaults T) (T, error) {
	out := defaults
	found := false
	for _, path := range []string{name, LocalPath(name)} {
		merged, err := mergeFile(&out, path)
		if err != nil {
			return out, err
		}
		if merged && path != name {
			slog.Info("merging config with local overrides", "local", path)
		}
		found = found || merged
	}
	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

func mergeFile[T any](dst *T, path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	// decoding over dst keeps absent keys and applies explicit zeros
	layer := *dst
	err = json5.Unmarshal(raw, &layer)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	*dst = layer
	return true, nil
}

// ReadConfig but it recursively goes up the filesystem until the root
// to find a configuration file matching the name.
func ReadRecursively[T any](name string, defaults T) (T, error) {
	current, err := os.Getwd()
	if err != nil {
		return defaults, err
	}

	for {
		config, err := ReadConfig(filepath.Join(current, name), defaults)
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return defaults, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return defaults, os.ErrNotExist
		}
		current = parent
	}
}
