package configutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	OutputDir string `json:"output_dir"`
	Headless  bool   `json:"headless"`
	Retries   int    `json:"retries"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "settings.json5")

	err := os.WriteFile(name, []byte(`{
		// comments are allowed
		output_dir: "out",
		retries: 3,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "settings.local.json5"), []byte(`{retries: 5}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig(name, testConfig{Headless: true})
	require.NoError(t, err)
	require.Equal(t, "out", cfg.OutputDir)
	require.Equal(t, 5, cfg.Retries)
	require.True(t, cfg.Headless)
}

func TestReadConfigAppliesExplicitZeros(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "settings.json5")

	err := os.WriteFile(name, []byte(`{output_dir: "out", retries: 3}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "settings.local.json5"), []byte(`{
		headless: false,
		retries: 0,
		output_dir: "",
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig(name, testConfig{Headless: true, Retries: 1})
	require.NoError(t, err)
	require.Equal(t, testConfig{}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	cfg, err := ReadConfig(filepath.Join(t.TempDir(), "nothing.json5"), testConfig{Retries: 2})
	require.True(t, os.IsNotExist(err))
	require.Equal(t, 2, cfg.Retries)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "settings.local.json5"), LocalPath(filepath.Join("a", "settings.json5")))
	require.Equal(t, filepath.Join("a", "settings.local"), LocalPath(filepath.Join("a", "settings")))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEIBA_TEST_STR", "from-env")
	t.Setenv("KEIBA_TEST_BOOL", "false")
	t.Setenv("KEIBA_TEST_DUR", "45s")
	t.Setenv("KEIBA_TEST_EMPTY", "")

	s := "from-file"
	OverrideString(&s, "KEIBA_TEST_STR")
	require.Equal(t, "from-env", s)

	kept := "kept"
	OverrideString(&kept, "KEIBA_TEST_EMPTY")
	require.Equal(t, "kept", kept)

	b := true
	OverrideBool(&b, "KEIBA_TEST_BOOL")
	require.False(t, b)

	d := time.Second
	OverrideDuration(&d, "KEIBA_TEST_DUR")
	require.Equal(t, 45*time.Second, d)
}

func TestLoadDotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envfile := filepath.Join(dir, ".env")
	err := os.WriteFile(envfile, []byte("KEIBA_DOTENV_A=file\nKEIBA_DOTENV_B=file\n"), 0600)
	require.NoError(t, err)

	t.Setenv("KEIBA_DOTENV_A", "env")
	os.Unsetenv("KEIBA_DOTENV_B")
	t.Cleanup(func() { os.Unsetenv("KEIBA_DOTENV_B") })

	require.NoError(t, LoadDotenv(envfile, filepath.Join(dir, "missing.env")))
	require.Equal(t, "env", os.Getenv("KEIBA_DOTENV_A"))
	require.Equal(t, "file", os.Getenv("KEIBA_DOTENV_B"))
}
