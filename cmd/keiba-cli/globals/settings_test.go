package globals

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments are fine
		output_dir: "out",
		headless: false,
		login_id: "from-file",
		rate_limit: { base_seconds: 3.5 },
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.local.json5"), []byte(`{ ttl: "2h" }`), 0644))

	t.Setenv("KEIBA_LOGIN_ID", "from-env")
	t.Setenv("KEIBA_PASSWORD", "secret")

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	require.Equal(t, "out", settings.OutputDir)
	require.False(t, settings.IsHeadless())
	require.Equal(t, "from-env", settings.LoginID)
	require.Equal(t, "secret", settings.Password)
	require.Equal(t, 2*time.Hour, settings.MaxAge())
	require.Equal(t, 30*time.Second, settings.Timeout())

	policy := settings.RateLimit.Policy()
	require.Equal(t, 3500*time.Millisecond, policy.BaseDelay)
	require.Equal(t, time.Second, policy.LowTrafficDelay)
}

func TestMissingSettingsUseDefaults(t *testing.T) {
	t.Setenv("KEIBA_OUTPUT_DIR", "elsewhere")
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "settings.json5"))
	require.NoError(t, err)
	require.Equal(t, "elsewhere", settings.OutputDir)
	require.True(t, settings.IsHeadless())
	require.Equal(t, 6*time.Hour, settings.MaxAge())
}
