package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
telegram:
  token: "123:abc"
channels:
  offers: -1001
  votings: -1002
  vacations: -1003
`))
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, int64(-1002), cfg.Channels.Votings)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "./data.db", cfg.Storage.Path)
	require.Equal(t, "23:59", cfg.Lifecycle.BackstopAt)
	require.Equal(t, 1, cfg.Notify.RatePerSec)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `
telegram:
  token: "123:abc"
  timout: "10s"
`))
	require.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
lifecycle:
  discovery_interval: "thirty seconds"
`))
	require.ErrorContains(t, err, "lifecycle.discovery_interval")
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 30)
	require.NoError(t, err)
	require.EqualValues(t, 30, d)

	d, err = ParseDurationOrDefault("x", "45s", 0)
	require.NoError(t, err)
	require.EqualValues(t, 45e9, d)
}
