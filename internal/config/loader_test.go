package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "visitlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "tracking:\n  place_id: \"12345\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "12345", cfg.Tracking.PlaceID)
	require.Equal(t, int64(3358), cfg.Tracking.InitialGoal)
	require.Equal(t, 5*time.Minute, cfg.Tracking.PollInterval)
	require.Equal(t, 2*time.Second, cfg.Upstream.RequestFloor)
	require.Equal(t, 10, cfg.Upstream.QuotaRequests)
	require.Equal(t, 5*time.Minute, cfg.Upstream.QuotaWindow)
	require.Equal(t, 3, cfg.Upstream.MaxRetries)
	require.Equal(t, 3, cfg.Upstream.MaxPages)
	require.Equal(t, 5000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
tracking:
  place_id: "99"
  initial_goal: 10000
  poll_interval: 1m
upstream:
  request_floor: 5s
  quota_requests: 4
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(10000), cfg.Tracking.InitialGoal)
	require.Equal(t, time.Minute, cfg.Tracking.PollInterval)
	require.Equal(t, 5*time.Second, cfg.Upstream.RequestFloor)
	require.Equal(t, 4, cfg.Upstream.QuotaRequests)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "tracking:\n  place_id: \"12345\"\n")
	t.Setenv("VISITLENS_TRACKING_INITIAL_GOAL", "7500")
	t.Setenv("VISITLENS_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(7500), cfg.Tracking.InitialGoal)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidGoal(t *testing.T) {
	path := writeConfig(t, "tracking:\n  initial_goal: -1\n")

	_, err := Load(path)
	require.ErrorContains(t, err, "initial_goal")
}

func TestLoadRejectsAutoStartWithoutChannel(t *testing.T) {
	path := writeConfig(t, "tracking:\n  auto_start: true\n")

	_, err := Load(path)
	require.ErrorContains(t, err, "channel_id")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visitlens.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "tracking: {}\n")
	require.ErrorContains(t, WriteDefault(path), "already exists")
}

func TestValidatePortRange(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	require.ErrorContains(t, cfg.Validate(), "port")
}
