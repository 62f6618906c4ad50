package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "gtfs:\n  path: ./data\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.ReadTimeout)
	assert.Equal(t, 30, cfg.Server.WriteTimeout)
	assert.Equal(t, "Europe/Sofia", cfg.GTFS.Timezone)
	assert.Equal(t, 15*time.Second, cfg.Realtime.RefreshWindow())
	assert.Equal(t, 15*time.Second, cfg.Realtime.FetchTimeout())
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  readTimeoutSec: 5
gtfs:
  path: /opt/gtfs
  timezone: Europe/Sofia
realtime:
  tripUpdatesURL: http://proxy.local/tu.pb
  refreshSec: 30
  timeoutSec: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.ReadTimeout)
	assert.Equal(t, "/opt/gtfs", cfg.GTFS.Path)
	assert.Equal(t, "http://proxy.local/tu.pb", cfg.Realtime.TripUpdatesURL)
	assert.Equal(t, 30*time.Second, cfg.Realtime.RefreshWindow())
	assert.Equal(t, 5*time.Second, cfg.Realtime.FetchTimeout())
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeConfig(t, "gtfs:\n  path: ./env-data\n")
	t.Setenv("ARRIVALS_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./env-data", cfg.GTFS.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{name: "missing gtfs path", contents: "server:\n  port: 8080\n"},
		{name: "bad feed url", contents: "gtfs:\n  path: ./d\nrealtime:\n  alertsURL: not-a-url\n"},
		{name: "not yaml", contents: "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents))
			assert.Error(t, err)
		})
	}
}
