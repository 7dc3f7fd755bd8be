package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleConfig = `
environment: test
database:
  driver: sqlite
screening:
  deadlines:
    urgent: 5s
providers:
  - name: ofac
    enabled: true
    timeout_ms: 2000
    retry_attempts: 2
    rate_limit_per_minute: 600
    list_types: [sanctions]
  - name: worldcheck
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileDefaultsAndEnv(t *testing.T) {
	t.Setenv("SCREENING_SERVER_PORT", "9090")
	path := writeConfig(t, sampleConfig)

	cm := NewConfigManager(zap.NewNop())
	cfg, err := cm.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file:screening.db?cache=shared", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Dispatcher.Workers)
	assert.Equal(t, time.Minute, cfg.Dispatcher.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)

	deadlines := cfg.Screening.PriorityDeadlines()
	assert.Equal(t, 5*time.Second, deadlines[models.PriorityUrgent])
	assert.Equal(t, 30*time.Second, deadlines[models.PriorityNormal])

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "ofac", cfg.Providers[0].Name)
	assert.Equal(t, 2000, cfg.Providers[0].TimeoutMs)
	assert.Equal(t, []models.ListType{models.ListTypeSanctions}, cfg.Providers[0].ListTypes)
	assert.False(t, cfg.Providers[1].Enabled)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	cm := NewConfigManager(zap.NewNop())
	cfg, err := cm.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := map[string]string{
		"bad driver":        "database:\n  driver: mongo\n",
		"postgres no dsn":   "database:\n  driver: postgres\n",
		"duplicate":         "providers:\n  - name: a\n  - name: a\n",
		"unknown list type": "providers:\n  - name: a\n    list_types: [gossip]\n",
		"unknown priority":  "screening:\n  deadlines:\n    asap: 1s\n",
		"bad level":         "logging:\n  level: loud\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			cm := NewConfigManager(zap.NewNop())
			_, err := cm.LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestReload_NotifiesCallbacks(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cm := NewConfigManager(zap.NewNop())
	_, err := cm.LoadConfig(path)
	require.NoError(t, err)

	var got []models.ProviderConfig
	cm.AddReloadCallback(func(_, newConfig *Config) error {
		got = newConfig.Providers
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("environment: test\nproviders:\n  - name: dowjones\n    enabled: true\n"), 0o600))
	require.NoError(t, cm.Reload())

	require.Len(t, got, 1)
	assert.Equal(t, "dowjones", got[0].Name)
	assert.Equal(t, "dowjones", cm.GetConfig().Providers[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: mongo\n"), 0o600))
	assert.Error(t, cm.Reload())
	assert.Equal(t, "dowjones", cm.GetConfig().Providers[0].Name)
}
