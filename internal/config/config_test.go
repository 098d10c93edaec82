package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/dynsql/internal/engine"
)

func TestDefaultConfig(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Engine.Driver)
	assert.Equal(t, 100, cfg.Cursor.MaxCursors)
	assert.Equal(t, 10, cfg.Cursor.FetchBatch)
	assert.Equal(t, 15*time.Minute, cfg.Server.SessionIdle)
	assert.Equal(t, engine.PlaceholderQuestion, cfg.Placeholder())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  driver: pgx
  dsn: postgres://localhost/test
cursor:
  max_cursors: 5
server:
  session_idle: 30s
log:
  level: debug
`), 0o644))
	t.Setenv("DYNSQL_CURSOR_FETCH_BATCH", "50")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.Engine.Driver)
	assert.Equal(t, 5, cfg.Cursor.MaxCursors)
	assert.Equal(t, 50, cfg.Cursor.FetchBatch)
	assert.Equal(t, 30*time.Second, cfg.Server.SessionIdle)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, engine.PlaceholderDollar, cfg.Placeholder())
}

func TestLoadViperOverride(t *testing.T) {
	chdir(t, t.TempDir())
	v := viper.New()
	v.Set("engine.placeholder", "colon")
	cfg, err := LoadViper(v, "")
	require.NoError(t, err)
	assert.Equal(t, engine.PlaceholderColonNum, cfg.Placeholder())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		shouldError bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"no driver", func(c *Config) { c.Engine.Driver = "" }, true},
		{"bad placeholder", func(c *Config) { c.Engine.Placeholder = "@p" }, true},
		{"zero cursors", func(c *Config) { c.Cursor.MaxCursors = 0 }, true},
		{"zero batch", func(c *Config) { c.Cursor.FetchBatch = 0 }, true},
		{"no idle", func(c *Config) { c.Server.SessionIdle = 0 }, true},
		{"bad schedule", func(c *Config) { c.Server.ReapSchedule = "every now and then" }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
