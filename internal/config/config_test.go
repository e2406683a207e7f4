package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "gigledger.db", cfg.Database)
	assert.Empty(t, cfg.Remote.URL)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 3, cfg.Poll.FailureThreshold)
	assert.Empty(t, cfg.Status.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /tmp/ledger.db
remote:
  url: http://localhost:8081
  timeout: 1m30s
poll:
  interval: 5s
  failure_threshold: 5
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ledger.db", cfg.Database)
	assert.Equal(t, "http://localhost:8081", cfg.Remote.URL)
	assert.Equal(t, 90*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 5, cfg.Poll.FailureThreshold)
	assert.Empty(t, cfg.Status.Addr, "unset keys keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse([]byte("# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		path string
	}{
		{"unknown top-level key", "databse: x.db\n", "databse"},
		{"unknown nested key", "remote:\n  uri: http://x\n", "remote.uri"},
		{"bad duration", "poll:\n  interval: soon\n", "poll.interval"},
		{"numeric duration", "remote:\n  timeout: 30\n", "remote.timeout"},
		{"bad level", "log:\n  level: trace\n", "log.level"},
		{"empty database", "database: \"\"\n", "database"},
		{"zero interval", "poll:\n  interval: 0s\n", "poll.interval"},
		{"zero failure threshold", "poll:\n  failure_threshold: 0\n", "poll.failure_threshold"},
		{"fractional failure threshold", "poll:\n  failure_threshold: 1.5\n", "poll.failure_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.path, cerr.Path)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("remote: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(dir, "gigledger.yaml")
		require.NoError(t, os.WriteFile(path, []byte("status:\n  addr: 127.0.0.1:8082\n"), 0o644))

		cfg, err := Load(path, false)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8082", cfg.Status.Addr)
	})

	t.Run("optional missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.yaml"), true)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("required missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "absent.yaml"), false)
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel())
}
