package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("goals:\n  merchants: 4\n  users: 12\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Bot.MaxFailures)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown())
	assert.Equal(t, 60*time.Second, cfg.SaveInterval())
	assert.Equal(t, 30*time.Second, cfg.RemotePollInterval())
	assert.Equal(t, 4, cfg.Bootstrap.MerchantCount, "bootstrap counts follow goals")
	assert.Equal(t, 12, cfg.Bootstrap.UserCount)
	assert.Equal(t, 0.8, cfg.Bootstrap.DepositFraction)
	assert.Equal(t, "merchant", cfg.Accounts.MerchantPrefix)
	assert.Equal(t, "bnplbot.db", cfg.Storage.DSN)
}

func TestParse_ActiveHours(t *testing.T) {
	cfg, err := config.Parse([]byte("bot:\n  active_hours:\n    enabled: true\n    start: 22\n    end: 6\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Bot.ActiveHours.Enabled)
	assert.Equal(t, 22, cfg.Bot.ActiveHours.Start)
	assert.Equal(t, 6, cfg.Bot.ActiveHours.End)
}

func TestParse_InvalidIntervals(t *testing.T) {
	_, err := config.Parse([]byte("bot:\n  min_interval_seconds: 900\n  max_interval_seconds: 60\n"))
	assert.Error(t, err)
}

func TestParse_InvalidHours(t *testing.T) {
	_, err := config.Parse([]byte("bot:\n  active_hours:\n    start: 25\n"))
	assert.Error(t, err)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DSN", ":memory:")
	t.Setenv("BOT_DRY_RUN", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Parse([]byte("storage:\n  dsn: file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.True(t, cfg.Bot.DryRun)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bot:\n  active_hours:\n    start: 8\n    end: 20\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *config.Config, 4)
	require.NoError(t, config.Watch(ctx, path, func(c *config.Config) { got <- c }))

	require.NoError(t, os.WriteFile(path, []byte("bot:\n  active_hours:\n    start: 9\n    end: 21\n"), 0o644))

	select {
	case cfg := <-got:
		assert.Equal(t, 9, cfg.Bot.ActiveHours.Start)
		assert.Equal(t, 21, cfg.Bot.ActiveHours.End)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestParse_BootstrapBelowGoals(t *testing.T) {
	_, err := config.Parse([]byte("goals:\n  merchants: 10\nbootstrap:\n  merchant_count: 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap.merchant_count")

	_, err = config.Parse([]byte("goals:\n  users: 10\nbootstrap:\n  user_count: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap.user_count")
}
