package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/bnplbot/config"
)

func TestDateRange(t *testing.T) {
	start, end, err := dateRange("2026-07-01", "2026-07-03", 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.Local), start)
	assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.Local), end, "to is inclusive")

	start, end, err = dateRange("", "", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, int(end.Sub(start).Hours()/24+0.5))
	assert.True(t, end.After(time.Now()))

	_, _, err = dateRange("2026-07-05", "2026-07-01", 1)
	assert.Error(t, err)

	_, _, err = dateRange("07/01/2026", "", 1)
	assert.Error(t, err)
}

func TestConfigMapping(t *testing.T) {
	cfg, err := config.Parse([]byte(`
bot:
  active_hours: {enabled: true, start: 22, end: 6}
goals: {tvl: 5000, merchants: 3, users: 9, daily_tx: 40}
bootstrap: {transfer_delay_ms: 250}
`))
	require.NoError(t, err)

	g := goalsFrom(cfg)
	assert.Equal(t, 5000.0, g.TVL)
	assert.Equal(t, 40, g.DailyTx)

	h := activeHoursFrom(cfg)
	assert.True(t, h.Enabled)
	assert.Equal(t, 22, h.Start)

	sc := scenarioConfig(cfg)
	assert.Equal(t, 3, sc.Bootstrap.MerchantCount, "bootstrap counts default to the goals")
	assert.Equal(t, 250*time.Millisecond, sc.Bootstrap.TransferDelay)

	assert.Equal(t, cfg.MinInterval(), schedulerConfig(cfg).MinInterval)
}

func TestScenarioNames(t *testing.T) {
	names := scenarioNames()
	assert.Contains(t, names, "bnpl_create_bill")
	assert.NotContains(t, names, "activity_cycle")
}
