package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/adapters/notify"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeReport() domain.StatusReport {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-2 * time.Hour)
	st := domain.NewBotState(now)
	st.StartedAt = &started
	st.TotalVolume = 12345.5
	st.DailyStats.TxCount = 3
	st.DailyStats.SuccessCount = 2
	st.DailyStats.FailureCount = 1
	st.DailyStats.Scenarios[domain.ScenarioLpDeposit] = 2
	st.DailyStats.Scenarios[domain.ScenarioBnplPay] = 1
	st.RecentActivity = []domain.ActivityEntry{
		{Timestamp: now, Scenario: domain.ScenarioLpDeposit, Success: true, Volume: 42.5, Details: map[string]any{"user": "user-001"}},
		{Timestamp: now, Scenario: domain.ScenarioBnplPay, Error: "bill expired"},
	}

	return domain.StatusReport{
		GeneratedAt: now,
		State:       st,
		Progress: domain.GoalProgress{
			TVL:       domain.NewMetric(5000, 10000),
			Merchants: domain.NewMetric(10, 10),
			Users:     domain.NewMetric(20, 50),
			DailyTx:   domain.NewMetric(3, 100),
		},
		Pool:         domain.PoolStats{TotalMerchants: 10, ApprovedMerchants: 9, PendingMerchants: 1, TotalUsers: 20, ActiveUsers: 18},
		Scheduler:    domain.SchedulerStatus{Running: true, Paused: true},
		BreakerTrips: 2,
	}
}

func TestConsole_Report(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	require.NoError(t, c.Report(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "[paused]")
	assert.Contains(t, out, "12,345.5")
	assert.Contains(t, out, "10,000")
	assert.Contains(t, out, " 50.0%")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "lp_deposit")
	assert.Contains(t, out, "user=user-001")
	assert.Contains(t, out, "bill expired")
	assert.Contains(t, out, "approved 9")
	assert.Contains(t, out, "breaker trips: 2")
}

func TestConsole_Report_NoActivity(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	r := makeReport()
	r.State.RecentActivity = nil
	r.Scheduler = domain.SchedulerStatus{}
	require.NoError(t, c.Report(context.Background(), r))

	assert.Contains(t, buf.String(), "[stopped]")
	assert.Contains(t, buf.String(), "No recent activity")
}

func TestConsole_PrintHistory_LongErrorTruncated(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintHistory([]domain.ActivityEntry{{
		Timestamp: time.Now(),
		Scenario:  domain.ScenarioBnplRepay,
		Error:     strings.Repeat("x", 80),
	}})

	assert.Contains(t, buf.String(), "...")
	assert.Contains(t, buf.String(), "FAIL")
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintSummary([]domain.ActivitySummaryRow{
		{Date: "2026-07-01", Scenario: domain.ScenarioLpDeposit, Success: true, Count: 1200, Volume: 1500},
		{Date: "2026-07-01", Scenario: domain.ScenarioBnplPay, Success: false, Count: 3},
	})

	out := buf.String()
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "TOTAL: 1,203 tx")
	assert.Contains(t, out, "$1,500")
}
