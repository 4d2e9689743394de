package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/adapters/storage"
	"github.com/alejandrodnm/bnplbot/internal/application/state"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	return s
}

func newManager(t *testing.T, store *storage.Store, now *time.Time) *state.Manager {
	t.Helper()
	m := state.New(store)
	m.SetClock(func() time.Time { return *now })
	return m
}

func ok(t domain.ScenarioType, volume float64) domain.ScenarioResult {
	return domain.ScenarioResult{Success: true, Type: t, Volume: volume}
}

func TestRecordActivity_Counters(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.Local)
	store := newStore(t)
	m := newManager(t, store, &now)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()

	m.RecordActivity(ok(domain.ScenarioLpDeposit, 50))
	m.RecordActivity(ok(domain.ScenarioMerchantOnboard, 0))
	m.RecordActivity(domain.Failure(domain.ScenarioBnplPay, errors.New("bill expired")))

	st := m.GetState()
	assert.Equal(t, 3, st.DailyStats.TxCount)
	assert.Equal(t, 2, st.DailyStats.SuccessCount)
	assert.Equal(t, 1, st.DailyStats.FailureCount)
	assert.Equal(t, 50.0, st.DailyStats.Volume)
	assert.Equal(t, 50.0, st.TotalVolume)
	assert.Equal(t, 1, st.DailyStats.Scenarios[domain.ScenarioBnplPay])
	require.Len(t, st.RecentActivity, 3)
	assert.Equal(t, "bill expired", st.RecentActivity[2].Error)

	m.Flush()
	rows, err := m.History(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRecordActivity_DetailsAreCopied(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.Local)
	store := newStore(t)
	m := newManager(t, store, &now)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()

	res := ok(domain.ScenarioLpDeposit, 25)
	res.Details = map[string]any{"user": "user-001"}
	entry := m.RecordActivity(res)

	// the caller keeps using its map while the history write is in flight
	res.Details["user"] = "user-002"
	res.Details["retry"] = true

	assert.Equal(t, map[string]any{"user": "user-001"}, entry.Details)
	assert.Equal(t, "user-001", m.GetState().RecentActivity[0].Details["user"])

	m.Flush()
	rows, err := m.History(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "user-001", rows[0].Details["user"])
	assert.NotContains(t, rows[0].Details, "retry")
}

func TestRecordActivity_RolloverOnce(t *testing.T) {
	now := time.Date(2026, 7, 1, 23, 58, 0, 0, time.Local)
	m := newManager(t, newStore(t), &now)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()

	m.RecordActivity(ok(domain.ScenarioLpDeposit, 10))
	now = now.Add(5 * time.Minute)
	m.RecordActivity(ok(domain.ScenarioLpDeposit, 20))

	st := m.GetState()
	assert.Equal(t, "2026-07-02", st.DailyStats.Date)
	assert.Equal(t, 1, st.DailyStats.TxCount)
	assert.Equal(t, 20.0, st.DailyStats.Volume)
	assert.Equal(t, 30.0, st.TotalVolume)
}

func TestRecentActivity_Bounded(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.Local)
	m := newManager(t, newStore(t), &now)

	for i := 0; i < domain.RecentActivityCap+15; i++ {
		m.RecordActivity(ok(domain.ScenarioBnplPay, 1))
	}
	st := m.GetState()
	assert.Len(t, st.RecentActivity, domain.RecentActivityCap)
	assert.Equal(t, domain.RecentActivityCap+15, st.DailyStats.TxCount)
}

func seed(t *testing.T, store *storage.Store, at time.Time) domain.BotState {
	t.Helper()
	now := at
	m := newManager(t, store, &now)
	require.NoError(t, m.Connect(context.Background()))
	m.SetAccountPool(domain.PoolSnapshot{Users: []domain.AccountState{
		{Address: "GUSER1", Name: "user-001", Role: domain.RoleUser, LPBalance: 80},
	}})
	m.RecordActivity(ok(domain.ScenarioLpDeposit, 40))
	m.RecordActivity(ok(domain.ScenarioBnplCreateBill, 12.5))
	m.Flush()
	require.NoError(t, m.SaveState(context.Background()))
	return m.GetState()
}

func TestConnect_RestoresSameDay(t *testing.T) {
	store := newStore(t)
	morning := time.Date(2026, 7, 1, 9, 0, 0, 0, time.Local)
	saved := seed(t, store, morning)

	afternoon := morning.Add(6 * time.Hour)
	m := newManager(t, store, &afternoon)
	require.NoError(t, m.Connect(context.Background()))

	st := m.GetState()
	assert.Equal(t, saved.DailyStats, st.DailyStats)
	assert.Equal(t, saved.TotalVolume, st.TotalVolume)
	assert.Len(t, st.RecentActivity, 2)

	pool, ok := m.RestoredPool()
	require.True(t, ok)
	assert.Equal(t, 80.0, pool.Users[0].LPBalance)
}

func TestConnect_NewDayZeroesCountersKeepsPool(t *testing.T) {
	store := newStore(t)
	yesterday := time.Date(2026, 7, 1, 20, 0, 0, 0, time.Local)
	saved := seed(t, store, yesterday)

	today := yesterday.Add(14 * time.Hour)
	m := newManager(t, store, &today)
	require.NoError(t, m.Connect(context.Background()))

	st := m.GetState()
	assert.Equal(t, "2026-07-02", st.DailyStats.Date)
	assert.Zero(t, st.DailyStats.TxCount)
	assert.Zero(t, st.DailyStats.Volume)
	assert.Equal(t, saved.TotalVolume, st.TotalVolume)
	assert.Equal(t, saved.AccountPool, st.AccountPool)
}

func TestConnect_FreshStore(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.Local)
	m := newManager(t, newStore(t), &now)
	require.NoError(t, m.Connect(context.Background()))

	_, ok := m.RestoredPool()
	assert.False(t, ok)
	assert.Equal(t, "2026-07-01", m.GetState().DailyStats.Date)
}

func TestCheckRemoteControlState(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.Local)
	store := newStore(t)
	m := newManager(t, store, &now)
	ctx := context.Background()

	running, err := m.CheckRemoteControlState(ctx)
	assert.True(t, running, "defaults to running before connect")
	assert.ErrorIs(t, err, state.ErrNotConnected)

	require.NoError(t, m.Connect(ctx))
	running, err = m.CheckRemoteControlState(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, m.SetRemoteRunning(ctx, false))
	running, err = m.CheckRemoteControlState(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	// saving never overrides the operator's choice
	require.NoError(t, m.SaveState(ctx))
	running, _ = m.CheckRemoteControlState(ctx)
	assert.False(t, running)

	require.NoError(t, store.Close())
	running, err = m.CheckRemoteControlState(ctx)
	assert.Error(t, err)
	assert.True(t, running, "unreachable store keeps the bot running")
}

func TestSaveState_RequiresConnect(t *testing.T) {
	now := time.Now()
	m := newManager(t, newStore(t), &now)
	assert.ErrorIs(t, m.SaveState(context.Background()), state.ErrNotConnected)
}
