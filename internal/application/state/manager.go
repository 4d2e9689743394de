package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

// ErrNotConnected is returned by reads attempted before Connect.
var ErrNotConnected = errors.New("state store not connected")

// appendTimeout bounds one asynchronous history write.
const appendTimeout = 10 * time.Second

// Manager mantiene los contadores en memoria (fuente de verdad del proceso)
// y los persiste en el store. Es seguro para uso concurrente.
type Manager struct {
	store ports.StateStore
	now   func() time.Time

	mu        sync.Mutex
	state     domain.BotState
	connected bool
	restored  bool

	pending sync.WaitGroup
}

// New crea un manager con estado vacío fechado hoy.
func New(store ports.StateStore) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		state: domain.NewBotState(time.Now()),
	}
}

// SetClock overrides the time source. It also re-dates the empty initial state.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	if !m.connected {
		m.state = domain.NewBotState(now())
	}
}

// Connect verifica el store y hace restore-then-merge del snapshot guardado.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("state.Connect: %w", err)
	}

	persisted, err := m.store.LoadState(ctx)
	switch {
	case errors.Is(err, domain.ErrNoState):
		m.mu.Lock()
		m.connected = true
		m.mu.Unlock()
		slog.Info("no persisted state, starting fresh")
		return nil
	case err != nil:
		return fmt.Errorf("state.Connect: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	today := domain.DateKey(m.now())
	m.state = domain.MergeRestored(m.state, persisted, today)
	m.connected = true
	m.restored = true

	slog.Info("state restored",
		"snapshot_date", persisted.DailyStats.Date,
		"continued_day", persisted.DailyStats.Date == today,
		"daily_tx", m.state.DailyStats.TxCount,
		"total_volume", m.state.TotalVolume,
		"accounts", len(m.state.AccountPool.Merchants)+len(m.state.AccountPool.Users),
	)
	return nil
}

// RestoredPool returns the persisted account pool, if a snapshot was restored.
func (m *Manager) RestoredPool() (domain.PoolSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.restored || m.state.AccountPool.Empty() {
		return domain.PoolSnapshot{}, false
	}
	return m.state.AccountPool.Clone(), true
}

// SetAccountPool stores the latest pool snapshot for the next save.
func (m *Manager) SetAccountPool(s domain.PoolSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.AccountPool = s.Clone()
}

// SetGoals stores the latest goal progress for the next save.
func (m *Manager) SetGoals(p domain.GoalProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Goals = p
}

// SetRunning records the process run state. startedAt is ignored when stopping.
func (m *Manager) SetRunning(running bool, startedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsRunning = running
	if running {
		t := startedAt
		m.state.StartedAt = &t
	} else {
		m.state.StartedAt = nil
	}
}

// rolloverLocked starts a fresh day when the calendar date changed. Caller holds the lock.
func (m *Manager) rolloverLocked(now time.Time) {
	today := domain.DateKey(now)
	if m.state.DailyStats.Date != today {
		if m.state.DailyStats.TxCount > 0 {
			slog.Info("daily stats rollover",
				"date", m.state.DailyStats.Date,
				"tx", m.state.DailyStats.TxCount,
				"volume", m.state.DailyStats.Volume,
			)
		}
		m.state.DailyStats = domain.NewDailyStats(today)
	}
}

// GetState returns a copy of the current in-memory state.
func (m *Manager) GetState() domain.BotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(m.now())
	return m.state.Clone()
}

// SaveState persiste el snapshot completo en la clave singleton.
func (m *Manager) SaveState(ctx context.Context) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return fmt.Errorf("state.SaveState: %w", ErrNotConnected)
	}
	now := m.now()
	m.rolloverLocked(now)
	m.state.LastUpdated = now
	snapshot := m.state.Clone()
	m.mu.Unlock()

	if err := m.store.SaveState(ctx, snapshot); err != nil {
		return fmt.Errorf("state.SaveState: %w", err)
	}
	slog.Debug("state saved", "daily_tx", snapshot.DailyStats.TxCount)
	return nil
}

// RecordActivity actualiza los contadores de forma síncrona y añade la fila
// al historial en segundo plano. Los errores del historial solo se registran.
func (m *Manager) RecordActivity(res domain.ScenarioResult) domain.ActivityEntry {
	m.mu.Lock()
	now := m.now()
	m.rolloverLocked(now)

	entry := domain.ActivityEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Scenario:  res.Type,
		Success:   res.Success,
		Details:   maps.Clone(res.Details),
		Error:     res.Error,
		Volume:    res.Volume,
		TxHash:    res.TxHash,
	}

	ds := &m.state.DailyStats
	ds.TxCount++
	if res.Success {
		ds.SuccessCount++
	} else {
		ds.FailureCount++
	}
	ds.Volume += res.Volume
	ds.Scenarios[res.Type]++
	m.state.TotalVolume += res.Volume

	m.state.RecentActivity = append(m.state.RecentActivity, entry)
	if n := len(m.state.RecentActivity); n > domain.RecentActivityCap {
		m.state.RecentActivity = append([]domain.ActivityEntry(nil), m.state.RecentActivity[n-domain.RecentActivityCap:]...)
	}
	connected := m.connected
	m.mu.Unlock()

	if connected {
		m.pending.Add(1)
		go func() {
			defer m.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
			defer cancel()
			if err := m.store.AppendActivity(ctx, entry); err != nil {
				slog.Warn("activity log append failed", "scenario", entry.Scenario, "err", err)
			}
		}()
	}
	return entry
}

// CheckRemoteControlState lee el flag del operador. Ante cualquier fallo
// devuelve true para no bloquear el bot por un error transitorio.
func (m *Manager) CheckRemoteControlState(ctx context.Context) (bool, error) {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		return true, ErrNotConnected
	}
	running, err := m.store.RemoteRunning(ctx)
	if err != nil {
		return true, fmt.Errorf("state.CheckRemoteControlState: %w", err)
	}
	return running, nil
}

// SetRemoteRunning writes the operator flag.
func (m *Manager) SetRemoteRunning(ctx context.Context, running bool) error {
	if err := m.store.SetRemoteRunning(ctx, running); err != nil {
		return fmt.Errorf("state.SetRemoteRunning: %w", err)
	}
	return nil
}

// History returns activity rows in [from, to).
func (m *Manager) History(ctx context.Context, from, to time.Time) ([]domain.ActivityEntry, error) {
	rows, err := m.store.ActivityBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("state.History: %w", err)
	}
	return rows, nil
}

// Summary aggregates activity in [from, to) by date, scenario and outcome.
func (m *Manager) Summary(ctx context.Context, from, to time.Time) ([]domain.ActivitySummaryRow, error) {
	rows, err := m.store.ActivitySummary(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("state.Summary: %w", err)
	}
	return rows, nil
}

// Flush waits for in-flight history appends.
func (m *Manager) Flush() {
	m.pending.Wait()
}

// Close waits for pending appends and closes the store.
func (m *Manager) Close() error {
	m.pending.Wait()
	return m.store.Close()
}
