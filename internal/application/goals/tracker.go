package goals

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// TVLReader es la parte del chain client que necesita el tracker.
type TVLReader interface {
	TotalValueLocked(ctx context.Context) (float64, error)
}

// PoolStatter exposes the aggregated account counts.
type PoolStatter interface {
	Stats() domain.PoolStats
}

// withdrawProbability is how often a well-funded pool withdraws instead of depositing.
const withdrawProbability = 0.3

// Tracker mide el progreso hacia los objetivos y recomienda el siguiente escenario.
type Tracker struct {
	chain TVLReader
	pool  PoolStatter

	mu        sync.Mutex
	goals     domain.Goals
	dailyTx   int
	resetDate string
	now       func() time.Time
	randFloat func() float64
}

// New crea un tracker con el reloj del sistema.
func New(goals domain.Goals, chain TVLReader, pool PoolStatter) *Tracker {
	t := &Tracker{
		chain:     chain,
		pool:      pool,
		goals:     goals,
		now:       time.Now,
		randFloat: rand.Float64,
	}
	t.resetDate = domain.DateKey(t.now())
	return t
}

// SetClock overrides the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.resetDate = domain.DateKey(now())
}

// SetRand overrides the source used for the withdraw coin flip.
func (t *Tracker) SetRand(f func() float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.randFloat = f
}

// SetGoals swaps the targets (config reload).
func (t *Tracker) SetGoals(g domain.Goals) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.goals = g
}

// Goals returns the current targets.
func (t *Tracker) Goals() domain.Goals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.goals
}

// Seed sets the daily counter from restored state. Counts for another day are ignored.
func (t *Tracker) Seed(date string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if date != domain.DateKey(t.now()) {
		return
	}
	t.resetDate = date
	t.dailyTx = count
}

// rollover resets the counter once per calendar day. Caller holds the lock.
func (t *Tracker) rollover() {
	today := domain.DateKey(t.now())
	if today != t.resetDate {
		slog.Info("daily tx counter reset", "previous_date", t.resetDate, "previous_count", t.dailyTx)
		t.dailyTx = 0
		t.resetDate = today
	}
}

// RecordTransaction counts one completed scenario, successful or not.
func (t *Tracker) RecordTransaction() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.dailyTx++
}

// DailyTxCount returns today's counter.
func (t *Tracker) DailyTxCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.dailyTx
}

// GetProgress calcula las cuatro métricas. Si la lectura de TVL falla se
// usa 0 y se registra un warning.
func (t *Tracker) GetProgress(ctx context.Context) domain.GoalProgress {
	tvl, err := t.chain.TotalValueLocked(ctx)
	if err != nil {
		slog.Warn("tvl read failed, assuming 0", "err", err)
		tvl = 0
	}
	stats := t.pool.Stats()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	g := t.goals
	return domain.GoalProgress{
		TVL:       domain.NewMetric(tvl, g.TVL),
		Merchants: domain.NewMetric(float64(stats.ApprovedMerchants), float64(g.Merchants)),
		Users:     domain.NewMetric(float64(stats.TotalUsers), float64(g.Users)),
		DailyTx:   domain.NewMetric(float64(t.dailyTx), float64(g.DailyTx)),
	}
}

// RecommendedAction walks the priority ladder. The bool is false when the
// daily quota is already met and nothing should run this tick.
func (t *Tracker) RecommendedAction(ctx context.Context) (domain.ScenarioType, bool) {
	return t.Recommend(t.GetProgress(ctx))
}

// Recommend applies the ladder to an already computed progress.
func (t *Tracker) Recommend(p domain.GoalProgress) (domain.ScenarioType, bool) {
	switch {
	case p.DailyTx.Percentage >= 100:
		return "", false
	case p.Merchants.Percentage < p.Users.Percentage:
		return domain.ScenarioBootstrap, true
	case p.TVL.Percentage < 50:
		return domain.ScenarioLpDeposit, true
	case p.DailyTx.Percentage < 80:
		return domain.ScenarioActivityCycle, true
	case p.TVL.Percentage > 80:
		t.mu.Lock()
		roll := t.randFloat()
		t.mu.Unlock()
		if roll < withdrawProbability {
			return domain.ScenarioLpWithdraw, true
		}
		return domain.ScenarioLpDeposit, true
	}
	return domain.ScenarioActivityCycle, true
}
