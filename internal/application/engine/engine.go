package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alejandrodnm/bnplbot/internal/application/accounts"
	"github.com/alejandrodnm/bnplbot/internal/application/goals"
	"github.com/alejandrodnm/bnplbot/internal/application/scenario"
	"github.com/alejandrodnm/bnplbot/internal/application/scheduler"
	"github.com/alejandrodnm/bnplbot/internal/application/state"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

const (
	circuitBreakerFailures = 5
	circuitBreakerCooldown = 5 * time.Minute
	defaultSaveInterval    = 60 * time.Second
)

// ErrCannotRun is returned by RunScenario when the scenario's preconditions are not met.
var ErrCannotRun = errors.New("scenario preconditions not met")

// Config controla el circuit breaker, el guardado periódico y el umbral de bootstrap.
type Config struct {
	MaxFailures  int
	Cooldown     time.Duration
	SaveInterval time.Duration

	// Initialize runs Bootstrap while the pool is below these counts.
	BootstrapMerchants int
	BootstrapUsers     int
}

// InitOptions controls Initialize.
type InitOptions struct {
	AutoStart     bool
	SkipBootstrap bool
}

// Deps agrupa los componentes construidos en cmd/.
type Deps struct {
	Pool      *accounts.Pool
	Scenarios *scenario.Deps
	Tracker   *goals.Tracker
	Scheduler *scheduler.Scheduler
	State     *state.Manager
	Metrics   ports.Metrics  // opcional
	Reporter  ports.Reporter // opcional
}

// Engine orquesta un tick: objetivo → escenario ejecutable → ejecución →
// circuit breaker → registro.
type Engine struct {
	cfg       Config
	pool      *accounts.Pool
	scenarios *scenario.Deps
	tracker   *goals.Tracker
	sched     *scheduler.Scheduler
	state     *state.Manager
	metrics   ports.Metrics
	reporter  ports.Reporter

	// execMu serializes scenario runs: scheduler ticks and manual runs.
	execMu sync.Mutex

	mu          sync.Mutex
	breaker     domain.CircuitBreaker
	resumeTimer *time.Timer
	saver       *cron.Cron
	running     bool
	startedAt   time.Time
	now         func() time.Time
}

// New crea el engine. Los colaboradores opcionales pueden ser nil.
func New(cfg Config, d Deps) *Engine {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = circuitBreakerFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = circuitBreakerCooldown
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = defaultSaveInterval
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Engine{
		cfg:       cfg,
		pool:      d.Pool,
		scenarios: d.Scenarios,
		tracker:   d.Tracker,
		sched:     d.Scheduler,
		state:     d.State,
		metrics:   metrics,
		reporter:  d.Reporter,
		now:       time.Now,
		breaker: domain.CircuitBreaker{
			MaxFailures:      cfg.MaxFailures,
			CooldownDuration: cfg.Cooldown,
		},
	}
}

// Initialize conecta el estado, restaura el pool de cuentas y, si hace falta,
// ejecuta el bootstrap. Los errores de conectividad son fatales.
func (e *Engine) Initialize(ctx context.Context, opts InitOptions) error {
	if err := e.state.Connect(ctx); err != nil {
		return fmt.Errorf("engine.Initialize: %w", err)
	}

	if snap, ok := e.state.RestoredPool(); ok {
		e.pool.Restore(snap)
	}
	if err := e.pool.Load(ctx); err != nil {
		return fmt.Errorf("engine.Initialize: %w", err)
	}

	st := e.state.GetState()
	e.tracker.Seed(st.DailyStats.Date, st.DailyStats.TxCount)

	stats := e.pool.Stats()
	needsBootstrap := stats.TotalMerchants < e.cfg.BootstrapMerchants || stats.TotalUsers < e.cfg.BootstrapUsers
	if needsBootstrap && !opts.SkipBootstrap {
		slog.Info("engine: pool below bootstrap targets, seeding",
			"merchants", stats.TotalMerchants,
			"users", stats.TotalUsers,
		)
		if res := e.RunBootstrap(ctx); !res.Success {
			slog.Warn("engine: bootstrap failed, continuing with partial pool", "err", res.Error)
		}
	}

	progress := e.refreshProgress(ctx)
	slog.Info("engine: initialized",
		"tvl", fmt.Sprintf("%.2f/%.2f", progress.TVL.Current, progress.TVL.Target),
		"merchants", fmt.Sprintf("%.0f/%.0f", progress.Merchants.Current, progress.Merchants.Target),
		"users", fmt.Sprintf("%.0f/%.0f", progress.Users.Current, progress.Users.Target),
		"daily_tx", fmt.Sprintf("%.0f/%.0f", progress.DailyTx.Current, progress.DailyTx.Target),
	)

	if opts.AutoStart {
		return e.Start(ctx)
	}
	return nil
}

// Start arranca el scheduler y el guardado periódico del estado.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine.Start: already running")
	}

	e.startedAt = e.now()
	e.state.SetRunning(true, e.startedAt)

	if err := e.sched.Start(ctx, e.executeScenario); err != nil {
		return fmt.Errorf("engine.Start: %w", err)
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	e.saver = cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	spec := fmt.Sprintf("@every %s", e.cfg.SaveInterval)
	if _, err := e.saver.AddFunc(spec, func() { e.save(ctx) }); err != nil {
		e.sched.Stop()
		return fmt.Errorf("engine.Start: periodic save: %w", err)
	}
	e.saver.Start()

	e.running = true
	e.metrics.SetPaused(false)
	slog.Info("engine: started", "save_interval", e.cfg.SaveInterval)
	return nil
}

// Stop detiene el scheduler, el guardado periódico y hace un último guardado.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	saver := e.saver
	e.saver = nil
	if e.resumeTimer != nil {
		e.resumeTimer.Stop()
		e.resumeTimer = nil
	}
	e.mu.Unlock()

	e.sched.Stop()
	if saver != nil {
		<-saver.Stop().Done()
	}

	// wait for an in-flight tick before the final snapshot
	e.execMu.Lock()
	e.execMu.Unlock()

	e.state.SetRunning(false, time.Time{})
	e.state.SetAccountPool(e.pool.Snapshot())
	if err := e.state.SaveState(ctx); err != nil {
		return fmt.Errorf("engine.Stop: %w", err)
	}
	slog.Info("engine: stopped")
	return nil
}

// Pause pausa el scheduler local y el flag del operador.
func (e *Engine) Pause(ctx context.Context) error {
	e.sched.Pause()
	e.metrics.SetPaused(true)
	if err := e.state.SetRemoteRunning(ctx, false); err != nil {
		return fmt.Errorf("engine.Pause: %w", err)
	}
	return nil
}

// Resume reanuda el scheduler local y el flag del operador.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.resumeTimer != nil {
		e.resumeTimer.Stop()
		e.resumeTimer = nil
	}
	e.breaker.Reset()
	e.mu.Unlock()

	e.sched.Resume()
	e.metrics.SetPaused(false)
	e.metrics.SetConsecutiveFailures(0)
	if err := e.state.SetRemoteRunning(ctx, true); err != nil {
		return fmt.Errorf("engine.Resume: %w", err)
	}
	return nil
}

// RunBootstrap ejecuta el escenario de sembrado y registra el resultado.
func (e *Engine) RunBootstrap(ctx context.Context) domain.ScenarioResult {
	res, err := e.RunScenario(ctx, domain.ScenarioBootstrap)
	if err != nil {
		return domain.Failure(domain.ScenarioBootstrap, err)
	}
	return res
}

// RunScenario ejecuta un escenario concreto fuera del scheduler.
func (e *Engine) RunScenario(ctx context.Context, t domain.ScenarioType) (domain.ScenarioResult, error) {
	s, err := scenario.New(t, e.scenarios)
	if err != nil {
		return domain.ScenarioResult{}, fmt.Errorf("engine.RunScenario: %w", err)
	}

	e.execMu.Lock()
	defer e.execMu.Unlock()

	if !s.CanRun() {
		return domain.ScenarioResult{}, fmt.Errorf("engine.RunScenario: %s: %w", t, ErrCannotRun)
	}
	res := s.Execute(ctx)
	e.record(res)
	return res, nil
}

// executeScenario is the scheduler tick body.
func (e *Engine) executeScenario(ctx context.Context) error {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	recommended, ok := e.tracker.RecommendedAction(ctx)
	if !ok {
		slog.Debug("engine: daily tx goal reached, idle tick")
		return nil
	}

	s := e.resolve(recommended)
	if s == nil {
		slog.Info("engine: no runnable scenario, skipping tick", "recommended", recommended)
		return nil
	}

	slog.Info("engine: executing scenario", "scenario", s.Type(), "recommended", recommended)
	res := s.Execute(ctx)
	e.record(res)
	return nil
}

// record applies a result to counters, metrics and the circuit breaker.
func (e *Engine) record(res domain.ScenarioResult) {
	e.state.RecordActivity(res)
	e.state.SetAccountPool(e.pool.Snapshot())
	e.tracker.RecordTransaction()
	e.metrics.ObserveScenario(res.Type, res.Success, res.Volume)

	if res.Success {
		slog.Info("engine: scenario succeeded",
			"scenario", res.Type,
			"volume", res.Volume,
			"tx", res.TxHash,
		)
	} else {
		slog.Warn("engine: scenario failed", "scenario", res.Type, "err", res.Error)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if res.Success {
		e.breaker.RecordSuccess()
		e.metrics.SetConsecutiveFailures(0)
		return
	}
	tripped := e.breaker.RecordFailure(e.now())
	e.metrics.SetConsecutiveFailures(e.breaker.ConsecutiveFailures)
	if tripped {
		e.tripLocked()
	}
}

// tripLocked pauses the scheduler for the cooldown and arms the auto-resume.
// Caller holds e.mu.
func (e *Engine) tripLocked() {
	until := e.breaker.CooldownUntil
	slog.Warn("engine: circuit breaker tripped, pausing",
		"consecutive_failures", e.breaker.ConsecutiveFailures,
		"cooldown", e.cfg.Cooldown,
		"resume_at", until.Format(time.TimeOnly),
	)
	e.sched.PauseUntil(until)
	e.metrics.SetPaused(true)

	if e.resumeTimer != nil {
		e.resumeTimer.Stop()
	}
	e.resumeTimer = time.AfterFunc(e.cfg.Cooldown, e.autoResume)
}

func (e *Engine) autoResume() {
	e.mu.Lock()
	e.resumeTimer = nil
	e.breaker.Reset()
	e.mu.Unlock()

	slog.Info("engine: cooldown elapsed, resuming")
	e.metrics.SetConsecutiveFailures(0)
	e.metrics.SetPaused(false)
	e.sched.Resume()
}

// ConsecutiveFailures returns the breaker counter.
func (e *Engine) ConsecutiveFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breaker.ConsecutiveFailures
}

// BreakerTrips returns how many times the circuit breaker paused the bot.
func (e *Engine) BreakerTrips() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breaker.Trips
}

func (e *Engine) refreshProgress(ctx context.Context) domain.GoalProgress {
	progress := e.tracker.GetProgress(ctx)
	e.state.SetGoals(progress)
	e.metrics.SetGoalProgress(progress)
	return progress
}

// Save persiste progreso y pool junto con los contadores.
func (e *Engine) Save(ctx context.Context) error {
	e.refreshProgress(ctx)
	e.state.SetAccountPool(e.pool.Snapshot())
	return e.state.SaveState(ctx)
}

func (e *Engine) save(ctx context.Context) {
	if err := e.Save(ctx); err != nil {
		slog.Warn("engine: periodic save failed", "err", err)
	}
}

// Flush waits for pending history writes.
func (e *Engine) Flush() {
	e.state.Flush()
}

// Status arma el informe completo del bot.
func (e *Engine) Status(ctx context.Context) domain.StatusReport {
	progress := e.refreshProgress(ctx)
	st := e.state.GetState()
	st.AccountPool = e.pool.Snapshot()
	return domain.StatusReport{
		GeneratedAt:         e.now(),
		State:               st,
		Progress:            progress,
		Pool:                e.pool.Stats(),
		Scheduler:           e.sched.Status(),
		ConsecutiveFailures: e.ConsecutiveFailures(),
		BreakerTrips:        e.BreakerTrips(),
	}
}

// ShowStatus envía el informe al reporter configurado.
func (e *Engine) ShowStatus(ctx context.Context) error {
	if e.reporter == nil {
		return fmt.Errorf("engine.ShowStatus: no reporter configured")
	}
	if err := e.reporter.Report(ctx, e.Status(ctx)); err != nil {
		return fmt.Errorf("engine.ShowStatus: %w", err)
	}
	return nil
}

// Reconfigure applies reloaded goals and active hours to the running engine.
// Bootstrap targets follow the goals so the ladder never recommends a
// bootstrap that has nothing left to create.
func (e *Engine) Reconfigure(g domain.Goals, hours scheduler.ActiveHours) {
	e.tracker.SetGoals(g)
	e.scenarios.SetAccountTargets(g.Merchants, g.Users)
	e.sched.SetActiveHours(hours)
	slog.Info("engine: configuration reloaded",
		"tvl_goal", g.TVL,
		"merchants_goal", g.Merchants,
		"users_goal", g.Users,
		"daily_tx_goal", g.DailyTx,
		"active_hours", fmt.Sprintf("%v %02d-%02d", hours.Enabled, hours.Start, hours.End),
	)
}

// History returns the activity log for [from, to).
func (e *Engine) History(ctx context.Context, from, to time.Time) ([]domain.ActivityEntry, error) {
	return e.state.History(ctx, from, to)
}

// Summary aggregates the activity log for [from, to).
func (e *Engine) Summary(ctx context.Context, from, to time.Time) ([]domain.ActivitySummaryRow, error) {
	return e.state.Summary(ctx, from, to)
}

// Close waits for pending history writes and closes the store.
func (e *Engine) Close() error {
	return e.state.Close()
}

type noopMetrics struct{}

func (noopMetrics) ObserveScenario(domain.ScenarioType, bool, float64) {}
func (noopMetrics) SetGoalProgress(domain.GoalProgress)                {}
func (noopMetrics) SetPaused(bool)                                     {}
func (noopMetrics) SetConsecutiveFailures(int)                         {}
