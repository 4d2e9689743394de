package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// maxJitter bounds the random delay added when waiting for the active window.
const maxJitter = 30 * time.Minute

// ActiveHours es la ventana horaria local en la que se permiten ticks.
// Start > End cruza medianoche; Start == End o Enabled=false es "siempre".
type ActiveHours struct {
	Enabled bool
	Start   int
	End     int
}

// Config controla el ritmo de los ticks.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	ActiveHours ActiveHours
	RemotePoll  time.Duration // 0 desactiva el poller
}

// RemoteControl reads the operator's "should be running" flag.
type RemoteControl interface {
	CheckRemoteControlState(ctx context.Context) (bool, error)
}

// Callback is the tick body. Errors and panics are logged and never stop the loop.
type Callback func(ctx context.Context) error

// Scheduler decide cuándo dispara el siguiente tick. Mantiene un único timer
// pendiente; cada reprogramación invalida la anterior con un contador de generación.
type Scheduler struct {
	remote RemoteControl

	mu        sync.Mutex
	cfg       Config
	running   bool
	paused    bool
	holdUntil time.Time
	inFlight  bool
	timer     *time.Timer
	gen       uint64
	nextAt    time.Time
	ctx       context.Context
	callback  Callback
	poller    *cron.Cron

	now    func() time.Time
	jitter func() time.Duration
	spread func(lo, hi time.Duration) time.Duration
}

// New crea un scheduler detenido. remote puede ser nil.
func New(cfg Config, remote RemoteControl) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		remote: remote,
		now:    time.Now,
		jitter: func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) },
		spread: func(lo, hi time.Duration) time.Duration {
			if hi <= lo {
				return lo
			}
			return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
		},
	}
}

// SetClock overrides the time source used for active-hours decisions.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithinActiveHours reports whether hour (0-23) falls inside the window.
func WithinActiveHours(h ActiveHours, hour int) bool {
	if !h.Enabled || h.Start == h.End {
		return true
	}
	if h.Start < h.End {
		return hour >= h.Start && hour < h.End
	}
	return hour >= h.Start || hour < h.End
}

// IsWithinActiveHours checks the configured window against the current time.
func (s *Scheduler) IsWithinActiveHours() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WithinActiveHours(s.cfg.ActiveHours, s.now().Hour())
}

// NextDelay computes the wait before the next tick from now.
func (s *Scheduler) NextDelay(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDelayLocked(now)
}

func (s *Scheduler) nextDelayLocked(now time.Time) time.Duration {
	h := s.cfg.ActiveHours
	if !WithinActiveHours(h, now.Hour()) {
		opens := time.Date(now.Year(), now.Month(), now.Day(), h.Start, 0, 0, 0, now.Location())
		if !opens.After(now) {
			opens = opens.Add(24 * time.Hour)
		}
		return opens.Sub(now) + s.jitter()
	}
	return s.spread(s.cfg.MinInterval, s.cfg.MaxInterval)
}

// Start arranca el loop y el poller de control remoto.
func (s *Scheduler) Start(ctx context.Context, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler.Start: already running")
	}

	s.running = true
	s.paused = false
	s.holdUntil = time.Time{}
	s.ctx = ctx
	s.callback = cb

	if s.remote != nil && s.cfg.RemotePoll > 0 {
		logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
		s.poller = cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
		spec := fmt.Sprintf("@every %s", s.cfg.RemotePoll)
		if _, err := s.poller.AddFunc(spec, func() { s.PollRemote(ctx) }); err != nil {
			s.running = false
			return fmt.Errorf("scheduler.Start: remote poller: %w", err)
		}
		s.poller.Start()
	}

	s.scheduleLocked()
	slog.Info("scheduler started",
		"min_interval", s.cfg.MinInterval,
		"max_interval", s.cfg.MaxInterval,
		"next_tick", s.nextAt.Format(time.TimeOnly),
	)
	return nil
}

// Stop cancela el timer pendiente y el poller. No interrumpe un callback en curso.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.paused = false
	s.clearTimerLocked()
	poller := s.poller
	s.poller = nil
	s.mu.Unlock()

	if poller != nil {
		<-poller.Stop().Done()
	}
	slog.Info("scheduler stopped")
}

// Pause only sets the flag. A pending timer that fires while paused does nothing.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !s.paused {
		s.paused = true
		slog.Info("scheduler paused")
	}
}

// PauseUntil pauses and prevents the remote poller from resuming before t.
func (s *Scheduler) PauseUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.paused = true
	s.holdUntil = t
	slog.Info("scheduler paused", "until", t.Format(time.TimeOnly))
}

// Resume clears any stale timer and always schedules a fresh tick.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.paused = false
	s.holdUntil = time.Time{}
	s.clearTimerLocked()
	s.scheduleLocked()
	slog.Info("scheduler resumed", "next_tick", s.nextAt.Format(time.TimeOnly))
}

// SetActiveHours applies a new window. A pending tick is re-planned against it.
func (s *Scheduler) SetActiveHours(h ActiveHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ActiveHours = h
	if s.running && !s.paused && s.timer != nil {
		s.clearTimerLocked()
		s.scheduleLocked()
	}
}

// Status returns a snapshot of the loop.
func (s *Scheduler) Status() domain.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.SchedulerStatus{Running: s.running, Paused: s.paused, HoldUntil: s.holdUntil}
	if s.timer != nil {
		st.NextTickAt = s.nextAt
	}
	return st
}

// IsPaused reports the pause flag.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// PollRemote reconciles the local pause flag with the operator flag once.
func (s *Scheduler) PollRemote(ctx context.Context) {
	if s.remote == nil {
		return
	}
	shouldRun, err := s.remote.CheckRemoteControlState(ctx)
	if err != nil {
		slog.Warn("remote control poll failed", "err", err)
		return
	}

	s.mu.Lock()
	running, paused, hold := s.running, s.paused, s.holdUntil
	now := s.now()
	s.mu.Unlock()
	if !running {
		return
	}

	switch {
	case !shouldRun && !paused:
		slog.Info("remote control requested pause")
		s.Pause()
	case shouldRun && paused && !now.Before(hold):
		slog.Info("remote control requested resume")
		s.Resume()
	}
}

func (s *Scheduler) clearTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// scheduleLocked arms the single pending timer. Caller holds the lock.
func (s *Scheduler) scheduleLocked() {
	s.gen++
	gen := s.gen
	now := s.now()
	d := s.nextDelayLocked(now)
	s.nextAt = now.Add(d)
	s.timer = time.AfterFunc(d, func() { s.fire(gen) })
	slog.Debug("next tick scheduled", "in", d.Round(time.Second), "at", s.nextAt.Format(time.TimeOnly))
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.paused || s.inFlight {
		// resume or the in-flight callback reschedules
		s.mu.Unlock()
		return
	}
	if !WithinActiveHours(s.cfg.ActiveHours, s.now().Hour()) {
		slog.Debug("outside active hours, waiting for window")
		s.scheduleLocked()
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	ctx, cb := s.ctx, s.callback
	s.mu.Unlock()

	s.invoke(ctx, cb)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.running && !s.paused && s.timer == nil {
		s.scheduleLocked()
	}
}

func (s *Scheduler) invoke(ctx context.Context, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick callback panicked", "panic", r)
		}
	}()
	if err := cb(ctx); err != nil {
		slog.Error("tick callback failed", "err", err)
	}
}
