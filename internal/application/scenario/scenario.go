package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/application/accounts"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

// ErrUnknownType is returned by New for names outside domain.AllScenarioTypes.
var ErrUnknownType = errors.New("unknown scenario type")

// collateralRatio is the LP coverage the BNPL contract requires per unit borrowed.
const collateralRatio = 1.11

// Scenario es una unidad de trabajo sintética.
type Scenario interface {
	Type() domain.ScenarioType
	// CanRun is a cheap precondition check against the account pool. It has no side effects.
	CanRun() bool
	// Execute never panics; every error ends up in the result.
	Execute(ctx context.Context) domain.ScenarioResult
}

// BootstrapConfig dimensiona el sembrado.
type BootstrapConfig struct {
	MerchantCount   int
	UserCount       int
	LiquidatorCount int
	InitialTVL      float64
	USDCPerUser     float64
	BufferUSDC      float64
	DepositFraction float64
	TransferDelay   time.Duration
}

// Config acota los importes aleatorios.
type Config struct {
	Bootstrap           BootstrapConfig
	MinDeposit          float64
	MaxDeposit          float64
	MinWithdrawFraction float64
	MaxWithdrawFraction float64
	MinBill             float64
	MaxBill             float64
	MaxActiveBills      int
}

// Deps agrupa los colaboradores compartidos por todas las variantes.
type Deps struct {
	Pool      *accounts.Pool
	Chain     ports.ChainClient
	Merchants ports.MerchantAPI
	Config    Config

	// Now and Sleep default to the wall clock; tests override them.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	minMerchants int
	minUsers     int
}

// SetAccountTargets sube los conteos del bootstrap al menos hasta los
// objetivos dados. Seguro frente a ticks concurrentes.
func (d *Deps) SetAccountTargets(merchants, users int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.minMerchants = merchants
	d.minUsers = users
}

func (d *Deps) bootstrapConfig() BootstrapConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.Config.Bootstrap
	cfg.MerchantCount = max(cfg.MerchantCount, d.minMerchants)
	cfg.UserCount = max(cfg.UserCount, d.minUsers)
	return cfg
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// New builds the scenario for t.
func New(t domain.ScenarioType, d *Deps) (Scenario, error) {
	switch t {
	case domain.ScenarioBootstrap:
		return &Bootstrap{d: d}, nil
	case domain.ScenarioLpDeposit:
		return &LpDeposit{d: d}, nil
	case domain.ScenarioLpWithdraw:
		return &LpWithdraw{d: d}, nil
	case domain.ScenarioMerchantOnboard:
		return &MerchantOnboard{d: d}, nil
	case domain.ScenarioMerchantApprove:
		return &MerchantApprove{d: d}, nil
	case domain.ScenarioBnplCreateBill:
		return &BnplCreateBill{d: d}, nil
	case domain.ScenarioBnplPay:
		return &BnplPay{d: d}, nil
	case domain.ScenarioBnplRepay:
		return &BnplRepay{d: d}, nil
	}
	return nil, fmt.Errorf("scenario.New: %q: %w", t, ErrUnknownType)
}

// guard runs body and converts errors and panics into a failed result.
func guard(t domain.ScenarioType, body func() (domain.ScenarioResult, error)) (res domain.ScenarioResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scenario panicked", "scenario", t, "panic", r)
			res = domain.Failure(t, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := body()
	if err != nil {
		failed := domain.Failure(t, err)
		failed.Details = res.Details
		failed.TxHash = res.TxHash
		return failed
	}
	res.Type = t
	res.Success = true
	return res
}

// randomBetween returns a cent-rounded uniform amount in [lo, hi].
func randomBetween(lo, hi float64) float64 {
	if hi <= lo {
		return domain.RoundAmount(lo)
	}
	return domain.RoundAmount(lo + rand.Float64()*(hi-lo))
}

// floorCents truncates to whole cents so a capped amount never exceeds its cap.
func floorCents(v float64) float64 {
	return math.Floor(v*100) / 100
}

func (d *Deps) admin() (domain.AccountState, error) {
	admin, ok := d.Pool.Admin()
	if !ok {
		return domain.AccountState{}, errors.New("admin account not loaded")
	}
	return admin, nil
}

// ─── Predicates ──────────────────────────────────────────────────────────────

func hasStatus(s domain.MerchantStatus) func(domain.AccountState) bool {
	return func(a domain.AccountState) bool { return a.Status == s }
}

func notOnboarded(a domain.AccountState) bool {
	return a.Status == "" || a.Status == domain.MerchantNone
}

// available is what a user can still borrow against their LP collateral.
func available(a domain.AccountState) float64 {
	return a.LPBalance/collateralRatio - a.Outstanding()
}
