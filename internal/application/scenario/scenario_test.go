package scenario_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/bnplbot/internal/adapters/simulated"
	"github.com/alejandrodnm/bnplbot/internal/application/accounts"
	"github.com/alejandrodnm/bnplbot/internal/application/scenario"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger *simulated.Ledger
	pool   *accounts.Pool
	deps   *scenario.Deps
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: simulated.NewLedger(),
		now:    time.Date(2026, 5, 10, 12, 0, 0, 0, time.Local),
	}
	f.ledger.SetClock(func() time.Time { return f.now })
	f.pool = accounts.New(f.ledger, accounts.DefaultConfig())
	require.NoError(t, f.pool.Load(context.Background()))

	f.deps = &scenario.Deps{
		Pool:      f.pool,
		Chain:     f.ledger,
		Merchants: f.ledger,
		Config: scenario.Config{
			Bootstrap: scenario.BootstrapConfig{
				MerchantCount:   2,
				UserCount:       2,
				InitialTVL:      1000,
				USDCPerUser:     100,
				BufferUSDC:      50,
				DepositFraction: 0.8,
				TransferDelay:   time.Second,
			},
			MinDeposit:          5,
			MaxDeposit:          15,
			MinWithdrawFraction: 0.1,
			MaxWithdrawFraction: 0.5,
			MinBill:             5,
			MaxBill:             50,
			MaxActiveBills:      3,
		},
		Now:   func() time.Time { return f.now },
		Sleep: func(context.Context, time.Duration) error { return nil },
	}
	return f
}

func (f *fixture) run(t *testing.T, typ domain.ScenarioType) domain.ScenarioResult {
	t.Helper()
	s, err := scenario.New(typ, f.deps)
	require.NoError(t, err)
	return s.Execute(context.Background())
}

func (f *fixture) bootstrap(t *testing.T) {
	t.Helper()
	res := f.run(t, domain.ScenarioBootstrap)
	require.True(t, res.Success, res.Error)
}

func TestBootstrap_EndToEnd(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, domain.ScenarioBootstrap)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.ScenarioBootstrap, res.Type)
	assert.Equal(t, 2, res.Details["merchantsCreated"])
	assert.Equal(t, 2, res.Details["usersCreated"])
	assert.Equal(t, 1000.0, res.Details["initialTvl"])

	merchants := f.pool.All(domain.RoleMerchant)
	require.Len(t, merchants, 2)
	for _, m := range merchants {
		assert.Equal(t, domain.MerchantApproved, m.Status)
		assert.Equal(t, domain.MerchantApproved, f.ledger.MerchantOnChain(m.Address))
		assert.Equal(t, domain.MerchantApproved, f.ledger.ApplicationStatus(m.InfoID))
	}

	users := f.pool.All(domain.RoleUser)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Equal(t, 80.0, u.LPBalance)
		assert.Equal(t, 20.0, u.USDCBalance)
		lp, err := f.ledger.LPBalance(context.Background(), u.Address)
		require.NoError(t, err)
		assert.Equal(t, 80.0, lp)
	}

	tvl, err := f.ledger.TotalValueLocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1160.0, tvl)
	assert.Equal(t, 1, f.ledger.Calls("mint"))
	assert.Equal(t, 2, f.ledger.Calls("transfer"))
}

func TestBootstrap_RerunSkipsCompletedWork(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	f.bootstrap(t)
	assert.Equal(t, 1, f.ledger.Calls("mint"))
	assert.Equal(t, 2, f.ledger.Calls("enroll_merchant"))

	// raising the targets only seeds the new accounts
	f.deps.Config.Bootstrap.UserCount = 3
	f.bootstrap(t)
	assert.Equal(t, 2, f.ledger.Calls("mint"))
	assert.Equal(t, 3, f.ledger.Calls("transfer"))
	assert.Equal(t, 3, f.pool.Stats().ActiveUsers)
}

// depositFails wraps the ledger and rejects every pool deposit.
type depositFails struct{ *simulated.Ledger }

func (depositFails) Deposit(context.Context, string, float64) (domain.TxResult, error) {
	return domain.TxResult{}, errors.New("rpc timeout")
}

func TestBootstrap_FailureKeepsCompletedPhases(t *testing.T) {
	f := newFixture(t)
	f.deps.Chain = depositFails{f.ledger}

	res := f.run(t, domain.ScenarioBootstrap)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rpc timeout")
	assert.Equal(t, 2, f.pool.Count(domain.RoleUser), "accounts created before the failure stay")
	assert.Equal(t, 1, f.ledger.Calls("mint"))

	// a later run picks up where the failed one stopped
	f.deps.Chain = f.ledger
	f.bootstrap(t)
	assert.Equal(t, 2, f.pool.Stats().ApprovedMerchants)
}

// userDepositFails rejects deposits from everyone but the admin.
type userDepositFails struct {
	*simulated.Ledger
	admin string
}

func (l userDepositFails) Deposit(ctx context.Context, from string, amount float64) (domain.TxResult, error) {
	if from != l.admin {
		return domain.TxResult{}, errors.New("tx rejected")
	}
	return l.Ledger.Deposit(ctx, from, amount)
}

func TestBootstrap_RerunDepositsCollateralForFundedUsers(t *testing.T) {
	f := newFixture(t)
	admin, ok := f.pool.Admin()
	require.True(t, ok)
	f.deps.Chain = userDepositFails{Ledger: f.ledger, admin: admin.Address}

	res := f.run(t, domain.ScenarioBootstrap)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "tx rejected")
	for _, u := range f.pool.All(domain.RoleUser) {
		assert.Equal(t, 100.0, u.USDCBalance, u.Name)
		assert.Zero(t, u.LPBalance, u.Name)
	}

	f.deps.Chain = f.ledger
	res = f.run(t, domain.ScenarioBootstrap)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 160.0, res.Volume)
	assert.Equal(t, 2, f.ledger.Calls("transfer"), "funded users are not paid twice")

	for _, u := range f.pool.All(domain.RoleUser) {
		assert.Equal(t, 80.0, u.LPBalance, u.Name)
		assert.Equal(t, 20.0, u.USDCBalance, u.Name)
		lp, err := f.ledger.LPBalance(context.Background(), u.Address)
		require.NoError(t, err)
		assert.Equal(t, 80.0, lp, u.Name)
	}
}

func TestBillLifecycle(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	pay, err := scenario.New(domain.ScenarioBnplPay, f.deps)
	require.NoError(t, err)
	repay, err := scenario.New(domain.ScenarioBnplRepay, f.deps)
	require.NoError(t, err)
	assert.False(t, pay.CanRun())
	assert.False(t, repay.CanRun())

	created := f.run(t, domain.ScenarioBnplCreateBill)
	require.True(t, created.Success, created.Error)
	amount := created.Volume
	assert.GreaterOrEqual(t, amount, 5.0)
	assert.LessOrEqual(t, amount, 50.0)

	require.True(t, pay.CanRun())
	paid := pay.Execute(context.Background())
	require.True(t, paid.Success, paid.Error)
	assert.Equal(t, amount, paid.Volume)

	require.True(t, repay.CanRun())
	repaid := repay.Execute(context.Background())
	require.True(t, repaid.Success, repaid.Error)
	assert.Equal(t, amount, repaid.Volume)

	for _, u := range f.pool.All(domain.RoleUser) {
		assert.Empty(t, u.ActiveBills)
	}
	billed := 0
	for _, m := range f.pool.All(domain.RoleMerchant) {
		billed += m.BillsCreated
	}
	assert.Equal(t, 1, billed)
}

func TestBnplPay_ExpiredBillsAreDropped(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	created := f.run(t, domain.ScenarioBnplCreateBill)
	require.True(t, created.Success, created.Error)

	f.now = f.now.Add(domain.BillWindow + time.Hour)
	pay, _ := scenario.New(domain.ScenarioBnplPay, f.deps)
	assert.False(t, pay.CanRun())

	again := f.run(t, domain.ScenarioBnplCreateBill)
	require.True(t, again.Success, again.Error)
	total := 0
	for _, u := range f.pool.All(domain.RoleUser) {
		total += len(u.ActiveBills)
	}
	assert.Equal(t, 1, total, "only the new bill remains")
}

func TestLpDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	dep := f.run(t, domain.ScenarioLpDeposit)
	require.True(t, dep.Success, dep.Error)
	assert.GreaterOrEqual(t, dep.Volume, 5.0)
	assert.LessOrEqual(t, dep.Volume, 15.0)

	wd := f.run(t, domain.ScenarioLpWithdraw)
	require.True(t, wd.Success, wd.Error)
	assert.Greater(t, wd.Volume, 0.0)
}

func TestLpWithdraw_SkipsUsersWithBills(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	for _, u := range f.pool.All(domain.RoleUser) {
		f.pool.Update(u.Address, func(a *domain.AccountState) {
			a.ActiveBills = append(a.ActiveBills, domain.Bill{ID: 99, Status: domain.BillPaid, Amount: 1})
		})
	}

	s, _ := scenario.New(domain.ScenarioLpWithdraw, f.deps)
	assert.False(t, s.CanRun())
}

func TestMerchantOnboardThenApprove(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.EnsureMerchants(context.Background(), 1)
	require.NoError(t, err)

	approve, _ := scenario.New(domain.ScenarioMerchantApprove, f.deps)
	assert.False(t, approve.CanRun())

	onboard := f.run(t, domain.ScenarioMerchantOnboard)
	require.True(t, onboard.Success, onboard.Error)
	assert.Zero(t, onboard.Volume)
	m := f.pool.All(domain.RoleMerchant)[0]
	assert.Equal(t, domain.MerchantPending, m.Status)
	assert.NotEmpty(t, m.InfoID)

	require.True(t, approve.CanRun())
	res := approve.Execute(context.Background())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.MerchantApproved, f.pool.All(domain.RoleMerchant)[0].Status)
}

func TestCanRun_EmptyPool(t *testing.T) {
	f := newFixture(t)
	for _, typ := range domain.AllScenarioTypes {
		if typ == domain.ScenarioBootstrap {
			continue
		}
		s, err := scenario.New(typ, f.deps)
		require.NoError(t, err)
		assert.False(t, s.CanRun(), typ)
	}
}

func TestExecute_ChainErrorBecomesFailure(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	f.ledger.FailWith(errors.New("network congestion"))

	res := f.run(t, domain.ScenarioLpDeposit)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ScenarioLpDeposit, res.Type)
	assert.Contains(t, res.Error, "network congestion")
}

func TestExecute_RecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	f.deps.Chain = nil

	var res domain.ScenarioResult
	assert.NotPanics(t, func() { res = f.run(t, domain.ScenarioLpDeposit) })
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panic")
}

func TestNew_UnknownType(t *testing.T) {
	_, err := scenario.New(domain.ScenarioActivityCycle, &scenario.Deps{})
	assert.ErrorIs(t, err, scenario.ErrUnknownType)
}
