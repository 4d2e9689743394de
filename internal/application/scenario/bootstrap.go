package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// Bootstrap siembra el protocolo: cuentas, liquidez inicial, colateral de
// usuarios y merchants aprobados. Es re-ejecutable: cada fase salta lo que ya
// está hecho y un fallo deja las fases anteriores en su sitio.
type Bootstrap struct{ d *Deps }

func (s *Bootstrap) Type() domain.ScenarioType { return domain.ScenarioBootstrap }

// CanRun only needs the admin; every phase is idempotent.
func (s *Bootstrap) CanRun() bool {
	_, ok := s.d.Pool.Admin()
	return ok
}

func unfunded(a domain.AccountState) bool {
	return a.USDCBalance == 0 && a.LPBalance == 0 && len(a.ActiveBills) == 0
}

// needsCollateral cubre también a usuarios que recibieron USDC en una
// ejecución anterior pero cuyo depósito falló.
func needsCollateral(a domain.AccountState) bool {
	return a.LPBalance == 0 && len(a.ActiveBills) == 0 && a.USDCBalance > 0
}

func (s *Bootstrap) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		cfg := s.d.bootstrapConfig()
		pool := s.d.Pool
		res := domain.ScenarioResult{Details: map[string]any{}}

		admin, err := s.d.admin()
		if err != nil {
			return res, err
		}

		// 1. cuentas
		if _, err := pool.EnsureMerchants(ctx, cfg.MerchantCount); err != nil {
			return res, fmt.Errorf("bootstrap accounts: %w", err)
		}
		if _, err := pool.EnsureUsers(ctx, cfg.UserCount); err != nil {
			return res, fmt.Errorf("bootstrap accounts: %w", err)
		}
		if _, err := pool.EnsureLiquidators(ctx, cfg.LiquidatorCount); err != nil {
			return res, fmt.Errorf("bootstrap accounts: %w", err)
		}
		res.Details["merchantsCreated"] = pool.Count(domain.RoleMerchant)
		res.Details["usersCreated"] = pool.Count(domain.RoleUser)
		res.Details["initialTvl"] = cfg.InitialTVL

		// 2. mint al admin
		tvl, err := s.d.Chain.TotalValueLocked(ctx)
		if err != nil {
			return res, fmt.Errorf("bootstrap read tvl: %w", err)
		}
		deficit := domain.RoundAmount(math.Max(cfg.InitialTVL-tvl, 0))
		toFund := pool.Filter(domain.RoleUser, unfunded)
		if deficit > 0 || len(toFund) > 0 {
			mint := deficit + cfg.USDCPerUser*float64(len(toFund)) + cfg.BufferUSDC
			tx, err := s.d.Chain.Mint(ctx, admin.Address, admin.Address, mint)
			if err != nil {
				return res, fmt.Errorf("bootstrap mint %.2f: %w", mint, err)
			}
			res.TxHash = tx.Hash
			pool.Update(admin.Address, func(a *domain.AccountState) { a.USDCBalance += mint })
			slog.Info("bootstrap minted", "amount", mint, "users_to_fund", len(toFund))
		}

		// 3. liquidez inicial del admin
		if deficit > 0 {
			tx, err := s.d.Chain.Deposit(ctx, admin.Address, deficit)
			if err != nil {
				return res, fmt.Errorf("bootstrap admin deposit %.2f: %w", deficit, err)
			}
			res.TxHash = tx.Hash
			res.Volume += deficit
			pool.Update(admin.Address, func(a *domain.AccountState) {
				a.USDCBalance -= deficit
				a.LPBalance += deficit
			})
		}

		// 4. transferencias admin → usuario, espaciadas
		for i, u := range toFund {
			if i > 0 {
				if err := s.d.sleep(ctx, cfg.TransferDelay); err != nil {
					return res, fmt.Errorf("bootstrap transfers: %w", err)
				}
			}
			if _, err := s.d.Chain.Transfer(ctx, admin.Address, u.Address, cfg.USDCPerUser); err != nil {
				return res, fmt.Errorf("bootstrap transfer to %s: %w", u.Name, err)
			}
			pool.Update(u.Address, func(a *domain.AccountState) { a.USDCBalance += cfg.USDCPerUser })
			pool.Update(admin.Address, func(a *domain.AccountState) { a.USDCBalance -= cfg.USDCPerUser })
		}

		// 5. cada usuario sin LP deposita su colateral
		collateral := domain.RoundAmount(cfg.USDCPerUser * cfg.DepositFraction)
		if collateral > 0 {
			for _, u := range pool.Filter(domain.RoleUser, needsCollateral) {
				amount := domain.RoundAmount(math.Min(collateral, u.USDCBalance))
				tx, err := s.d.Chain.Deposit(ctx, u.Address, amount)
				if err != nil {
					return res, fmt.Errorf("bootstrap deposit for %s: %w", u.Name, err)
				}
				minted := tx.Amount
				if minted == 0 {
					minted = amount
				}
				res.Volume += amount
				pool.Update(u.Address, func(a *domain.AccountState) {
					a.USDCBalance -= amount
					a.LPBalance += minted
				})
			}
		}

		// 6. solicitud + enrolamiento de merchants nuevos
		for _, m := range pool.Filter(domain.RoleMerchant, notOnboarded) {
			if _, err := onboardMerchant(ctx, s.d, m); err != nil {
				return res, fmt.Errorf("bootstrap onboarding: %w", err)
			}
		}

		// 7. aprobación de pendientes
		for _, m := range pool.Filter(domain.RoleMerchant, hasStatus(domain.MerchantPending)) {
			if _, err := approveMerchant(ctx, s.d, admin, m); err != nil {
				return res, fmt.Errorf("bootstrap approval: %w", err)
			}
		}

		stats := pool.Stats()
		slog.Info("bootstrap complete",
			"merchants", stats.TotalMerchants,
			"approved", stats.ApprovedMerchants,
			"users", stats.TotalUsers,
			"tvl_deposited", deficit,
		)
		res.Volume = domain.RoundAmount(res.Volume)
		return res, nil
	})
}
