package scenario

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// LpDeposit deposits USDC from a random user into the liquidity pool.
type LpDeposit struct{ d *Deps }

func (s *LpDeposit) Type() domain.ScenarioType { return domain.ScenarioLpDeposit }

func (s *LpDeposit) canDeposit(a domain.AccountState) bool {
	return a.USDCBalance >= s.d.Config.MinDeposit && a.USDCBalance > 0
}

func (s *LpDeposit) CanRun() bool {
	_, ok := s.d.Pool.GetRandom(domain.RoleUser, s.canDeposit)
	return ok
}

func (s *LpDeposit) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		user, ok := s.d.Pool.GetRandom(domain.RoleUser, s.canDeposit)
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no user with enough USDC to deposit")
		}

		// the pool only tracks what the bot did; the chain is authoritative
		balance, err := s.d.Chain.USDCBalance(ctx, user.Address)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("read balance of %s: %w", user.Name, err)
		}
		s.d.Pool.Update(user.Address, func(a *domain.AccountState) { a.USDCBalance = balance })

		amount := math.Min(randomBetween(s.d.Config.MinDeposit, s.d.Config.MaxDeposit), floorCents(balance))
		if amount <= 0 || amount < s.d.Config.MinDeposit {
			return domain.ScenarioResult{}, fmt.Errorf("%s balance %.2f below minimum deposit", user.Name, balance)
		}

		tx, err := s.d.Chain.Deposit(ctx, user.Address, amount)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("deposit %.2f from %s: %w", amount, user.Name, err)
		}
		minted := tx.Amount
		if minted == 0 {
			minted = amount
		}
		s.d.Pool.Update(user.Address, func(a *domain.AccountState) {
			a.USDCBalance -= amount
			a.LPBalance += minted
		})

		return domain.ScenarioResult{
			TxHash: tx.Hash,
			Volume: amount,
			Details: map[string]any{
				"user":     user.Name,
				"amount":   amount,
				"lpMinted": minted,
			},
		}, nil
	})
}

// LpWithdraw redeems part of a random user's LP position. Users with
// outstanding bills are skipped since their LP is collateral.
type LpWithdraw struct{ d *Deps }

func (s *LpWithdraw) Type() domain.ScenarioType { return domain.ScenarioLpWithdraw }

func canWithdraw(a domain.AccountState) bool {
	return a.LPBalance > 0 && len(a.ActiveBills) == 0
}

func (s *LpWithdraw) CanRun() bool {
	_, ok := s.d.Pool.GetRandom(domain.RoleUser, canWithdraw)
	return ok
}

func (s *LpWithdraw) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		user, ok := s.d.Pool.GetRandom(domain.RoleUser, canWithdraw)
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no user with a withdrawable LP position")
		}

		fraction := s.d.Config.MinWithdrawFraction
		if span := s.d.Config.MaxWithdrawFraction - fraction; span > 0 {
			fraction += rand.Float64() * span
		}
		lpAmount := floorCents(user.LPBalance * fraction)
		if lpAmount <= 0 {
			return domain.ScenarioResult{}, fmt.Errorf("%s LP position %.2f too small to withdraw", user.Name, user.LPBalance)
		}

		tx, err := s.d.Chain.Withdraw(ctx, user.Address, lpAmount)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("withdraw %.2f LP for %s: %w", lpAmount, user.Name, err)
		}
		underlying := tx.Amount
		if underlying == 0 {
			underlying = lpAmount
		}
		s.d.Pool.Update(user.Address, func(a *domain.AccountState) {
			a.LPBalance -= lpAmount
			a.USDCBalance += underlying
		})

		return domain.ScenarioResult{
			TxHash: tx.Hash,
			Volume: underlying,
			Details: map[string]any{
				"user":       user.Name,
				"lpBurned":   lpAmount,
				"underlying": underlying,
			},
		}, nil
	})
}
