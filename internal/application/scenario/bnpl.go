package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/google/uuid"
)

// dropExpired removes created bills past the bill window from every user.
// The contract will no longer pay them, so they only block collateral.
func dropExpired(d *Deps) {
	now := d.now()
	hasExpired := func(a domain.AccountState) bool {
		for _, b := range a.ActiveBills {
			if b.Expired(now) {
				return true
			}
		}
		return false
	}
	for _, u := range d.Pool.Filter(domain.RoleUser, hasExpired) {
		d.Pool.Update(u.Address, func(a *domain.AccountState) {
			kept := a.ActiveBills[:0]
			for _, b := range a.ActiveBills {
				if b.Expired(now) {
					slog.Info("dropping expired bill", "user", a.Name, "bill_id", b.ID, "amount", b.Amount)
					continue
				}
				kept = append(kept, b)
			}
			a.ActiveBills = kept
		})
	}
}

// BnplCreateBill has an approved merchant bill a user with LP collateral.
type BnplCreateBill struct{ d *Deps }

func (s *BnplCreateBill) Type() domain.ScenarioType { return domain.ScenarioBnplCreateBill }

func (s *BnplCreateBill) canBorrow(a domain.AccountState) bool {
	minBill := math.Max(s.d.Config.MinBill, 0.01)
	return a.LPBalance > 0 &&
		len(a.ActiveBills) < s.d.Config.MaxActiveBills &&
		available(a) >= minBill
}

func (s *BnplCreateBill) CanRun() bool {
	if _, ok := s.d.Pool.GetRandom(domain.RoleMerchant, hasStatus(domain.MerchantApproved)); !ok {
		return false
	}
	_, ok := s.d.Pool.GetRandom(domain.RoleUser, s.canBorrow)
	return ok
}

func (s *BnplCreateBill) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		dropExpired(s.d)

		merchant, ok := s.d.Pool.GetRandom(domain.RoleMerchant, hasStatus(domain.MerchantApproved))
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no approved merchant available")
		}
		user, ok := s.d.Pool.GetRandom(domain.RoleUser, s.canBorrow)
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no user eligible for a new bill")
		}

		amount := math.Min(randomBetween(s.d.Config.MinBill, s.d.Config.MaxBill), floorCents(available(user)))
		orderID := uuid.NewString()

		tx, err := s.d.Chain.CreateBill(ctx, merchant.Address, user.Address, amount, orderID)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("create bill %s→%s for %.2f: %w", merchant.Name, user.Name, amount, err)
		}

		bill := domain.Bill{
			ID:        tx.BillID,
			Merchant:  merchant.Address,
			Amount:    amount,
			Status:    domain.BillCreated,
			CreatedAt: s.d.now(),
		}
		s.d.Pool.Update(user.Address, func(a *domain.AccountState) { a.ActiveBills = append(a.ActiveBills, bill) })
		s.d.Pool.Update(merchant.Address, func(a *domain.AccountState) { a.BillsCreated++ })

		return domain.ScenarioResult{
			TxHash: tx.Hash,
			Volume: amount,
			Details: map[string]any{
				"merchant": merchant.Name,
				"user":     user.Name,
				"billId":   tx.BillID,
				"orderId":  orderID,
				"amount":   amount,
			},
		}, nil
	})
}

// BnplPay pays a created bill through the pool on the user's behalf.
type BnplPay struct{ d *Deps }

func (s *BnplPay) Type() domain.ScenarioType { return domain.ScenarioBnplPay }

func (s *BnplPay) payable(a domain.AccountState) bool {
	now := s.d.now()
	for _, b := range a.BillsWithStatus(domain.BillCreated) {
		if !b.Expired(now) {
			return true
		}
	}
	return false
}

func (s *BnplPay) CanRun() bool {
	_, ok := s.d.Pool.GetRandom(domain.RoleUser, s.payable)
	return ok
}

func (s *BnplPay) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		dropExpired(s.d)

		user, ok := s.d.Pool.GetRandom(domain.RoleUser, s.payable)
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no user with a payable bill")
		}
		bill := user.BillsWithStatus(domain.BillCreated)[0]

		tx, err := s.d.Chain.PayBill(ctx, user.Address, bill.ID)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("pay bill %d for %s: %w", bill.ID, user.Name, err)
		}
		s.d.Pool.Update(user.Address, func(a *domain.AccountState) {
			for i := range a.ActiveBills {
				if a.ActiveBills[i].ID == bill.ID {
					a.ActiveBills[i].Status = domain.BillPaid
				}
			}
		})

		return domain.ScenarioResult{
			TxHash:  tx.Hash,
			Volume:  bill.Amount,
			Details: map[string]any{"user": user.Name, "billId": bill.ID, "amount": bill.Amount},
		}, nil
	})
}

// BnplRepay repays a paid bill. The admin covers any USDC shortfall first.
type BnplRepay struct{ d *Deps }

func (s *BnplRepay) Type() domain.ScenarioType { return domain.ScenarioBnplRepay }

func hasPaidBill(a domain.AccountState) bool {
	return len(a.BillsWithStatus(domain.BillPaid)) > 0
}

func (s *BnplRepay) CanRun() bool {
	_, ok := s.d.Pool.GetRandom(domain.RoleUser, hasPaidBill)
	return ok
}

func (s *BnplRepay) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		user, ok := s.d.Pool.GetRandom(domain.RoleUser, hasPaidBill)
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no user with a paid bill")
		}
		bill := user.BillsWithStatus(domain.BillPaid)[0]

		balance, err := s.d.Chain.USDCBalance(ctx, user.Address)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("read balance of %s: %w", user.Name, err)
		}
		var toppedUp float64
		if balance < bill.Amount {
			admin, err := s.d.admin()
			if err != nil {
				return domain.ScenarioResult{}, err
			}
			toppedUp = math.Ceil((bill.Amount-balance)*100) / 100
			if _, err := s.d.Chain.Transfer(ctx, admin.Address, user.Address, toppedUp); err != nil {
				return domain.ScenarioResult{}, fmt.Errorf("top up %s with %.2f: %w", user.Name, toppedUp, err)
			}
			balance += toppedUp
		}

		tx, err := s.d.Chain.RepayBill(ctx, user.Address, bill.ID)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("repay bill %d for %s: %w", bill.ID, user.Name, err)
		}
		s.d.Pool.Update(user.Address, func(a *domain.AccountState) {
			kept := a.ActiveBills[:0]
			for _, b := range a.ActiveBills {
				if b.ID != bill.ID {
					kept = append(kept, b)
				}
			}
			a.ActiveBills = kept
			a.USDCBalance = balance - bill.Amount
		})

		return domain.ScenarioResult{
			TxHash: tx.Hash,
			Volume: bill.Amount,
			Details: map[string]any{
				"user":     user.Name,
				"billId":   bill.ID,
				"amount":   bill.Amount,
				"toppedUp": toppedUp,
			},
		}, nil
	})
}
