package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

var businessCategories = []string{"electronics", "fashion", "groceries", "travel", "home", "health"}

// onboardMerchant creates the off-chain application (unless one exists) and
// enrolls the merchant on-chain. The pool entry ends up pending.
func onboardMerchant(ctx context.Context, d *Deps, m domain.AccountState) (domain.TxResult, error) {
	infoID := m.InfoID
	if infoID == "" {
		app := ports.MerchantApplication{
			Address:      m.Address,
			BusinessName: businessName(m.Name),
			Email:        m.Name + "@bnplbot.test",
			Category:     businessCategories[rand.Intn(len(businessCategories))],
		}
		id, err := d.Merchants.CreateApplication(ctx, app)
		if err != nil {
			return domain.TxResult{}, fmt.Errorf("create application for %s: %w", m.Name, err)
		}
		infoID = id
		d.Pool.Update(m.Address, func(a *domain.AccountState) { a.InfoID = id })
	}

	tx, err := d.Chain.EnrollMerchant(ctx, m.Address, infoID)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("enroll %s: %w", m.Name, err)
	}
	d.Pool.Update(m.Address, func(a *domain.AccountState) { a.Status = domain.MerchantPending })
	return tx, nil
}

// approveMerchant approves the application off-chain and then on-chain.
func approveMerchant(ctx context.Context, d *Deps, admin, m domain.AccountState) (domain.TxResult, error) {
	if m.InfoID != "" {
		if err := d.Merchants.UpdateStatus(ctx, m.InfoID, domain.MerchantApproved); err != nil {
			return domain.TxResult{}, fmt.Errorf("approve application %s: %w", m.InfoID, err)
		}
	}
	tx, err := d.Chain.UpdateMerchantStatus(ctx, admin.Address, m.Address, domain.MerchantApproved)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("approve %s on-chain: %w", m.Name, err)
	}
	d.Pool.Update(m.Address, func(a *domain.AccountState) { a.Status = domain.MerchantApproved })
	return tx, nil
}

func businessName(accountName string) string {
	parts := strings.SplitN(accountName, "-", 2)
	if len(parts) == 2 {
		return strings.ToUpper(parts[0][:1]) + parts[0][1:] + " Store " + parts[1]
	}
	return accountName + " Store"
}

// MerchantOnboard enrolls one merchant that has not applied yet.
type MerchantOnboard struct{ d *Deps }

func (s *MerchantOnboard) Type() domain.ScenarioType { return domain.ScenarioMerchantOnboard }

func (s *MerchantOnboard) CanRun() bool {
	_, ok := s.d.Pool.GetRandom(domain.RoleMerchant, notOnboarded)
	return ok
}

func (s *MerchantOnboard) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		m, ok := s.d.Pool.GetRandom(domain.RoleMerchant, notOnboarded)
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no merchant waiting for onboarding")
		}
		tx, err := onboardMerchant(ctx, s.d, m)
		if err != nil {
			return domain.ScenarioResult{}, err
		}
		updated, _ := s.d.Pool.Get(m.Address)
		return domain.ScenarioResult{
			TxHash:  tx.Hash,
			Details: map[string]any{"merchant": m.Name, "address": m.Address, "infoId": updated.InfoID},
		}, nil
	})
}

// MerchantApprove approves one pending merchant.
type MerchantApprove struct{ d *Deps }

func (s *MerchantApprove) Type() domain.ScenarioType { return domain.ScenarioMerchantApprove }

func (s *MerchantApprove) CanRun() bool {
	_, ok := s.d.Pool.GetRandom(domain.RoleMerchant, hasStatus(domain.MerchantPending))
	return ok
}

func (s *MerchantApprove) Execute(ctx context.Context) domain.ScenarioResult {
	return guard(s.Type(), func() (domain.ScenarioResult, error) {
		admin, err := s.d.admin()
		if err != nil {
			return domain.ScenarioResult{}, err
		}
		m, ok := s.d.Pool.GetRandom(domain.RoleMerchant, hasStatus(domain.MerchantPending))
		if !ok {
			return domain.ScenarioResult{}, fmt.Errorf("no pending merchant")
		}
		tx, err := approveMerchant(ctx, s.d, admin, m)
		if err != nil {
			return domain.ScenarioResult{}, err
		}
		return domain.ScenarioResult{
			TxHash:  tx.Hash,
			Details: map[string]any{"merchant": m.Name, "address": m.Address},
		}, nil
	})
}
