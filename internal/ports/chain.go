package ports

import (
	"context"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// ChainClient invokes the deployed protocol contracts. Amounts are token
// units (not stroops); implementations handle the fixed-point encoding.
type ChainClient interface {
	// Token operations (USDC).
	Mint(ctx context.Context, admin, to string, amount float64) (domain.TxResult, error)
	Transfer(ctx context.Context, from, to string, amount float64) (domain.TxResult, error)
	USDCBalance(ctx context.Context, address string) (float64, error)

	// Liquidity pool. Deposit returns the LP tokens minted in Amount;
	// Withdraw returns the underlying USDC released.
	Deposit(ctx context.Context, from string, amount float64) (domain.TxResult, error)
	Withdraw(ctx context.Context, from string, lpAmount float64) (domain.TxResult, error)
	LPBalance(ctx context.Context, address string) (float64, error)
	TotalValueLocked(ctx context.Context) (float64, error)

	// BNPL core.
	EnrollMerchant(ctx context.Context, merchant, infoID string) (domain.TxResult, error)
	UpdateMerchantStatus(ctx context.Context, admin, merchant string, status domain.MerchantStatus) (domain.TxResult, error)
	CreateBill(ctx context.Context, merchant, user string, amount float64, orderID string) (domain.TxResult, error)
	PayBill(ctx context.Context, user string, billID uint64) (domain.TxResult, error)
	RepayBill(ctx context.Context, user string, billID uint64) (domain.TxResult, error)
	LiquidateBill(ctx context.Context, liquidator string, billID uint64) (domain.TxResult, error)
}
