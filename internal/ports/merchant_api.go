package ports

import (
	"context"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// MerchantApplication is the off-chain record created before on-chain enrollment.
type MerchantApplication struct {
	Address      string `json:"walletAddress"`
	BusinessName string `json:"businessName"`
	Email        string `json:"email"`
	Category     string `json:"category"`
}

// MerchantAPI is the merchant-application HTTP service.
type MerchantAPI interface {
	// CreateApplication stores a new application and returns its id.
	CreateApplication(ctx context.Context, app MerchantApplication) (string, error)
	UpdateStatus(ctx context.Context, infoID string, status domain.MerchantStatus) error
}
