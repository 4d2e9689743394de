package merchantapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/bnplbot/internal/adapters/transport"
	"github.com/alejandrodnm/bnplbot/internal/domain"
	"github.com/alejandrodnm/bnplbot/internal/ports"
)

// Client implementa ports.MerchantAPI contra la API HTTP de merchants.
type Client struct {
	http *transport.Client
}

// NewClient crea el cliente sobre un transport ya configurado.
func NewClient(client *transport.Client) *Client {
	return &Client{http: client}
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    struct {
		ID string `json:"_id"`
	} `json:"data"`
}

// CreateApplication hace POST /api/merchants y devuelve el id de la solicitud.
func (c *Client) CreateApplication(ctx context.Context, app ports.MerchantApplication) (string, error) {
	var resp createResponse
	if err := c.http.PostOnce(ctx, "/api/merchants", app, &resp); err != nil {
		return "", fmt.Errorf("merchantapi.CreateApplication: %w", err)
	}
	id := resp.ID
	if id == "" {
		id = resp.Data.ID
	}
	if id == "" {
		return "", fmt.Errorf("merchantapi.CreateApplication: response without id")
	}
	return id, nil
}

// UpdateStatus hace PATCH /api/merchants/{id}/status.
func (c *Client) UpdateStatus(ctx context.Context, infoID string, status domain.MerchantStatus) error {
	path := "/api/merchants/" + url.PathEscape(infoID) + "/status"
	if err := c.http.Patch(ctx, path, map[string]string{"status": string(status)}, nil); err != nil {
		return fmt.Errorf("merchantapi.UpdateStatus: %w", err)
	}
	return nil
}
