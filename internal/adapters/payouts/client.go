// Package payouts provides the HTTP client for the provider transfer endpoint.
package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// Client implements ports.PayoutTransferer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new transfer endpoint client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type transferPayload struct {
	ReservationID int64  `json:"reservation_id"`
	Destination   string `json:"destination"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
}

// Transfer sends the provider's net amount to their payout account.
// POST /v1/transfers
//
// The idempotency key is stable across retries of the same payout, so the
// endpoint can drop duplicates.
func (c *Client) Transfer(ctx context.Context, tr domain.TransferRequest) (*domain.TransferReceipt, error) {
	if c.baseURL == "" {
		return nil, domain.NewServiceError(domain.ErrPayoutTransferFailed,
			"payout endpoint not configured", "PAYOUT_NOT_CONFIGURED")
	}

	jsonBody, err := json.Marshal(transferPayload{
		ReservationID: tr.ReservationID,
		Destination:   tr.Destination,
		Amount:        tr.Amount.StringFixed(2),
		Currency:      tr.Currency,
		Reference:     tr.Reference,
	})
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPayoutTransferFailed,
			"failed to marshal payload", "MARSHAL_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPayoutTransferFailed,
			"failed to create request", "REQUEST_ERROR")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", tr.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPayoutTransferFailed,
			"request failed: "+err.Error(), "HTTP_ERROR")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.NewServiceError(domain.ErrPayoutTransferFailed,
			fmt.Sprintf("transfer endpoint returned status %d: %s", resp.StatusCode, string(body)),
			"PAYOUT_ERROR")
	}

	var receipt domain.TransferReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, domain.NewServiceError(domain.ErrPayoutTransferFailed,
			"failed to decode response", "DECODE_ERROR")
	}
	return &receipt, nil
}
