// Package directory implements ports.Directory by calling the internal API
// of the profile and catalog service.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// Client resolves requesters, providers, pets and services over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new directory client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type requesterResponse struct {
	ID              int64 `json:"id"`
	AccountID       int64 `json:"account_id"`
	LinkedAccountID int64 `json:"linked_account_id"`
}

type providerResponse struct {
	ID                int64  `json:"id"`
	AccountID         int64  `json:"account_id"`
	LinkedAccountID   int64  `json:"linked_account_id"`
	PayoutDestination string `json:"payout_destination"`
}

type subjectResponse struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"owner_id"`
}

type offeringResponse struct {
	ID         int64           `json:"id"`
	ProviderID int64           `json:"provider_id"`
	Title      string          `json:"title"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// GetRequester fetches a requester profile.
// GET /api/internal/requesters/:id/
func (c *Client) GetRequester(ctx context.Context, id int64) (*domain.Party, error) {
	var resp requesterResponse
	if err := c.get(ctx, fmt.Sprintf("/api/internal/requesters/%d/", id), "requester", &resp); err != nil {
		return nil, err
	}
	return &domain.Party{ID: resp.ID, AccountID: resp.AccountID, LinkedAccountID: resp.LinkedAccountID}, nil
}

// GetProvider fetches a provider profile with its payout destination.
// GET /api/internal/providers/:id/
func (c *Client) GetProvider(ctx context.Context, id int64) (*domain.Provider, error) {
	var resp providerResponse
	if err := c.get(ctx, fmt.Sprintf("/api/internal/providers/%d/", id), "provider", &resp); err != nil {
		return nil, err
	}
	return &domain.Provider{
		ID:                resp.ID,
		AccountID:         resp.AccountID,
		LinkedAccountID:   resp.LinkedAccountID,
		PayoutDestination: resp.PayoutDestination,
	}, nil
}

// GetSubject fetches a pet.
// GET /api/internal/pets/:id/
func (c *Client) GetSubject(ctx context.Context, id int64) (*domain.Subject, error) {
	var resp subjectResponse
	if err := c.get(ctx, fmt.Sprintf("/api/internal/pets/%d/", id), "pet", &resp); err != nil {
		return nil, err
	}
	return &domain.Subject{ID: resp.ID, OwnerID: resp.OwnerID}, nil
}

// GetOffering fetches a service offered by a provider.
// GET /api/internal/providers/:provider_id/services/:service_id/
func (c *Client) GetOffering(ctx context.Context, providerID, serviceID int64) (*domain.Offering, error) {
	var resp offeringResponse
	path := fmt.Sprintf("/api/internal/providers/%d/services/%d/", providerID, serviceID)
	if err := c.get(ctx, path, "service", &resp); err != nil {
		return nil, err
	}
	return &domain.Offering{
		ID:         resp.ID,
		ProviderID: resp.ProviderID,
		Title:      resp.Title,
		UnitPrice:  resp.UnitPrice,
	}, nil
}

func (c *Client) get(ctx context.Context, path, entity string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Add internal API authentication
	req.Header.Set("X-Internal-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.NewServiceError(domain.ErrNotFound, entity+" not found", domain.CodeNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("authentication failed with directory API")
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", entity, err)
	}
	return nil
}
