// Package mercadopago implements the PaymentGateway interface using the official SDK.
package mercadopago

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/merchantorder"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// Settings are the checkout callbacks and limits applied to every call.
type Settings struct {
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	Timeout         time.Duration
}

// Adapter implements ports.PaymentGateway using Mercado Pago SDK.
type Adapter struct {
	preferences    preference.Client
	payments       payment.Client
	merchantOrders merchantorder.Client
	settings       Settings
}

// NewAdapter creates a new Mercado Pago adapter.
func NewAdapter(accessToken string, settings Settings) (*Adapter, error) {
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to create MP config", domain.CodeUpstreamGateway)
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}

	return &Adapter{
		preferences:    preference.NewClient(cfg),
		payments:       payment.NewClient(cfg),
		merchantOrders: merchantorder.NewClient(cfg),
		settings:       settings,
	}, nil
}

// CreatePreference creates a Checkout Pro preference.
func (a *Adapter) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	ctx, cancel := context.WithTimeout(ctx, a.settings.Timeout)
	defer cancel()

	prefRequest := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:       req.Title,
				Description: req.Description,
				Quantity:    1,
				UnitPrice:   req.Amount.InexactFloat64(),
				CurrencyID:  req.Currency,
			},
		},
		Payer: &preference.PayerRequest{
			Email: req.PayerEmail,
		},
		ExternalReference: req.ExternalReference,
		Metadata:          req.Metadata,
		AutoReturn:        "approved",
		BackURLs: &preference.BackURLsRequest{
			Success: a.settings.SuccessURL,
			Failure: a.settings.FailureURL,
			Pending: a.settings.PendingURL,
		},
		NotificationURL: a.settings.NotificationURL,
	}

	result, err := a.preferences.Create(ctx, prefRequest)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to create preference: "+err.Error(), domain.CodeUpstreamGateway)
	}

	return &domain.Preference{
		ID:               result.ID,
		InitPoint:        result.InitPoint,
		SandboxInitPoint: result.SandboxInitPoint,
	}, nil
}

// GetPayment retrieves payment details from Mercado Pago.
func (a *Adapter) GetPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest,
			"invalid payment ID format", domain.CodeValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, a.settings.Timeout)
	defer cancel()

	result, err := a.payments.Get(ctx, id)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to get payment info: "+err.Error(), domain.CodeUpstreamGateway)
	}

	return &domain.GatewayPayment{
		ID:                strconv.Itoa(result.ID),
		Status:            result.Status,
		StatusDetail:      result.StatusDetail,
		ExternalReference: result.ExternalReference,
		Metadata:          result.Metadata,
		Amount:            decimal.NewFromFloat(result.TransactionAmount),
		Currency:          result.CurrencyID,
		PaymentMethod:     result.PaymentMethodID,
		PayerEmail:        result.Payer.Email,
	}, nil
}

// GetMerchantOrder retrieves a merchant order with its payments.
func (a *Adapter) GetMerchantOrder(ctx context.Context, orderID string) (*domain.GatewayOrder, error) {
	id, err := strconv.Atoi(orderID)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest,
			"invalid merchant order ID format", domain.CodeValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, a.settings.Timeout)
	defer cancel()

	result, err := a.merchantOrders.Get(ctx, id)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			fmt.Sprintf("failed to get merchant order %s: %v", orderID, err), domain.CodeUpstreamGateway)
	}

	order := &domain.GatewayOrder{
		ID:                strconv.Itoa(result.ID),
		PreferenceID:      result.PreferenceID,
		ExternalReference: result.ExternalReference,
	}
	for _, p := range result.Payments {
		order.Payments = append(order.Payments, domain.GatewayOrderPayment{
			ID:     strconv.Itoa(p.ID),
			Status: p.Status,
		})
	}
	return order, nil
}
