// Package handlers contains the HTTP handlers for the reservation service.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/service"
)

// ReservationUseCases is the reservation lifecycle used by the handlers.
type ReservationUseCases interface {
	CreateReservation(ctx context.Context, in service.CreateReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id, callerID int64) (*domain.ReservationView, error)
	ListReservations(ctx context.Context, callerID int64, role domain.PartyRole, partyID int64, limit, offset int) ([]domain.Reservation, error)
	RepriceOffering(ctx context.Context, providerID, serviceID int64, unitPrice decimal.Decimal) (int, error)
	CancelReservation(ctx context.Context, id, callerID int64) (*domain.Reservation, error)
	StartService(ctx context.Context, id, callerID int64) (*domain.Reservation, error)
}

// CheckoutUseCase issues pay links.
type CheckoutUseCase interface {
	RequestPayLink(ctx context.Context, in service.PayLinkInput) (*service.PayLink, error)
}

// EscrowUseCase records completion confirmations.
type EscrowUseCase interface {
	ConfirmCompletion(ctx context.Context, in service.ConfirmInput) (*service.ConfirmResult, error)
}

// ReviewUseCases gates and stores reviews.
type ReviewUseCases interface {
	Eligibility(ctx context.Context, reservationID, callerID int64) (*service.Eligibility, error)
	SubmitReview(ctx context.Context, in service.SubmitReviewInput) (*domain.Review, error)
}

// ReservationHandler handles HTTP requests for reservations.
type ReservationHandler struct {
	reservations ReservationUseCases
	checkout     CheckoutUseCase
	escrow       EscrowUseCase
	reviews      ReviewUseCases
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(reservations ReservationUseCases, checkout CheckoutUseCase, escrow EscrowUseCase, reviews ReviewUseCases) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		checkout:     checkout,
		escrow:       escrow,
		reviews:      reviews,
	}
}

// Health handles GET /health
func (h *ReservationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "petcare-payments",
	})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

type createReservationRequest struct {
	RequesterID int64      `json:"requester_id" binding:"required"`
	ProviderID  int64      `json:"provider_id" binding:"required"`
	PetID       int64      `json:"pet_id" binding:"required"`
	ServiceID   int64      `json:"service_id" binding:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Quantity    int        `json:"quantity"`
}

// CreateReservation handles POST /api/v1/reservations
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	r, err := h.reservations.CreateReservation(c.Request.Context(), service.CreateReservationInput{
		CallerID:    callerID(c),
		RequesterID: req.RequesterID,
		ProviderID:  req.ProviderID,
		SubjectID:   req.PetID,
		ServiceID:   req.ServiceID,
		ScheduledAt: req.ScheduledAt,
		Quantity:    req.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListReservations handles GET /api/v1/reservations?role=&party_id=
func (h *ReservationHandler) ListReservations(c *gin.Context) {
	partyID, err := strconv.ParseInt(c.Query("party_id"), 10, 64)
	if err != nil {
		badRequest(c, "party_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.reservations.ListReservations(c.Request.Context(), callerID(c),
		domain.PartyRole(c.Query("role")), partyID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// GetReservation handles GET /api/v1/reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	view, err := h.reservations.GetReservation(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

type payLinkRequest struct {
	PayerEmail string `json:"payer_email"`
}

// RequestPayLink handles POST /api/v1/reservations/:id/pay-link
func (h *ReservationHandler) RequestPayLink(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req payLinkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	link, err := h.checkout.RequestPayLink(c.Request.Context(), service.PayLinkInput{
		ReservationID: id,
		CallerID:      callerID(c),
		PayerEmail:    req.PayerEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, link)
}

// StartService handles POST /api/v1/reservations/:id/start
func (h *ReservationHandler) StartService(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	r, err := h.reservations.StartService(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// CancelReservation handles POST /api/v1/reservations/:id/cancel
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	r, err := h.reservations.CancelReservation(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

type confirmRequest struct {
	Side domain.PartyRole `json:"side" binding:"required"`
}

// ConfirmCompletion handles POST /api/v1/reservations/:id/confirm
func (h *ReservationHandler) ConfirmCompletion(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Side.Valid() {
		badRequest(c, "side must be provider or requester")
		return
	}

	result, err := h.escrow.ConfirmCompletion(c.Request.Context(), service.ConfirmInput{
		ReservationID: id,
		CallerID:      callerID(c),
		ProviderSide:  req.Side == domain.RoleProvider,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// ReviewEligibility handles GET /api/v1/reservations/:id/review-eligibility
func (h *ReservationHandler) ReviewEligibility(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	elig, err := h.reviews.Eligibility(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, elig)
}

type reviewRequest struct {
	Role    domain.PartyRole `json:"role" binding:"required"`
	Rating  int              `json:"rating" binding:"required"`
	Comment string           `json:"comment"`
}

// SubmitReview handles POST /api/v1/reservations/:id/reviews
func (h *ReservationHandler) SubmitReview(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	review, err := h.reviews.SubmitReview(c.Request.Context(), service.SubmitReviewInput{
		ReservationID: id,
		CallerID:      callerID(c),
		Role:          req.Role,
		Rating:        req.Rating,
		Comment:       req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, review)
}

type repriceRequest struct {
	UnitPrice *decimal.Decimal `json:"unit_price" binding:"required"`
}

// RepriceOffering handles POST /internal/offerings/:provider_id/:service_id/price
// Called by the catalog service when a provider changes a price.
func (h *ReservationHandler) RepriceOffering(c *gin.Context) {
	providerID, valid := pathID(c, "provider_id")
	if !valid {
		return
	}
	serviceID, valid := pathID(c, "service_id")
	if !valid {
		return
	}
	var req repriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	n, err := h.reservations.RepriceOffering(c.Request.Context(), providerID, serviceID, *req.UnitPrice)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"repriced": n})
}
