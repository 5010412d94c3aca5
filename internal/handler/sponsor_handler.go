package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/dto"
	"github.com/shinelocal/spotlight/internal/metrics"
	"github.com/shinelocal/spotlight/internal/service"
	"github.com/shinelocal/spotlight/pkg/response"
)

// Conflict codes surfaced on 409 responses. These are expected business
// outcomes, not failures.
const (
	CodeSlotTaken        = "slot_taken"
	CodeAlreadySponsored = "already_sponsored"
	CodeNoRemaining      = "no_remaining"
)

// SponsorHandler handles the sponsored-placement HTTP endpoints.
type SponsorHandler struct {
	checkout *service.CheckoutService
	logger   *zap.Logger
}

// NewSponsorHandler creates a new SponsorHandler.
func NewSponsorHandler(checkout *service.CheckoutService, logger *zap.Logger) *SponsorHandler {
	return &SponsorHandler{checkout: checkout, logger: logger}
}

// CreateCheckout handles POST /api/v1/sponsored-checkout.
func (h *SponsorHandler) CreateCheckout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Slot < 0 {
		response.BadRequest(c, "slot must not be negative")
		return
	}

	resp, err := h.checkout.CreateCheckout(c.Request.Context(), &req)
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	if metrics.CheckoutsStarted != nil {
		metrics.CheckoutsStarted.Inc(c.Request.Context())
	}
	response.Success(c, resp)
}

// Preview handles POST /api/v1/sponsored-preview. Read-only.
func (h *SponsorHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.checkout.Preview(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrAreaNotFound) {
			response.NotFound(c, "service area not found")
			return
		}
		h.logger.Error("preview failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}
	response.Success(c, resp)
}

// CancelSubscription handles POST /api/v1/subscription-cancel.
func (h *SponsorHandler) CancelSubscription(c *gin.Context) {
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Action != dto.CancelActionCancel && req.Action != dto.CancelActionReactivate {
		response.BadRequest(c, "action must be cancel or reactivate")
		return
	}

	sp, err := h.checkout.Cancel(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSponsorshipNotFound):
			response.NotFound(c, "no active sponsorship for this area")
		case errors.Is(err, domain.ErrInvalidStatusTransition):
			response.Conflict(c, "invalid_state", "sponsorship cannot change to the requested state", "")
		default:
			h.logger.Error("cancel failed", zap.Error(err))
			response.InternalError(c, err)
		}
		return
	}

	view := dto.NewSponsorshipView(sp)
	response.Success(c, view)
}

// ListAreaSponsorships handles GET /api/v1/areas/:id/sponsorships.
func (h *SponsorHandler) ListAreaSponsorships(c *gin.Context) {
	areaID := c.Param("id")
	if areaID == "" {
		response.BadRequest(c, "area id is required")
		return
	}

	list, err := h.checkout.ListForArea(c.Request.Context(), areaID)
	if err != nil {
		if errors.Is(err, domain.ErrAreaNotFound) {
			response.NotFound(c, "service area not found")
			return
		}
		h.logger.Error("list sponsorships failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}

	views := make([]dto.SponsorshipView, 0, len(list))
	for _, sp := range list {
		views = append(views, dto.NewSponsorshipView(sp))
	}
	response.Success(c, views)
}

func (h *SponsorHandler) respondCheckoutError(c *gin.Context, err error) {
	var lockHeld *domain.LockHeldError
	switch {
	case errors.As(err, &lockHeld):
		metrics.RecordCheckoutConflict(c.Request.Context(), CodeSlotTaken)
		response.Conflict(c, CodeSlotTaken, "another business is completing a purchase for this slot", lockHeld.HolderBusinessID)
	case errors.Is(err, domain.ErrAlreadySponsored):
		metrics.RecordCheckoutConflict(c.Request.Context(), CodeAlreadySponsored)
		response.Conflict(c, CodeAlreadySponsored, "business already sponsors this area", "")
	case errors.Is(err, domain.ErrNoRemainingArea):
		metrics.RecordCheckoutConflict(c.Request.Context(), CodeNoRemaining)
		response.Conflict(c, CodeNoRemaining, "no purchasable area remains for this slot", "")
	case errors.Is(err, domain.ErrAreaNotFound):
		response.NotFound(c, "service area not found")
	default:
		if metrics.CheckoutsFailed != nil {
			metrics.CheckoutsFailed.Inc(c.Request.Context())
		}
		h.logger.Error("checkout failed", zap.Error(err))
		response.InternalError(c, err)
	}
}
