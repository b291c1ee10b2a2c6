package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/router"
)

// PayoutHandler handles payout execution, reconciliation and queries
type PayoutHandler struct {
	BaseHandler
	payouts *settlementapp.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(payouts *settlementapp.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// Routes returns the payout route group
func (h *PayoutHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("payouts", "").
		POST("/settlements/:id/payouts", h.Execute).
		POST("/settlements/:id/mark-paid", h.MarkPaid).
		GET("/payouts", h.List).
		GET("/payouts/:id", h.Get).
		POST("/payouts/:id/reconcile", h.Reconcile)
}

// Execute godoc
// @ID           executePayout
// @Summary      Pay out a pending settlement
// @Description  An unknown provider outcome answers 202 with the processing payout.
// @Tags         payouts
// @Produce      json
// @Param        id path string true "Settlement ID" format(uuid)
// @Success      200 {object} dto.Response{data=settlement.Payout}
// @Success      202 {object} dto.Response{data=settlement.Payout}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements/{id}/payouts [post]
func (h *PayoutHandler) Execute(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	settlementID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.payouts.ExecutePayout(c.Request.Context(), settlementID)
	h.respondPayout(c, payout, err)
}

// Reconcile godoc
// @ID           reconcilePayout
// @Summary      Resolve a payout with an unknown outcome
// @Tags         payouts
// @Produce      json
// @Param        id path string true "Payout ID" format(uuid)
// @Success      200 {object} dto.Response{data=settlement.Payout}
// @Success      202 {object} dto.Response{data=settlement.Payout}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payouts/{id}/reconcile [post]
func (h *PayoutHandler) Reconcile(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	payoutID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.payouts.ReconcilePayout(c.Request.Context(), payoutID)
	h.respondPayout(c, payout, err)
}

// MarkPaid godoc
// @ID           markSettlementPaid
// @Summary      Mark a settlement paid outside the provider
// @Tags         payouts
// @Accept       json
// @Produce      json
// @Param        id path string true "Settlement ID" format(uuid)
// @Param        request body dto.ManualPaymentRequest true "Payment channel and optional reference"
// @Success      200 {object} dto.Response{data=settlement.Payout}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements/{id}/mark-paid [post]
func (h *PayoutHandler) MarkPaid(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	settlementID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ManualPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	payout, err := h.payouts.MarkSettlementPaidManually(c.Request.Context(), settlementapp.ManualPaymentRequest{
		SettlementID: settlementID,
		Channel:      req.Channel,
		Reference:    req.Reference,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payout)
}

// List godoc
// @ID           listPayouts
// @Summary      List payouts
// @Tags         payouts
// @Produce      json
// @Param        partner_id query string false "Partner ID" format(uuid)
// @Param        settlement_id query string false "Settlement ID" format(uuid)
// @Param        status query []string false "Status" Enums(pending, processing, paid, failed)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(200)
// @Success      200 {object} dto.Response{data=[]settlement.Payout,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payouts [get]
func (h *PayoutHandler) List(c *gin.Context) {
	var req dto.ListPayoutsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	filter := settlement.PayoutFilter{Filter: req.ToFilter()}
	if req.PartnerID != "" {
		id := uuid.MustParse(req.PartnerID)
		filter.PartnerID = &id
	}
	if req.SettlementID != "" {
		id := uuid.MustParse(req.SettlementID)
		filter.SettlementID = &id
	}
	for _, s := range req.Status {
		filter.Statuses = append(filter.Statuses, settlement.PayoutStatus(s))
	}

	scope, ok := partnerScope(c)
	if !ok {
		h.Forbidden(c, "Partner role required")
		return
	}
	if scope != nil {
		if filter.PartnerID != nil && *filter.PartnerID != *scope {
			h.Forbidden(c, "Not allowed to access this partner")
			return
		}
		filter.PartnerID = scope
	}

	page, err := h.payouts.ListPayouts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
// @ID           getPayout
// @Summary      Get a payout
// @Tags         payouts
// @Produce      json
// @Param        id path string true "Payout ID" format(uuid)
// @Success      200 {object} dto.Response{data=settlement.Payout}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payouts/{id} [get]
func (h *PayoutHandler) Get(c *gin.Context) {
	payoutID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	payout, err := h.payouts.GetPayout(c.Request.Context(), payoutID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !h.requirePartner(c, payout.PartnerID) {
		return
	}
	h.Success(c, payout)
}

func (h *PayoutHandler) respondPayout(c *gin.Context, payout *settlement.Payout, err error) {
	if err != nil {
		if shared.ErrorCode(err) == shared.CodeOutcomeUnknown && payout != nil {
			h.Accepted(c, payout)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, payout)
}
