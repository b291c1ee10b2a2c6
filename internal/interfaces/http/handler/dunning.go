package handler

import (
	"github.com/gin-gonic/gin"

	dunningapp "github.com/erp/settlement/internal/application/dunning"
	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/router"
)

// DunningHandler handles dunning evaluation, history and access state
type DunningHandler struct {
	BaseHandler
	dunning *dunningapp.DunningService
}

// NewDunningHandler creates a new DunningHandler
func NewDunningHandler(dunning *dunningapp.DunningService) *DunningHandler {
	return &DunningHandler{dunning: dunning}
}

// Routes returns the dunning route group
func (h *DunningHandler) Routes() *router.DomainGroup {
	group := router.NewDomainGroup("dunning", "")
	group.Group("dunning", "/dunning").
		POST("/evaluate", h.EvaluateBatch).
		POST("/accounts/:account_id/evaluate", h.Evaluate).
		GET("/accounts/:account_id/logs", h.ListLogs).
		GET("/accounts/:account_id/access-state", h.GetAccessState).
		PUT("/accounts/:account_id/override", h.SetOverride).
		DELETE("/accounts/:account_id/override", h.ClearOverride)
	group.Group("invoices", "/invoices").
		POST("/:id/mark-paid", h.MarkInvoicePaid)
	return group
}

// Evaluate godoc
// @ID           evaluateDunningAccount
// @Summary      Evaluate an account's dunning level
// @Tags         dunning
// @Produce      json
// @Param        account_id path string true "Account ID" format(uuid)
// @Success      200 {object} dto.Response{data=dunningapp.EvaluationResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dunning/accounts/{account_id}/evaluate [post]
func (h *DunningHandler) Evaluate(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	accountID, ok := h.uuidParam(c, "account_id")
	if !ok {
		return
	}

	result, err := h.dunning.Evaluate(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// EvaluateBatch godoc
// @ID           evaluateDunningAccounts
// @Summary      Evaluate several accounts
// @Description  One account failing does not fail the batch; its result carries the error.
// @Tags         dunning
// @Accept       json
// @Produce      json
// @Param        request body dto.EvaluateAccountsRequest true "Account IDs"
// @Success      200 {object} dto.Response{data=dto.BatchEvaluationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dunning/evaluate [post]
func (h *DunningHandler) EvaluateBatch(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	var req dto.EvaluateAccountsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ids, err := dto.ParseUUIDs(req.AccountIDs)
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	results := h.dunning.EvaluateAccounts(c.Request.Context(), ids)
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	h.Success(c, dto.BatchEvaluationResponse{
		Results:   results,
		Evaluated: len(results) - failed,
		Failed:    failed,
	})
}

// MarkInvoicePaid godoc
// @ID           markInvoicePaid
// @Summary      Mark an invoice paid and re-evaluate its account
// @Tags         dunning
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=dunningapp.EvaluationResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/mark-paid [post]
func (h *DunningHandler) MarkInvoicePaid(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	invoiceID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.dunning.MarkInvoicePaid(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListLogs godoc
// @ID           listDunningLogs
// @Summary      List an account's dunning history
// @Tags         dunning
// @Produce      json
// @Param        account_id path string true "Account ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(200)
// @Success      200 {object} dto.Response{data=[]dunning.Log,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dunning/accounts/{account_id}/logs [get]
func (h *DunningHandler) ListLogs(c *gin.Context) {
	accountID, ok := h.uuidParam(c, "account_id")
	if !ok {
		return
	}
	if !h.requireAccount(c, accountID) {
		return
	}
	var req dto.ListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.dunning.ListLogs(c.Request.Context(), accountID, req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetAccessState godoc
// @ID           getAccessState
// @Summary      Get an account's access state
// @Tags         dunning
// @Produce      json
// @Param        account_id path string true "Account ID" format(uuid)
// @Success      200 {object} dto.Response{data=dunning.AccessState}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dunning/accounts/{account_id}/access-state [get]
func (h *DunningHandler) GetAccessState(c *gin.Context) {
	accountID, ok := h.uuidParam(c, "account_id")
	if !ok {
		return
	}
	if !h.requireAccount(c, accountID) {
		return
	}

	state, err := h.dunning.GetAccessState(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// SetOverride godoc
// @ID           setAccessOverride
// @Summary      Force an account's access state
// @Tags         dunning
// @Accept       json
// @Produce      json
// @Param        account_id path string true "Account ID" format(uuid)
// @Param        request body dto.SetAccessOverrideRequest true "Override"
// @Success      200 {object} dto.Response{data=dunning.Override}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dunning/accounts/{account_id}/override [put]
func (h *DunningHandler) SetOverride(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	accountID, ok := h.uuidParam(c, "account_id")
	if !ok {
		return
	}
	var req dto.SetAccessOverrideRequest
	if !h.bindJSON(c, &req) {
		return
	}

	override, err := h.dunning.SetAccessOverride(c.Request.Context(), dunningapp.SetOverrideRequest{
		AccountID: accountID,
		State:     dunning.AccessStateName(req.State),
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, override)
}

// ClearOverride godoc
// @ID           clearAccessOverride
// @Summary      Remove an account's access override
// @Tags         dunning
// @Param        account_id path string true "Account ID" format(uuid)
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /dunning/accounts/{account_id}/override [delete]
func (h *DunningHandler) ClearOverride(c *gin.Context) {
	if !h.requireOperator(c) {
		return
	}
	accountID, ok := h.uuidParam(c, "account_id")
	if !ok {
		return
	}

	if err := h.dunning.ClearAccessOverride(c.Request.Context(), accountID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
