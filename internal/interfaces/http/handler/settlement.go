package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/router"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// maxExportRows caps a single spreadsheet export
	maxExportRows = 10000
)

// StatementRenderer renders settlement documents
type StatementRenderer interface {
	RenderStatementPDF(st *settlement.Settlement, payouts []settlement.Payout) ([]byte, error)
	RenderSettlementsXLSX(settlements []settlement.Settlement) ([]byte, error)
}

// SettlementHandler handles settlement generation and queries
type SettlementHandler struct {
	BaseHandler
	settlements *settlementapp.SettlementService
	renderer    StatementRenderer
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(settlements *settlementapp.SettlementService, renderer StatementRenderer) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		renderer:    renderer,
	}
}

// Routes returns the settlement route group
func (h *SettlementHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("settlements", "/settlements").
		POST("/generate", h.Generate).
		GET("", h.List).
		GET("/export.xlsx", h.ExportXLSX).
		GET("/:id", h.Get).
		GET("/:id/statement.pdf", h.StatementPDF)
}

// Generate godoc
// @ID           generateSettlement
// @Summary      Generate a partner settlement
// @Description  Aggregates the partner's unsettled transactions in [period_start, period_end).
// @Description  Answers 201 when a settlement was created and 200 when an existing one was
// @Description  returned or the empty period was skipped.
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        request body dto.GenerateSettlementRequest true "Partner and period"
// @Success      200 {object} dto.Response{data=settlementapp.GenerateResult}
// @Success      201 {object} dto.Response{data=settlementapp.GenerateResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements/generate [post]
func (h *SettlementHandler) Generate(c *gin.Context) {
	var req dto.GenerateSettlementRequest
	if !h.bindJSON(c, &req) {
		return
	}
	partnerID := uuid.MustParse(req.PartnerID)
	if !h.requirePartner(c, partnerID) {
		return
	}

	result, err := h.settlements.Generate(c.Request.Context(), settlementapp.GenerateRequest{
		PartnerID:   partnerID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		SkipEmpty:   req.SkipEmpty,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if result.Created {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

// List godoc
// @ID           listSettlements
// @Summary      List settlements
// @Tags         settlements
// @Produce      json
// @Param        partner_id query string false "Partner ID" format(uuid)
// @Param        status query []string false "Status" Enums(pending, processing, paid, completed, failed, cancelled)
// @Param        period_from query string false "Earliest period start" format(date-time)
// @Param        period_to query string false "Latest period end" format(date-time)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(200)
// @Success      200 {object} dto.Response{data=[]settlement.Settlement,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements [get]
func (h *SettlementHandler) List(c *gin.Context) {
	filter, ok := h.settlementFilter(c)
	if !ok {
		return
	}

	page, err := h.settlements.ListSettlements(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
// @ID           getSettlement
// @Summary      Get a settlement with its payout attempts
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Settlement ID" format(uuid)
// @Success      200 {object} dto.Response{data=settlementapp.SettlementDetail}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements/{id} [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	detail, ok := h.detail(c)
	if !ok {
		return
	}
	h.Success(c, detail)
}

// StatementPDF godoc
// @ID           getSettlementStatementPdf
// @Summary      Download the settlement statement
// @Tags         settlements
// @Produce      application/pdf
// @Param        id path string true "Settlement ID" format(uuid)
// @Success      200 {file} binary
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements/{id}/statement.pdf [get]
func (h *SettlementHandler) StatementPDF(c *gin.Context) {
	detail, ok := h.detail(c)
	if !ok {
		return
	}

	body, err := h.renderer.RenderStatementPDF(detail.Settlement, detail.Payouts)
	if err != nil {
		h.HandleError(c, fmt.Errorf("render statement: %w", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, detail.Settlement.ID))
	c.Data(http.StatusOK, contentTypePDF, body)
}

// ExportXLSX godoc
// @ID           exportSettlementsXlsx
// @Summary      Export settlements as a spreadsheet
// @Description  Takes the list filters. Paging parameters are ignored; every match up to maxExportRows is exported.
// @Tags         settlements
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        partner_id query string false "Partner ID" format(uuid)
// @Param        status query []string false "Status" Enums(pending, processing, paid, completed, failed, cancelled)
// @Success      200 {file} binary
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /settlements/export.xlsx [get]
func (h *SettlementHandler) ExportXLSX(c *gin.Context) {
	filter, ok := h.settlementFilter(c)
	if !ok {
		return
	}
	filter.Page = 1
	filter.PageSize = shared.MaxPageSize

	var rows []settlement.Settlement
	for len(rows) < maxExportRows {
		page, err := h.settlements.ListSettlements(c.Request.Context(), filter)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		rows = append(rows, page.Items...)
		if filter.Page >= page.TotalPages {
			break
		}
		filter.Page++
	}
	if len(rows) > maxExportRows {
		rows = rows[:maxExportRows]
	}

	body, err := h.renderer.RenderSettlementsXLSX(rows)
	if err != nil {
		h.HandleError(c, fmt.Errorf("render export: %w", err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="settlements.xlsx"`)
	c.Data(http.StatusOK, contentTypeXLSX, body)
}

func (h *SettlementHandler) detail(c *gin.Context) (*settlementapp.SettlementDetail, bool) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	detail, err := h.settlements.GetSettlementDetail(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	if !h.requirePartner(c, detail.Settlement.PartnerID) {
		return nil, false
	}
	return detail, true
}

// settlementFilter binds the list query and confines partner callers to
// their own settlements
func (h *SettlementHandler) settlementFilter(c *gin.Context) (settlement.Filter, bool) {
	var req dto.ListSettlementsRequest
	if !h.bindQuery(c, &req) {
		return settlement.Filter{}, false
	}

	filter := settlement.Filter{Filter: req.ToFilter()}
	if req.PartnerID != "" {
		id := uuid.MustParse(req.PartnerID)
		filter.PartnerID = &id
	}
	for _, s := range req.Status {
		filter.Statuses = append(filter.Statuses, settlement.Status(s))
	}
	if !req.PeriodFrom.IsZero() {
		from := req.PeriodFrom.UTC()
		filter.PeriodFrom = &from
	}
	if !req.PeriodTo.IsZero() {
		to := req.PeriodTo.UTC()
		filter.PeriodTo = &to
	}

	scope, ok := partnerScope(c)
	if !ok {
		h.Forbidden(c, "Partner role required")
		return settlement.Filter{}, false
	}
	if scope != nil {
		if filter.PartnerID != nil && *filter.PartnerID != *scope {
			h.Forbidden(c, "Not allowed to access this partner")
			return settlement.Filter{}, false
		}
		filter.PartnerID = scope
	}
	return filter, true
}
