// Package export renders settlement statements as PDF and settlement lists as XLSX.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/erp/settlement/internal/domain/settlement"
)

// MIME types of the rendered documents
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Renderer builds statement documents. It holds no state and is safe for concurrent use.
type Renderer struct {
	// Title heads every statement
	Title string
}

// NewRenderer creates a Renderer
func NewRenderer() *Renderer {
	return &Renderer{Title: "Partner Settlement Statement"}
}

// RenderStatementPDF renders one settlement with its payout attempts
func (r *Renderer) RenderStatementPDF(st *settlement.Settlement, payouts []settlement.Payout) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("settlement is required")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.Title, false)
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, r.Title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	line := func(label, value string) {
		pdf.CellFormat(45, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
	}
	line("Settlement", st.ID.String())
	line("Partner", st.PartnerID.String())
	line("Period", fmt.Sprintf("%s to %s (end exclusive)",
		st.Period.Start.Format(time.DateOnly), st.Period.End.Format(time.DateOnly)))
	line("Status", string(st.Status))
	line("Generated", st.CreatedAt.UTC().Format(time.RFC3339))
	if st.PaidAt != nil {
		line("Paid", st.PaidAt.UTC().Format(time.RFC3339))
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 7, "", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, "Amount", "1", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	amount := func(label, value string) {
		pdf.CellFormat(70, 7, label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, value, "1", 1, "R", false, 0, "")
	}
	amount(fmt.Sprintf("Gross (%d transactions)", st.TransactionCount), st.TotalGross.StringFixed(2))
	amount("Platform fee", st.TotalPlatformFee.StringFixed(2))
	amount("Net payable to partner", st.TotalPartnerNet.StringFixed(2))

	if len(payouts) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Payout attempts")
		pdf.Ln(7)
		headers := []struct {
			title string
			width float64
		}{{"Created", 40}, {"Method", 30}, {"Status", 25}, {"Reference", 55}, {"Amount", 30}}
		for _, h := range headers {
			pdf.CellFormat(h.width, 6, h.title, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, p := range payouts {
			ref := p.ProviderReference
			if ref == "" {
				ref = p.ClientReference
			}
			pdf.CellFormat(40, 6, p.CreatedAt.UTC().Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, p.PayoutMethod, "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, string(p.Status), "1", 0, "L", false, 0, "")
			pdf.CellFormat(55, 6, truncate(ref, 30), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, p.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// settlementColumns is the header row of the XLSX export
var settlementColumns = []string{
	"Settlement ID", "Partner ID", "Period Start", "Period End", "Status",
	"Transactions", "Gross", "Platform Fee", "Partner Net", "Paid At",
}

// RenderSettlementsXLSX renders a list of settlements, one row each, with a totals row
func (r *Renderer) RenderSettlementsXLSX(settlements []settlement.Settlement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "settlements"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, title := range settlementColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}

	for i, st := range settlements {
		row := i + 2
		paidAt := ""
		if st.PaidAt != nil {
			paidAt = st.PaidAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			st.ID.String(),
			st.PartnerID.String(),
			st.Period.Start.Format(time.DateOnly),
			st.Period.End.Format(time.DateOnly),
			string(st.Status),
			st.TransactionCount,
			st.TotalGross.InexactFloat64(),
			st.TotalPlatformFee.InexactFloat64(),
			st.TotalPartnerNet.InexactFloat64(),
			paidAt,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	if n := len(settlements); n > 0 {
		totalRow := n + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", totalRow), "Total")
		for _, col := range []string{"F", "G", "H", "I"} {
			_ = f.SetCellFormula(sheet, fmt.Sprintf("%s%d", col, totalRow),
				fmt.Sprintf("SUM(%s2:%s%d)", col, col, totalRow-1))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render XLSX: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
