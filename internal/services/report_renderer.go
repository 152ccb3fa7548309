package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/models"
)

// ReportRenderer renders a completed Inspection's diagnostic report into
// host-facing export formats. It never touches the inspection core: it only
// walks the already-produced diag.ContainerReport.
type ReportRenderer struct{}

// NewReportRenderer constructs a ReportRenderer.
func NewReportRenderer() *ReportRenderer {
	return &ReportRenderer{}
}

// RenderPDF produces a PDF summary of an inspection:
// header, file/container info, and the diagnostic list grouped by severity.
func (r *ReportRenderer) RenderPDF(insp *models.Inspection) ([]byte, error) {
	if insp.Report == nil {
		return nil, fmt.Errorf("inspection %s has no report to render", insp.ID)
	}
	report := insp.Report

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(190, 10, "Container Inspection Report")
	pdf.Ln(15)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(40, 6, "Inspection ID:")
	pdf.Cell(150, 6, insp.ID.String())
	pdf.Ln(6)
	pdf.Cell(40, 6, "Source:")
	pdf.Cell(150, 6, insp.SourceURL)
	pdf.Ln(6)
	pdf.Cell(40, 6, "Container Type:")
	pdf.Cell(150, 6, string(report.ContainerType))
	pdf.Ln(6)
	pdf.Cell(40, 6, "Depth:")
	pdf.Cell(150, 6, string(insp.Depth))
	pdf.Ln(6)
	pdf.Cell(40, 6, "Generated:")
	pdf.Cell(150, 6, time.Now().Format("2006-01-02 15:04:05"))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(190, 8, fmt.Sprintf("Diagnostics (%d)", len(report.Diagnostics)))
	pdf.Ln(10)

	if len(report.Diagnostics) == 0 {
		pdf.SetFont("Arial", "", 10)
		pdf.Cell(190, 6, "No diagnostics.")
		pdf.Ln(8)
	}

	for _, d := range report.Diagnostics {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(190, 6, fmt.Sprintf("[%s] %s", severityLabel(d.Severity), d.Title), "", 1, "", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		detail := fmt.Sprintf("%s  (category: %s, remediation: %s)", d.Detail, d.Category, d.Remediation)
		if d.Offset != nil {
			detail = fmt.Sprintf("%s  [offset %d]", detail, *d.Offset)
		}
		for _, line := range splitReportText(detail, 100) {
			pdf.Cell(190, 5, line)
			pdf.Ln(5)
		}
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderXLSX produces a spreadsheet with a summary sheet and a diagnostics
// sheet (one row per Diagnostic), suitable for bulk triage across many
// inspected files.
func (r *ReportRenderer) RenderXLSX(insp *models.Inspection) ([]byte, error) {
	if insp.Report == nil {
		return nil, fmt.Errorf("inspection %s has no report to render", insp.ID)
	}
	report := insp.Report

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName("Sheet1", summarySheet)
	f.SetCellValue(summarySheet, "A1", "Inspection ID")
	f.SetCellValue(summarySheet, "B1", insp.ID.String())
	f.SetCellValue(summarySheet, "A2", "Source")
	f.SetCellValue(summarySheet, "B2", insp.SourceURL)
	f.SetCellValue(summarySheet, "A3", "Container Type")
	f.SetCellValue(summarySheet, "B3", string(report.ContainerType))
	f.SetCellValue(summarySheet, "A4", "Depth")
	f.SetCellValue(summarySheet, "B4", string(insp.Depth))
	f.SetCellValue(summarySheet, "A5", "Has Errors")
	f.SetCellValue(summarySheet, "B5", report.HasErrors())
	f.SetCellValue(summarySheet, "A6", "Has Warnings")
	f.SetCellValue(summarySheet, "B6", report.HasWarnings())
	f.SetCellValue(summarySheet, "A7", "Remux Fixable")
	f.SetCellValue(summarySheet, "B7", report.IsRemuxFixable())

	boldStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(summarySheet, "A1", "A7", boldStyle)

	const diagSheet = "Diagnostics"
	f.NewSheet(diagSheet)
	headers := []string{"ID", "Severity", "Category", "Title", "Detail", "Offset", "Remediation", "PlayerNote"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(diagSheet, cell, h)
	}
	f.SetCellStyle(diagSheet, "A1", "H1", boldStyle)

	for i, d := range report.Diagnostics {
		row := i + 2
		offset := ""
		if d.Offset != nil {
			offset = fmt.Sprintf("%d", *d.Offset)
		}
		values := []interface{}{d.ID, string(d.Severity), string(d.Category), d.Title, d.Detail, offset, string(d.Remediation), d.PlayerNote}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(diagSheet, cell, v)
		}
	}

	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func severityLabel(s diag.Severity) string {
	switch s {
	case diag.SeverityError:
		return "ERROR"
	case diag.SeverityWarning:
		return "WARN"
	default:
		return "INFO"
	}
}

func splitReportText(text string, maxLen int) []string {
	var lines []string
	words := bytes.Fields([]byte(text))

	var current bytes.Buffer
	for _, word := range words {
		if current.Len()+len(word)+1 > maxLen && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.Write(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
