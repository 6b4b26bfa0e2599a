package report

import (
	"bytes"
	"fmt"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"github.com/go-pdf/fpdf"
)

// ReportError carries an operation-coded failure from the report generator.
type ReportError struct {
	code string
	err  error
}

func (e *ReportError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ReportError) Unwrap() error {
	return e.err
}

func (e *ReportError) Code() string {
	return e.code
}

const (
	opRulingReport     = "report.ruling"
	opComparisonReport = "report.comparison"
)

func newReportError(operation, reason string, cause error) error {
	return &ReportError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// RulingReport renders one ruling as a PDF document.
func RulingReport(ruling rulings.Ruling) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, translate("REPORTE DE SENTENCIA"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	writeMetadataTable(pdf, translate, [][2]string{
		{"Número de Sentencia", ruling.RulingNumber},
		{"Fecha de Publicación", ruling.PublicationDate},
		{"Demandante", ruling.Plaintiff},
		{"Demandado", ruling.Defendant},
		{"Expediente", ruling.CaseFileNumber},
	})
	pdf.Ln(8)

	if ruling.Summary != "" {
		writeSection(pdf, translate, "Resumen", ruling.Summary)
	}
	if ruling.Keywords != "" {
		writeSection(pdf, translate, "Palabras Clave", ruling.Keywords)
	}

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, translate("Fundamentos"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for i, paragraph := range ruling.GroundsList() {
		pdf.MultiCell(0, 6, translate(fmt.Sprintf("%d. %s", i+1, paragraph)), "", "J", false)
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, newReportError(opRulingReport, "render_failed", err)
	}
	return buf.Bytes(), nil
}

// ComparisonReport renders a side-by-side metadata table for two rulings plus
// their content-similarity ratio.
func ComparisonReport(first, second rulings.Ruling, similarity float64) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 14, translate("ANÁLISIS COMPARATIVO DE SENTENCIAS"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(50, 8, translate("Aspecto"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 8, translate("Sentencia 1"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 8, translate("Sentencia 2"), "1", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	rows := [][3]string{
		{"Número", first.RulingNumber, second.RulingNumber},
		{"Fecha", first.PublicationDate, second.PublicationDate},
		{"Demandante", first.Plaintiff, second.Plaintiff},
		{"Demandado", first.Defendant, second.Defendant},
		{"Expediente", first.CaseFileNumber, second.CaseFileNumber},
	}
	for _, row := range rows {
		pdf.CellFormat(50, 8, translate(row[0]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 8, translate(row[1]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 8, translate(row[2]), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, translate("Análisis de Contenido"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, translate(fmt.Sprintf("Similitud de contenido: %.1f%%", similarity*100)), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, newReportError(opComparisonReport, "render_failed", err)
	}
	return buf.Bytes(), nil
}

func writeMetadataTable(pdf *fpdf.Fpdf, translate func(string) string, rows [][2]string) {
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 8, translate(row[0]+":"), "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(130, 8, translate(row[1]), "1", 1, "L", false, 0, "")
	}
}

func writeSection(pdf *fpdf.Fpdf, translate func(string) string, title, body string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, translate(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, translate(body), "", "J", false)
	pdf.Ln(4)
}
