package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

// ReceiptPDFExporter renders a payment receipt as a printable PDF.
type ReceiptPDFExporter struct {
	institution string
}

// NewReceiptPDFExporter constructs a receipt exporter.
func NewReceiptPDFExporter(institution string) *ReceiptPDFExporter {
	if institution == "" {
		institution = "Office of the Registrar"
	}
	return &ReceiptPDFExporter{institution: institution}
}

// Render produces the PDF bytes for a receipt projection.
func (e *ReceiptPDFExporter) Render(receipt models.Receipt) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, e.institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, "OFFICIAL RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Receipt No.", receipt.ReceiptNumber},
		{"Date", receipt.PaidAt.Format("2006-01-02 15:04")},
		{"Student", receipt.StudentName},
		{"Academic Year", receipt.AcademicYear},
		{"Semester", receipt.Semester},
		{"Payment Method", receipt.Method},
		{"Amount", receipt.Amount.StringFixed(2)},
		{"Remaining Balance", receipt.RemainingBalance.StringFixed(2)},
		{"Received By", receipt.ReceivedBy},
	}

	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, row[1], "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
