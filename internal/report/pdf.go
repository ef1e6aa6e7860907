// Package report renders the damage report handed to tenants and landlords.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"fairstay-backend/internal/domain"
)

// ErrNotCompleted is returned for images whose analysis has not completed.
var ErrNotCompleted = errors.New("report: analysis not completed")

const (
	title      = "Property Damage Report"
	disclaimer = "This report is the result of automated AI analysis and is provided for reference only."
	footer     = "FairStay - automated property damage detection"
	notFound   = "No damage was detected."
	dateLayout = "2006-01-02 15:04 MST"
)

// Render builds an A4 PDF for a completed image. Output depends only on the
// image and generatedAt.
func Render(img domain.Image, generatedAt time.Time) ([]byte, error) {
	if img.Analysis.Status != domain.StatusCompleted {
		return nil, ErrNotCompleted
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetTitle(title, false)
	pdf.SetCreator("fairstay-backend", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated: "+generatedAt.UTC().Format(dateLayout), "", 1, "R", false, 0, "")
	if img.CreatedAt > 0 {
		captured := time.UnixMilli(img.CreatedAt).UTC().Format(dateLayout)
		pdf.CellFormat(0, 6, "Captured: "+captured, "", 1, "R", false, 0, "")
	}
	pdf.Ln(8)

	section(pdf, "Inspected image")
	pdf.SetFont("Helvetica", "U", 9)
	pdf.SetTextColor(0, 0, 200)
	pdf.CellFormat(0, 6, img.ImageURL, "", 1, "L", false, 0, img.ImageURL)
	if img.ProcessedImageURL != "" {
		pdf.CellFormat(0, 6, img.ProcessedImageURL, "", 1, "L", false, 0, img.ProcessedImageURL)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(8)

	section(pdf, "Damage analysis")
	damages := img.Analysis.Damages
	if len(damages) == 0 {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 7, notFound, "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 7, fmt.Sprintf("%d damage(s) detected.", len(damages)), "", 1, "L", false, 0, "")
		pdf.Ln(3)
		for i, d := range damages {
			damageEntry(pdf, i+1, d)
		}
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.MultiCell(0, 4, disclaimer, "", "C", false)
	pdf.CellFormat(0, 4, footer, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: render: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *fpdf.Fpdf, heading string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, heading, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func damageEntry(pdf *fpdf.Fpdf, n int, d domain.Damage) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, fmt.Sprintf("%d. %s", n, orNA(d.Type)), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		"Severity: " + orNA(d.Severity),
		"Location: " + orNA(d.Location),
		"Confidence: " + confidence(d.Confidence),
	}
	if b := d.BoundingBox; b != nil {
		lines = append(lines, fmt.Sprintf("Region: x=%.0f y=%.0f w=%.0f h=%.0f", b.X, b.Y, b.Width, b.Height))
	}
	for _, l := range lines {
		pdf.CellFormat(6, 5, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, l, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
}

func confidence(c float64) string {
	if c <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", c*100)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
