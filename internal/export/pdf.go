// Package export renders a hydrated monthly submission to a PDF summary the
// user can download or print.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/submission"
)

type Line struct {
	Title  string
	Rating float64
	Weight float64
	Pillar string
}

// Summary is the flattened, display-ready view of one month.
type Summary struct {
	Month          string
	EmployeeName   string
	Status         string
	SubmittedAt    *time.Time
	SelfReview     string
	KPIs           []Line
	Values         []Line
	Certifications []submission.Certification
	Recognitions   int
}

// BuildSummary joins the snapshot's rating maps with the master definition
// lists so every line carries a human title. Unrated definitions are skipped.
func BuildSummary(snap submission.Snapshot, employeeName string) Summary {
	s := Summary{
		Month:          snap.Month,
		EmployeeName:   employeeName,
		Status:         snap.Meta.Status,
		SubmittedAt:    snap.Meta.SubmittedAt,
		SelfReview:     snap.SelfReview,
		Certifications: snap.Certifications,
		Recognitions:   snap.RecognitionsCount,
	}
	if s.Status == "" {
		s.Status = submission.StatusDraft
	}
	s.KPIs = lines(snap.MasterKPIs, snap.KPIRatings)
	s.Values = lines(snap.MasterValues, snap.ValueRatings)
	return s
}

func lines(defs []catalog.Definition, ratings map[string]float64) []Line {
	out := make([]Line, 0, len(ratings))
	for _, def := range defs {
		v, ok := ratings[def.ID]
		if !ok {
			continue
		}
		out = append(out, Line{Title: def.Title, Rating: v, Weight: def.Weight, Pillar: def.Pillar})
	}
	return out
}

// WritePDF renders the summary to path, creating parent directories.
func WritePDF(path string, s Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Monthly Performance Review")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", s.EmployeeName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Month: %s", s.Month))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", s.Status))
	pdf.Ln(7)
	if s.SubmittedAt != nil {
		pdf.Cell(0, 8, fmt.Sprintf("Submitted: %s", s.SubmittedAt.Format("2006-01-02 15:04 MST")))
		pdf.Ln(7)
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Self Review")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, s.SelfReview, "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "KPI Ratings")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range s.KPIs {
		pdf.Cell(0, 6, fmt.Sprintf("%s (weight %.0f): %.1f", line.Title, line.Weight, line.Rating))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Value Ratings")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range s.Values {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %.1f", line.Title, line.Rating))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	if len(s.Certifications) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Certifications")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, cert := range s.Certifications {
			pdf.Cell(0, 6, fmt.Sprintf("%s - %s", cert.Name, cert.Proof))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Recognitions received: %d", s.Recognitions))

	return pdf.OutputFileAndClose(path)
}
