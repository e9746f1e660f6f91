package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shifahealth/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// PDFGenerator renders adherence profiles into printable reports
type PDFGenerator struct {
	logger *zap.Logger
}

// NewPDFGenerator creates a new PDFGenerator
func NewPDFGenerator(logger *zap.Logger) *PDFGenerator {
	return &PDFGenerator{
		logger: logger,
	}
}

// ReportData contains all data needed for report generation
type ReportData struct {
	Profile   *model.UserAdherenceProfile
	DateRange string
}

// Generate creates a PDF adherence report from the provided data
func (g *PDFGenerator) Generate(data *ReportData) ([]byte, error) {
	g.logger.Info("generating adherence report",
		zap.String("user_id", data.Profile.UserID),
		zap.String("date_range", data.DateRange),
	)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()

	g.addTitle(pdf, "Medication Adherence Report", data.Profile.UserID, data.DateRange)
	g.addOverview(pdf, data.Profile)
	g.addPatterns(pdf, data.Profile.Patterns)
	g.addCulturalImpacts(pdf, data.Profile.Patterns)
	g.addMilestones(pdf, data.Profile.Milestones)
	g.addRecommendations(pdf, data.Profile)

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		g.logger.Error("failed to generate PDF", zap.Error(err))
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	g.logger.Info("adherence report generated successfully",
		zap.Int("size_bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

// addTitle adds the report title and header information
func (g *PDFGenerator) addTitle(pdf *gofpdf.Fpdf, title, userID, dateRange string) {
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Patient: %s", userID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Period: %s", dateRange), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(10)
}

// addSectionHeader adds a section header
func (g *PDFGenerator) addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(0, 10, title, "", 1, "L", true, 0, "")
	pdf.Ln(3)
	pdf.SetFont("Arial", "", 10)
}

// addOverview adds the adherence overview section
func (g *PDFGenerator) addOverview(pdf *gofpdf.Fpdf, profile *model.UserAdherenceProfile) {
	g.addSectionHeader(pdf, "Adherence Overview")

	pdf.CellFormat(0, 6, fmt.Sprintf("Overall adherence rate: %.0f%%", profile.OverallAdherenceRate*100), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Current streak: %d day(s)", profile.Streaks.Current), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Longest streak: %d day(s)", profile.Streaks.Longest), "", 1, "L", false, 0, "")
	if profile.LowConfidence {
		pdf.CellFormat(0, 6, "Note: limited history, figures are low confidence.", "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)
}

// addPatterns adds the timing and channel pattern section
func (g *PDFGenerator) addPatterns(pdf *gofpdf.Fpdf, patterns []model.AdherencePattern) {
	g.addSectionHeader(pdf, "Timing Patterns")

	if len(patterns) == 0 {
		pdf.CellFormat(0, 8, "No patterns detected during this period.", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	for _, p := range patterns {
		pdf.CellFormat(0, 6, fmt.Sprintf("Preferred reminder window: %s - %s", p.TimeWindow.Start, p.TimeWindow.End), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Consistency score: %.0f/100", p.ConsistencyScore), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Trend: %s", p.Trend), "", 1, "L", false, 0, "")

		if len(p.DeliveryMethodStats) > 0 {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(0, 6, "Reminder channels:", "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			methods := make([]string, 0, len(p.DeliveryMethodStats))
			for m := range p.DeliveryMethodStats {
				methods = append(methods, string(m))
			}
			sort.Strings(methods)
			for _, m := range methods {
				ms := p.DeliveryMethodStats[model.DeliveryMethod(m)]
				pdf.CellFormat(0, 5, fmt.Sprintf("  %s: %.0f%% success, %.0f%% of reminders", m, ms.SuccessRate*100, ms.UsageShare*100), "", 1, "L", false, 0, "")
			}
		}
		pdf.Ln(3)
	}
	pdf.Ln(5)
}

// addCulturalImpacts adds the cultural factor section
func (g *PDFGenerator) addCulturalImpacts(pdf *gofpdf.Fpdf, patterns []model.AdherencePattern) {
	g.addSectionHeader(pdf, "Cultural Context")

	found := false
	for _, p := range patterns {
		keys := make([]string, 0, len(p.CulturalRates))
		for k := range p.CulturalRates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fr := p.CulturalRates[k]
			if fr.SampleCount == 0 {
				continue
			}
			found = true
			pdf.CellFormat(0, 5, fmt.Sprintf("  %s: %.0f%% adherence (%+.0f pt impact, %d doses)", k, fr.Rate*100, fr.Impact*100, fr.SampleCount), "", 1, "L", false, 0, "")
		}
	}
	if !found {
		pdf.CellFormat(0, 8, "No doses fell inside cultural conflict windows.", "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)
}

// addMilestones adds the achievements section
func (g *PDFGenerator) addMilestones(pdf *gofpdf.Fpdf, milestones []model.Milestone) {
	g.addSectionHeader(pdf, "Achievements")

	found := false
	for _, m := range milestones {
		if m.AchievedDate == nil {
			continue
		}
		found = true
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, m.Title, "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 5, fmt.Sprintf("  %s (achieved %s)", m.Description, m.AchievedDate.Format("2006-01-02")), "", 1, "L", false, 0, "")
	}
	if !found {
		pdf.CellFormat(0, 8, "No milestones achieved yet.", "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)
}

// addRecommendations adds insights and optimization opportunities
func (g *PDFGenerator) addRecommendations(pdf *gofpdf.Fpdf, profile *model.UserAdherenceProfile) {
	g.addSectionHeader(pdf, "Insights & Recommendations")

	if len(profile.Insights) == 0 && len(profile.OptimizationOpportunities) == 0 {
		pdf.CellFormat(0, 8, "No recommendations for this period.", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	for _, insight := range profile.Insights {
		pdf.CellFormat(0, 5, fmt.Sprintf("  - %s", insight), "", 1, "L", false, 0, "")
	}
	if len(profile.OptimizationOpportunities) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Suggested changes:", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, opp := range profile.OptimizationOpportunities {
			pdf.CellFormat(0, 5, fmt.Sprintf("  - %s", opp), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(5)
}
