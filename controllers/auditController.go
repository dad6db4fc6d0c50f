package controllers

import (
	"github.com/gofiber/fiber/v2"

	"educore-backend/services"
)

// RunDuplicationAnalysis scans the full dataset and returns the findings
// with a per-category summary. Read-only: nothing is fixed here.
func RunDuplicationAnalysis(audit *services.DuplicationAudit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		analysis, err := audit.Analyze()
		if err != nil {
			return err
		}
		return c.JSON(analysis)
	}
}

// AutoFixDuplications re-runs the analysis and resolves the auto-fixable
// findings. Critical findings are never touched; they stay in the report
// for manual merge.
func AutoFixDuplications(audit *services.DuplicationAudit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		analysis, err := audit.Analyze()
		if err != nil {
			return err
		}
		fix, err := audit.AutoFix(analysis)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"summary": analysis.Summary,
			"fix":     fix,
		})
	}
}

// DuplicationReport renders the human-readable audit report.
func DuplicationReport(audit *services.DuplicationAudit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		analysis, err := audit.Analyze()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(audit.Report(analysis, nil))
	}
}
