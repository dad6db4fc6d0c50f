package controllers

import (
	"github.com/gofiber/fiber/v2"

	"educore-backend/middlewares"
	"educore-backend/services"
)

type recordGradeDTO struct {
	StudentID uint    `json:"student_id" validate:"required"`
	TeacherID uint    `json:"teacher_id" validate:"required"`
	Subject   string  `json:"subject" validate:"required"`
	Term      string  `json:"term" validate:"required"`
	Score     float64 `json:"score" validate:"gte=0,lte=20"`
}

// RecordGrade upserts one score per (student, subject, term); retries and
// duplicate submissions fully replace the same tuple instead of stacking
// rows.
func RecordGrade(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto recordGradeDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}

		grade, err := svc.RecordGrade(dto.TeacherID, dto.StudentID, dto.Subject, dto.Term, dto.Score)
		if err != nil {
			return err
		}
		return c.JSON(grade)
	}
}
