package controllers

import (
	"github.com/gofiber/fiber/v2"

	"educore-backend/middlewares"
	"educore-backend/models"
	"educore-backend/services"
)

type attendanceEntryDTO struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
	Note      string `json:"note"`
}

type recordAttendanceDTO struct {
	ClassID   uint                 `json:"class_id" validate:"required"`
	Date      string               `json:"date" validate:"required,datetime=2006-01-02"`
	TeacherID uint                 `json:"teacher_id" validate:"required"`
	Entries   []attendanceEntryDTO `json:"entries" validate:"required,min=1,dive"`
}

// RecordAttendance submits the attendance sheet for one class and date.
// A resubmission for the same class/date updates the existing sheet; a
// genuinely concurrent submission gets a retry signal instead of a
// duplicate row.
func RecordAttendance(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto recordAttendanceDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}

		entries := make([]models.AttendanceEntry, 0, len(dto.Entries))
		for _, e := range dto.Entries {
			entries = append(entries, models.AttendanceEntry{
				StudentID: e.StudentID,
				Present:   e.Present,
				Note:      e.Note,
			})
		}

		sheet, err := svc.RecordAttendance(dto.TeacherID, dto.ClassID, dto.Date, entries)
		if err != nil {
			return err
		}
		return c.JSON(sheet)
	}
}
