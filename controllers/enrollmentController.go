package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"educore-backend/middlewares"
	"educore-backend/models"
	"educore-backend/services"
	"educore-backend/utils"
)

type enrollStudentDTO struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	SchoolID   uint   `json:"school_id" validate:"required"`
	ClassID    uint   `json:"class_id" validate:"required"`
	RollNumber string `json:"roll_number"`
}

// EnrollStudent enrolls a student keyed on (email, school). If the student
// already exists there, the class assignment is updated; no duplicate row
// is ever created.
func EnrollStudent(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto enrollStudentDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}
		utils.NormalizeDTO(&dto)

		student, err := svc.EnrollStudent(&models.Student{
			Email:      dto.Email,
			FirstName:  dto.FirstName,
			LastName:   dto.LastName,
			SchoolID:   dto.SchoolID,
			ClassID:    dto.ClassID,
			RollNumber: dto.RollNumber,
		})
		if err != nil {
			return err
		}
		return c.JSON(student)
	}
}

type updateStudentDTO struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	RollNumber *string `json:"roll_number"`
	ClassID    *uint   `json:"class_id"`
}

// UpdateStudent applies a partial update to a student's profile. Identity
// fields (email, school) are not editable here; re-enroll to move a student.
func UpdateStudent(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		studentID, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid student id")
		}

		var dto updateStudentDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}
		utils.NormalizePtrDTO(&dto)

		updates := utils.UpdatesFromPtrDTO(&dto)
		if len(updates) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
		}

		student, err := svc.UpdateStudentProfile(uint(studentID), updates)
		if err != nil {
			return err
		}
		if student == nil {
			return fiber.NewError(fiber.StatusNotFound, "student not found")
		}
		return c.JSON(student)
	}
}

type createClassDTO struct {
	SchoolID  uint   `json:"school_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Level     string `json:"level" validate:"required"`
	TeacherID *uint  `json:"teacher_id"`
}

// CreateClass upserts a class against its (school, name, level) tuple.
func CreateClass(svc *services.AntiDuplication) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto createClassDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}
		utils.NormalizeDTO(&dto)

		class, err := svc.CreateClass(&models.SchoolClass{
			SchoolID:  dto.SchoolID,
			Name:      dto.Name,
			Level:     dto.Level,
			TeacherID: dto.TeacherID,
		})
		if err != nil {
			return err
		}
		return c.JSON(class)
	}
}
