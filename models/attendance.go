package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttendanceEntry is one student's mark inside a sheet.
type AttendanceEntry struct {
	StudentID uint   `json:"student_id"`
	Present   bool   `json:"present"`
	Note      string `json:"note,omitempty"`
}

// AttendanceSheet is the attendance record for one class on one date.
// One sheet per (class, date); a second submission updates the existing
// sheet. Entries are stored as a JSONB snapshot.
type AttendanceSheet struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	ClassID   uint           `json:"class_id" gorm:"index:idx_attendance_class_date,unique,priority:1"`
	Date      string         `json:"date" gorm:"size:10;index:idx_attendance_class_date,unique,priority:2"` // YYYY-MM-DD
	TeacherID uint           `json:"teacher_id"`
	Entries   datatypes.JSON `json:"entries" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
