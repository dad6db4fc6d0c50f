package models

import "time"

// Student is enrolled in exactly one class. Email is unique per school;
// re-enrolling an existing (email, school) pair reassigns the class instead
// of creating a second row.
type Student struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Email      string    `json:"email" gorm:"size:255;index:idx_students_email_school,unique,priority:1"`
	SchoolID   uint      `json:"school_id" gorm:"index:idx_students_email_school,unique,priority:2"`
	ClassID    uint      `json:"class_id" gorm:"index"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	RollNumber string    `json:"roll_number" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
