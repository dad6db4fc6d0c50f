package models

import "time"

// Staff is a teaching or administrative employee. EmployeeID is the identity
// field; duplicates are critical audit findings. A staff member working at
// several schools is represented by StaffSchoolLink rows, not by duplicate
// Staff rows.
type Staff struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Email      string    `json:"email" gorm:"size:255;index"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	EmployeeID string    `json:"employee_id" gorm:"size:64;index"`
	SchoolID   uint      `json:"school_id" gorm:"index"` // primary school
	CreatedAt  time.Time `json:"created_at"`
}

// StaffSchoolLink associates one staff identity with an additional school.
type StaffSchoolLink struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	StaffID   uint      `json:"staff_id" gorm:"index:idx_staff_school,unique,priority:1"`
	SchoolID  uint      `json:"school_id" gorm:"index:idx_staff_school,unique,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}
