package models

import "time"

// School is an organization on the platform. Code is the identity field;
// two schools sharing a code is a critical audit finding.
type School struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex"`
	Region    string    `json:"region" gorm:"size:64"`
	CreatedAt time.Time `json:"created_at"`
}

// SchoolClass is a class group within a school. Name+level is unique per
// school; CreateClass upserts against that tuple.
type SchoolClass struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SchoolID  uint      `json:"school_id" gorm:"index:idx_classes_school_name_level,unique,priority:1"`
	Name      string    `json:"name" gorm:"size:64;index:idx_classes_school_name_level,unique,priority:2"`
	Level     string    `json:"level" gorm:"size:32;index:idx_classes_school_name_level,unique,priority:3"`
	TeacherID *uint     `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}
