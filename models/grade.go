package models

import "time"

// Grade holds one score per (student, subject, term). RecordGrade upserts
// against that tuple; the latest write fully replaces the prior value.
type Grade struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	StudentID  uint      `json:"student_id" gorm:"index:idx_grades_student_subject_term,unique,priority:1"`
	Subject    string    `json:"subject" gorm:"size:64;index:idx_grades_student_subject_term,unique,priority:2"`
	Term       string    `json:"term" gorm:"size:32;index:idx_grades_student_subject_term,unique,priority:3"`
	TeacherID  uint      `json:"teacher_id"`
	Score      float64   `json:"score" gorm:"type:numeric(5,2)"`
	RecordedAt time.Time `json:"recorded_at"`
}
