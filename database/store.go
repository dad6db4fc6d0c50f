package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"educore-backend/models"
	"educore-backend/services"
)

// Store is the GORM implementation of the narrow persistence interfaces the
// services consume (services.Store, services.AuditStore,
// services.SubscriptionStore). Upserts lean on ON CONFLICT against the
// models' natural uniqueness indexes, so a write stays safe even if the
// in-memory lock protecting it expired mid-operation.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a connected gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// ---- services.Store

func (s *Store) GetAttendanceSheet(classID uint, date string) (*models.AttendanceSheet, error) {
	var sheet models.AttendanceSheet
	err := s.db.Where("class_id = ? AND date = ?", classID, date).First(&sheet).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &sheet, nil
}

func (s *Store) UpsertAttendanceSheet(sheet *models.AttendanceSheet) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"teacher_id", "entries", "updated_at"}),
	}).Create(sheet).Error
}

func (s *Store) UpsertGrade(grade *models.Grade) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "subject"}, {Name: "term"}},
		DoUpdates: clause.AssignmentColumns([]string{"teacher_id", "score", "recorded_at"}),
	}).Create(grade).Error
}

func (s *Store) GetStudentByEmailAndSchool(email string, schoolID uint) (*models.Student, error) {
	var student models.Student
	err := s.db.Where("email = ? AND school_id = ?", email, schoolID).First(&student).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &student, nil
}

func (s *Store) CreateStudent(student *models.Student) error {
	// ON CONFLICT keeps a concurrent enroll for the same (email, school)
	// from producing a second row; the class assignment of whichever write
	// lands last wins.
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "school_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"class_id", "updated_at"}),
	}).Create(student).Error
}

func (s *Store) UpdateStudentClass(studentID, classID uint) (*models.Student, error) {
	if err := s.db.Model(&models.Student{}).Where("id = ?", studentID).
		Update("class_id", classID).Error; err != nil {
		return nil, err
	}
	var student models.Student
	if err := s.db.First(&student, studentID).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (s *Store) UpdateStudentFields(studentID uint, updates map[string]any) (*models.Student, error) {
	if err := s.db.Model(&models.Student{}).Where("id = ?", studentID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	var student models.Student
	if err := s.db.First(&student, studentID).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &student, nil
}

func (s *Store) UpsertClass(class *models.SchoolClass) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "school_id"}, {Name: "name"}, {Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"teacher_id"}),
	}).Create(class).Error
}

func (s *Store) GetPaymentByTransactionID(transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.Where("transaction_id = ?", transactionID).First(&payment).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &payment, nil
}

func (s *Store) CreatePaymentIfAbsent(payment *models.Payment) (*models.Payment, error) {
	// Payments are write-once: on conflict the original row stands and is
	// returned to the caller.
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(payment).Error; err != nil {
		return nil, err
	}
	return s.GetPaymentByTransactionID(payment.TransactionID)
}

func (s *Store) CreateNotification(n *models.Notification) error {
	return s.db.Create(n).Error
}

// ---- services.AuditStore

func (s *Store) ListAccounts() ([]models.Account, error) {
	var accounts []models.Account
	return accounts, s.db.Find(&accounts).Error
}

func (s *Store) ListSchools() ([]models.School, error) {
	var schools []models.School
	return schools, s.db.Find(&schools).Error
}

func (s *Store) ListClasses() ([]models.SchoolClass, error) {
	var classes []models.SchoolClass
	return classes, s.db.Find(&classes).Error
}

func (s *Store) ListStudents() ([]models.Student, error) {
	var students []models.Student
	return students, s.db.Find(&students).Error
}

func (s *Store) ListStaff() ([]models.Staff, error) {
	var staff []models.Staff
	return staff, s.db.Find(&staff).Error
}

func (s *Store) UpdateAccountUsername(accountID uint, username string) error {
	return s.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("username", username).Error
}

func (s *Store) ClearAccountPhone(accountID uint) error {
	return s.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("phone", "").Error
}

func (s *Store) UpdateSchoolName(schoolID uint, name string) error {
	return s.db.Model(&models.School{}).Where("id = ?", schoolID).
		Update("name", name).Error
}

func (s *Store) CreateStaffSchoolLink(staffID, schoolID uint) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "staff_id"}, {Name: "school_id"}},
		DoNothing: true,
	}).Create(&models.StaffSchoolLink{StaffID: staffID, SchoolID: schoolID}).Error
}

// ---- services.SubscriptionStore

func (s *Store) GetAccount(accountID uint) (*models.Account, error) {
	var acc models.Account
	err := s.db.First(&acc, accountID).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &acc, nil
}

func (s *Store) GetAccountByExternalSubID(subID string) (*models.Account, error) {
	var acc models.Account
	err := s.db.Where("external_sub_id = ?", subID).First(&acc).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &acc, nil
}

func (s *Store) SaveAccountSubscription(acc *models.Account) error {
	return s.db.Model(&models.Account{}).Where("id = ?", acc.ID).
		Select("subscription_status", "plan_id", "plan_name", "external_sub_id",
			"external_customer_id", "current_period_end",
			"reminder7_sent_at", "reminder1_sent_at").
		Updates(acc).Error
}

func (s *Store) ListExpiredSubscriptions(now time.Time) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Where("subscription_status = ? AND current_period_end IS NOT NULL AND current_period_end < ?",
		models.SubscriptionActive, now).Find(&accounts).Error
	return accounts, err
}

func (s *Store) ListExpiringBetween(from, to time.Time) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Where("subscription_status = ? AND current_period_end >= ? AND current_period_end < ?",
		models.SubscriptionActive, from, to).Find(&accounts).Error
	return accounts, err
}

func (s *Store) SubscriptionStats() (*services.SubscriptionStats, error) {
	stats := &services.SubscriptionStats{}
	type row struct {
		SubscriptionStatus string
		N                  int
	}
	var rows []row
	if err := s.db.Model(&models.Account{}).
		Select("subscription_status, count(*) as n").
		Group("subscription_status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.SubscriptionStatus {
		case models.SubscriptionActive:
			stats.Active = r.N
		case models.SubscriptionExpired:
			stats.Expired = r.N
		case models.SubscriptionCancelled:
			stats.Cancelled = r.N
		case models.SubscriptionFailed:
			stats.Failed = r.N
		}
	}

	var expiring int64
	if err := s.db.Model(&models.Account{}).
		Where("subscription_status = ? AND current_period_end >= ? AND current_period_end < ?",
			models.SubscriptionActive, time.Now(), time.Now().Add(7*24*time.Hour)).
		Count(&expiring).Error; err != nil {
		return nil, err
	}
	stats.ExpiringIn7Days = int(expiring)
	return stats, nil
}
