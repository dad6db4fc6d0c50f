package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"educore-backend/cache"
	"educore-backend/locks"
	"educore-backend/models"
	"educore-backend/utils"
)

// Lock TTLs per operation. These are crash safety nets, not hold budgets;
// every operation releases deterministically through WithLock.
const (
	attendanceLockTTL = 30 * time.Second
	gradeLockTTL      = 15 * time.Second
	enrollmentLockTTL = 20 * time.Second
	classLockTTL      = 10 * time.Second
	paymentLockTTL    = 60 * time.Second
)

// DefaultThrottleWindow is the minimum interval between identical
// notifications to one account.
const DefaultThrottleWindow = 5 * time.Minute

// AntiDuplication guards mutating domain operations against duplicate side
// effects. Every operation follows the same shape: acquire a resource-scoped
// try-lock, read existing state, then upsert against the natural uniqueness
// key.
type AntiDuplication struct {
	store    Store
	locks    *locks.Manager
	throttle *cache.Throttle
	notifier Notifier
}

// NewAntiDuplication wires the service to its collaborators.
func NewAntiDuplication(store Store, mgr *locks.Manager, throttle *cache.Throttle, notifier Notifier) *AntiDuplication {
	return &AntiDuplication{store: store, locks: mgr, throttle: throttle, notifier: notifier}
}

// RecordAttendance writes the attendance sheet for one class on one date.
// A sheet already present for the (class, date) pair is updated in place.
func (s *AntiDuplication) RecordAttendance(teacherID, classID uint, date string, entries []models.AttendanceEntry) (*models.AttendanceSheet, error) {
	lockKey := fmt.Sprintf("attendance:%d:%s", classID, date)

	var sheet *models.AttendanceSheet
	err := s.locks.WithLock(lockKey, attendanceLockTTL, func() error {
		blob, err := json.Marshal(entries)
		if err != nil {
			return err
		}

		existing, err := s.store.GetAttendanceSheet(classID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.TeacherID = teacherID
			existing.Entries = datatypes.JSON(blob)
			sheet = existing
		} else {
			sheet = &models.AttendanceSheet{
				ClassID:   classID,
				Date:      date,
				TeacherID: teacherID,
				Entries:   datatypes.JSON(blob),
			}
		}
		return s.store.UpsertAttendanceSheet(sheet)
	})
	if err != nil {
		return nil, err
	}
	return sheet, nil
}

// RecordGrade upserts one score per (student, subject, term). The latest
// write fully replaces the prior value for the tuple.
func (s *AntiDuplication) RecordGrade(teacherID, studentID uint, subject, term string, score float64) (*models.Grade, error) {
	lockKey := fmt.Sprintf("grades:%d:%s:%s", studentID, subject, term)

	grade := &models.Grade{
		StudentID:  studentID,
		Subject:    subject,
		Term:       term,
		TeacherID:  teacherID,
		Score:      utils.Round2(score),
		RecordedAt: time.Now(),
	}
	err := s.locks.WithLock(lockKey, gradeLockTTL, func() error {
		return s.store.UpsertGrade(grade)
	})
	if err != nil {
		return nil, err
	}
	return grade, nil
}

// EnrollStudent enrolls a student, keyed on (email, school). An existing
// student is reassigned to the requested class rather than duplicated.
func (s *AntiDuplication) EnrollStudent(student *models.Student) (*models.Student, error) {
	lockKey := fmt.Sprintf("enrollment:%s:%d", student.Email, student.SchoolID)

	var result *models.Student
	err := s.locks.WithLock(lockKey, enrollmentLockTTL, func() error {
		existing, err := s.store.GetStudentByEmailAndSchool(student.Email, student.SchoolID)
		if err != nil {
			return err
		}
		if existing != nil {
			updated, err := s.store.UpdateStudentClass(existing.ID, student.ClassID)
			if err != nil {
				return err
			}
			result = updated
			return nil
		}
		if err := s.store.CreateStudent(student); err != nil {
			return err
		}
		result = student
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStudentProfile applies a partial update to one student. The
// (email, school) identity is not editable through this path; callers that
// need to move a student re-enroll instead.
func (s *AntiDuplication) UpdateStudentProfile(studentID uint, updates map[string]any) (*models.Student, error) {
	delete(updates, "email")
	delete(updates, "school_id")
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updatable fields")
	}
	return s.store.UpdateStudentFields(studentID, updates)
}

// CreateClass upserts a class against its (school, name, level) tuple.
func (s *AntiDuplication) CreateClass(class *models.SchoolClass) (*models.SchoolClass, error) {
	lockKey := fmt.Sprintf("class:%d:%s:%s", class.SchoolID, class.Name, class.Level)

	err := s.locks.WithLock(lockKey, classLockTTL, func() error {
		return s.store.UpsertClass(class)
	})
	if err != nil {
		return nil, err
	}
	return class, nil
}

// RecordPayment is write-once per provider transaction: if the transaction
// was already recorded, the existing payment is returned unchanged and no
// new row is created.
func (s *AntiDuplication) RecordPayment(accountID uint, amount float64, currency, transactionID, method, planID string) (*models.Payment, error) {
	lockKey := "payment:" + transactionID

	var payment *models.Payment
	err := s.locks.WithLock(lockKey, paymentLockTTL, func() error {
		existing, err := s.store.GetPaymentByTransactionID(transactionID)
		if err != nil {
			return err
		}
		if existing != nil {
			log.Printf("[payments] transaction %s already recorded, returning existing", transactionID)
			payment = existing
			return nil
		}
		created, err := s.store.CreatePaymentIfAbsent(&models.Payment{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Amount:        utils.Round2(amount),
			Currency:      currency,
			TransactionID: transactionID,
			Method:        method,
			PlanID:        planID,
		})
		if err != nil {
			return err
		}
		payment = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// SendResult reports what SendNotificationThrottled did. A throttled send is
// a soft outcome, not an error.
type SendResult struct {
	Throttled    bool                 `json:"throttled"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// SendNotificationThrottled sends at most one notification of a given type
// to an account per window. Inside the window the send is dropped; the
// external channel is never hit twice.
func (s *AntiDuplication) SendNotificationThrottled(accountID uint, notifType, content, channel string, window time.Duration) (*SendResult, error) {
	throttleKey := fmt.Sprintf("notification:%d:%s", accountID, notifType)

	if !s.throttle.Allow(throttleKey, window) {
		log.Printf("[notifications] throttled %s for account %d", notifType, accountID)
		return &SendResult{Throttled: true}, nil
	}

	n := &models.Notification{
		AccountID: accountID,
		Type:      notifType,
		Content:   content,
		Channel:   channel,
	}
	if err := s.store.CreateNotification(n); err != nil {
		return nil, err
	}
	if err := s.notifier.Send(accountID, channel, notifType, content); err != nil {
		return nil, err
	}
	return &SendResult{Notification: n}, nil
}
