package services

import (
	"time"

	"educore-backend/models"
)

// Store is the persistence surface the deduplication operations depend on.
// Lookups return (nil, nil) when no row matches, so callers can branch on
// absence without knowing the storage engine's not-found convention.
// Upserts key on the entity's natural uniqueness constraint, which keeps the
// final write safe even if a lock's TTL expired mid-operation.
type Store interface {
	GetAttendanceSheet(classID uint, date string) (*models.AttendanceSheet, error)
	UpsertAttendanceSheet(sheet *models.AttendanceSheet) error

	UpsertGrade(grade *models.Grade) error

	GetStudentByEmailAndSchool(email string, schoolID uint) (*models.Student, error)
	CreateStudent(student *models.Student) error
	UpdateStudentClass(studentID, classID uint) (*models.Student, error)
	// UpdateStudentFields applies a partial column update; (nil, nil) when
	// the student does not exist.
	UpdateStudentFields(studentID uint, updates map[string]any) (*models.Student, error)

	UpsertClass(class *models.SchoolClass) error

	GetPaymentByTransactionID(transactionID string) (*models.Payment, error)
	CreatePaymentIfAbsent(payment *models.Payment) (*models.Payment, error)

	CreateNotification(n *models.Notification) error
}

// AuditStore is the read/fix surface of the duplication audit. The audit
// only lists and disambiguates; it never deletes.
type AuditStore interface {
	ListAccounts() ([]models.Account, error)
	ListSchools() ([]models.School, error)
	ListClasses() ([]models.SchoolClass, error)
	ListStudents() ([]models.Student, error)
	ListStaff() ([]models.Staff, error)

	UpdateAccountUsername(accountID uint, username string) error
	ClearAccountPhone(accountID uint) error
	UpdateSchoolName(schoolID uint, name string) error
	CreateStaffSchoolLink(staffID, schoolID uint) error
}

// SubscriptionStore is the persistence surface of the lifecycle manager.
type SubscriptionStore interface {
	GetAccount(accountID uint) (*models.Account, error)
	GetAccountByExternalSubID(subID string) (*models.Account, error)
	SaveAccountSubscription(acc *models.Account) error

	// ListExpiredSubscriptions returns active accounts whose cached
	// CurrentPeriodEnd is before now.
	ListExpiredSubscriptions(now time.Time) ([]models.Account, error)
	// ListExpiringBetween returns active accounts whose period end falls
	// inside [from, to).
	ListExpiringBetween(from, to time.Time) ([]models.Account, error)

	SubscriptionStats() (*SubscriptionStats, error)
}

// SubscriptionStats feeds the weekly aggregate report.
type SubscriptionStats struct {
	Active          int `json:"active"`
	Expired         int `json:"expired"`
	Cancelled       int `json:"cancelled"`
	Failed          int `json:"failed"`
	ExpiringIn7Days int `json:"expiring_in_7_days"`
}

// Notifier delivers a message through an external channel (email, SMS,
// WhatsApp). Implementations live outside this repo.
type Notifier interface {
	Send(accountID uint, channel, notifType, content string) error
}

// ProviderSubscription is the billing provider's authoritative view of one
// subscription.
type ProviderSubscription struct {
	Active    bool
	PlanName  string
	PeriodEnd time.Time
}

// Charge is the synchronous result of a one-off charge.
type Charge struct {
	TransactionID string
	Succeeded     bool
}

// BillingProvider is the external payment/subscription API. Destructive
// local transitions reconcile through GetSubscriptionStatus first.
type BillingProvider interface {
	CreateOrGetCustomer(acc *models.Account) (customerID string, err error)
	CreateCharge(customerID, planID string, amount float64, currency string) (*Charge, error)
	CreateOrGetRecurringPrice(planID string, amount float64, currency string) (priceID string, err error)
	CreateSubscription(customerID, priceID string) (subID string, periodEnd time.Time, err error)
	GetSubscriptionStatus(subID string) (*ProviderSubscription, error)
	CancelSubscription(subID string) error
}
