package models

import "time"

// Subscription statuses. Transitions are owned by services.SubscriptionManager;
// nothing else writes these fields.
const (
	SubscriptionNone      = "none"
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
	SubscriptionFailed    = "failed"
)

// Account is a platform user (parent, teacher, director). Subscription state
// lives on the account; every transition goes through the per-account lock.
type Account struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Email     string `json:"email" gorm:"size:255;uniqueIndex"`
	Username  string `json:"username" gorm:"size:128"`
	Phone     string `json:"phone" gorm:"size:32"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role" gorm:"size:32"`
	Language  string `json:"language" gorm:"size:8"` // "fr" | "en"

	// Subscription state
	SubscriptionStatus string     `json:"subscription_status" gorm:"size:16;default:none"`
	PlanID             string     `json:"plan_id" gorm:"size:64"`
	PlanName           string     `json:"plan_name" gorm:"size:128"`
	ExternalSubID      string     `json:"external_subscription_id" gorm:"size:128"` // billing provider's id, empty if never linked
	ExternalCustomerID string     `json:"external_customer_id" gorm:"size:128"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`

	// Reminder bookkeeping for the daily pass (reset on renewal).
	Reminder7SentAt *time.Time `json:"reminder_7_sent_at"`
	Reminder1SentAt *time.Time `json:"reminder_1_sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
