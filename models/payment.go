package models

import "time"

// Payment is write-once: recording the same provider transaction a second
// time returns the existing row unchanged.
type Payment struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"` // uuid
	AccountID     uint      `json:"account_id" gorm:"index"`
	Amount        float64   `json:"amount" gorm:"type:numeric(12,2)"`
	Currency      string    `json:"currency" gorm:"size:8"`
	TransactionID string    `json:"transaction_id" gorm:"size:128;uniqueIndex"` // provider transaction id
	Method        string    `json:"method" gorm:"size:32"`
	PlanID        string    `json:"plan_id" gorm:"size:64"`
	CreatedAt     time.Time `json:"created_at"`
}
