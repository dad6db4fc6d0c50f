package models

import "time"

// Notification is a persisted copy of a message sent to an account through
// an external channel (email/SMS/WhatsApp). The throttled send path writes
// at most one of these per (account, type) inside a throttle window.
type Notification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AccountID uint      `json:"account_id" gorm:"index"`
	Type      string    `json:"type" gorm:"size:64"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel" gorm:"size:16"` // email | sms | whatsapp
	CreatedAt time.Time `json:"created_at"`
}
