package models

import "time"

type NotificationType string

const (
	NotificationTypeTrialEnding   NotificationType = "trial_ending"
	NotificationTypePaymentFailed NotificationType = "payment_failed"
)

// Notification is an in-app message addressed to a single user
type Notification struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string           `gorm:"type:uuid;not null;index" json:"userId"`
	CommunityID string           `gorm:"type:uuid;index" json:"communityId"`
	Type        NotificationType `gorm:"size:50;not null" json:"type"`
	Title       string           `gorm:"size:255;not null" json:"title"`
	Body        string           `gorm:"type:text" json:"body"`
	Data        string           `gorm:"type:jsonb" json:"data,omitempty"`
	Link        string           `gorm:"size:512" json:"link"`
	ReadAt      *time.Time       `json:"readAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// TableName returns the table name with public schema prefix
func (Notification) TableName() string {
	return "public.notifications"
}

// IsSharedModel indicates this is a shared/public model
func (Notification) IsSharedModel() bool {
	return true
}
