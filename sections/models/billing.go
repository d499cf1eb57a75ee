package models

import (
	"time"

	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodAnnual  BillingPeriod = "annual"
)

// CommunitySubscription is the single subscription row of a community
type CommunitySubscription struct {
	gorm.Model
	CommunityID string `gorm:"type:uuid;not null;uniqueIndex" json:"communityId"`

	// Stripe fields
	StripeCustomerID     string `gorm:"size:255;index" json:"stripeCustomerId"`
	StripeSubscriptionID string `gorm:"size:255;index" json:"stripeSubscriptionId"`

	TierID            string             `gorm:"size:50;not null" json:"tierId"`
	Status            SubscriptionStatus `gorm:"size:20;not null" json:"status"`
	BillingPeriod     BillingPeriod      `gorm:"size:20;not null;default:'monthly'" json:"billingPeriod"`
	IsTrial           bool               `gorm:"default:false" json:"isTrial"`
	TrialEndsAt       *time.Time         `json:"trialEndsAt,omitempty"`
	CancelAtPeriodEnd bool               `gorm:"default:false" json:"cancelAtPeriodEnd"`

	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`

	Community Community `gorm:"foreignKey:CommunityID" json:"-"`
}

// TableName returns the table name with public schema prefix
func (CommunitySubscription) TableName() string {
	return "public.community_subscriptions"
}

// IsSharedModel indicates this is a shared/public model
func (CommunitySubscription) IsSharedModel() bool {
	return true
}

// BillingHistory is an append-only record of a paid invoice
type BillingHistory struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	CommunityID          string     `gorm:"type:uuid;not null;index" json:"communityId"`
	StripeInvoiceID      string     `gorm:"size:255;not null;uniqueIndex" json:"stripeInvoiceId"`
	StripeSubscriptionID string     `gorm:"size:255" json:"stripeSubscriptionId"`
	InvoiceNumber        string     `gorm:"size:100" json:"invoiceNumber"`
	Amount               int64      `gorm:"not null" json:"amount"` // Amount in cents
	Currency             string     `gorm:"size:3;not null;default:'usd'" json:"currency"`
	Status               string     `gorm:"size:20;not null" json:"status"`
	Description          string     `gorm:"size:500" json:"description"`
	HostedInvoiceURL     string     `gorm:"size:1024" json:"hostedInvoiceUrl"`
	InvoicePDFURL        string     `gorm:"column:invoice_pdf_url;size:1024" json:"invoicePdfUrl"`
	PeriodStart          *time.Time `json:"periodStart,omitempty"`
	PeriodEnd            *time.Time `json:"periodEnd,omitempty"`
	PaidAt               time.Time  `gorm:"not null" json:"paidAt"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// TableName returns the table name with public schema prefix
func (BillingHistory) TableName() string {
	return "public.billing_history"
}

// IsSharedModel indicates this is a shared/public model
func (BillingHistory) IsSharedModel() bool {
	return true
}

// UsageTracking holds per-metric counters of a community. Rows are (re)created by the
// initialize_usage_tracking database procedure whenever the tier changes.
type UsageTracking struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CommunityID string    `gorm:"type:uuid;not null;uniqueIndex:idx_usage_community_metric" json:"communityId"`
	Metric      string    `gorm:"size:50;not null;uniqueIndex:idx_usage_community_metric" json:"metric"`
	Used        int64     `gorm:"not null;default:0" json:"used"`
	Limit       int64     `gorm:"column:usage_limit;not null;default:0" json:"limit"` // 0 means unlimited
	PeriodStart time.Time `json:"periodStart"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName returns the table name with public schema prefix
func (UsageTracking) TableName() string {
	return "public.usage_tracking"
}

// IsSharedModel indicates this is a shared/public model
func (UsageTracking) IsSharedModel() bool {
	return true
}

// TrialRecord tracks the trial a user started, one per user
type TrialRecord struct {
	gorm.Model
	UserID        string     `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	CommunityID   string     `gorm:"type:uuid;not null;index" json:"communityId"`
	TierID        string     `gorm:"size:50;not null" json:"tierId"`
	StartedAt     time.Time  `gorm:"not null" json:"startedAt"`
	EndsAt        time.Time  `gorm:"not null" json:"endsAt"`
	CooldownUntil time.Time  `gorm:"not null" json:"cooldownUntil"`
	Converted     bool       `gorm:"default:false" json:"converted"`
	ConvertedAt   *time.Time `json:"convertedAt,omitempty"`
}

// TableName returns the table name with public schema prefix
func (TrialRecord) TableName() string {
	return "public.trial_records"
}

// IsSharedModel indicates this is a shared/public model
func (TrialRecord) IsSharedModel() bool {
	return true
}

// InCooldown reports whether the user may not start another trial at now.
func (t *TrialRecord) InCooldown(now time.Time) bool {
	return now.Before(t.CooldownUntil)
}
