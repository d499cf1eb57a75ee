package billing

import (
	"context"
	"errors"
	"time"

	"commune-backend/sections/models"
)

// ErrNotFound is returned by the read methods of Store when no row matches.
var ErrNotFound = errors.New("not found")

// SubscriptionUpdate carries the fields a lifecycle event may change on a subscription row.
// An empty TierID leaves the stored tier untouched.
type SubscriptionUpdate struct {
	TierID             string
	Status             models.SubscriptionStatus
	IsTrial            bool
	TrialEndsAt        *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// Store is the persistence the billing section needs. Write methods called inside
// Transaction run against the transaction.
//
// A canceled subscription is terminal: UpdateSubscription and SetSubscriptionStatus skip it
// and report zero rows. Only UpsertSubscription, driven by a new checkout, replaces it.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	UpsertSubscription(ctx context.Context, sub *models.CommunitySubscription) error
	UpdateSubscription(ctx context.Context, stripeSubscriptionID string, update SubscriptionUpdate) (int64, error)
	SetSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus) (int64, error)
	GetSubscription(ctx context.Context, communityID string) (*models.CommunitySubscription, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.CommunitySubscription, error)

	UpsertTrialRecord(ctx context.Context, trial *models.TrialRecord) error
	GetTrialRecord(ctx context.Context, userID string) (*models.TrialRecord, error)
	MarkTrialsConverted(ctx context.Context, communityID string, at time.Time) (int64, error)

	InsertBillingHistory(ctx context.Context, entry *models.BillingHistory) error
	ListBillingHistory(ctx context.Context, communityID string, limit int) ([]models.BillingHistory, error)

	InitializeUsage(ctx context.Context, communityID, tierID string) error
	ListUsage(ctx context.Context, communityID string) ([]models.UsageTracking, error)
	SetCommunityPlan(ctx context.Context, communityID, tierID string) error

	GetMember(ctx context.Context, communityID, userID string) (*models.CommunityMember, error)
	ListActiveAdmins(ctx context.Context, communityID string) ([]models.CommunityMember, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
}
