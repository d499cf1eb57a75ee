package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commune-backend/sections/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on the shared Postgres schema.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) UpsertSubscription(ctx context.Context, sub *models.CommunitySubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "community_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id",
			"stripe_subscription_id",
			"tier_id",
			"status",
			"billing_period",
			"is_trial",
			"trial_ends_at",
			"cancel_at_period_end",
			"current_period_start",
			"current_period_end",
			"updated_at",
			"deleted_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for community %s: %w", sub.CommunityID, err)
	}
	return nil
}

// UpdateSubscription applies a lifecycle update. Canceled rows are left alone.
func (s *GormStore) UpdateSubscription(ctx context.Context, stripeSubscriptionID string, update SubscriptionUpdate) (int64, error) {
	fields := map[string]interface{}{
		"status":               update.Status,
		"is_trial":             update.IsTrial,
		"trial_ends_at":        update.TrialEndsAt,
		"current_period_start": update.CurrentPeriodStart,
		"current_period_end":   update.CurrentPeriodEnd,
		"cancel_at_period_end": update.CancelAtPeriodEnd,
	}
	if update.TierID != "" {
		fields["tier_id"] = update.TierID
	}

	res := s.db.WithContext(ctx).Model(&models.CommunitySubscription{}).
		Where("stripe_subscription_id = ? AND status <> ?", stripeSubscriptionID, models.SubscriptionStatusCanceled).
		Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update subscription %s: %w", stripeSubscriptionID, res.Error)
	}
	return res.RowsAffected, nil
}

// SetSubscriptionStatus moves a subscription to status. Canceled rows are left alone.
func (s *GormStore) SetSubscriptionStatus(ctx context.Context, stripeSubscriptionID string, status models.SubscriptionStatus) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.CommunitySubscription{}).
		Where("stripe_subscription_id = ? AND status <> ?", stripeSubscriptionID, models.SubscriptionStatusCanceled).
		Update("status", status)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to set status of subscription %s: %w", stripeSubscriptionID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) GetSubscription(ctx context.Context, communityID string) (*models.CommunitySubscription, error) {
	var sub models.CommunitySubscription
	err := s.db.WithContext(ctx).Where("community_id = ?", communityID).First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *GormStore) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.CommunitySubscription, error) {
	var sub models.CommunitySubscription
	err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// UpsertTrialRecord records a user's trial. A conversion already recorded is kept.
func (s *GormStore) UpsertTrialRecord(ctx context.Context, trial *models.TrialRecord) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"community_id",
			"tier_id",
			"started_at",
			"ends_at",
			"cooldown_until",
			"updated_at",
		}),
	}).Create(trial).Error
	if err != nil {
		return fmt.Errorf("failed to upsert trial record for user %s: %w", trial.UserID, err)
	}
	return nil
}

func (s *GormStore) GetTrialRecord(ctx context.Context, userID string) (*models.TrialRecord, error) {
	var trial models.TrialRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&trial).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &trial, nil
}

func (s *GormStore) MarkTrialsConverted(ctx context.Context, communityID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.TrialRecord{}).
		Where("community_id = ? AND converted = ?", communityID, false).
		Updates(map[string]interface{}{
			"converted":    true,
			"converted_at": at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark trials converted for community %s: %w", communityID, res.Error)
	}
	return res.RowsAffected, nil
}

// InsertBillingHistory appends a paid invoice. Redelivered invoices are ignored.
func (s *GormStore) InsertBillingHistory(ctx context.Context, entry *models.BillingHistory) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_invoice_id"}},
		DoNothing: true,
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to insert billing history for invoice %s: %w", entry.StripeInvoiceID, err)
	}
	return nil
}

func (s *GormStore) ListBillingHistory(ctx context.Context, communityID string, limit int) ([]models.BillingHistory, error) {
	var entries []models.BillingHistory
	err := s.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("paid_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list billing history: %w", err)
	}
	return entries, nil
}

// InitializeUsage delegates to the initialize_usage_tracking database procedure, which owns
// the per-tier metric limits.
func (s *GormStore) InitializeUsage(ctx context.Context, communityID, tierID string) error {
	err := s.db.WithContext(ctx).
		Exec("SELECT initialize_usage_tracking(CAST(? AS uuid), ?)", communityID, tierID).Error
	if err != nil {
		return fmt.Errorf("failed to initialize usage for community %s: %w", communityID, err)
	}
	return nil
}

func (s *GormStore) ListUsage(ctx context.Context, communityID string) ([]models.UsageTracking, error) {
	var rows []models.UsageTracking
	err := s.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("metric").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return rows, nil
}

func (s *GormStore) SetCommunityPlan(ctx context.Context, communityID, tierID string) error {
	err := s.db.WithContext(ctx).Model(&models.Community{}).
		Where("id = ?", communityID).
		Update("plan", tierID).Error
	if err != nil {
		return fmt.Errorf("failed to set plan of community %s: %w", communityID, err)
	}
	return nil
}

func (s *GormStore) GetMember(ctx context.Context, communityID, userID string) (*models.CommunityMember, error) {
	var member models.CommunityMember
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		First(&member).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

func (s *GormStore) ListActiveAdmins(ctx context.Context, communityID string) ([]models.CommunityMember, error) {
	var members []models.CommunityMember
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND role = ? AND status = ?", communityID, models.MemberRoleAdmin, models.MemberStatusActive).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list admins of community %s: %w", communityID, err)
	}
	return members, nil
}

func (s *GormStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) InsertNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return fmt.Errorf("failed to insert %d notifications: %w", len(notifications), err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
