package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"commune-backend/common"
	"commune-backend/sections/models"
)

// AdminNotice is the content sent to every active admin of a community.
type AdminNotice struct {
	Type  models.NotificationType
	Title string
	Body  string
	Data  map[string]interface{}
	Link  string
}

// Notifier fans a notice out to a community's active admins as in-app notifications.
type Notifier struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewNotifier() *Notifier {
	return &Notifier{
		logger: slog.With("service", "Notifier"),
		now:    time.Now,
	}
}

// NotifyAdmins inserts one notification per active admin and returns how many were written.
// There is no cap on the number of admins.
func (n *Notifier) NotifyAdmins(ctx context.Context, store Store, communityID string, notice AdminNotice) (int, error) {
	admins, err := store.ListActiveAdmins(ctx, communityID)
	if err != nil {
		return 0, err
	}
	if len(admins) == 0 {
		n.logger.Warn("No active admins to notify", "community_id", communityID, "type", notice.Type)
		return 0, nil
	}

	var data string
	if notice.Data != nil {
		buf, err := json.Marshal(notice.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to encode notification data: %w", err)
		}
		data = string(buf)
	}

	now := n.now()
	notifications := make([]models.Notification, 0, len(admins))
	for _, admin := range admins {
		notifications = append(notifications, models.Notification{
			ID:          common.RandomID(),
			UserID:      admin.UserID,
			CommunityID: communityID,
			Type:        notice.Type,
			Title:       notice.Title,
			Body:        notice.Body,
			Data:        data,
			Link:        notice.Link,
			CreatedAt:   now,
		})
	}

	if err := store.InsertNotifications(ctx, notifications); err != nil {
		return 0, err
	}

	n.logger.Info("Admins notified", "community_id", communityID, "type", notice.Type, "count", len(notifications))
	return len(notifications), nil
}
