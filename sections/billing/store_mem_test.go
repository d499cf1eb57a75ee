package billing

import (
	"context"
	"sort"
	"time"

	"commune-backend/sections/models"
)

type usageInit struct {
	CommunityID string
	TierID      string
}

// memStore is an in-memory Store. Transaction restores the previous state when fn fails.
type memStore struct {
	subs          map[string]models.CommunitySubscription
	trials        map[string]models.TrialRecord
	history       []models.BillingHistory
	usageInits    []usageInit
	usage         map[string][]models.UsageTracking
	plans         map[string]string
	members       []models.CommunityMember
	users         map[string]models.User
	notifications []models.Notification
	nextID        uint

	// failOn makes the named method return the error.
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		subs:   map[string]models.CommunitySubscription{},
		trials: map[string]models.TrialRecord{},
		usage:  map[string][]models.UsageTracking{},
		plans:  map[string]string{},
		users:  map[string]models.User{},
		failOn: map[string]error{},
	}
}

func (m *memStore) addAdmin(communityID, userID string, status models.MemberStatus) {
	m.nextID++
	m.members = append(m.members, models.CommunityMember{
		ID:          m.nextID,
		CommunityID: communityID,
		UserID:      userID,
		Role:        models.MemberRoleAdmin,
		Status:      status,
	})
}

func (m *memStore) snapshot() *memStore {
	c := *m
	c.subs = make(map[string]models.CommunitySubscription, len(m.subs))
	for k, v := range m.subs {
		c.subs[k] = v
	}
	c.trials = make(map[string]models.TrialRecord, len(m.trials))
	for k, v := range m.trials {
		c.trials[k] = v
	}
	c.plans = make(map[string]string, len(m.plans))
	for k, v := range m.plans {
		c.plans[k] = v
	}
	c.history = append([]models.BillingHistory(nil), m.history...)
	c.usageInits = append([]usageInit(nil), m.usageInits...)
	c.notifications = append([]models.Notification(nil), m.notifications...)
	return &c
}

func (m *memStore) restore(s *memStore) {
	m.subs = s.subs
	m.trials = s.trials
	m.plans = s.plans
	m.history = s.history
	m.usageInits = s.usageInits
	m.notifications = s.notifications
	m.nextID = s.nextID
}

func (m *memStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	before := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *memStore) UpsertSubscription(_ context.Context, sub *models.CommunitySubscription) error {
	if err := m.failOn["UpsertSubscription"]; err != nil {
		return err
	}
	row := *sub
	if existing, ok := m.subs[sub.CommunityID]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		row.ID = m.nextID
	}
	m.subs[sub.CommunityID] = row
	return nil
}

func (m *memStore) findByStripeID(stripeSubscriptionID string) (string, bool) {
	for k, v := range m.subs {
		if v.StripeSubscriptionID == stripeSubscriptionID {
			return k, true
		}
	}
	return "", false
}

func (m *memStore) UpdateSubscription(_ context.Context, stripeSubscriptionID string, update SubscriptionUpdate) (int64, error) {
	if err := m.failOn["UpdateSubscription"]; err != nil {
		return 0, err
	}
	key, ok := m.findByStripeID(stripeSubscriptionID)
	if !ok || m.subs[key].Status == models.SubscriptionStatusCanceled {
		return 0, nil
	}
	row := m.subs[key]
	if update.TierID != "" {
		row.TierID = update.TierID
	}
	row.Status = update.Status
	row.IsTrial = update.IsTrial
	row.TrialEndsAt = update.TrialEndsAt
	row.CurrentPeriodStart = update.CurrentPeriodStart
	row.CurrentPeriodEnd = update.CurrentPeriodEnd
	row.CancelAtPeriodEnd = update.CancelAtPeriodEnd
	m.subs[key] = row
	return 1, nil
}

func (m *memStore) SetSubscriptionStatus(_ context.Context, stripeSubscriptionID string, status models.SubscriptionStatus) (int64, error) {
	if err := m.failOn["SetSubscriptionStatus"]; err != nil {
		return 0, err
	}
	key, ok := m.findByStripeID(stripeSubscriptionID)
	if !ok || m.subs[key].Status == models.SubscriptionStatusCanceled {
		return 0, nil
	}
	row := m.subs[key]
	row.Status = status
	m.subs[key] = row
	return 1, nil
}

func (m *memStore) GetSubscription(_ context.Context, communityID string) (*models.CommunitySubscription, error) {
	row, ok := m.subs[communityID]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *memStore) FindSubscriptionByStripeID(_ context.Context, stripeSubscriptionID string) (*models.CommunitySubscription, error) {
	key, ok := m.findByStripeID(stripeSubscriptionID)
	if !ok {
		return nil, ErrNotFound
	}
	row := m.subs[key]
	return &row, nil
}

func (m *memStore) UpsertTrialRecord(_ context.Context, trial *models.TrialRecord) error {
	if err := m.failOn["UpsertTrialRecord"]; err != nil {
		return err
	}
	row := *trial
	if existing, ok := m.trials[trial.UserID]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.Converted = existing.Converted
		row.ConvertedAt = existing.ConvertedAt
	}
	m.trials[trial.UserID] = row
	return nil
}

func (m *memStore) GetTrialRecord(_ context.Context, userID string) (*models.TrialRecord, error) {
	if err := m.failOn["GetTrialRecord"]; err != nil {
		return nil, err
	}
	t, ok := m.trials[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *memStore) MarkTrialsConverted(_ context.Context, communityID string, at time.Time) (int64, error) {
	var n int64
	for k, t := range m.trials {
		if t.CommunityID == communityID && !t.Converted {
			t.Converted = true
			t.ConvertedAt = &at
			m.trials[k] = t
			n++
		}
	}
	return n, nil
}

func (m *memStore) InsertBillingHistory(_ context.Context, entry *models.BillingHistory) error {
	if err := m.failOn["InsertBillingHistory"]; err != nil {
		return err
	}
	for _, h := range m.history {
		if h.StripeInvoiceID == entry.StripeInvoiceID {
			return nil
		}
	}
	m.nextID++
	row := *entry
	row.ID = m.nextID
	m.history = append(m.history, row)
	return nil
}

func (m *memStore) ListBillingHistory(_ context.Context, communityID string, limit int) ([]models.BillingHistory, error) {
	var out []models.BillingHistory
	for _, h := range m.history {
		if h.CommunityID == communityID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InitializeUsage(_ context.Context, communityID, tierID string) error {
	if err := m.failOn["InitializeUsage"]; err != nil {
		return err
	}
	m.usageInits = append(m.usageInits, usageInit{CommunityID: communityID, TierID: tierID})
	return nil
}

func (m *memStore) ListUsage(_ context.Context, communityID string) ([]models.UsageTracking, error) {
	return m.usage[communityID], nil
}

func (m *memStore) SetCommunityPlan(_ context.Context, communityID, tierID string) error {
	if err := m.failOn["SetCommunityPlan"]; err != nil {
		return err
	}
	m.plans[communityID] = tierID
	return nil
}

func (m *memStore) GetMember(_ context.Context, communityID, userID string) (*models.CommunityMember, error) {
	for _, mem := range m.members {
		if mem.CommunityID == communityID && mem.UserID == userID {
			return &mem, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListActiveAdmins(_ context.Context, communityID string) ([]models.CommunityMember, error) {
	var out []models.CommunityMember
	for _, mem := range m.members {
		if mem.CommunityID == communityID && mem.IsActiveAdmin() {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memStore) InsertNotifications(_ context.Context, notifications []models.Notification) error {
	if err := m.failOn["InsertNotifications"]; err != nil {
		return err
	}
	m.notifications = append(m.notifications, notifications...)
	return nil
}
