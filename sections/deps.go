package sections

import (
	"commune-backend/common"
	"commune-backend/db"
	"commune-backend/metrics"
	"commune-backend/services"
	"commune-backend/storage"
)

// Dependencies holds all shared dependencies for handlers
type Dependencies struct {
	Config  *common.Config
	DB      *db.DB
	Redis   *storage.RedisClient
	Ledger  *storage.EventLedger
	Stripe  *services.StripeService
	Tiers   []common.Tier
	Metrics *metrics.WebhookMetrics
}

// NewDependencies creates a new Dependencies instance. redis may be nil, in which case
// webhook events are not de-duplicated.
func NewDependencies(
	cfg *common.Config,
	database *db.DB,
	redis *storage.RedisClient,
	stripeSvc *services.StripeService,
	tiers []common.Tier,
	m *metrics.WebhookMetrics,
) *Dependencies {
	deps := &Dependencies{
		Config:  cfg,
		DB:      database,
		Redis:   redis,
		Stripe:  stripeSvc,
		Tiers:   tiers,
		Metrics: m,
	}
	if redis != nil {
		deps.Ledger = storage.NewEventLedger(redis, cfg.EventLedgerTTL(), cfg.EventLockTTL())
	}
	return deps
}
