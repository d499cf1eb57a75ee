package billing

import (
	"commune-backend/sections"
	"commune-backend/sections/common/auth"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the Stripe webhook and the community billing API
func RegisterRoutes(r *gin.Engine, deps *sections.Dependencies, jwtManager *auth.JWTManager) {
	store := NewGormStore(deps.DB.Gorm())

	reconciler := NewReconciler(store, deps.Stripe, NewNotifier(), Options{
		BaselineTier:  deps.Config.BaselineTier,
		TrialCooldown: deps.Config.TrialCooldown(),
	})

	var ledger EventLedger
	if deps.Ledger != nil {
		ledger = deps.Ledger
	}
	webhook := NewWebhookHandler(deps.Stripe, reconciler, ledger, deps.Metrics)

	// Verified via the Stripe-Signature header, no session auth
	r.POST("/api/stripe/webhooks", webhook.HandleWebhook)

	api := NewAPIHandler(deps.Config, store, deps.Stripe, deps.Tiers)

	billing := r.Group("/api/v1/communities/:communityId/billing")
	billing.Use(auth.JWTAuthMiddleware(jwtManager), auth.RequireCommunityAdmin(store))
	{
		billing.GET("/subscription", api.GetSubscription)
		billing.GET("/history", api.ListHistory)
		billing.GET("/usage", api.ListUsage)
		billing.GET("/tiers", api.ListTiers)
		billing.POST("/checkout", api.CreateCheckout)
		billing.POST("/portal", api.CreatePortal)
	}
}
