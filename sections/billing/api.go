package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"commune-backend/common"
	"commune-backend/sections/common/auth"
	"commune-backend/sections/models"
	"commune-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 100
)

// CheckoutProvider is the part of the payment provider the billing API drives.
type CheckoutProvider interface {
	GetOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*stripe.Customer, error)
	CreateTierCheckoutSession(ctx context.Context, p *services.TierCheckoutParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
}

// APIHandler serves billing management for community admins
type APIHandler struct {
	logger   *slog.Logger
	cfg      *common.Config
	store    Store
	provider CheckoutProvider
	tiers    []common.Tier
	now      func() time.Time
}

func NewAPIHandler(cfg *common.Config, store Store, provider CheckoutProvider, tiers []common.Tier) *APIHandler {
	return &APIHandler{
		logger:   slog.With("handler", "BillingAPIHandler"),
		cfg:      cfg,
		store:    store,
		provider: provider,
		tiers:    tiers,
		now:      time.Now,
	}
}

type CheckoutRequest struct {
	TierID string `json:"tierId" binding:"required"`
	Trial  bool   `json:"trial,omitempty"`
}

type CheckoutResponse struct {
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionUrl"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

// GetSubscription returns the community's subscription
func (h *APIHandler) GetSubscription(c *gin.Context) {
	communityID, _ := auth.GetCommunityIDFromContext(c)

	sub, err := h.store.GetSubscription(c.Request.Context(), communityID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscription"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get subscription", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get subscription"})
		return
	}

	c.JSON(http.StatusOK, common.ApiResponse[*models.CommunitySubscription]{Data: sub, Success: true})
}

// ListHistory returns paid invoices, newest first
func (h *APIHandler) ListHistory(c *gin.Context) {
	communityID, _ := auth.GetCommunityIDFromContext(c)

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.store.ListBillingHistory(c.Request.Context(), communityID, limit)
	if err != nil {
		h.logger.Error("Failed to list billing history", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list billing history"})
		return
	}

	c.JSON(http.StatusOK, common.ApiResponse[[]models.BillingHistory]{Data: entries, Success: true})
}

// ListUsage returns the community's usage counters
func (h *APIHandler) ListUsage(c *gin.Context) {
	communityID, _ := auth.GetCommunityIDFromContext(c)

	rows, err := h.store.ListUsage(c.Request.Context(), communityID)
	if err != nil {
		h.logger.Error("Failed to list usage", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list usage"})
		return
	}

	c.JSON(http.StatusOK, common.ApiResponse[[]models.UsageTracking]{Data: rows, Success: true})
}

// ListTiers returns the configured tiers
func (h *APIHandler) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, common.ApiResponse[[]common.Tier]{Data: h.tiers, Success: true})
}

// CreateCheckout starts a hosted checkout for a tier
func (h *APIHandler) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := common.GetTier(h.tiers, req.TierID)
	if tier == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}
	if req.Trial && tier.TrialDays <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier has no trial"})
		return
	}

	ctx := c.Request.Context()
	communityID, _ := auth.GetCommunityIDFromContext(c)
	userID, _ := auth.GetUserIDFromContext(c)

	if req.Trial {
		trial, err := h.store.GetTrialRecord(ctx, userID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			h.logger.Error("Failed to get trial record", "error", err, "user_id", userID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check trial eligibility"})
			return
		case trial.InCooldown(h.now()):
			c.JSON(http.StatusConflict, gin.H{"error": "trial not available until " + trial.CooldownUntil.Format(time.RFC3339)})
			return
		}
	}

	customerID, err := h.customerFor(ctx, communityID, userID)
	if err != nil {
		h.logger.Error("Failed to resolve customer", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create customer"})
		return
	}

	link := common.BillingLink(communityID)
	sess, err := h.provider.CreateTierCheckoutSession(ctx, &services.TierCheckoutParams{
		CustomerID:  customerID,
		CommunityID: communityID,
		UserID:      userID,
		TierID:      tier.ID,
		Trial:       req.Trial,
		SuccessURL:  h.cfg.AbsoluteURL(link + "?checkout=success"),
		CancelURL:   h.cfg.AbsoluteURL(link + "?checkout=canceled"),
	})
	if err != nil {
		h.logger.Error("Failed to create checkout session", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, common.ApiResponse[CheckoutResponse]{
		Data:    CheckoutResponse{SessionID: sess.ID, SessionURL: sess.URL},
		Success: true,
	})
}

// CreatePortal opens the provider's billing portal for the community's customer
func (h *APIHandler) CreatePortal(c *gin.Context) {
	communityID, _ := auth.GetCommunityIDFromContext(c)
	ctx := c.Request.Context()

	sub, err := h.store.GetSubscription(ctx, communityID)
	if errors.Is(err, ErrNotFound) || (err == nil && sub.StripeCustomerID == "") {
		c.JSON(http.StatusNotFound, gin.H{"error": "no billing account"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get subscription", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get subscription"})
		return
	}

	sess, err := h.provider.CreatePortalSession(ctx, sub.StripeCustomerID, h.cfg.AbsoluteURL(common.BillingLink(communityID)))
	if err != nil {
		h.logger.Error("Failed to create portal session", "error", err, "community_id", communityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, common.ApiResponse[PortalResponse]{Data: PortalResponse{URL: sess.URL}, Success: true})
}

// customerFor reuses the community's customer when it already has one.
func (h *APIHandler) customerFor(ctx context.Context, communityID, userID string) (string, error) {
	sub, err := h.store.GetSubscription(ctx, communityID)
	if err == nil && sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}

	cust, err := h.provider.GetOrCreateCustomer(ctx, user.Email, user.FullName, map[string]string{
		services.MetadataCommunityID: communityID,
		services.MetadataUserID:      userID,
	})
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}
