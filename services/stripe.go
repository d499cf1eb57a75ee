package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"commune-backend/common"

	"github.com/stripe/stripe-go/v84"
	portalsession "github.com/stripe/stripe-go/v84/billingportal/session"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"
	"github.com/stripe/stripe-go/v84/webhook"
)

// ErrNoSignature is returned when a webhook request carries no signature header.
var ErrNoSignature = errors.New("no signature")

// StripeService handles Stripe API interactions
type StripeService struct {
	tiers         []common.Tier
	webhookSecret string
	logger        *slog.Logger
}

// NewStripeService creates a new Stripe service
func NewStripeService(tiers []common.Tier, secretKey, webhookSecret string) *StripeService {
	stripe.Key = secretKey

	return &StripeService{
		tiers:         tiers,
		webhookSecret: webhookSecret,
		logger:        slog.With("service", "StripeService"),
	}
}

// ConstructWebhookEvent verifies the signature header against the raw payload and decodes
// the event. The payload is never logged.
func (s *StripeService) ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, ErrNoSignature
	}

	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, options)
	if err != nil {
		s.logger.Warn("Failed to verify webhook signature", "error", err)
		return stripe.Event{}, fmt.Errorf("failed to verify webhook: %w", err)
	}

	s.logger.Debug("Webhook event verified", "type", event.Type, "id", event.ID)
	return event, nil
}

// RetrieveSubscription fetches the live state of a subscription, with its items expanded
// down to the recurring price.
func (s *StripeService) RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		s.logger.Error("Failed to retrieve subscription", "error", err, "subscription_id", subscriptionID)
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, err)
	}
	return sub, nil
}

// GetOrCreateCustomer retrieves an existing customer or creates a new one
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*stripe.Customer, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   "email:" + searchQuote(email),
			Context: ctx,
		},
	}
	iter := customer.Search(searchParams)

	if iter.Next() {
		cust := iter.Customer()
		s.logger.Info("Found existing Stripe customer", "customer_id", cust.ID)
		return cust, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}

	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Name:     stripe.String(name),
		Metadata: metadata,
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		s.logger.Error("Failed to create Stripe customer", "error", err)
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.Info("Created new Stripe customer", "customer_id", cust.ID)
	return cust, nil
}

// TierCheckoutParams describes a subscription checkout for one community
type TierCheckoutParams struct {
	CustomerID  string
	CommunityID string
	UserID      string
	TierID      string
	Trial       bool
	SuccessURL  string
	CancelURL   string
}

// CreateTierCheckoutSession creates a hosted checkout session in subscription mode. The
// community, tier, user and trial flag travel as metadata on both the session and the
// resulting subscription; the webhook reconciler depends on them.
func (s *StripeService) CreateTierCheckoutSession(ctx context.Context, p *TierCheckoutParams) (*stripe.CheckoutSession, error) {
	tier := common.GetTier(s.tiers, p.TierID)
	if tier == nil {
		return nil, fmt.Errorf("tier not found: %s", p.TierID)
	}
	if tier.PriceId == "" {
		return nil, fmt.Errorf("tier %s has no price", p.TierID)
	}

	metadata := CheckoutMetadata(p.CommunityID, tier.ID, p.UserID, p.Trial)

	subData := &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: metadata,
	}
	if p.Trial && tier.TrialDays > 0 {
		subData.TrialPeriodDays = stripe.Int64(tier.TrialDays)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(p.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(tier.PriceId),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata:         metadata,
		SubscriptionData: subData,
		SuccessURL:       stripe.String(p.SuccessURL),
		CancelURL:        stripe.String(p.CancelURL),
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		s.logger.Error("Failed to create checkout session", "error", err)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("Created checkout session", "session_id", sess.ID, "community_id", p.CommunityID, "tier_id", tier.ID, "trial", p.Trial)
	return sess, nil
}

// CreatePortalSession creates a billing portal session for an existing customer
func (s *StripeService) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		s.logger.Error("Failed to create portal session", "error", err, "customer_id", customerID)
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess, nil
}

// Metadata keys shared between checkout creation and webhook reconciliation.
const (
	MetadataCommunityID = "community_id"
	MetadataTierID      = "tier_id"
	MetadataUserID      = "user_id"
	MetadataIsTrial     = "is_trial"
)

// CheckoutMetadata builds the metadata map attached to checkout sessions and subscriptions.
func CheckoutMetadata(communityID, tierID, userID string, trial bool) map[string]string {
	return map[string]string{
		MetadataCommunityID: communityID,
		MetadataTierID:      tierID,
		MetadataUserID:      userID,
		MetadataIsTrial:     strconv.FormatBool(trial),
	}
}

// searchQuote renders v as a quoted Stripe search query value.
func searchQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
}
