package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v84"
)

// SubscriptionFetcher reads live subscription state from the payment provider.
type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// Options tune the reconciler's business rules.
type Options struct {
	// BaselineTier is assigned to a community whose subscription was deleted.
	BaselineTier string
	// TrialCooldown is added to a trial's end to get the earliest next trial.
	TrialCooldown time.Duration
}

// Reconciler applies verified Stripe events to subscription, billing and notification state.
type Reconciler struct {
	logger   *slog.Logger
	store    Store
	fetcher  SubscriptionFetcher
	notifier *Notifier
	opts     Options
	now      func() time.Time
}

func NewReconciler(store Store, fetcher SubscriptionFetcher, notifier *Notifier, opts Options) *Reconciler {
	return &Reconciler{
		logger:   slog.With("service", "Reconciler"),
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// Reconcile routes an event to its handler. Unrecognised event types are acknowledged
// without changes; any returned error means the event should be redelivered.
func (r *Reconciler) Reconcile(ctx context.Context, event stripe.Event) error {
	logger := r.logger.With("event_id", event.ID, "type", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := parseEventData(event, &session); err != nil {
			return err
		}
		return r.handleCheckoutCompleted(ctx, logger, &session)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := parseEventData(event, &sub); err != nil {
			return err
		}
		return r.handleSubscriptionUpdated(ctx, logger, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := parseEventData(event, &sub); err != nil {
			return err
		}
		return r.handleSubscriptionDeleted(ctx, logger, &sub)
	case "customer.subscription.trial_will_end":
		var sub stripe.Subscription
		if err := parseEventData(event, &sub); err != nil {
			return err
		}
		return r.handleTrialWillEnd(ctx, logger, &sub)
	case "invoice.paid":
		var invoice stripe.Invoice
		if err := parseEventData(event, &invoice); err != nil {
			return err
		}
		return r.handleInvoicePaid(ctx, logger, &invoice)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := parseEventData(event, &invoice); err != nil {
			return err
		}
		return r.handleInvoicePaymentFailed(ctx, logger, &invoice)
	default:
		logger.Info("Unhandled webhook event type")
		return nil
	}
}

func parseEventData(event stripe.Event, target interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("event %s has no data", event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, target); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", event.Type, err)
	}
	return nil
}
