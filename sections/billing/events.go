package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"commune-backend/common"
	"commune-backend/sections/models"

	"github.com/stripe/stripe-go/v84"
)

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, logger *slog.Logger, session *stripe.CheckoutSession) error {
	if session.Mode != "" && session.Mode != stripe.CheckoutSessionModeSubscription {
		logger.Info("Ignoring non-subscription checkout", "session_id", session.ID, "mode", session.Mode)
		return nil
	}

	env := DecodeEnvelope(session.Metadata)
	if err := env.RequireCheckout(); err != nil {
		return fmt.Errorf("checkout session %s: %w", session.ID, err)
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		return fmt.Errorf("checkout session %s has no subscription", session.ID)
	}

	sub, err := r.fetcher.RetrieveSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return err
	}

	status := models.SubscriptionStatusActive
	if sub.Status == stripe.SubscriptionStatusTrialing {
		status = models.SubscriptionStatusTrialing
	}
	periodStart, periodEnd := periodBounds(sub)

	row := &models.CommunitySubscription{
		CommunityID:          env.CommunityID,
		StripeCustomerID:     customerID(session.Customer, sub.Customer),
		StripeSubscriptionID: sub.ID,
		TierID:               env.TierID,
		Status:               status,
		BillingPeriod:        billingPeriod(sub),
		IsTrial:              status == models.SubscriptionStatusTrialing,
		TrialEndsAt:          unixTime(sub.TrialEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}

	err = r.store.Transaction(ctx, func(tx Store) error {
		if err := tx.UpsertSubscription(ctx, row); err != nil {
			return err
		}

		if env.IsTrial {
			if err := r.recordTrial(ctx, logger, tx, env, sub); err != nil {
				return err
			}
		}

		if err := tx.InitializeUsage(ctx, env.CommunityID, env.TierID); err != nil {
			return err
		}
		return tx.SetCommunityPlan(ctx, env.CommunityID, env.TierID)
	})
	if err != nil {
		return err
	}

	logger.Info("Checkout completed", "community_id", env.CommunityID, "tier_id", env.TierID, "subscription_id", sub.ID, "status", status)
	return nil
}

func (r *Reconciler) recordTrial(ctx context.Context, logger *slog.Logger, tx Store, env Envelope, sub *stripe.Subscription) error {
	if env.UserID == "" {
		logger.Warn("Trial checkout without user, trial not recorded", "community_id", env.CommunityID)
		return nil
	}

	now := r.now()
	started := now
	if t := unixTime(sub.TrialStart); t != nil {
		started = *t
	}
	ends := started
	if t := unixTime(sub.TrialEnd); t != nil {
		ends = *t
	} else if _, end := periodBounds(sub); end != nil {
		ends = *end
	}

	return tx.UpsertTrialRecord(ctx, &models.TrialRecord{
		UserID:        env.UserID,
		CommunityID:   env.CommunityID,
		TierID:        env.TierID,
		StartedAt:     started,
		EndsAt:        ends,
		CooldownUntil: ends.Add(r.opts.TrialCooldown),
	})
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, logger *slog.Logger, sub *stripe.Subscription) error {
	env := DecodeEnvelope(sub.Metadata)
	if env.CommunityID == "" {
		// Not every subscription belongs to a community.
		logger.Debug("Subscription without community, skipping", "subscription_id", sub.ID)
		return nil
	}

	current, err := r.store.FindSubscriptionByStripeID(ctx, sub.ID)
	if errors.Is(err, ErrNotFound) {
		logger.Info("Subscription not recorded yet, skipping update", "subscription_id", sub.ID, "community_id", env.CommunityID)
		return nil
	}
	if err != nil {
		return err
	}
	if current.Status == models.SubscriptionStatusCanceled {
		logger.Info("Subscription already canceled, skipping update", "subscription_id", sub.ID, "community_id", current.CommunityID)
		return nil
	}

	status := models.SubscriptionStatus(sub.Status)
	periodStart, periodEnd := periodBounds(sub)
	update := SubscriptionUpdate{
		TierID:             env.TierID,
		Status:             status,
		IsTrial:            status == models.SubscriptionStatusTrialing,
		TrialEndsAt:        unixTime(sub.TrialEnd),
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	tierChanged := env.TierID != "" && env.TierID != current.TierID

	err = r.store.Transaction(ctx, func(tx Store) error {
		n, err := tx.UpdateSubscription(ctx, sub.ID, update)
		if err != nil {
			return err
		}
		if n == 0 || !tierChanged {
			tierChanged = false
			return nil
		}
		if err := tx.InitializeUsage(ctx, current.CommunityID, env.TierID); err != nil {
			return err
		}
		return tx.SetCommunityPlan(ctx, current.CommunityID, env.TierID)
	})
	if err != nil {
		return err
	}

	logger.Info("Subscription updated", "community_id", current.CommunityID, "subscription_id", sub.ID, "status", status, "tier_changed", tierChanged)
	return nil
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, logger *slog.Logger, sub *stripe.Subscription) error {
	communityID, err := r.communityForSubscription(ctx, sub)
	if err != nil {
		return err
	}
	if communityID == "" {
		logger.Info("Deleted subscription has no community, skipping", "subscription_id", sub.ID)
		return nil
	}

	err = r.store.Transaction(ctx, func(tx Store) error {
		n, err := tx.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusCanceled)
		if err != nil {
			return err
		}
		if n == 0 {
			// Either already canceled or the community moved to another subscription.
			logger.Info("Deleted subscription not current for community", "community_id", communityID, "subscription_id", sub.ID)
			return nil
		}
		if err := tx.InitializeUsage(ctx, communityID, r.opts.BaselineTier); err != nil {
			return err
		}
		return tx.SetCommunityPlan(ctx, communityID, r.opts.BaselineTier)
	})
	if err != nil {
		return err
	}

	logger.Info("Subscription canceled", "community_id", communityID, "subscription_id", sub.ID, "tier_id", r.opts.BaselineTier)
	return nil
}

func (r *Reconciler) handleTrialWillEnd(ctx context.Context, logger *slog.Logger, sub *stripe.Subscription) error {
	communityID, err := r.communityForSubscription(ctx, sub)
	if err != nil {
		return err
	}
	if communityID == "" {
		logger.Info("Trial subscription has no community, skipping", "subscription_id", sub.ID)
		return nil
	}

	body := "Your community's trial is ending soon. Add a payment method to keep your plan."
	data := map[string]interface{}{
		"subscription_id": sub.ID,
	}
	if ends := unixTime(sub.TrialEnd); ends != nil {
		body = fmt.Sprintf("Your community's trial ends on %s. Add a payment method to keep your plan.", ends.Format("January 2, 2006"))
		data["trial_end"] = ends.Format(time.RFC3339)
	}
	if tierID := DecodeEnvelope(sub.Metadata).TierID; tierID != "" {
		data["tier_id"] = tierID
	}

	_, err = r.notifier.NotifyAdmins(ctx, r.store, communityID, AdminNotice{
		Type:  models.NotificationTypeTrialEnding,
		Title: "Your trial is ending soon",
		Body:  body,
		Data:  data,
		Link:  common.BillingLink(communityID),
	})
	return err
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, logger *slog.Logger, invoice *stripe.Invoice) error {
	subID := invoiceSubscriptionID(invoice)
	if subID == "" {
		logger.Info("Invoice not tied to a subscription, skipping", "invoice_id", invoice.ID)
		return nil
	}

	communityID, err := r.communityForInvoice(ctx, invoice, subID)
	if err != nil {
		return err
	}
	if communityID == "" {
		logger.Warn("Paid invoice has no community, skipping", "invoice_id", invoice.ID, "subscription_id", subID)
		return nil
	}

	now := r.now()
	entry := billingHistoryEntry(invoice, communityID, subID, now)

	err = r.store.Transaction(ctx, func(tx Store) error {
		if err := tx.InsertBillingHistory(ctx, entry); err != nil {
			return err
		}
		if _, err := tx.MarkTrialsConverted(ctx, communityID, now); err != nil {
			return err
		}
		_, err := tx.SetSubscriptionStatus(ctx, subID, models.SubscriptionStatusActive)
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("Invoice paid", "community_id", communityID, "invoice_id", invoice.ID, "amount", invoice.AmountPaid, "currency", invoice.Currency)
	return nil
}

func (r *Reconciler) handleInvoicePaymentFailed(ctx context.Context, logger *slog.Logger, invoice *stripe.Invoice) error {
	subID := invoiceSubscriptionID(invoice)
	if subID == "" {
		logger.Info("Invoice not tied to a subscription, skipping", "invoice_id", invoice.ID)
		return nil
	}

	communityID, err := r.communityForInvoice(ctx, invoice, subID)
	if err != nil {
		return err
	}
	if communityID == "" {
		logger.Warn("Failed invoice has no community, skipping", "invoice_id", invoice.ID, "subscription_id", subID)
		return nil
	}

	var notified int
	err = r.store.Transaction(ctx, func(tx Store) error {
		if _, err := tx.SetSubscriptionStatus(ctx, subID, models.SubscriptionStatusPastDue); err != nil {
			return err
		}

		n, err := r.notifier.NotifyAdmins(ctx, tx, communityID, AdminNotice{
			Type:  models.NotificationTypePaymentFailed,
			Title: "Payment failed",
			Body:  fmt.Sprintf("We could not collect %s for your community's subscription. Please update your payment method.", formatAmount(invoice.AmountDue, string(invoice.Currency))),
			Data: map[string]interface{}{
				"invoice_id":         invoice.ID,
				"subscription_id":    subID,
				"amount_due":         invoice.AmountDue,
				"currency":           string(invoice.Currency),
				"hosted_invoice_url": invoice.HostedInvoiceURL,
			},
			Link: common.BillingLink(communityID),
		})
		notified = n
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("Invoice payment failed", "community_id", communityID, "invoice_id", invoice.ID, "notified", notified)
	return nil
}

// communityForSubscription reads the community from subscription metadata, falling back to
// the stored subscription row.
func (r *Reconciler) communityForSubscription(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if id := DecodeEnvelope(sub.Metadata).CommunityID; id != "" {
		return id, nil
	}
	row, err := r.store.FindSubscriptionByStripeID(ctx, sub.ID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.CommunityID, nil
}

// communityForInvoice reads the community from the invoice's subscription details, falling
// back to the live subscription at the provider.
func (r *Reconciler) communityForInvoice(ctx context.Context, invoice *stripe.Invoice, subID string) (string, error) {
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		if id := DecodeEnvelope(invoice.Parent.SubscriptionDetails.Metadata).CommunityID; id != "" {
			return id, nil
		}
	}

	sub, err := r.fetcher.RetrieveSubscription(ctx, subID)
	if err != nil {
		return "", err
	}
	return DecodeEnvelope(sub.Metadata).CommunityID, nil
}

func invoiceSubscriptionID(invoice *stripe.Invoice) string {
	if invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil {
		return ""
	}
	if sub := invoice.Parent.SubscriptionDetails.Subscription; sub != nil {
		return sub.ID
	}
	return ""
}

func billingHistoryEntry(invoice *stripe.Invoice, communityID, subID string, now time.Time) *models.BillingHistory {
	entry := &models.BillingHistory{
		CommunityID:          communityID,
		StripeInvoiceID:      invoice.ID,
		StripeSubscriptionID: subID,
		InvoiceNumber:        invoice.Number,
		Amount:               invoice.AmountPaid,
		Currency:             string(invoice.Currency),
		Status:               string(invoice.Status),
		Description:          invoice.Description,
		HostedInvoiceURL:     invoice.HostedInvoiceURL,
		InvoicePDFURL:        invoice.InvoicePDF,
		PeriodStart:          unixTime(invoice.PeriodStart),
		PeriodEnd:            unixTime(invoice.PeriodEnd),
		PaidAt:               now,
	}

	// Subscription invoices carry the service period on their line items.
	if invoice.Lines != nil && len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[0]
		if line.Period != nil {
			entry.PeriodStart = unixTime(line.Period.Start)
			entry.PeriodEnd = unixTime(line.Period.End)
		}
		if entry.Description == "" {
			entry.Description = line.Description
		}
	}
	if invoice.StatusTransitions != nil {
		if paid := unixTime(invoice.StatusTransitions.PaidAt); paid != nil {
			entry.PaidAt = *paid
		}
	}
	if entry.Status == "" {
		entry.Status = "paid"
	}
	return entry
}

func billingPeriod(sub *stripe.Subscription) models.BillingPeriod {
	if item := firstItem(sub); item != nil && item.Price != nil && item.Price.Recurring != nil {
		if item.Price.Recurring.Interval == stripe.PriceRecurringIntervalYear {
			return models.BillingPeriodAnnual
		}
	}
	return models.BillingPeriodMonthly
}

func periodBounds(sub *stripe.Subscription) (start, end *time.Time) {
	item := firstItem(sub)
	if item == nil {
		return nil, nil
	}
	return unixTime(item.CurrentPeriodStart), unixTime(item.CurrentPeriodEnd)
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

func customerID(customers ...*stripe.Customer) string {
	for _, c := range customers {
		if c != nil && c.ID != "" {
			return c.ID
		}
	}
	return ""
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
