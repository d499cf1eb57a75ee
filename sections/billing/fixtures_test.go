package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

const (
	testCommunityID = "9b1f6c2e-3d4a-4b5c-8e7f-0a1b2c3d4e5f"
	testUserID      = "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	testSubID       = "sub_test_1"
	testCustomerID  = "cus_test_1"
)

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	trialEnd    = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
)

type fakeFetcher struct {
	subs  map[string]*stripe.Subscription
	err   error
	calls int
}

func (f *fakeFetcher) RetrieveSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func liveSubscription(status stripe.SubscriptionStatus, interval stripe.PriceRecurringInterval, metadata map[string]string) *stripe.Subscription {
	sub := &stripe.Subscription{
		ID:       testSubID,
		Status:   status,
		Customer: &stripe.Customer{ID: testCustomerID},
		Metadata: metadata,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				ID:                 "si_test_1",
				CurrentPeriodStart: periodStart.Unix(),
				CurrentPeriodEnd:   periodEnd.Unix(),
				Price: &stripe.Price{
					ID:        "price_test_1",
					Recurring: &stripe.PriceRecurring{Interval: interval},
				},
			}},
		},
	}
	if status == stripe.SubscriptionStatusTrialing {
		sub.TrialStart = periodStart.Unix()
		sub.TrialEnd = trialEnd.Unix()
	}
	return sub
}

func checkoutMetadata(tierID string, trial bool) map[string]string {
	return map[string]string{
		"community_id": testCommunityID,
		"tier_id":      tierID,
		"user_id":      testUserID,
		"is_trial":     fmt.Sprint(trial),
	}
}

func checkoutSessionObject(metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"mode":         "subscription",
		"customer":     testCustomerID,
		"subscription": testSubID,
		"metadata":     metadata,
	}
}

func subscriptionObject(status string, metadata map[string]string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":                   testSubID,
		"object":               "subscription",
		"status":               status,
		"customer":             testCustomerID,
		"cancel_at_period_end": false,
		"metadata":             metadata,
		"items": map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				map[string]interface{}{
					"id":                   "si_test_1",
					"current_period_start": periodStart.Unix(),
					"current_period_end":   periodEnd.Unix(),
				},
			},
		},
	}
	if status == "trialing" {
		obj["trial_start"] = periodStart.Unix()
		obj["trial_end"] = trialEnd.Unix()
	}
	return obj
}

func invoiceObject(id string, metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":                 id,
		"object":             "invoice",
		"number":             "INV-0001",
		"status":             "paid",
		"amount_paid":        1900,
		"amount_due":         1900,
		"currency":           "usd",
		"hosted_invoice_url": "https://invoice.stripe.com/i/test",
		"invoice_pdf":        "https://invoice.stripe.com/i/test/pdf",
		"parent": map[string]interface{}{
			"type": "subscription_details",
			"subscription_details": map[string]interface{}{
				"subscription": testSubID,
				"metadata":     metadata,
			},
		},
		"lines": map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				map[string]interface{}{
					"id":          "il_test_1",
					"description": "1 x Pro (at $19.00 / month)",
					"period": map[string]interface{}{
						"start": periodStart.Unix(),
						"end":   periodEnd.Unix(),
					},
				},
			},
		},
		"status_transitions": map[string]interface{}{
			"paid_at": periodStart.Unix(),
		},
	}
}

func eventPayload(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()

	buf, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     periodStart.Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return buf
}

func newEvent(t *testing.T, id, eventType string, object map[string]interface{}) stripe.Event {
	t.Helper()

	var event stripe.Event
	require.NoError(t, json.Unmarshal(eventPayload(t, id, eventType, object), &event))
	return event
}

func newTestReconciler(store Store, fetcher SubscriptionFetcher) *Reconciler {
	r := NewReconciler(store, fetcher, NewNotifier(), Options{
		BaselineTier:  "free",
		TrialCooldown: 14 * 24 * time.Hour,
	})
	r.now = func() time.Time { return periodStart }
	return r
}
