package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"commune-backend/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84/webhook"
)

const testSecret = "whsec_services_test"

func newTestStripeService() *StripeService {
	return NewStripeService([]common.Tier{
		{ID: "pro", PriceId: "price_pro", TrialDays: 14},
		{ID: "legacy"},
	}, "sk_test_unused", testSecret)
}

func TestConstructWebhookEvent(t *testing.T) {
	svc := newTestStripeService()
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})

	event, err := svc.ConstructWebhookEvent(payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "invoice.paid", string(event.Type))
}

func TestConstructWebhookEvent_Rejections(t *testing.T) {
	svc := newTestStripeService()
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid"}`)

	_, err := svc.ConstructWebhookEvent(payload, "")
	assert.True(t, errors.Is(err, ErrNoSignature))

	stale := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now().Add(-time.Hour),
	})
	_, err = svc.ConstructWebhookEvent(payload, stale.Header)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSignature))

	other := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  "whsec_other",
	})
	_, err = svc.ConstructWebhookEvent(payload, other.Header)
	assert.Error(t, err)
}

func TestCreateTierCheckoutSession_InvalidTier(t *testing.T) {
	svc := newTestStripeService()

	_, err := svc.CreateTierCheckoutSession(context.Background(), &TierCheckoutParams{TierID: "enterprise"})
	assert.ErrorContains(t, err, "tier not found")

	_, err = svc.CreateTierCheckoutSession(context.Background(), &TierCheckoutParams{TierID: "legacy"})
	assert.ErrorContains(t, err, "has no price")
}

func TestCheckoutMetadata(t *testing.T) {
	md := CheckoutMetadata("c1", "pro", "u1", true)

	assert.Equal(t, map[string]string{
		"community_id": "c1",
		"tier_id":      "pro",
		"user_id":      "u1",
		"is_trial":     "true",
	}, md)
}

func TestSearchQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ada@example.com", `'ada@example.com'`},
		{"o'brien@example.com", `'o\'brien@example.com'`},
		{`back\slash@example.com`, `'back\\slash@example.com'`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, searchQuote(tt.in), tt.in)
	}
}
