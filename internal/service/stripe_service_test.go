package service

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"app/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

const testWebhookSecret = "whsec_test"

func newTestStripeService(entRepo *fakeEntitlementRepo) *StripeService {
	cfg := &config.Config{
		StripeSecretKey:     "sk_test",
		StripeWebhookSecret: testWebhookSecret,
		StripePricePro:      "price_pro_monthly",
	}
	return NewStripeService(cfg, entRepo, zerolog.Nop())
}

func buildSignedEvent(t *testing.T, eventType string, object any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	event := &stripe.Event{
		ID:         "evt_test_1",
		Type:       stripe.EventType(eventType),
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: raw,
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, buildStripeSignatureHeader(payload, testWebhookSecret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func deliverWebhook(svc *StripeService, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sigHeader)
	rec := httptest.NewRecorder()
	svc.HandleWebhook(rec, req)
	return rec
}

func TestWebhookCheckoutCompletedActivatesAndIsIdempotent(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	svc := newTestStripeService(entRepo)

	payload, header := buildSignedEvent(t, "checkout.session.completed", &stripe.CheckoutSession{
		ID:                "cs_test_1",
		ClientReferenceID: "user-1",
		Customer:          &stripe.Customer{ID: "cus_123"},
	})

	rec := deliverWebhook(svc, payload, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", rec.Body.String())

	e := entRepo.get("user-1")
	assert.True(t, e.IsPro)
	require.NotNil(t, e.StripeCustomerID)
	assert.Equal(t, "cus_123", *e.StripeCustomerID)

	// Redelivering the identical event leaves the same end state.
	rec2 := deliverWebhook(svc, payload, header)
	require.Equal(t, http.StatusOK, rec2.Code)
	e = entRepo.get("user-1")
	assert.True(t, e.IsPro)
	assert.Equal(t, "cus_123", *e.StripeCustomerID)
}

func TestWebhookSubscriptionUpdatedCanceledDowngrades(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	customerID := "cus_123"
	entRepo.get("user-1").IsPro = true
	entRepo.get("user-1").StripeCustomerID = &customerID
	svc := newTestStripeService(entRepo)

	payload, header := buildSignedEvent(t, "customer.subscription.updated", &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusCanceled,
		Customer: &stripe.Customer{ID: customerID},
	})

	rec := deliverWebhook(svc, payload, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, entRepo.get("user-1").IsPro)
}

func TestWebhookSubscriptionUpdatedActiveUpgrades(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	customerID := "cus_123"
	entRepo.get("user-1").StripeCustomerID = &customerID
	svc := newTestStripeService(entRepo)

	for _, status := range []stripe.SubscriptionStatus{
		stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
	} {
		payload, header := buildSignedEvent(t, "customer.subscription.updated", &stripe.Subscription{
			ID:       "sub_1",
			Status:   status,
			Customer: &stripe.Customer{ID: customerID},
		})
		rec := deliverWebhook(svc, payload, header)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, entRepo.get("user-1").IsPro, "status %s", status)

		entRepo.get("user-1").IsPro = false
	}
}

func TestWebhookSubscriptionDeletedDowngrades(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	customerID := "cus_123"
	entRepo.get("user-1").IsPro = true
	entRepo.get("user-1").StripeCustomerID = &customerID
	svc := newTestStripeService(entRepo)

	payload, header := buildSignedEvent(t, "customer.subscription.deleted", &stripe.Subscription{
		ID:       "sub_1",
		Customer: &stripe.Customer{ID: customerID},
	})

	rec := deliverWebhook(svc, payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, entRepo.get("user-1").IsPro)
}

func TestWebhookUnknownCustomerIsNoOp(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	svc := newTestStripeService(entRepo)

	payload, header := buildSignedEvent(t, "customer.subscription.updated", &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_unknown"},
	})

	rec := deliverWebhook(svc, payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, entRepo.entitlements)
}

func TestWebhookInvalidSignature(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	svc := newTestStripeService(entRepo)

	payload, _ := buildSignedEvent(t, "checkout.session.completed", &stripe.CheckoutSession{
		ID:                "cs_test_1",
		ClientReferenceID: "user-1",
	})

	rec := deliverWebhook(svc, payload, "t=1,v1=invalid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, entRepo.entitlements)
}

func TestWebhookUnhandledEventAcknowledged(t *testing.T) {
	entRepo := newFakeEntitlementRepo()
	svc := newTestStripeService(entRepo)

	payload, header := buildSignedEvent(t, "invoice.payment_succeeded", map[string]string{"id": "in_1"})
	rec := deliverWebhook(svc, payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, entRepo.entitlements)
}
