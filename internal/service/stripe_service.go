package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"app/internal/config"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrNoBillingCustomer is returned when a user has no Stripe customer bound
// to their profile yet.
var ErrNoBillingCustomer = errors.New("no stripe customer for user")

// StripeService manages Stripe checkout, the customer portal and the
// webhook that reconciles subscription state into entitlements.
type StripeService struct {
	cfg             *config.Config
	entitlementRepo repository.EntitlementRepository
	logger          zerolog.Logger
}

// NewStripeService initializes the Stripe key and returns the service with
// a scoped logger.
func NewStripeService(cfg *config.Config, entitlementRepo repository.EntitlementRepository, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, entitlementRepo: entitlementRepo, logger: lg}
}

// getOrCreateCustomer ensures a Stripe customer exists for the user and is
// bound to their profile. Customers are created lazily on the first
// checkout attempt.
func (s *StripeService) getOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	entitlement, err := s.entitlementRepo.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch entitlement: %w", err)
	}
	if entitlement.StripeCustomerID != nil && *entitlement.StripeCustomerID != "" {
		return *entitlement.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"user_id": userID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.entitlementRepo.BindStripeCustomer(ctx, userID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to store stripe customer id in profiles")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for the Pro plan.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, email string) (string, error) {
	customerID, err := s.getOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.cfg.StripePricePro), Quantity: stripe.Int64(1)},
		},
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		// Read back in the webhook to flip is_pro.
		ClientReferenceID:   stripe.String(userID),
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:           stripe.String(s.cfg.CheckoutCancelURL),
		Metadata:            map[string]string{"user_id": userID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	entitlement, err := s.entitlementRepo.Get(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch entitlement for portal session")
		return "", fmt.Errorf("fetch entitlement: %w", err)
	}
	if entitlement.StripeCustomerID == nil || *entitlement.StripeCustomerID == "" {
		return "", ErrNoBillingCustomer
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*entitlement.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL),
	}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook processes Stripe subscription lifecycle events. Every
// effect is an absolute write, so replayed events converge to the same
// entitlement state.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			http.Error(w, "invalid checkout.session data", http.StatusBadRequest)
			return
		}
		userID := cs.ClientReferenceID
		if userID == "" {
			userID = cs.Metadata["user_id"]
		}
		if userID == "" {
			// Checkout started outside this app; nothing to bind.
			s.logger.Warn().Str("session_id", cs.ID).Msg("Checkout session has no user reference, skipping")
			break
		}
		var customerID string
		if cs.Customer != nil {
			customerID = cs.Customer.ID
		}
		if err := s.entitlementRepo.SetProAndBindCustomer(ctx, userID, customerID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to activate entitlement on checkout.session.completed")
			http.Error(w, "failed to update entitlement", http.StatusInternalServerError)
			return
		}
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.updated payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		userID, err := s.resolveUser(ctx, &sub)
		if err != nil {
			http.Error(w, "failed to resolve customer", http.StatusInternalServerError)
			return
		}
		if userID == "" {
			break
		}
		isPro := sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
		if err := s.entitlementRepo.SetPro(ctx, userID, isPro); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update entitlement on customer.subscription.updated")
			http.Error(w, "failed to update entitlement", http.StatusInternalServerError)
			return
		}
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		userID, err := s.resolveUser(ctx, &sub)
		if err != nil {
			http.Error(w, "failed to resolve customer", http.StatusInternalServerError)
			return
		}
		if userID == "" {
			break
		}
		if err := s.entitlementRepo.SetPro(ctx, userID, false); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade entitlement on customer.subscription.deleted")
			http.Error(w, "failed to update entitlement", http.StatusInternalServerError)
			return
		}
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// resolveUser maps a subscription event to a user via the bound customer
// ID. An unknown customer is a no-op ("" with nil error): the mapping may
// never have been established. A lookup failure is returned so the event
// is answered with 5xx and Stripe retries it.
func (s *StripeService) resolveUser(ctx context.Context, sub *stripe.Subscription) (string, error) {
	var customerID string
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" {
		s.logger.Warn().Str("subscription_id", sub.ID).Msg("Subscription event has no customer, skipping")
		return "", nil
	}
	userID, err := s.entitlementRepo.GetUserIDByStripeCustomerID(ctx, customerID)
	if err != nil {
		s.logger.Error().Err(err).Str("stripe_customer_id", customerID).Msg("Failed to lookup user by Stripe customer ID")
		return "", err
	}
	if userID == "" {
		s.logger.Warn().Str("stripe_customer_id", customerID).Msg("No user bound to Stripe customer, skipping")
		return "", nil
	}
	return userID, nil
}
