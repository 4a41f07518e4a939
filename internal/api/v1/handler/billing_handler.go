package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BillingHandler handles checkout, portal and webhook endpoints.
type BillingHandler struct {
	stripeSvc *service.StripeService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(stripeSvc *service.StripeService, v *validator.Validate, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{stripeSvc: stripeSvc, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 billing routes. The webhook endpoint is
// authenticated by its Stripe signature, not by a session token.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/billing/checkout", authMw(http.HandlerFunc(h.checkout)))
	mux.Handle("/billing/portal", authMw(http.HandlerFunc(h.portal)))
	mux.HandleFunc("/billing/webhook", h.webhook)
}

// checkout godoc
// @Summary Initiate a Stripe Checkout session for the Pro plan
// @Description Creates a Stripe Checkout session and returns its URL. The Stripe customer is created lazily on first checkout.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutRequest true "Checkout request"
// @Success 200 {object} dto.BillingURLResponse
// @Failure 400 {object} map[string]string "invalid request payload"
// @Failure 401 {object} map[string]string "unauthorized"
// @Failure 500 {object} map[string]string "failed to create checkout session"
// @Router /billing/checkout [post]
func (h *BillingHandler) checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized: user ID not found in context")
		return
	}

	var req dto.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	if req.UserID != "" && req.UserID != userID {
		h.logger.Warn().Str("user_id", userID).Str("body_user_id", req.UserID).Msg("checkout body user id ignored in favor of session identity")
	}

	url, err := h.stripeSvc.CreateCheckoutSession(r.Context(), userID, req.Email)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create checkout session")
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}
	writeJSON(w, http.StatusOK, dto.BillingURLResponse{URL: url})
}

// portal godoc
// @Summary Create a Stripe Customer Portal session
// @Description Generates a Customer Portal session URL for the authenticated user.
// @Tags billing
// @Produce json
// @Success 200 {object} dto.BillingURLResponse
// @Failure 400 {object} map[string]string "no stripe customer for this user"
// @Failure 401 {object} map[string]string "unauthorized"
// @Failure 500 {object} map[string]string "failed to create portal session"
// @Router /billing/portal [post]
func (h *BillingHandler) portal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized: user ID not found in context")
		return
	}

	url, err := h.stripeSvc.CreatePortalSession(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNoBillingCustomer) {
			writeError(w, http.StatusBadRequest, "No Stripe customer for this user")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create portal session")
		writeError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}
	writeJSON(w, http.StatusOK, dto.BillingURLResponse{URL: url})
}

// webhook godoc
// @Summary Stripe webhook receiver
// @Description Verifies the Stripe signature and reconciles subscription state into entitlements.
// @Tags billing
// @Accept json
// @Success 200 {string} string "ok"
// @Failure 400 {string} string "signature verification failed"
// @Router /billing/webhook [post]
func (h *BillingHandler) webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.stripeSvc.HandleWebhook(w, r)
}
