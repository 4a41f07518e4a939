package dto

// CheckoutRequest starts a Stripe Checkout session. The user ID field is
// kept for wire compatibility with older clients; the authenticated
// session identity is what the server acts on.
type CheckoutRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email" validate:"required,email"`
}

// PortalRequest opens a Stripe Customer Portal session.
type PortalRequest struct {
	UserID string `json:"userId"`
}

// BillingURLResponse carries the redirect target of a created session.
type BillingURLResponse struct {
	URL string `json:"url"`
}
