package model

import "time"

// Entitlement is the per-user record of paid status and billing linkage.
// A user without a row is on the Free tier.
type Entitlement struct {
	UserID           string    `db:"user_id" json:"user_id"`
	IsPro            bool      `db:"is_pro" json:"is_pro"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
