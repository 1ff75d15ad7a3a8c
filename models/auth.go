package models

import (
	"time"
)

// User is the entitlement record: one row per platform account, holding the
// access tier and the billing linkage reconciled from Stripe.
type User struct {
	ID                    string             `json:"id"`
	Email                 string             `json:"email"`
	PasswordHash          string             `json:"-"`
	FirstName             string             `json:"first_name,omitempty"`
	LastName              string             `json:"last_name,omitempty"`
	Role                  Role               `json:"role"`
	BillingCustomerRef    *string            `json:"billing_customer_ref,omitempty"`
	ActiveSubscriptionRef *string            `json:"active_subscription_ref,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	Version               int64              `json:"-"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// FullName joins first and last name, trimming the gap when one is missing.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Entitlement is the subset of a User that reconciliation reads and writes.
type Entitlement struct {
	Role                  Role               `json:"role"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	BillingCustomerRef    *string            `json:"billing_customer_ref"`
	ActiveSubscriptionRef *string            `json:"active_subscription_ref"`
}

func (u User) Entitlement() Entitlement {
	return Entitlement{
		Role:                  u.Role,
		SubscriptionStatus:    u.SubscriptionStatus,
		BillingCustomerRef:    u.BillingCustomerRef,
		ActiveSubscriptionRef: u.ActiveSubscriptionRef,
	}
}

// Equal compares by value, including the optional references.
func (e Entitlement) Equal(o Entitlement) bool {
	return e.Role == o.Role &&
		e.SubscriptionStatus == o.SubscriptionStatus &&
		sameRef(e.BillingCustomerRef, o.BillingCustomerRef) &&
		sameRef(e.ActiveSubscriptionRef, o.ActiveSubscriptionRef)
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ref returns a pointer to s, or nil for the empty string.
func Ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the referenced string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
