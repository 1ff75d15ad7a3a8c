package services

import (
	"strings"

	"mediaplatform/models"
)

// Stripe subscription statuses that map to a known local state.
const (
	ProviderStatusActive            = "active"
	ProviderStatusPastDue           = "past_due"
	ProviderStatusUnpaid            = "unpaid"
	ProviderStatusCanceled          = "canceled"
	ProviderStatusIncomplete        = "incomplete"
	ProviderStatusIncompleteExpired = "incomplete_expired"
)

// MapStatus converts a provider-reported state into the local (role, status)
// pair. Checkout and invoice events carry their status in the event type;
// subscription updates carry it in reportedStatus. Unknown statuses map to
// free/free with recognized=false.
func MapStatus(kind EventKind, reportedStatus string) (role models.Role, status models.SubscriptionStatus, recognized bool) {
	switch kind {
	case EventCheckoutCompleted, EventInvoicePaid:
		return models.RolePro, models.StatusPro, true
	case EventInvoicePaymentFailed:
		return models.RoleFree, models.StatusPastDue, true
	}

	switch strings.ToLower(strings.TrimSpace(reportedStatus)) {
	case ProviderStatusActive:
		return models.RolePro, models.StatusPro, true
	case ProviderStatusPastDue, ProviderStatusUnpaid:
		return models.RoleFree, models.StatusPastDue, true
	case ProviderStatusCanceled:
		return models.RoleFree, models.StatusCanceled, true
	case ProviderStatusIncomplete, ProviderStatusIncompleteExpired:
		return models.RoleFree, models.StatusIncomplete, true
	default:
		return models.RoleFree, models.StatusFree, false
	}
}

// HasProAccess gates paid features. Admins always pass.
func HasProAccess(role models.Role) bool {
	return role == models.RolePro || role == models.RoleAdmin
}
