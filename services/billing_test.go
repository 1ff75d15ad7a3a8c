package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediaplatform/models"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		name       string
		kind       EventKind
		reported   string
		wantRole   models.Role
		wantStatus models.SubscriptionStatus
		wantOK     bool
	}{
		{"active", EventSubscriptionUpdated, "active", models.RolePro, models.StatusPro, true},
		{"past due", EventSubscriptionUpdated, "past_due", models.RoleFree, models.StatusPastDue, true},
		{"unpaid", EventSubscriptionUpdated, "unpaid", models.RoleFree, models.StatusPastDue, true},
		{"canceled", EventSubscriptionUpdated, "canceled", models.RoleFree, models.StatusCanceled, true},
		{"incomplete", EventSubscriptionUpdated, "incomplete", models.RoleFree, models.StatusIncomplete, true},
		{"incomplete expired", EventSubscriptionUpdated, "incomplete_expired", models.RoleFree, models.StatusIncomplete, true},
		{"checkout completed", EventCheckoutCompleted, "", models.RolePro, models.StatusPro, true},
		{"invoice paid", EventInvoicePaid, "", models.RolePro, models.StatusPro, true},
		{"invoice payment failed", EventInvoicePaymentFailed, "", models.RoleFree, models.StatusPastDue, true},
		{"reported status is normalized", EventSubscriptionUpdated, " Active ", models.RolePro, models.StatusPro, true},
		{"unknown status", EventSubscriptionUpdated, "paused", models.RoleFree, models.StatusFree, false},
		{"trialing is not pro", EventSubscriptionUpdated, "trialing", models.RoleFree, models.StatusFree, false},
		{"empty status", EventSubscriptionUpdated, "", models.RoleFree, models.StatusFree, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, status, ok := MapStatus(tt.kind, tt.reported)
			assert.Equal(t, tt.wantRole, role)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestTransitionLeavesUnrelatedFieldsAlone(t *testing.T) {
	cur := models.Entitlement{
		Role:                  models.RolePro,
		SubscriptionStatus:    models.StatusPro,
		BillingCustomerRef:    models.Ref("cus_1"),
		ActiveSubscriptionRef: models.Ref("sub_1"),
	}

	next := Transition(VerifiedEvent{Kind: EventInvoicePaymentFailed, CustomerRef: "cus_1"}, cur)
	assert.Equal(t, models.StatusPastDue, next.SubscriptionStatus)
	assert.Equal(t, models.RolePro, next.Role)
	assert.Equal(t, "cus_1", models.Deref(next.BillingCustomerRef))
	assert.Equal(t, "sub_1", models.Deref(next.ActiveSubscriptionRef))
}

func TestTransitionUnknownStatusIsIdentity(t *testing.T) {
	cur := models.Entitlement{Role: models.RolePro, SubscriptionStatus: models.StatusPro}
	next := Transition(VerifiedEvent{Kind: EventSubscriptionUpdated, ReportedStatus: "paused", SubscriptionRef: "sub_9"}, cur)
	assert.True(t, next.Equal(cur))
}

func TestTransitionOtherEventIsIdentity(t *testing.T) {
	cur := models.Entitlement{Role: models.RoleFree, SubscriptionStatus: models.StatusCanceled}
	assert.True(t, Transition(VerifiedEvent{Kind: EventOther}, cur).Equal(cur))
}

func TestHasProAccess(t *testing.T) {
	assert.True(t, HasProAccess(models.RolePro))
	assert.True(t, HasProAccess(models.RoleAdmin))
	assert.False(t, HasProAccess(models.RoleFree))
}
