package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the local classification of a provider event type.
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout-completed"
	EventInvoicePaid          EventKind = "invoice-paid"
	EventInvoicePaymentFailed EventKind = "invoice-payment-failed"
	EventSubscriptionUpdated  EventKind = "subscription-updated"
	EventSubscriptionDeleted  EventKind = "subscription-deleted"
	EventOther                EventKind = "other"
)

// Metadata keys under which checkout and customer creation store the platform user id.
const (
	MetadataUserID       = "mongoUserId"
	MetadataUserIDLegacy = "user_id"
)

func kindOf(providerType string) EventKind {
	switch providerType {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "invoice.payment_succeeded", "invoice.paid":
		return EventInvoicePaid
	case "invoice.payment_failed":
		return EventInvoicePaymentFailed
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	default:
		return EventOther
	}
}

// VerifiedEvent is a provider event whose signature checked out, reduced to
// the fields reconciliation needs.
type VerifiedEvent struct {
	ID              string
	Type            string
	Kind            EventKind
	Created         time.Time
	CustomerRef     string
	SubscriptionRef string
	ReportedStatus  string
	UserRefHint     string
	CheckoutMode    string
	PaymentStatus   string
}

// expandableRef accepts either a bare id or an expanded object with an id.
type expandableRef string

func (r *expandableRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = expandableRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = expandableRef(obj.ID)
	return nil
}

type subscriptionDetails struct {
	Subscription expandableRef     `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// providerObject covers the checkout session, invoice and subscription shapes.
type providerObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	Customer          expandableRef     `json:"customer"`
	Subscription      expandableRef     `json:"subscription"`
	Status            string            `json:"status"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Parent            *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
}

func userHint(metadata map[string]string) string {
	if v := metadata[MetadataUserID]; v != "" {
		return v
	}
	return metadata[MetadataUserIDLegacy]
}

// decodeEventObject fills the payload fields of ev from the raw data.object.
func decodeEventObject(ev *VerifiedEvent, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("event %s has no data object", ev.ID)
	}
	var obj providerObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("decode event %s object: %w", ev.ID, err)
	}

	ev.CustomerRef = string(obj.Customer)
	ev.UserRefHint = userHint(obj.Metadata)

	switch ev.Kind {
	case EventCheckoutCompleted:
		ev.SubscriptionRef = string(obj.Subscription)
		ev.CheckoutMode = obj.Mode
		ev.PaymentStatus = obj.PaymentStatus
		if ev.UserRefHint == "" {
			ev.UserRefHint = obj.ClientReferenceID
		}
	case EventInvoicePaid, EventInvoicePaymentFailed:
		ev.SubscriptionRef = string(obj.Subscription)
		if obj.Parent != nil && obj.Parent.SubscriptionDetails != nil {
			details := obj.Parent.SubscriptionDetails
			if ev.SubscriptionRef == "" {
				ev.SubscriptionRef = string(details.Subscription)
			}
			if ev.UserRefHint == "" {
				ev.UserRefHint = userHint(details.Metadata)
			}
		}
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		ev.SubscriptionRef = obj.ID
		ev.ReportedStatus = obj.Status
	}
	return nil
}
