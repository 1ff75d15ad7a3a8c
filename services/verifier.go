package services

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// Verifier authenticates Stripe webhook deliveries against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier fails with ErrConfiguration when secret is empty.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is not set", ErrConfiguration)
	}
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

// Verify checks the signature over the exact bytes received and only then
// decodes the event. Every failure wraps ErrAuthenticity.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (VerifiedEvent, error) {
	if signatureHeader == "" {
		return VerifiedEvent{}, fmt.Errorf("%w: missing Stripe-Signature header", ErrAuthenticity)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return VerifiedEvent{}, fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}
	if event.ID == "" || event.Data == nil {
		return VerifiedEvent{}, fmt.Errorf("%w: event is missing id or data", ErrAuthenticity)
	}

	ev := VerifiedEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Kind:    kindOf(string(event.Type)),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if err := decodeEventObject(&ev, event.Data.Raw); err != nil {
		return VerifiedEvent{}, fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}
	return ev, nil
}
