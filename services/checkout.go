package services

import (
	"context"
	"fmt"
	"strings"
)

type CustomerResolving interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// CheckoutService starts the hosted subscription checkout for the Pro plan.
type CheckoutService struct {
	customers   CustomerResolving
	provider    BillingProvider
	priceID     string
	frontendURL string
}

func NewCheckoutService(customers CustomerResolving, provider BillingProvider, priceID, frontendURL string) *CheckoutService {
	return &CheckoutService{
		customers:   customers,
		provider:    provider,
		priceID:     priceID,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// CreateSession returns the checkout session id for userID.
func (s *CheckoutService) CreateSession(ctx context.Context, userID string) (string, error) {
	if s.priceID == "" {
		return "", fmt.Errorf("%w: STRIPE_PRO_PRICE_ID is not set", ErrConfiguration)
	}
	if s.frontendURL == "" {
		return "", fmt.Errorf("%w: FRONTEND_URL is not set", ErrConfiguration)
	}

	customerRef, err := s.customers.Resolve(ctx, userID)
	if err != nil {
		return "", err
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerRef: customerRef,
		PriceID:     s.priceID,
		SuccessURL:  s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.frontendURL + "/payment/canceled",
		UserID:      userID,
	})
}
