package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
)

// BillingCustomer is the provider-side customer as far as this service cares.
type BillingCustomer struct {
	Ref     string
	Email   string
	Deleted bool
}

type CustomerFields struct {
	Email  string
	Name   string
	UserID string
}

type CheckoutParams struct {
	CustomerRef string
	PriceID     string
	SuccessURL  string
	CancelURL   string
	UserID      string
}

// BillingProvider is the slice of the payment provider API this service calls.
type BillingProvider interface {
	RetrieveCustomer(ctx context.Context, ref string) (*BillingCustomer, error)
	CreateCustomer(ctx context.Context, fields CustomerFields) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
}

type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base, e.g. for stripe-mock.
	APIURL     string
	Timeout    time.Duration
	MaxRetries int64
}

// StripeProvider talks to Stripe with its own backend instead of the
// package-level default client.
type StripeProvider struct {
	customers customer.Client
	sessions  session.Client
	timeout   time.Duration
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is not set", ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeProvider{
		customers: customer.Client{B: backend, Key: cfg.SecretKey},
		sessions:  session.Client{B: backend, Key: cfg.SecretKey},
		timeout:   cfg.Timeout,
	}, nil
}

func (p *StripeProvider) RetrieveCustomer(ctx context.Context, ref string) (*BillingCustomer, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := p.customers.Get(ref, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &BillingCustomer{Ref: c.ID, Email: c.Email, Deleted: c.Deleted}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, fields CustomerFields) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CustomerParams{
		Email: stripe.String(fields.Email),
	}
	if fields.Name != "" {
		params.Name = stripe.String(fields.Name)
	}
	params.AddMetadata(MetadataUserID, fields.UserID)
	params.Context = ctx

	c, err := p.customers.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:           stripe.String(cp.CustomerRef),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(cp.SuccessURL),
		CancelURL:         stripe.String(cp.CancelURL),
		ClientReferenceID: stripe.String(cp.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: cp.UserID},
		},
	}
	params.AddMetadata(MetadataUserID, cp.UserID)
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return s.ID, nil
}

func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrCustomerMissing, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
