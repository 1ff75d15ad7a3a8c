package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"mediaplatform/db"
	"mediaplatform/metrics"
	"mediaplatform/models"
)

type CustomerStore interface {
	Find(ctx context.Context, l db.Lookup) (*models.User, error)
	SetBillingCustomerRef(ctx context.Context, id string, observed *string, ref string) error
}

// CustomerResolver finds or creates the provider-side customer for a user and
// links it to the entitlement record.
type CustomerResolver struct {
	store          CustomerStore
	provider       BillingProvider
	audit          AuditSink
	ops            OpsNotifier
	metrics        *metrics.Billing
	storeTimeout   time.Duration
	resolveTimeout time.Duration // bounds a shared resolution, detached from callers
	group          singleflight.Group
}

const defaultResolveTimeout = 30 * time.Second

func NewCustomerResolver(store CustomerStore, provider BillingProvider, audit AuditSink, ops OpsNotifier, m *metrics.Billing, storeTimeout time.Duration) *CustomerResolver {
	if audit == nil {
		audit = nopAudit{}
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &CustomerResolver{
		store:          store,
		provider:       provider,
		audit:          audit,
		ops:            ops,
		metrics:        m,
		storeTimeout:   storeTimeout,
		resolveTimeout: defaultResolveTimeout,
	}
}

// Resolve returns the billing customer ref for userID. Concurrent calls for
// the same user in this process share one resolution. A caller whose ctx ends
// stops waiting, but the shared resolution keeps running for the others.
func (r *CustomerResolver) Resolve(ctx context.Context, userID string) (string, error) {
	ch := r.group.DoChan(userID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.resolveTimeout)
		defer cancel()
		return r.resolve(shared, userID)
	})
	select {
	case <-ctx.Done():
		r.metrics.RecordCustomerResolution("error")
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			r.metrics.RecordCustomerResolution("error")
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *CustomerResolver) find(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	user, err := r.store.Find(ctx, db.Lookup{Kind: db.ByUserID, Value: userID})
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrLookupMiss, userID)
	}
	return user, err
}

func (r *CustomerResolver) resolve(ctx context.Context, userID string) (string, error) {
	user, err := r.find(ctx, userID)
	if err != nil {
		return "", err
	}
	logger := log.With().Str("user_id", user.ID).Logger()

	observed := user.BillingCustomerRef
	if observed != nil {
		existing, err := r.provider.RetrieveCustomer(ctx, *observed)
		switch {
		case err == nil && !existing.Deleted:
			r.metrics.RecordCustomerResolution("existing")
			return *observed, nil
		case err == nil, errors.Is(err, ErrCustomerMissing):
			logger.Warn().Str("customer_ref", *observed).Msg("stripe customer was deleted, creating a new one")
		default:
			return "", err
		}
	}

	logger.Info().Msg("creating stripe customer")
	ref, err := r.provider.CreateCustomer(ctx, CustomerFields{
		Email:  user.Email,
		Name:   user.FullName(),
		UserID: user.ID,
	})
	if err != nil {
		return "", err
	}
	logger = logger.With().Str("customer_ref", ref).Logger()

	persistCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	err = r.store.SetBillingCustomerRef(persistCtx, user.ID, observed, ref)
	cancel()

	switch {
	case err == nil:
		r.metrics.RecordCustomerResolution("created")
		logger.Info().Msg("linked stripe customer to user")
		r.audit.Record(models.LogEntry{
			Level:   models.LevelInfo,
			Message: fmt.Sprintf("Linked billing customer %s", ref),
			UserID:  user.ID,
			Meta:    map[string]interface{}{"customer_ref": ref, "replaced": models.Deref(observed)},
		})
		return ref, nil

	case errors.Is(err, db.ErrVersionConflict):
		// Another resolution linked a customer first; that link stands.
		winner, ferr := r.find(ctx, userID)
		if ferr == nil && winner.BillingCustomerRef != nil {
			r.orphaned(user.ID, ref, "customer linked concurrently by another request")
			r.metrics.RecordCustomerResolution("lost_race")
			return *winner.BillingCustomerRef, nil
		}
		r.orphaned(user.ID, ref, "customer link changed concurrently and could not be re-read")
		return ref, nil

	default:
		logger.Error().Err(err).Msg("failed to save stripe customer id, linkage orphaned")
		r.orphaned(user.ID, ref, fmt.Sprintf("persisting customer failed: %v", err))
		r.metrics.RecordCustomerResolution("orphaned")
		return ref, nil
	}
}

func (r *CustomerResolver) orphaned(userID, ref, reason string) {
	log.Warn().Str("user_id", userID).Str("customer_ref", ref).Msg("orphaned stripe customer: " + reason)
	r.audit.Record(models.LogEntry{
		Level:   models.LevelWarn,
		Message: fmt.Sprintf("Orphaned billing customer %s: %s", ref, reason),
		UserID:  userID,
		Meta:    map[string]interface{}{"customer_ref": ref},
	})
	if r.ops != nil {
		r.ops.Notify(fmt.Sprintf("Orphaned Stripe customer %s for user %s\n%s", ref, userID, reason))
	}
}
