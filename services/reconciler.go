package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mediaplatform/db"
	"mediaplatform/metrics"
	"mediaplatform/models"
)

// Outcome is the terminal result of reconciling one event. Every outcome
// other than an error is acknowledged to the provider.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeNoop         Outcome = "noop"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeLookupMiss   Outcome = "lookup_miss"
	OutcomeInconsistent Outcome = "inconsistent"
	OutcomeUnexpected   Outcome = "unexpected_status"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnhandled    Outcome = "unhandled"
	OutcomeFailed       Outcome = "failed"
)

const defaultMaxAttempts = 3

type EntitlementStore interface {
	Find(ctx context.Context, l db.Lookup) (*models.User, error)
	UpdateEntitlement(ctx context.Context, id string, version int64, next models.Entitlement) (int64, error)
}

type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType, outcome string) error
}

// EmailQueue hands off transactional email without waiting for delivery.
type EmailQueue interface {
	Enqueue(job models.EmailJob) error
}

type ReconcilerDeps struct {
	Store        EntitlementStore
	Ledger       EventLedger
	Audit        AuditSink
	Emails       EmailQueue
	Ops          OpsNotifier
	Metrics      *metrics.Billing
	StoreTimeout time.Duration
	MaxAttempts  int
}

// Reconciler applies verified provider events to entitlement records.
type Reconciler struct {
	store        EntitlementStore
	ledger       EventLedger
	audit        AuditSink
	emails       EmailQueue
	ops          OpsNotifier
	metrics      *metrics.Billing
	storeTimeout time.Duration
	maxAttempts  int
}

func NewReconciler(deps ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		store:        deps.Store,
		ledger:       deps.Ledger,
		audit:        deps.Audit,
		emails:       deps.Emails,
		ops:          deps.Ops,
		metrics:      deps.Metrics,
		storeTimeout: deps.StoreTimeout,
		maxAttempts:  deps.MaxAttempts,
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = 5 * time.Second
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.audit == nil {
		r.audit = nopAudit{}
	}
	return r
}

// Reconcile processes one event. A non-nil error means the provider should
// redeliver; every other result is final.
func (r *Reconciler) Reconcile(ctx context.Context, ev VerifiedEvent) (Outcome, error) {
	logger := log.With().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("customer_ref", ev.CustomerRef).
		Str("subscription_ref", ev.SubscriptionRef).
		Logger()

	if r.alreadyProcessed(ctx, ev, logger) {
		logger.Info().Msg("event already processed, acknowledging")
		r.metrics.RecordWebhookEvent(ev.Type, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	outcome, err := r.reconcile(ctx, ev, logger)
	if err != nil {
		r.metrics.RecordWebhookEvent(ev.Type, string(OutcomeFailed))
		return OutcomeFailed, err
	}

	r.metrics.RecordWebhookEvent(ev.Type, string(outcome))
	if r.ledger != nil {
		recCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		if err := r.ledger.Record(recCtx, ev.ID, ev.Type, string(outcome)); err != nil {
			logger.Warn().Err(err).Msg("failed to record processed event")
		}
		cancel()
	}
	return outcome, nil
}

func (r *Reconciler) alreadyProcessed(ctx context.Context, ev VerifiedEvent, logger zerolog.Logger) bool {
	if r.ledger == nil || ev.ID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	seen, err := r.ledger.Seen(ctx, ev.ID)
	if err != nil {
		// Transitions are idempotent, so reprocessing is safe.
		logger.Warn().Err(err).Msg("event ledger unavailable, processing anyway")
		return false
	}
	return seen
}

func (r *Reconciler) reconcile(ctx context.Context, ev VerifiedEvent, logger zerolog.Logger) (Outcome, error) {
	switch ev.Kind {
	case EventOther:
		logger.Info().Msg("unhandled stripe event type")
		return OutcomeUnhandled, nil
	case EventCheckoutCompleted:
		if ev.CheckoutMode != "subscription" || ev.PaymentStatus != "paid" {
			logger.Info().Str("mode", ev.CheckoutMode).Str("payment_status", ev.PaymentStatus).
				Msg("checkout session not a paid subscription, ignoring")
			return OutcomeIgnored, nil
		}
		if ev.UserRefHint == "" {
			r.inconsistency(ev, logger, "checkout session completed without a platform user id in metadata")
			return OutcomeInconsistent, nil
		}
	case EventSubscriptionUpdated:
		if _, _, ok := MapStatus(ev.Kind, ev.ReportedStatus); !ok {
			logger.Warn().Str("reported_status", ev.ReportedStatus).Msg("unexpected subscription status, leaving record untouched")
			r.audit.Record(models.LogEntry{
				Level:   models.LevelWarn,
				Message: fmt.Sprintf("Unexpected subscription status %q on %s", ev.ReportedStatus, ev.Type),
				Meta:    eventMeta(ev),
			})
			return OutcomeUnexpected, nil
		}
	}

	lookups := lookupPlan(ev)
	keepCustomer := false
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		user, via, err := r.resolve(ctx, lookups)
		if errors.Is(err, db.ErrNotFound) {
			r.inconsistency(ev, logger, "no entitlement record matches event references")
			return OutcomeLookupMiss, nil
		}
		if err != nil {
			return OutcomeFailed, fmt.Errorf("resolve entitlement for event %s: %w", ev.ID, err)
		}

		userLog := logger.With().Str("user_id", user.ID).Str("matched_by", via.Kind.String()).Logger()
		current := user.Entitlement()
		next := Transition(ev, current)
		if keepCustomer {
			next.BillingCustomerRef = current.BillingCustomerRef
		}

		if ev.Kind == EventCheckoutCompleted && current.BillingCustomerRef != nil &&
			ev.CustomerRef != "" && *current.BillingCustomerRef != ev.CustomerRef {
			userLog.Warn().Str("stored_customer_ref", *current.BillingCustomerRef).
				Msg("checkout customer differs from linked customer, keeping linked one")
		}

		if next.Equal(current) {
			userLog.Debug().Str("status", string(current.SubscriptionStatus)).Msg("entitlement already up to date")
			return OutcomeNoop, nil
		}

		writeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		_, err = r.store.UpdateEntitlement(writeCtx, user.ID, user.Version, next)
		cancel()

		switch {
		case err == nil:
			r.applied(ev, *user, current, next, userLog)
			return OutcomeApplied, nil
		case errors.Is(err, db.ErrVersionConflict):
			r.metrics.RecordWriteConflict()
			userLog.Info().Int("attempt", attempt).Msg("entitlement changed concurrently, retrying")
			continue
		case errors.Is(err, db.ErrDuplicateRef) && !keepCustomer && linksCustomer(current, next):
			// Grant the paid entitlement; only the customer link is withheld.
			keepCustomer = true
			r.customerConflict(ev, userLog)
			continue
		case errors.Is(err, db.ErrDuplicateRef):
			r.inconsistency(ev, userLog, "subscription or customer reference already linked to another record")
			return OutcomeInconsistent, nil
		default:
			return OutcomeFailed, fmt.Errorf("write entitlement %s: %w", user.ID, err)
		}
	}
	return OutcomeFailed, fmt.Errorf("%w: event %s after %d attempts", ErrWriteConflict, ev.ID, r.maxAttempts)
}

func linksCustomer(cur, next models.Entitlement) bool {
	return cur.BillingCustomerRef == nil && next.BillingCustomerRef != nil
}

// customerConflict reports a checkout whose customer is already linked to a
// different record. The entitlement is still applied without the link.
func (r *Reconciler) customerConflict(ev VerifiedEvent, logger zerolog.Logger) {
	logger.Warn().Msg("checkout customer already linked to another record, applying entitlement without linking it")
	r.audit.Record(models.LogEntry{
		Level:   models.LevelWarn,
		Message: fmt.Sprintf("Webhook %s (%s): customer %s already linked to another record", ev.ID, ev.Type, ev.CustomerRef),
		UserID:  ev.UserRefHint,
		Meta:    eventMeta(ev),
	})
	if r.ops != nil {
		r.ops.Notify(fmt.Sprintf("Checkout customer %s is linked to another user; user %s was granted pro without the link\nEvent: %s",
			ev.CustomerRef, ev.UserRefHint, ev.ID))
	}
}

// lookupPlan lists the keys to try for ev, in precedence order.
func lookupPlan(ev VerifiedEvent) []db.Lookup {
	var plan []db.Lookup
	add := func(kind db.LookupKind, value string) {
		if value != "" {
			plan = append(plan, db.Lookup{Kind: kind, Value: value})
		}
	}

	switch ev.Kind {
	case EventCheckoutCompleted:
		add(db.ByUserID, ev.UserRefHint)
	case EventInvoicePaid, EventInvoicePaymentFailed:
		add(db.ByUserID, ev.UserRefHint)
		add(db.BySubscriptionRef, ev.SubscriptionRef)
		add(db.ByCustomerRef, ev.CustomerRef)
	case EventSubscriptionUpdated:
		add(db.ByUserID, ev.UserRefHint)
		add(db.ByCustomerRef, ev.CustomerRef)
	case EventSubscriptionDeleted:
		add(db.ByCustomerRef, ev.CustomerRef)
	}
	return plan
}

func (r *Reconciler) resolve(ctx context.Context, plan []db.Lookup) (*models.User, db.Lookup, error) {
	for _, l := range plan {
		findCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		user, err := r.store.Find(findCtx, l)
		cancel()
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, l, err
		}
		return user, l, nil
	}
	return nil, db.Lookup{}, db.ErrNotFound
}

// Transition computes the entitlement that ev leaves behind. It never sets
// or removes the admin role.
func Transition(ev VerifiedEvent, cur models.Entitlement) models.Entitlement {
	next := cur
	switch ev.Kind {
	case EventCheckoutCompleted:
		if ev.SubscriptionRef != "" {
			next.ActiveSubscriptionRef = models.Ref(ev.SubscriptionRef)
		}
		if next.BillingCustomerRef == nil {
			next.BillingCustomerRef = models.Ref(ev.CustomerRef)
		}
		role, status, _ := MapStatus(ev.Kind, "")
		next = withStatus(next, role, status)
	case EventInvoicePaid:
		role, status, _ := MapStatus(ev.Kind, "")
		next = withStatus(next, role, status)
	case EventInvoicePaymentFailed:
		// Role stays until the subscription itself changes status.
		next.SubscriptionStatus = models.StatusPastDue
	case EventSubscriptionUpdated:
		role, status, ok := MapStatus(ev.Kind, ev.ReportedStatus)
		if !ok {
			return cur
		}
		next = withStatus(next, role, status)
		if ev.SubscriptionRef != "" {
			next.ActiveSubscriptionRef = models.Ref(ev.SubscriptionRef)
		}
	case EventSubscriptionDeleted:
		next.ActiveSubscriptionRef = nil
		next = withStatus(next, models.RoleFree, models.StatusCanceled)
	}
	return next
}

func withStatus(e models.Entitlement, role models.Role, status models.SubscriptionStatus) models.Entitlement {
	e.SubscriptionStatus = status
	if e.Role != models.RoleAdmin {
		e.Role = role
	}
	return e
}

func (r *Reconciler) applied(ev VerifiedEvent, user models.User, prev, next models.Entitlement, logger zerolog.Logger) {
	logger.Info().
		Str("previous_role", string(prev.Role)).
		Str("role", string(next.Role)).
		Str("previous_status", string(prev.SubscriptionStatus)).
		Str("status", string(next.SubscriptionStatus)).
		Msg("entitlement reconciled")

	meta := eventMeta(ev)
	meta["previous_role"] = prev.Role
	meta["previous_status"] = prev.SubscriptionStatus
	meta["role"] = next.Role
	meta["status"] = next.SubscriptionStatus
	r.audit.Record(models.LogEntry{
		Level:   models.LevelInfo,
		Message: fmt.Sprintf("Subscription for user %s is now %s (role %s)", user.ID, next.SubscriptionStatus, next.Role),
		UserID:  user.ID,
		Meta:    meta,
	})

	if ev.Kind == EventInvoicePaymentFailed && r.emails != nil && user.Email != "" {
		if err := r.emails.Enqueue(PaymentFailedEmail(user)); err != nil {
			logger.Warn().Err(err).Msg("failed to schedule payment failed email")
		}
	}
}

func (r *Reconciler) inconsistency(ev VerifiedEvent, logger zerolog.Logger, reason string) {
	logger.Error().Str("user_ref_hint", ev.UserRefHint).Msg(reason)
	r.audit.Record(models.LogEntry{
		Level:   models.LevelError,
		Message: fmt.Sprintf("Webhook %s (%s): %s", ev.ID, ev.Type, reason),
		UserID:  ev.UserRefHint,
		Meta:    eventMeta(ev),
	})
	if r.ops != nil {
		r.ops.Notify(fmt.Sprintf("%s\nEvent: %s (%s)\nCustomer: %s\nSubscription: %s",
			reason, ev.ID, ev.Type, ev.CustomerRef, ev.SubscriptionRef))
	}
}

func eventMeta(ev VerifiedEvent) map[string]interface{} {
	return map[string]interface{}{
		"event_id":         ev.ID,
		"event_type":       ev.Type,
		"event_created":    ev.Created.Format(time.RFC3339),
		"customer_ref":     ev.CustomerRef,
		"subscription_ref": ev.SubscriptionRef,
	}
}
