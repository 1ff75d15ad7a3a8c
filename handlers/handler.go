package handlers

import (
	"context"

	"mediaplatform/config"
	"mediaplatform/db"
	"mediaplatform/models"
	"mediaplatform/services"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Find(ctx context.Context, l db.Lookup) (*models.User, error)
	List(ctx context.Context, f db.UserFilter) ([]models.User, error)
	Stats(ctx context.Context) (models.SubscriptionStats, error)
	Ping(ctx context.Context) error
}

type LogReader interface {
	Query(ctx context.Context, f db.LogFilter) ([]models.LogEntry, int, error)
}

type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (services.VerifiedEvent, error)
}

type EventReconciler interface {
	Reconcile(ctx context.Context, ev services.VerifiedEvent) (services.Outcome, error)
}

type CheckoutCreator interface {
	CreateSession(ctx context.Context, userID string) (string, error)
}

// Handler carries the collaborators shared by the HTTP endpoints. Nil
// collaborators disable the endpoints that need them.
type Handler struct {
	Users      UserStore
	Logs       LogReader
	Verifier   EventVerifier
	Reconciler EventReconciler
	Checkout   CheckoutCreator
	Emails     services.EmailQueue
	JWTSecret  []byte
	Features   config.Features
}
