package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mediaplatform/db"
	"mediaplatform/models"
)

// memStore is an in-memory entitlement table with the same version and
// uniqueness rules as the Postgres store.
type memStore struct {
	mu    sync.Mutex
	users map[string]models.User

	finds  int
	writes int

	findErr   error
	writeErr  error
	refErr    error
	conflicts int

	// beforeWrite runs under no lock just before a conditional write is checked.
	beforeWrite func()
}

func newMemStore(users ...models.User) *memStore {
	s := &memStore{users: make(map[string]models.User)}
	for _, u := range users {
		if u.Version == 0 {
			u.Version = 1
		}
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) Find(_ context.Context, l db.Lookup) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		var match bool
		switch l.Kind {
		case db.ByUserID:
			match = u.ID == l.Value
		case db.BySubscriptionRef:
			match = models.Deref(u.ActiveSubscriptionRef) == l.Value
		case db.ByCustomerRef:
			match = models.Deref(u.BillingCustomerRef) == l.Value
		}
		if match && l.Value != "" {
			found := u
			return &found, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) UpdateEntitlement(_ context.Context, id string, version int64, next models.Entitlement) (int64, error) {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	u, ok := s.users[id]
	if !ok {
		return 0, db.ErrVersionConflict
	}
	if s.conflicts > 0 {
		s.conflicts--
		u.Version++
		s.users[id] = u
		return 0, db.ErrVersionConflict
	}
	if u.Version != version {
		return 0, db.ErrVersionConflict
	}
	for otherID, other := range s.users {
		if otherID == id {
			continue
		}
		if sameNonNil(other.BillingCustomerRef, next.BillingCustomerRef) ||
			sameNonNil(other.ActiveSubscriptionRef, next.ActiveSubscriptionRef) {
			return 0, db.ErrDuplicateRef
		}
	}
	u.Role = next.Role
	u.SubscriptionStatus = next.SubscriptionStatus
	u.BillingCustomerRef = next.BillingCustomerRef
	u.ActiveSubscriptionRef = next.ActiveSubscriptionRef
	u.Version++
	s.users[id] = u
	s.writes++
	return u.Version, nil
}

func (s *memStore) SetBillingCustomerRef(_ context.Context, id string, observed *string, ref string) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refErr != nil {
		return s.refErr
	}
	u, ok := s.users[id]
	if !ok || models.Deref(u.BillingCustomerRef) != models.Deref(observed) {
		return db.ErrVersionConflict
	}
	u.BillingCustomerRef = models.Ref(ref)
	u.Version++
	s.users[id] = u
	s.writes++
	return nil
}

func (s *memStore) get(id string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *memStore) set(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Version = s.users[u.ID].Version + 1
	s.users[u.ID] = u
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) findCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

func sameNonNil(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

type memLedger struct {
	mu      sync.Mutex
	records map[string]string
	seenErr error
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]string)}
}

func (l *memLedger) Seen(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seenErr != nil {
		return false, l.seenErr
	}
	_, ok := l.records[id]
	return ok, nil
}

func (l *memLedger) Record(_ context.Context, id, _, outcome string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[id] = outcome
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (a *recordingAudit) Record(e models.LogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

type recordingOps struct {
	mu       sync.Mutex
	messages []string
}

func (o *recordingOps) Notify(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
}

func (o *recordingOps) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []models.EmailJob
}

func (q *recordingQueue) Enqueue(job models.EmailJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	customers map[string]*BillingCustomer
	created   int
	nextRef   func(n int) string

	retrieveErr  error
	createErr    error
	checkoutErr  error
	lastCheckout CheckoutParams

	// When set, RetrieveCustomer signals started and blocks until gate closes
	// or its ctx ends.
	gate      chan struct{}
	started   chan struct{}
	cancelled int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{customers: make(map[string]*BillingCustomer)}
}

func (p *fakeProvider) RetrieveCustomer(ctx context.Context, ref string) (*BillingCustomer, error) {
	if p.gate != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
		select {
		case <-p.gate:
		case <-ctx.Done():
			p.mu.Lock()
			p.cancelled++
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}
	c, ok := p.customers[ref]
	if !ok {
		return nil, ErrCustomerMissing
	}
	copied := *c
	return &copied, nil
}

func (p *fakeProvider) CreateCustomer(_ context.Context, fields CustomerFields) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.created++
	ref := fmt.Sprintf("cus_new_%d", p.created)
	if p.nextRef != nil {
		ref = p.nextRef(p.created)
	}
	p.customers[ref] = &BillingCustomer{Ref: ref, Email: fields.Email}
	return ref, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params CheckoutParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCheckout = params
	if p.checkoutErr != nil {
		return "", p.checkoutErr
	}
	return "cs_test_1", nil
}

func (p *fakeProvider) cancelledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *fakeProvider) createdCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

var errStoreDown = errors.New("connection refused")
