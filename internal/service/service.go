// Package service implements the admission core: capacity-safe registration,
// quantity changes, cancellation with waitlist promotion, ticket issuance,
// and the single-use scan gate.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nkulkarni/eventgate/internal/clock"
	"github.com/nkulkarni/eventgate/internal/model"
)

// Store is the persistence contract the admission core runs against.
// Methods called inside WithTx share one transaction; the *ForUpdate
// variants take row locks that serialize concurrent operations touching the
// same event or registration.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateOrganization(ctx context.Context, org *model.Organization) error
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)
	SetOrganizationStatus(ctx context.Context, id string, status model.OrganizationStatus) error

	CreateEvent(ctx context.Context, ev *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetEventForUpdate(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	SetEventStatus(ctx context.Context, id string, status model.EventStatus) error

	// AdjustRemainingSeats applies delta to the remaining-seat counter and
	// bumps the event version. It fails with ErrTransientConflict if the
	// adjustment would push the counter below zero or above capacity.
	AdjustRemainingSeats(ctx context.Context, eventID string, delta int) error

	CreateRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	GetRegistrationForUpdate(ctx context.Context, id string) (*model.Registration, error)
	FindActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	UpdateRegistration(ctx context.Context, reg *model.Registration) error
	DeleteRegistration(ctx context.Context, id string) error
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListUnderIssued(ctx context.Context, limit int) ([]string, error)

	PushWaitlist(ctx context.Context, eventID, registrationID string) error
	// PeekWaitlist returns the registration id at the FIFO head, or "" when
	// the waitlist is empty.
	PeekWaitlist(ctx context.Context, eventID string) (string, error)
	RemoveWaitlist(ctx context.Context, eventID, registrationID string) error

	CreateTickets(ctx context.Context, tickets []*model.Ticket) error
	ListTicketsByRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error)
	SetTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) error
	DeleteTicketsByRegistration(ctx context.Context, registrationID string) error
	GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error)
	// ConsumeTicket performs the exactly-once valid->used transition as one
	// conditional update. It returns (nil, nil) when no valid, unexpired
	// ticket matched the code; callers classify the failure separately.
	ConsumeTicket(ctx context.Context, code, agent string, now time.Time) (*model.Ticket, error)
	CountTickets(ctx context.Context, eventID string) (issued, used int, err error)
}

const defaultTicketValidity = 24 * time.Hour

// Service orchestrates the capacity ledger, registrations, and tickets.
type Service struct {
	store           Store
	clock           clock.Clock
	logger          *slog.Logger
	ticketValidity  time.Duration
	conflictRetries int
}

// Option customizes a Service.
type Option func(*Service)

// WithTicketValidity overrides the scan-validity window for issued tickets.
func WithTicketValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ticketValidity = d
		}
	}
}

// WithConflictRetries bounds internal retries on transient update conflicts.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.conflictRetries = n
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with its dependencies.
func New(store Store, clk clock.Clock, opts ...Option) *Service {
	svc := &Service{
		store:           store,
		clock:           clk,
		logger:          slog.Default(),
		ticketValidity:  defaultTicketValidity,
		conflictRetries: 3,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// withRetry runs fn in a transaction, retrying a bounded number of times on
// transient conflicts (serialization failures, deadlock victims, ticket-code
// collisions). fn must be safe to re-run from scratch: all reads and id/code
// generation happen inside it. Exhausted retries surface as
// ErrTransientConflict, which the transport maps to service-unavailable.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt >= s.conflictRetries {
			s.logger.Error("conflict retries exhausted", "error", err)
			return model.ErrTransientConflict
		}
		s.logger.Warn("transient conflict, retrying", "attempt", attempt+1, "error", err)
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, model.ErrTransientConflict) || errors.Is(err, model.ErrCodeCollision)
}
