package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkulkarni/eventgate/internal/model"
)

// Ticket codes are opaque random strings, deliberately unrelated to internal
// identifiers so a leaked code reveals nothing else. 16 random bytes keep
// accidental collisions out of reach; the unique index is the backstop.
const codeBytes = 16

func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate ticket code: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// issueTickets creates count tickets for a confirmed registration inside the
// caller's transaction. A code collision aborts the transaction and is
// retried by withRetry with fresh codes.
func (s *Service) issueTickets(ctx context.Context, reg *model.Registration, count int) ([]model.Ticket, error) {
	if reg.Status != model.RegistrationConfirmed {
		return nil, model.ErrRegistrationNotEligible
	}
	if count <= 0 {
		return nil, nil
	}

	now := s.clock.Now()
	batch := make([]*model.Ticket, 0, count)
	for i := 0; i < count; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		batch = append(batch, &model.Ticket{
			ID:             uuid.New().String(),
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			Code:           code,
			Status:         model.TicketValid,
			IssuedAt:       now,
			ExpiresAt:      now.Add(s.ticketValidity),
		})
	}

	if err := s.store.CreateTickets(ctx, batch); err != nil {
		return nil, err
	}

	out := make([]model.Ticket, len(batch))
	for i, t := range batch {
		out[i] = *t
	}
	return out, nil
}

// revokeNewest cancels the count most-recently-issued non-cancelled tickets
// of a registration. Cancelling an already-used ticket keeps the historical
// record and does not un-admit the attendee.
func (s *Service) revokeNewest(ctx context.Context, reg *model.Registration, count int) (int, error) {
	tickets, err := s.store.ListTicketsByRegistration(ctx, reg.ID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for i := len(tickets) - 1; i >= 0 && revoked < count; i-- {
		t := tickets[i]
		if t.Status == model.TicketCancelled {
			continue
		}
		if err := s.store.SetTicketStatus(ctx, t.ID, model.TicketCancelled); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// revokeAll cancels every non-cancelled ticket of a registration.
func (s *Service) revokeAll(ctx context.Context, reg *model.Registration) (int, error) {
	return s.revokeNewest(ctx, reg, reg.TicketsIssued)
}

// ListTickets returns a registration's tickets in issuance order.
func (s *Service) ListTickets(ctx context.Context, registrationID string) ([]model.Ticket, error) {
	if _, err := s.store.GetRegistration(ctx, registrationID); err != nil {
		return nil, err
	}
	return s.store.ListTicketsByRegistration(ctx, registrationID)
}
