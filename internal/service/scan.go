package service

import (
	"context"
	"errors"
	"time"

	"github.com/nkulkarni/eventgate/internal/model"
)

// Scan consumes a ticket code exactly once. The valid->used transition is a
// single conditional update on one ticket row, so concurrent scans of the
// same code yield one success and the rest fail with ErrAlreadyUsed. Scan
// never takes the admission path's event lock.
func (s *Service) Scan(ctx context.Context, code, agent string) (*model.Ticket, error) {
	now := s.clock.Now()
	t, err := s.store.ConsumeTicket(ctx, code, agent, now)
	if err != nil {
		return nil, err
	}
	if t != nil {
		s.logger.Info("ticket scanned",
			"ticket_id", t.ID, "event_id", t.EventID, "agent", agent)
		return t, nil
	}
	return nil, s.classifyScanFailure(ctx, code, now)
}

// Validate applies the scan policy table without mutating state. Used by
// pre-scan display.
func (s *Service) Validate(ctx context.Context, code string) (*model.Ticket, error) {
	t, err := s.store.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	switch {
	case t.Status == model.TicketUsed:
		return nil, model.ErrAlreadyUsed
	case t.Status == model.TicketCancelled:
		return nil, model.ErrTicketCancelled
	case t.Expired(s.clock.Now()):
		return nil, model.ErrTicketExpired
	}
	return t, nil
}

// classifyScanFailure turns a missed conditional update into the precise
// policy-table outcome: unknown code, already used, cancelled, or expired.
func (s *Service) classifyScanFailure(ctx context.Context, code string, now time.Time) error {
	t, err := s.store.GetTicketByCode(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return err
	}
	switch {
	case t.Status == model.TicketUsed:
		return model.ErrAlreadyUsed
	case t.Status == model.TicketCancelled:
		return model.ErrTicketCancelled
	case t.Expired(now):
		return model.ErrTicketExpired
	}
	// The ticket looks consumable now but the conditional update missed;
	// a concurrent writer must have flipped it back and forth. Retryable.
	return model.ErrTransientConflict
}
