package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkulkarni/eventgate/internal/model"
)

// Lock ordering: every operation that touches both resources locks the event
// row before any registration row. Deadlock victims still surface as
// transient conflicts and are retried by withRetry.

// Register admits a user to an event. When enough seats remain the
// registration is confirmed and its tickets issued; otherwise it is
// waitlisted (unless the event forbids waitlisting). The reservation,
// registration record, and tickets commit as one unit of work.
func (s *Service) Register(ctx context.Context, eventID, userID string, quantity int) (*model.Registration, []model.Ticket, error) {
	if quantity < 1 {
		return nil, nil, model.ErrInvalidQuantity
	}
	if userID == "" {
		return nil, nil, fmt.Errorf("user id is required")
	}

	var (
		reg     *model.Registration
		tickets []model.Ticket
	)
	err := s.withRetry(ctx, func(ctx context.Context) error {
		reg, tickets = nil, nil

		ev, err := s.store.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		org, err := s.store.GetOrganization(ctx, ev.OrgID)
		if err != nil {
			return err
		}
		if ev.Status != model.EventUpcoming || org.Status != model.OrgApproved {
			return model.ErrEventNotAdmitting
		}

		existing, err := s.store.FindActiveRegistration(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return model.ErrAlreadyRegistered
		}

		now := s.clock.Now()
		r := &model.Registration{
			ID:        uuid.New().String(),
			EventID:   eventID,
			UserID:    userID,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}

		switch {
		case ev.RemainingSeats >= quantity:
			r.Status = model.RegistrationConfirmed
			if err := s.store.AdjustRemainingSeats(ctx, eventID, -quantity); err != nil {
				return err
			}
			if err := s.store.CreateRegistration(ctx, r); err != nil {
				return err
			}
			ts, err := s.issueTickets(ctx, r, quantity)
			if err != nil {
				return err
			}
			r.TicketsIssued = len(ts)
			if err := s.store.UpdateRegistration(ctx, r); err != nil {
				return err
			}
			tickets = ts
		case ev.AllowWaitlist:
			r.Status = model.RegistrationWaitlisted
			if err := s.store.CreateRegistration(ctx, r); err != nil {
				return err
			}
			if err := s.store.PushWaitlist(ctx, eventID, r.ID); err != nil {
				return err
			}
		default:
			return model.ErrEventFull
		}

		reg = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("registration created",
		"event_id", eventID, "registration_id", reg.ID,
		"status", reg.Status, "quantity", quantity)
	return reg, tickets, nil
}

// ChangeQuantity resizes a confirmed registration. Increases reserve extra
// seats and issue extra tickets; decreases release seats (promoting the
// waitlist) and revoke the most-recently-issued tickets first.
func (s *Service) ChangeQuantity(ctx context.Context, registrationID string, newQuantity int) (*model.Registration, error) {
	if newQuantity < 1 {
		return nil, model.ErrInvalidQuantity
	}

	var out *model.Registration
	err := s.withRetry(ctx, func(ctx context.Context) error {
		out = nil

		peek, err := s.store.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		ev, err := s.store.GetEventForUpdate(ctx, peek.EventID)
		if err != nil {
			return err
		}
		// Re-read under the event lock; status may have moved since the peek.
		reg, err := s.store.GetRegistrationForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.RegistrationConfirmed {
			return model.ErrRegistrationNotEligible
		}

		delta := newQuantity - reg.Quantity
		if delta == 0 {
			out = reg
			return nil
		}

		if delta > 0 {
			if ev.RemainingSeats < delta {
				return model.ErrEventFull
			}
			if err := s.store.AdjustRemainingSeats(ctx, ev.ID, -delta); err != nil {
				return err
			}
			ts, err := s.issueTickets(ctx, reg, delta)
			if err != nil {
				return err
			}
			reg.TicketsIssued += len(ts)
		} else {
			release := -delta
			revoked, err := s.revokeNewest(ctx, reg, release)
			if err != nil {
				return err
			}
			reg.TicketsIssued -= revoked
			if err := s.store.AdjustRemainingSeats(ctx, ev.ID, release); err != nil {
				return err
			}
			ev.RemainingSeats += release
		}

		reg.Quantity = newQuantity
		reg.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		if delta < 0 {
			if err := s.promote(ctx, ev); err != nil {
				return err
			}
		}

		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration resized",
		"registration_id", registrationID, "quantity", newQuantity)
	return out, nil
}

// Cancel transitions a confirmed or waitlisted registration to cancelled.
// Confirmed registrations release their seats (promoting the waitlist) and
// have all tickets cancelled. Cancelling twice returns ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, registrationID string) (*model.Registration, error) {
	var out *model.Registration
	err := s.withRetry(ctx, func(ctx context.Context) error {
		out = nil

		peek, err := s.store.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		ev, err := s.store.GetEventForUpdate(ctx, peek.EventID)
		if err != nil {
			return err
		}
		reg, err := s.store.GetRegistrationForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status == model.RegistrationCancelled {
			return model.ErrAlreadyCancelled
		}

		wasConfirmed := reg.Status == model.RegistrationConfirmed
		if wasConfirmed {
			if _, err := s.revokeAll(ctx, reg); err != nil {
				return err
			}
		} else {
			if err := s.store.RemoveWaitlist(ctx, ev.ID, reg.ID); err != nil {
				return err
			}
		}

		reg.Status = model.RegistrationCancelled
		reg.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		if wasConfirmed {
			if err := s.store.AdjustRemainingSeats(ctx, ev.ID, reg.Quantity); err != nil {
				return err
			}
			ev.RemainingSeats += reg.Quantity
			if err := s.promote(ctx, ev); err != nil {
				return err
			}
		}

		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration cancelled", "registration_id", registrationID)
	return out, nil
}

// DeleteRegistration removes a registration and its tickets permanently,
// with the same capacity side effects as Cancel. Used for data cleanup.
func (s *Service) DeleteRegistration(ctx context.Context, registrationID string) error {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		peek, err := s.store.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		ev, err := s.store.GetEventForUpdate(ctx, peek.EventID)
		if err != nil {
			return err
		}
		reg, err := s.store.GetRegistrationForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}

		if reg.Status == model.RegistrationWaitlisted {
			if err := s.store.RemoveWaitlist(ctx, ev.ID, reg.ID); err != nil {
				return err
			}
		}
		if err := s.store.DeleteTicketsByRegistration(ctx, reg.ID); err != nil {
			return err
		}
		if err := s.store.DeleteRegistration(ctx, reg.ID); err != nil {
			return err
		}

		if reg.Status == model.RegistrationConfirmed {
			if err := s.store.AdjustRemainingSeats(ctx, ev.ID, reg.Quantity); err != nil {
				return err
			}
			ev.RemainingSeats += reg.Quantity
			if err := s.promote(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("registration deleted", "registration_id", registrationID)
	return nil
}

// promote runs the strict-FIFO head promotion loop. The caller holds the
// event row lock and keeps ev.RemainingSeats in step with the store. The
// loop stops at the first head that does not fit: arrival order wins even
// when a later, smaller request could be seated.
func (s *Service) promote(ctx context.Context, ev *model.Event) error {
	for {
		headID, err := s.store.PeekWaitlist(ctx, ev.ID)
		if err != nil {
			return err
		}
		if headID == "" {
			return nil
		}
		reg, err := s.store.GetRegistrationForUpdate(ctx, headID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// Stale entry without a registration; drop it and continue.
				if err := s.store.RemoveWaitlist(ctx, ev.ID, headID); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if reg.Quantity > ev.RemainingSeats {
			return nil
		}

		if err := s.store.AdjustRemainingSeats(ctx, ev.ID, -reg.Quantity); err != nil {
			return err
		}
		ev.RemainingSeats -= reg.Quantity
		if err := s.store.RemoveWaitlist(ctx, ev.ID, reg.ID); err != nil {
			return err
		}

		reg.Status = model.RegistrationConfirmed
		ts, err := s.issueTickets(ctx, reg, reg.Quantity)
		if err != nil {
			return err
		}
		reg.TicketsIssued = len(ts)
		reg.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		s.logger.Info("waitlist promotion",
			"event_id", ev.ID, "registration_id", reg.ID, "quantity", reg.Quantity)
	}
}
