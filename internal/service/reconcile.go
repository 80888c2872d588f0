package service

import (
	"context"

	"github.com/nkulkarni/eventgate/internal/model"
)

const reconcileBatchSize = 100

// ReconcileIssuance finds confirmed registrations whose issued-ticket count
// trails their quantity and completes issuance. It is the repair half of the
// reservation-first saga: seats are the source of truth, tickets are a
// follow-up that this job guarantees eventually happens. Returns the number
// of registrations repaired.
func (s *Service) ReconcileIssuance(ctx context.Context) (int, error) {
	ids, err := s.store.ListUnderIssued(ctx, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, id := range ids {
		var issuedAny bool
		err := s.withRetry(ctx, func(ctx context.Context) error {
			issuedAny = false
			reg, err := s.store.GetRegistrationForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// Re-check under the lock; the registration may have been
			// repaired, resized, or cancelled since the listing.
			missing := reg.Quantity - reg.TicketsIssued
			if reg.Status != model.RegistrationConfirmed || missing <= 0 {
				return nil
			}
			ts, err := s.issueTickets(ctx, reg, missing)
			if err != nil {
				return err
			}
			reg.TicketsIssued += len(ts)
			reg.UpdatedAt = s.clock.Now()
			issuedAny = true
			return s.store.UpdateRegistration(ctx, reg)
		})
		if err != nil {
			s.logger.Error("issuance repair failed", "registration_id", id, "error", err)
			continue
		}
		if issuedAny {
			repaired++
		}
	}

	if repaired > 0 {
		s.logger.Info("issuance reconciliation complete", "repaired", repaired)
	}
	return repaired, nil
}
