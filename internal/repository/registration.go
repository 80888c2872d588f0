package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkulkarni/eventgate/internal/model"
)

const registrationColumns = `id, event_id, user_id, status, quantity, tickets_issued, created_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.Status, &r.Quantity,
		&r.TicketsIssued, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRegistration inserts a registration. The partial unique index on
// active (event, user) pairs turns a duplicate into ErrAlreadyRegistered.
func (s *Store) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := s.exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.Quantity,
		reg.TicketsIssued, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_active_registration") {
			return model.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetRegistration returns a registration or ErrNotFound.
func (s *Store) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(s.queryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// GetRegistrationForUpdate locks the registration row for the transaction.
func (s *Store) GetRegistrationForUpdate(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(s.queryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("lock registration row: %w", err)
	}
	return reg, nil
}

// FindActiveRegistration returns the non-cancelled registration for a
// (event, user) pair, or nil when none exists.
func (s *Store) FindActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(s.queryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled'`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return reg, nil
}

// UpdateRegistration persists status, quantity, and issuance count.
func (s *Store) UpdateRegistration(ctx context.Context, reg *model.Registration) error {
	tag, err := s.exec(ctx,
		`UPDATE registrations
		 SET status = $2, quantity = $3, tickets_issued = $4, updated_at = $5
		 WHERE id = $1`,
		reg.ID, reg.Status, reg.Quantity, reg.TicketsIssued, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteRegistration removes the registration record permanently.
func (s *Store) DeleteRegistration(ctx context.Context, id string) error {
	tag, err := s.exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ListRegistrationsByEvent returns an event's registrations oldest first.
func (s *Store) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// ListUnderIssued returns ids of confirmed registrations with fewer tickets
// issued than their quantity, oldest first. Feeds the reconciliation job.
func (s *Store) ListUnderIssued(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.query(ctx,
		`SELECT id
		 FROM registrations
		 WHERE status = 'confirmed' AND tickets_issued < quantity
		 ORDER BY updated_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list under-issued registrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registration id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PushWaitlist appends a registration to the event's FIFO waitlist.
func (s *Store) PushWaitlist(ctx context.Context, eventID, registrationID string) error {
	_, err := s.exec(ctx,
		`INSERT INTO waitlist_entries (event_id, registration_id) VALUES ($1, $2)`,
		eventID, registrationID,
	)
	if err != nil {
		return fmt.Errorf("push waitlist: %w", err)
	}
	return nil
}

// PeekWaitlist returns the registration id at the FIFO head, or "" when the
// waitlist is empty. The caller holds the event row lock, so the head is
// stable for the rest of the transaction.
func (s *Store) PeekWaitlist(ctx context.Context, eventID string) (string, error) {
	var regID string
	err := s.queryRow(ctx,
		`SELECT registration_id
		 FROM waitlist_entries
		 WHERE event_id = $1
		 ORDER BY position ASC
		 LIMIT 1`,
		eventID,
	).Scan(&regID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("peek waitlist: %w", err)
	}
	return regID, nil
}

// RemoveWaitlist deletes a registration's waitlist entry if present.
func (s *Store) RemoveWaitlist(ctx context.Context, eventID, registrationID string) error {
	_, err := s.exec(ctx,
		`DELETE FROM waitlist_entries WHERE event_id = $1 AND registration_id = $2`,
		eventID, registrationID,
	)
	if err != nil {
		return fmt.Errorf("remove waitlist entry: %w", err)
	}
	return nil
}
