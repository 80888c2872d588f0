package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkulkarni/eventgate/internal/model"
)

// CreateOrganization inserts a new organizer.
func (s *Store) CreateOrganization(ctx context.Context, org *model.Organization) error {
	_, err := s.exec(ctx,
		`INSERT INTO organizations (id, name, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.Status, org.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// GetOrganization returns an organizer or ErrNotFound.
func (s *Store) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	err := s.queryRow(ctx,
		`SELECT id, name, status, created_at FROM organizations WHERE id = $1`,
		id,
	).Scan(&org.ID, &org.Name, &org.Status, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// SetOrganizationStatus updates an organizer's approval status.
func (s *Store) SetOrganizationStatus(ctx context.Context, id string, status model.OrganizationStatus) error {
	tag, err := s.exec(ctx,
		`UPDATE organizations SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

const eventColumns = `id, org_id, name, description, capacity, remaining_seats, status, allow_waitlist, version, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.OrgID, &e.Name, &e.Description, &e.Capacity,
		&e.RemainingSeats, &e.Status, &e.AllowWaitlist, &e.Version, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	_, err := s.exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.OrgID, ev.Name, ev.Description, ev.Capacity,
		ev.RemainingSeats, ev.Status, ev.AllowWaitlist, ev.Version, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	ev, err := scanEvent(s.queryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// GetEventForUpdate locks the event row for the rest of the transaction.
// This serializes every capacity-affecting operation on one event while
// leaving other events untouched.
func (s *Store) GetEventForUpdate(ctx context.Context, id string) (*model.Event, error) {
	ev, err := scanEvent(s.queryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return ev, nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// SetEventStatus updates an event's lifecycle status.
func (s *Store) SetEventStatus(ctx context.Context, id string, status model.EventStatus) error {
	tag, err := s.exec(ctx,
		`UPDATE events SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// AdjustRemainingSeats applies delta to the remaining-seat counter and bumps
// the version. The bounds in the WHERE clause are a conservation guard: the
// caller holds the event row lock, so a missed update means a logic race and
// is surfaced as a transient conflict for retry rather than committed.
func (s *Store) AdjustRemainingSeats(ctx context.Context, eventID string, delta int) error {
	tag, err := s.exec(ctx,
		`UPDATE events
		 SET remaining_seats = remaining_seats + $2, version = version + 1
		 WHERE id = $1
		   AND remaining_seats + $2 >= 0
		   AND remaining_seats + $2 <= capacity`,
		eventID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust remaining seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTransientConflict
	}
	return nil
}
