package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkulkarni/eventgate/internal/model"
)

const ticketColumns = `id, seq, registration_id, event_id, code, status, issued_at, expires_at, used_at, used_by`

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var (
		t      model.Ticket
		usedBy *string
	)
	err := row.Scan(&t.ID, &t.Seq, &t.RegistrationID, &t.EventID, &t.Code,
		&t.Status, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt, &usedBy)
	if err != nil {
		return nil, err
	}
	if usedBy != nil {
		t.UsedBy = *usedBy
	}
	return &t, nil
}

// CreateTickets inserts a batch of tickets, filling each ticket's issuance
// sequence number. A code collision surfaces as ErrCodeCollision, which the
// service retries with freshly generated codes.
func (s *Store) CreateTickets(ctx context.Context, tickets []*model.Ticket) error {
	for _, t := range tickets {
		var usedBy *string
		if t.UsedBy != "" {
			usedBy = &t.UsedBy
		}
		err := s.queryRow(ctx,
			`INSERT INTO tickets (id, registration_id, event_id, code, status, issued_at, expires_at, used_at, used_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING seq`,
			t.ID, t.RegistrationID, t.EventID, t.Code, t.Status,
			t.IssuedAt, t.ExpiresAt, t.UsedAt, usedBy,
		).Scan(&t.Seq)
		if err != nil {
			if isUniqueViolation(err, "tickets_code_key") {
				return model.ErrCodeCollision
			}
			return fmt.Errorf("insert ticket: %w", err)
		}
	}
	return nil
}

// ListTicketsByRegistration returns a registration's tickets in issuance
// order (ascending seq).
func (s *Store) ListTicketsByRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error) {
	rows, err := s.query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE registration_id = $1
		 ORDER BY seq ASC`,
		registrationID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// SetTicketStatus updates one ticket's status.
func (s *Store) SetTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) error {
	tag, err := s.exec(ctx,
		`UPDATE tickets SET status = $2 WHERE id = $1`,
		ticketID, status,
	)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteTicketsByRegistration removes all of a registration's tickets.
func (s *Store) DeleteTicketsByRegistration(ctx context.Context, registrationID string) error {
	_, err := s.exec(ctx,
		`DELETE FROM tickets WHERE registration_id = $1`,
		registrationID,
	)
	if err != nil {
		return fmt.Errorf("delete tickets: %w", err)
	}
	return nil
}

// GetTicketByCode returns the ticket for a code or ErrNotFound.
func (s *Store) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	t, err := scanTicket(s.queryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get ticket by code: %w", err)
	}
	return t, nil
}

// ConsumeTicket performs the exactly-once valid->used transition as a single
// conditional update keyed on the current status. Concurrent scans of the
// same code leave exactly one winner; the rest see (nil, nil) and classify
// the failure by re-reading the ticket.
func (s *Store) ConsumeTicket(ctx context.Context, code, agent string, now time.Time) (*model.Ticket, error) {
	t, err := scanTicket(s.queryRow(ctx,
		`UPDATE tickets
		 SET status = 'used', used_at = $2, used_by = $3
		 WHERE code = $1 AND status = 'valid' AND expires_at > $2
		 RETURNING `+ticketColumns,
		code, now, agent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume ticket: %w", err)
	}
	return t, nil
}

// CountTickets returns the issued (non-cancelled) and used ticket counts for
// an event.
func (s *Store) CountTickets(ctx context.Context, eventID string) (int, int, error) {
	var issued, used int
	err := s.queryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE status <> 'cancelled'),
		   COUNT(*) FILTER (WHERE status = 'used')
		 FROM tickets
		 WHERE event_id = $1`,
		eventID,
	).Scan(&issued, &used)
	if err != nil {
		return 0, 0, fmt.Errorf("count tickets: %w", err)
	}
	return issued, used, nil
}
