// Package model defines the core domain types for the admission service.
package model

import "time"

// OrganizationStatus is the lifecycle state of an organizer.
type OrganizationStatus string

const (
	OrgApproved  OrganizationStatus = "approved"
	OrgSuspended OrganizationStatus = "suspended"
)

// EventStatus is the lifecycle state of an event. Only upcoming events
// accept new registrations.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// RegistrationStatus is the state of a user's claim on an event.
// Transitions: waitlisted -> confirmed (promotion), waitlisted -> cancelled,
// confirmed -> cancelled. Nothing exits cancelled.
type RegistrationStatus string

const (
	RegistrationWaitlisted RegistrationStatus = "waitlisted"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// TicketStatus is the state of a single-seat ticket.
type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

// Organization is the minimal organizer view the admission check needs.
type Organization struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Status    OrganizationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// Event holds the capacity-accounting view of an event. RemainingSeats and
// the waitlist are owned by the capacity ledger and mutated only through
// admission, quantity-change, and cancellation operations.
type Event struct {
	ID             string      `json:"id"`
	OrgID          string      `json:"org_id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Capacity       int         `json:"capacity"`
	RemainingSeats int         `json:"remaining_seats"`
	Status         EventStatus `json:"status"`
	AllowWaitlist  bool        `json:"allow_waitlist"`
	Version        int64       `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.RemainingSeats <= 0
}

// Registration is one user's claim on one event. At most one active
// (non-cancelled) registration may exist per (event, user) pair.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	UserID        string             `json:"user_id"`
	Status        RegistrationStatus `json:"status"`
	Quantity      int                `json:"quantity"`
	TicketsIssued int                `json:"tickets_issued"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Ticket is a single-seat credential owned by exactly one registration.
// Seq records issuance order; the newest tickets are revoked first on a
// quantity decrease. Code is opaque and independent of internal identifiers.
type Ticket struct {
	ID             string       `json:"id"`
	Seq            int64        `json:"-"`
	RegistrationID string       `json:"registration_id"`
	EventID        string       `json:"event_id"`
	Code           string       `json:"code"`
	Status         TicketStatus `json:"status"`
	IssuedAt       time.Time    `json:"issued_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
	UsedAt         *time.Time   `json:"used_at,omitempty"`
	UsedBy         string       `json:"used_by,omitempty"`
}

// Expired reports whether the ticket's validity window has closed at now.
func (t *Ticket) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// EventMetrics is the read model for an event's admission figures.
// AttendanceRate is usedCount/issuedCount*100, or 0 with no issued tickets.
type EventMetrics struct {
	EventID           string  `json:"event_id"`
	Capacity          int     `json:"capacity"`
	IssuedCount       int     `json:"issued_count"`
	UsedCount         int     `json:"used_count"`
	RemainingCapacity int     `json:"remaining_capacity"`
	AttendanceRate    float64 `json:"attendance_rate"`
}

// CreateOrganizationRequest is the payload for creating an organizer.
type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	OrgID         string `json:"org_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Capacity      int    `json:"capacity"`
	AllowWaitlist *bool  `json:"allow_waitlist,omitempty"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

// ChangeQuantityRequest is the payload for resizing a confirmed registration.
type ChangeQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// ScanRequest identifies the scanning agent consuming a ticket.
type ScanRequest struct {
	Agent string `json:"agent"`
}

// ErrorResponse is the standard JSON error envelope. Code is stable and
// machine-readable; Error is for humans.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
