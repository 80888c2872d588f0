package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkulkarni/eventgate/internal/model"
)

// Event and organization management is a thin collaborator surface: just
// enough for the admission checks to be exercised end to end. Everything
// capacity-related still flows through the admission operations.

// CreateOrganization creates an organizer in approved status.
func (s *Service) CreateOrganization(ctx context.Context, req model.CreateOrganizationRequest) (*model.Organization, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("organization name is required")
	}
	org := &model.Organization{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Status:    model.OrgApproved,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// SetOrganizationStatus approves or suspends an organizer.
func (s *Service) SetOrganizationStatus(ctx context.Context, id string, status model.OrganizationStatus) (*model.Organization, error) {
	switch status {
	case model.OrgApproved, model.OrgSuspended:
	default:
		return nil, fmt.Errorf("unknown organization status %q", status)
	}
	if err := s.store.SetOrganizationStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.store.GetOrganization(ctx, id)
}

// CreateEvent validates the request and creates an upcoming event with its
// full capacity remaining.
func (s *Service) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if req.Capacity > 100_000 {
		return nil, fmt.Errorf("capacity cannot exceed 100,000")
	}
	if _, err := s.store.GetOrganization(ctx, req.OrgID); err != nil {
		return nil, err
	}

	allowWaitlist := true
	if req.AllowWaitlist != nil {
		allowWaitlist = *req.AllowWaitlist
	}
	ev := &model.Event{
		ID:             uuid.New().String(),
		OrgID:          req.OrgID,
		Name:           req.Name,
		Description:    req.Description,
		Capacity:       req.Capacity,
		RemainingSeats: req.Capacity,
		Status:         model.EventUpcoming,
		AllowWaitlist:  allowWaitlist,
		Version:        1,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvents returns all events.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.ListEvents(ctx)
}

// GetEvent returns a single event by ID.
func (s *Service) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.store.GetEvent(ctx, id)
}

// SetEventStatus moves an event through its lifecycle. Capacity fields are
// untouched; a non-upcoming event simply stops admitting.
func (s *Service) SetEventStatus(ctx context.Context, id string, status model.EventStatus) (*model.Event, error) {
	switch status {
	case model.EventUpcoming, model.EventOngoing, model.EventCompleted, model.EventCancelled:
	default:
		return nil, fmt.Errorf("unknown event status %q", status)
	}
	if err := s.store.SetEventStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.store.GetEvent(ctx, id)
}

// ListRegistrations returns all registrations for an event.
func (s *Service) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListRegistrationsByEvent(ctx, eventID)
}

// GetRegistration returns a single registration by ID.
func (s *Service) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return s.store.GetRegistration(ctx, id)
}
