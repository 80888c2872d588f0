package service

import (
	"context"

	"github.com/nkulkarni/eventgate/internal/model"
)

// GetEventMetrics computes the admission read model for an event. Issued
// counts exclude cancelled tickets; the attendance rate is used/issued*100,
// or 0 when nothing has been issued.
func (s *Service) GetEventMetrics(ctx context.Context, eventID string) (*model.EventMetrics, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	issued, used, err := s.store.CountTickets(ctx, eventID)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if issued > 0 {
		rate = float64(used) / float64(issued) * 100
	}
	return &model.EventMetrics{
		EventID:           ev.ID,
		Capacity:          ev.Capacity,
		IssuedCount:       issued,
		UsedCount:         used,
		RemainingCapacity: ev.RemainingSeats,
		AttendanceRate:    rate,
	}, nil
}
