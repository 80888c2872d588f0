// Package testutil provides an in-memory admission store and an adjustable
// clock for unit and concurrency tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nkulkarni/eventgate/internal/model"
)

type memTxKey struct{}

// MemStore is a mutex-guarded, transactional in-memory implementation of the
// service store contract. WithTx serializes callers and restores a snapshot
// on error, so the all-or-nothing semantics of one logical operation match
// the PostgreSQL store closely enough for property tests.
type MemStore struct {
	mu sync.Mutex

	orgs     map[string]model.Organization
	events   map[string]model.Event
	regs     map[string]model.Registration
	regOrder []string
	waitlist map[string][]string
	tickets  map[string]model.Ticket
	seq      int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		orgs:     make(map[string]model.Organization),
		events:   make(map[string]model.Event),
		regs:     make(map[string]model.Registration),
		waitlist: make(map[string][]string),
		tickets:  make(map[string]model.Ticket),
	}
}

type snapshot struct {
	orgs     map[string]model.Organization
	events   map[string]model.Event
	regs     map[string]model.Registration
	regOrder []string
	waitlist map[string][]string
	tickets  map[string]model.Ticket
	seq      int64
}

func (m *MemStore) snapshot() snapshot {
	s := snapshot{
		orgs:     make(map[string]model.Organization, len(m.orgs)),
		events:   make(map[string]model.Event, len(m.events)),
		regs:     make(map[string]model.Registration, len(m.regs)),
		regOrder: append([]string(nil), m.regOrder...),
		waitlist: make(map[string][]string, len(m.waitlist)),
		tickets:  make(map[string]model.Ticket, len(m.tickets)),
		seq:      m.seq,
	}
	for k, v := range m.orgs {
		s.orgs[k] = v
	}
	for k, v := range m.events {
		s.events[k] = v
	}
	for k, v := range m.regs {
		s.regs[k] = v
	}
	for k, v := range m.waitlist {
		s.waitlist[k] = append([]string(nil), v...)
	}
	for k, v := range m.tickets {
		s.tickets[k] = v
	}
	return s
}

func (m *MemStore) restore(s snapshot) {
	m.orgs = s.orgs
	m.events = s.events
	m.regs = s.regs
	m.regOrder = s.regOrder
	m.waitlist = s.waitlist
	m.tickets = s.tickets
	m.seq = s.seq
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(memTxKey{}).(bool)
	return v
}

// lock acquires the store mutex unless the context already runs inside a
// transaction (which holds it for the whole unit of work).
func (m *MemStore) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// WithTx serializes the unit of work and rolls back all mutations on error.
func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// ─── Organizations ────────────────────────────────────────────────────────────

func (m *MemStore) CreateOrganization(ctx context.Context, org *model.Organization) error {
	defer m.lock(ctx)()
	m.orgs[org.ID] = *org
	return nil
}

func (m *MemStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	defer m.lock(ctx)()
	org, ok := m.orgs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &org, nil
}

func (m *MemStore) SetOrganizationStatus(ctx context.Context, id string, status model.OrganizationStatus) error {
	defer m.lock(ctx)()
	org, ok := m.orgs[id]
	if !ok {
		return model.ErrNotFound
	}
	org.Status = status
	m.orgs[id] = org
	return nil
}

// ─── Events ───────────────────────────────────────────────────────────────────

func (m *MemStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	defer m.lock(ctx)()
	m.events[ev.ID] = *ev
	return nil
}

func (m *MemStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	defer m.lock(ctx)()
	ev, ok := m.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &ev, nil
}

// GetEventForUpdate is equivalent to GetEvent here: WithTx already holds the
// store-wide lock, which subsumes the row lock.
func (m *MemStore) GetEventForUpdate(ctx context.Context, id string) (*model.Event, error) {
	return m.GetEvent(ctx, id)
}

func (m *MemStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	defer m.lock(ctx)()
	out := make([]model.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) SetEventStatus(ctx context.Context, id string, status model.EventStatus) error {
	defer m.lock(ctx)()
	ev, ok := m.events[id]
	if !ok {
		return model.ErrNotFound
	}
	ev.Status = status
	m.events[id] = ev
	return nil
}

func (m *MemStore) AdjustRemainingSeats(ctx context.Context, eventID string, delta int) error {
	defer m.lock(ctx)()
	ev, ok := m.events[eventID]
	if !ok {
		return model.ErrNotFound
	}
	next := ev.RemainingSeats + delta
	if next < 0 || next > ev.Capacity {
		return model.ErrTransientConflict
	}
	ev.RemainingSeats = next
	ev.Version++
	m.events[eventID] = ev
	return nil
}

// ─── Registrations ────────────────────────────────────────────────────────────

func (m *MemStore) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	defer m.lock(ctx)()
	for _, r := range m.regs {
		if r.EventID == reg.EventID && r.UserID == reg.UserID && r.Status != model.RegistrationCancelled {
			return model.ErrAlreadyRegistered
		}
	}
	m.regs[reg.ID] = *reg
	m.regOrder = append(m.regOrder, reg.ID)
	return nil
}

func (m *MemStore) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	defer m.lock(ctx)()
	reg, ok := m.regs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &reg, nil
}

func (m *MemStore) GetRegistrationForUpdate(ctx context.Context, id string) (*model.Registration, error) {
	return m.GetRegistration(ctx, id)
}

func (m *MemStore) FindActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	defer m.lock(ctx)()
	for _, r := range m.regs {
		if r.EventID == eventID && r.UserID == userID && r.Status != model.RegistrationCancelled {
			reg := r
			return &reg, nil
		}
	}
	return nil, nil
}

func (m *MemStore) UpdateRegistration(ctx context.Context, reg *model.Registration) error {
	defer m.lock(ctx)()
	if _, ok := m.regs[reg.ID]; !ok {
		return model.ErrNotFound
	}
	m.regs[reg.ID] = *reg
	return nil
}

func (m *MemStore) DeleteRegistration(ctx context.Context, id string) error {
	defer m.lock(ctx)()
	if _, ok := m.regs[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.regs, id)
	for i, rid := range m.regOrder {
		if rid == id {
			m.regOrder = append(m.regOrder[:i], m.regOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemStore) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	defer m.lock(ctx)()
	var out []model.Registration
	for _, id := range m.regOrder {
		if r, ok := m.regs[id]; ok && r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) ListUnderIssued(ctx context.Context, limit int) ([]string, error) {
	defer m.lock(ctx)()
	var ids []string
	for _, id := range m.regOrder {
		r := m.regs[id]
		if r.Status == model.RegistrationConfirmed && r.TicketsIssued < r.Quantity {
			ids = append(ids, id)
			if len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

// ─── Waitlist ─────────────────────────────────────────────────────────────────

func (m *MemStore) PushWaitlist(ctx context.Context, eventID, registrationID string) error {
	defer m.lock(ctx)()
	m.waitlist[eventID] = append(m.waitlist[eventID], registrationID)
	return nil
}

func (m *MemStore) PeekWaitlist(ctx context.Context, eventID string) (string, error) {
	defer m.lock(ctx)()
	q := m.waitlist[eventID]
	if len(q) == 0 {
		return "", nil
	}
	return q[0], nil
}

func (m *MemStore) RemoveWaitlist(ctx context.Context, eventID, registrationID string) error {
	defer m.lock(ctx)()
	q := m.waitlist[eventID]
	for i, id := range q {
		if id == registrationID {
			m.waitlist[eventID] = append(q[:i:i], q[i+1:]...)
			return nil
		}
	}
	return nil
}

// WaitlistOrder returns the current FIFO order for assertions.
func (m *MemStore) WaitlistOrder(eventID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.waitlist[eventID]...)
}

// ─── Tickets ──────────────────────────────────────────────────────────────────

func (m *MemStore) CreateTickets(ctx context.Context, tickets []*model.Ticket) error {
	defer m.lock(ctx)()
	for _, t := range tickets {
		for _, existing := range m.tickets {
			if existing.Code == t.Code {
				return model.ErrCodeCollision
			}
		}
		m.seq++
		t.Seq = m.seq
		m.tickets[t.ID] = *t
	}
	return nil
}

func (m *MemStore) ListTicketsByRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error) {
	defer m.lock(ctx)()
	var out []model.Ticket
	for _, t := range m.tickets {
		if t.RegistrationID == registrationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *MemStore) SetTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) error {
	defer m.lock(ctx)()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.ErrNotFound
	}
	t.Status = status
	m.tickets[ticketID] = t
	return nil
}

func (m *MemStore) DeleteTicketsByRegistration(ctx context.Context, registrationID string) error {
	defer m.lock(ctx)()
	for id, t := range m.tickets {
		if t.RegistrationID == registrationID {
			delete(m.tickets, id)
		}
	}
	return nil
}

func (m *MemStore) GetTicketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	defer m.lock(ctx)()
	for _, t := range m.tickets {
		if t.Code == code {
			ticket := t
			return &ticket, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *MemStore) ConsumeTicket(ctx context.Context, code, agent string, now time.Time) (*model.Ticket, error) {
	defer m.lock(ctx)()
	for id, t := range m.tickets {
		if t.Code != code {
			continue
		}
		if t.Status != model.TicketValid || !t.ExpiresAt.After(now) {
			return nil, nil
		}
		used := now
		t.Status = model.TicketUsed
		t.UsedAt = &used
		t.UsedBy = agent
		m.tickets[id] = t
		ticket := t
		return &ticket, nil
	}
	return nil, nil
}

func (m *MemStore) CountTickets(ctx context.Context, eventID string) (int, int, error) {
	defer m.lock(ctx)()
	issued, used := 0, 0
	for _, t := range m.tickets {
		if t.EventID != eventID {
			continue
		}
		if t.Status != model.TicketCancelled {
			issued++
		}
		if t.Status == model.TicketUsed {
			used++
		}
	}
	return issued, used, nil
}
