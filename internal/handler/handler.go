// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nkulkarni/eventgate/internal/model"
	"github.com/nkulkarni/eventgate/internal/service"
)

// Handler holds all HTTP handlers for the admission API.
type Handler struct {
	svc *service.Service
}

// New constructs a Handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the API on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/organizations", h.CreateOrganization)
	r.Patch("/organizations/{id}/status", h.SetOrganizationStatus)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Patch("/{id}/status", h.SetEventStatus)
		r.Get("/{id}/metrics", h.GetEventMetrics)
		r.Post("/{id}/register", h.Register)
		r.Get("/{id}/registrations", h.ListRegistrations)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Get("/{id}", h.GetRegistration)
		r.Get("/{id}/tickets", h.ListTickets)
		r.Patch("/{id}/quantity", h.ChangeQuantity)
		r.Post("/{id}/cancel", h.Cancel)
		r.Delete("/{id}", h.DeleteRegistration)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/{code}", h.Validate)
		r.Post("/{code}/scan", h.Scan)
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondError maps domain errors onto HTTP statuses, keeping the stable
// machine-readable code in the envelope so clients can branch on it.
func respondError(w http.ResponseWriter, err error) {
	var de *model.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}

	status := http.StatusInternalServerError
	switch de {
	case model.ErrNotFound:
		status = http.StatusNotFound
	case model.ErrInvalidQuantity:
		status = http.StatusBadRequest
	case model.ErrEventNotAdmitting:
		status = http.StatusUnprocessableEntity
	case model.ErrTicketExpired:
		status = http.StatusGone
	case model.ErrTransientConflict:
		status = http.StatusServiceUnavailable
	case model.ErrAlreadyRegistered, model.ErrEventFull, model.ErrAlreadyCancelled,
		model.ErrAlreadyUsed, model.ErrTicketCancelled, model.ErrRegistrationNotEligible:
		status = http.StatusConflict
	}
	writeError(w, status, de.Message, de.Code)
}

// ─── Organizations ────────────────────────────────────────────────────────────

// CreateOrganization handles POST /organizations
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	org, err := h.svc.CreateOrganization(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// SetOrganizationStatus handles PATCH /organizations/{id}/status
func (h *Handler) SetOrganizationStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.OrganizationStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	org, err := h.svc.SetOrganizationStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events", "internal")
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// SetEventStatus handles PATCH /events/{id}/status
func (h *Handler) SetEventStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.EventStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	event, err := h.svc.SetEventStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// GetEventMetrics handles GET /events/{id}/metrics
func (h *Handler) GetEventMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.svc.GetEventMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// registrationResponse pairs a registration with its issued tickets.
type registrationResponse struct {
	Registration *model.Registration `json:"registration"`
	Tickets      []model.Ticket      `json:"tickets"`
}

// Register handles POST /events/{id}/register
// Performs a capacity-safe admission: confirmed with tickets when seats
// remain, waitlisted otherwise.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}

	reg, tickets, err := h.svc.Register(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Quantity)
	if err != nil {
		respondError(w, err)
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusCreated, registrationResponse{Registration: reg, Tickets: tickets})
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// GetRegistration handles GET /registrations/{id}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.GetRegistration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ListTickets handles GET /registrations/{id}/tickets
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.ListTickets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// ChangeQuantity handles PATCH /registrations/{id}/quantity
func (h *Handler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	var req model.ChangeQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	reg, err := h.svc.ChangeQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Cancel handles POST /registrations/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// DeleteRegistration handles DELETE /registrations/{id}
func (h *Handler) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRegistration(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Tickets ──────────────────────────────────────────────────────────────────

// Validate handles GET /tickets/{code}
// Read-only pre-scan check; applies the scan policy table without consuming.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.svc.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// Scan handles POST /tickets/{code}/scan
// Consumes the ticket exactly once.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	if req.Agent == "" {
		writeError(w, http.StatusBadRequest, "agent is required", "invalid_request")
		return
	}
	ticket, err := h.svc.Scan(r.Context(), chi.URLParam(r, "code"), req.Agent)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
