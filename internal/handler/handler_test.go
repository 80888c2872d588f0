package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nkulkarni/eventgate/internal/model"
	"github.com/nkulkarni/eventgate/internal/service"
	"github.com/nkulkarni/eventgate/internal/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *testutil.Clock) {
	t.Helper()
	clk := testutil.NewClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := service.New(testutil.NewMemStore(), clk,
		service.WithTicketValidity(30*time.Minute),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Group(New(svc).Routes)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, clk
}

func doJSON(t *testing.T, method, url string, body any, out any) (int, model.ErrorResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var errResp model.ErrorResponse
	if resp.StatusCode >= 400 {
		_ = json.Unmarshal(raw, &errResp)
	} else if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode response %s: %v", raw, err)
		}
	}
	return resp.StatusCode, errResp
}

type registrationResp struct {
	Registration model.Registration `json:"registration"`
	Tickets      []model.Ticket     `json:"tickets"`
}

func createEvent(t *testing.T, ts *httptest.Server, capacity int) model.Event {
	t.Helper()
	var org model.Organization
	if code, _ := doJSON(t, http.MethodPost, ts.URL+"/organizations",
		model.CreateOrganizationRequest{Name: "Test Org"}, &org); code != http.StatusCreated {
		t.Fatalf("create org: status %d", code)
	}
	var ev model.Event
	if code, _ := doJSON(t, http.MethodPost, ts.URL+"/events",
		model.CreateEventRequest{OrgID: org.ID, Name: "Test Event", Capacity: capacity}, &ev); code != http.StatusCreated {
		t.Fatalf("create event: status %d", code)
	}
	return ev
}

func TestRegistrationFlow(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)
	ev := createEvent(t, ts, 2)

	// Two confirmations fill the event.
	var ra, rb, rc registrationResp
	if code, _ := doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "a", Quantity: 1}, &ra); code != http.StatusCreated {
		t.Fatalf("register a: status %d", code)
	}
	if ra.Registration.Status != model.RegistrationConfirmed || len(ra.Tickets) != 1 {
		t.Fatalf("expected a confirmed with ticket, got %+v", ra)
	}
	doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "b", Quantity: 1}, &rb)

	// Third lands on the waitlist.
	if code, _ := doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "c", Quantity: 1}, &rc); code != http.StatusCreated {
		t.Fatalf("register c: status %d", code)
	}
	if rc.Registration.Status != model.RegistrationWaitlisted || len(rc.Tickets) != 0 {
		t.Fatalf("expected c waitlisted, got %+v", rc)
	}

	// Duplicate is a conflict with a stable code.
	code, errResp := doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "a", Quantity: 1}, nil)
	if code != http.StatusConflict || errResp.Code != "already_registered" {
		t.Fatalf("expected 409 already_registered, got %d %q", code, errResp.Code)
	}

	// Cancelling A promotes C.
	var cancelled model.Registration
	if code, _ := doJSON(t, http.MethodPost, ts.URL+"/registrations/"+ra.Registration.ID+"/cancel", nil, &cancelled); code != http.StatusOK {
		t.Fatalf("cancel: status %d", code)
	}
	var promoted model.Registration
	doJSON(t, http.MethodGet, ts.URL+"/registrations/"+rc.Registration.ID, nil, &promoted)
	if promoted.Status != model.RegistrationConfirmed {
		t.Fatalf("expected c promoted, got %s", promoted.Status)
	}

	// Second cancel is a conflict.
	code, errResp = doJSON(t, http.MethodPost, ts.URL+"/registrations/"+ra.Registration.ID+"/cancel", nil, nil)
	if code != http.StatusConflict || errResp.Code != "already_cancelled" {
		t.Fatalf("expected 409 already_cancelled, got %d %q", code, errResp.Code)
	}

	// Metrics reflect the final state.
	var metrics model.EventMetrics
	if code, _ := doJSON(t, http.MethodGet, ts.URL+"/events/"+ev.ID+"/metrics", nil, &metrics); code != http.StatusOK {
		t.Fatalf("metrics: status %d", code)
	}
	if metrics.RemainingCapacity != 0 {
		t.Fatalf("expected full event, got %d remaining", metrics.RemainingCapacity)
	}
}

func TestScanEndpoints(t *testing.T) {
	t.Parallel()
	ts, clk := newTestServer(t)
	ev := createEvent(t, ts, 5)

	var reg registrationResp
	doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "a", Quantity: 2}, &reg)
	ticketURL := ts.URL + "/tickets/" + reg.Tickets[0].Code

	// Validate is read-only.
	var tk model.Ticket
	if code, _ := doJSON(t, http.MethodGet, ticketURL, nil, &tk); code != http.StatusOK {
		t.Fatalf("validate: status %d", code)
	}
	if tk.Status != model.TicketValid {
		t.Fatalf("expected valid, got %s", tk.Status)
	}

	// Scan consumes.
	var used model.Ticket
	if code, _ := doJSON(t, http.MethodPost, ticketURL+"/scan", model.ScanRequest{Agent: "gate-1"}, &used); code != http.StatusOK {
		t.Fatalf("scan: status %d", code)
	}
	if used.Status != model.TicketUsed || used.UsedBy != "gate-1" {
		t.Fatalf("expected used by gate-1, got %+v", used)
	}

	// Replay is a conflict.
	code, errResp := doJSON(t, http.MethodPost, ticketURL+"/scan", model.ScanRequest{Agent: "gate-2"}, nil)
	if code != http.StatusConflict || errResp.Code != "already_used" {
		t.Fatalf("expected 409 already_used, got %d %q", code, errResp.Code)
	}

	// Missing agent is a bad request.
	code, _ = doJSON(t, http.MethodPost, ticketURL+"/scan", model.ScanRequest{}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing agent, got %d", code)
	}

	// Expired ticket maps to 410.
	clk.Advance(31 * time.Minute)
	secondURL := fmt.Sprintf("%s/tickets/%s/scan", ts.URL, reg.Tickets[1].Code)
	code, errResp = doJSON(t, http.MethodPost, secondURL, model.ScanRequest{Agent: "gate-1"}, nil)
	if code != http.StatusGone || errResp.Code != "expired" {
		t.Fatalf("expected 410 expired, got %d %q", code, errResp.Code)
	}

	// Unknown code maps to 404.
	code, errResp = doJSON(t, http.MethodPost, ts.URL+"/tickets/unknown/scan", model.ScanRequest{Agent: "gate-1"}, nil)
	if code != http.StatusNotFound || errResp.Code != "not_found" {
		t.Fatalf("expected 404 not_found, got %d %q", code, errResp.Code)
	}
}

func TestQuantityEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)
	ev := createEvent(t, ts, 5)

	var reg registrationResp
	doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "a", Quantity: 2}, &reg)

	var resized model.Registration
	code, _ := doJSON(t, http.MethodPatch, ts.URL+"/registrations/"+reg.Registration.ID+"/quantity",
		model.ChangeQuantityRequest{Quantity: 4}, &resized)
	if code != http.StatusOK || resized.Quantity != 4 {
		t.Fatalf("expected quantity 4, got status %d quantity %d", code, resized.Quantity)
	}

	code, errResp := doJSON(t, http.MethodPatch, ts.URL+"/registrations/"+reg.Registration.ID+"/quantity",
		model.ChangeQuantityRequest{Quantity: 0}, nil)
	if code != http.StatusBadRequest || errResp.Code != "invalid_quantity" {
		t.Fatalf("expected 400 invalid_quantity, got %d %q", code, errResp.Code)
	}

	code, errResp = doJSON(t, http.MethodPatch, ts.URL+"/registrations/"+reg.Registration.ID+"/quantity",
		model.ChangeQuantityRequest{Quantity: 9}, nil)
	if code != http.StatusConflict || errResp.Code != "event_full" {
		t.Fatalf("expected 409 event_full, got %d %q", code, errResp.Code)
	}
}

func TestAdmissionChecksOverHTTP(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	var org model.Organization
	doJSON(t, http.MethodPost, ts.URL+"/organizations", model.CreateOrganizationRequest{Name: "Org"}, &org)
	var ev model.Event
	doJSON(t, http.MethodPost, ts.URL+"/events",
		model.CreateEventRequest{OrgID: org.ID, Name: "Ev", Capacity: 5}, &ev)

	// Suspend the organization: registrations become unprocessable.
	doJSON(t, http.MethodPatch, ts.URL+"/organizations/"+org.ID+"/status",
		map[string]string{"status": "suspended"}, nil)
	code, errResp := doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "a", Quantity: 1}, nil)
	if code != http.StatusUnprocessableEntity || errResp.Code != "event_not_admitting" {
		t.Fatalf("expected 422 event_not_admitting, got %d %q", code, errResp.Code)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)
	ev := createEvent(t, ts, 2)

	var reg registrationResp
	doJSON(t, http.MethodPost, ts.URL+"/events/"+ev.ID+"/register",
		model.RegisterRequest{UserID: "a", Quantity: 1}, &reg)

	code, _ := doJSON(t, http.MethodDelete, ts.URL+"/registrations/"+reg.Registration.ID, nil, nil)
	if code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	code, errResp := doJSON(t, http.MethodGet, ts.URL+"/registrations/"+reg.Registration.ID, nil, nil)
	if code != http.StatusNotFound || errResp.Code != "not_found" {
		t.Fatalf("expected 404 after delete, got %d %q", code, errResp.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
