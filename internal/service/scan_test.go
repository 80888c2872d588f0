package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nkulkarni/eventgate/internal/model"
)

func issueOne(t *testing.T, f *fixture, user string) model.Ticket {
	t.Helper()
	_, tickets, err := f.svc.Register(context.Background(), f.event.ID, user, 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	return tickets[0]
}

func TestScan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid unexpired ticket is consumed once", func(t *testing.T) {
		f := setup(t, 5)
		tk := issueOne(t, f, "user-a")

		used, err := f.svc.Scan(ctx, tk.Code, "gate-1")
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if used.Status != model.TicketUsed {
			t.Fatalf("expected used, got %s", used.Status)
		}
		if used.UsedBy != "gate-1" {
			t.Fatalf("expected agent gate-1, got %q", used.UsedBy)
		}
		if used.UsedAt == nil || !used.UsedAt.Equal(f.clk.Now()) {
			t.Fatalf("expected scan timestamp %v, got %v", f.clk.Now(), used.UsedAt)
		}

		_, err = f.svc.Scan(ctx, tk.Code, "gate-2")
		if !errors.Is(err, model.ErrAlreadyUsed) {
			t.Fatalf("expected ErrAlreadyUsed, got %v", err)
		}
	})

	// Ticket issued with a 30-minute validity window: a scan in minute 29
	// succeeds, a scan after minute 30 fails with Expired.
	t.Run("expiry window", func(t *testing.T) {
		f := setup(t, 5, WithTicketValidity(30*time.Minute))
		early := issueOne(t, f, "user-a")
		late := issueOne(t, f, "user-b")

		f.clk.Advance(29 * time.Minute)
		if _, err := f.svc.Scan(ctx, early.Code, "gate-1"); err != nil {
			t.Fatalf("scan at minute 29: %v", err)
		}

		f.clk.Advance(2 * time.Minute)
		_, err := f.svc.Scan(ctx, late.Code, "gate-1")
		if !errors.Is(err, model.ErrTicketExpired) {
			t.Fatalf("expected ErrTicketExpired at minute 31, got %v", err)
		}
	})

	t.Run("cancelled ticket", func(t *testing.T) {
		f := setup(t, 5)
		reg, tickets, _ := f.svc.Register(ctx, f.event.ID, "user-a", 1)
		if _, err := f.svc.Cancel(ctx, reg.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		_, err := f.svc.Scan(ctx, tickets[0].Code, "gate-1")
		if !errors.Is(err, model.ErrTicketCancelled) {
			t.Fatalf("expected ErrTicketCancelled, got %v", err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		f := setup(t, 5)
		_, err := f.svc.Scan(ctx, "deadbeefdeadbeefdeadbeefdeadbeef", "gate-1")
		if !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("cancelling a used ticket keeps the attendee admitted", func(t *testing.T) {
		f := setup(t, 5)
		reg, tickets, _ := f.svc.Register(ctx, f.event.ID, "user-a", 1)
		if _, err := f.svc.Scan(ctx, tickets[0].Code, "gate-1"); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, err := f.svc.Cancel(ctx, reg.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		// The ticket record moves to cancelled, but the recorded use stands.
		got, err := f.svc.ListTickets(ctx, reg.ID)
		if err != nil {
			t.Fatalf("list tickets: %v", err)
		}
		if got[0].Status != model.TicketCancelled {
			t.Fatalf("expected cancelled, got %s", got[0].Status)
		}
		if got[0].UsedAt == nil || got[0].UsedBy != "gate-1" {
			t.Fatalf("scan metadata lost on cancellation")
		}
	})
}

func TestScanExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := setup(t, 5)
	tk := issueOne(t, f, "user-a")

	const scanners = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		replays   int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Scan(ctx, tk.Code, "gate-x")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrAlreadyUsed):
				replays++
			default:
				t.Errorf("unexpected scan error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful scan, got %d", successes)
	}
	if replays != scanners-1 {
		t.Fatalf("expected %d AlreadyUsed failures, got %d", scanners-1, replays)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("does not consume the ticket", func(t *testing.T) {
		f := setup(t, 5)
		tk := issueOne(t, f, "user-a")

		for i := 0; i < 3; i++ {
			got, err := f.svc.Validate(ctx, tk.Code)
			if err != nil {
				t.Fatalf("validate %d: %v", i, err)
			}
			if got.Status != model.TicketValid {
				t.Fatalf("expected valid, got %s", got.Status)
			}
		}
		// Still consumable afterwards.
		if _, err := f.svc.Scan(ctx, tk.Code, "gate-1"); err != nil {
			t.Fatalf("scan after validate: %v", err)
		}
	})

	t.Run("applies the policy table", func(t *testing.T) {
		f := setup(t, 5, WithTicketValidity(10*time.Minute))
		usedTk := issueOne(t, f, "user-a")
		expiredTk := issueOne(t, f, "user-b")
		cancelledReg, cancelledTickets, _ := f.svc.Register(ctx, f.event.ID, "user-c", 1)

		if _, err := f.svc.Scan(ctx, usedTk.Code, "gate-1"); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, err := f.svc.Cancel(ctx, cancelledReg.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		f.clk.Advance(11 * time.Minute)

		cases := []struct {
			name string
			code string
			want error
		}{
			{"used", usedTk.Code, model.ErrAlreadyUsed},
			{"expired", expiredTk.Code, model.ErrTicketExpired},
			{"cancelled", cancelledTickets[0].Code, model.ErrTicketCancelled},
			{"unknown", "0000000000000000", model.ErrNotFound},
		}
		for _, tc := range cases {
			if _, err := f.svc.Validate(ctx, tc.code); !errors.Is(err, tc.want) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
			}
		}
	})
}
