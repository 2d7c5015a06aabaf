package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

func TestRegistryCreateRejectsSecondOpenTicket(t *testing.T) {
	t.Parallel()
	registry := NewTicketRegistry()
	now := time.Now()

	if _, err := registry.Create("alice", "chan-1", "TCK-1", now); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := registry.Create("alice", "chan-2", "TCK-2", now); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("second Create: got %v, want ErrAlreadyOpen", err)
	}
	// Another owner is unaffected.
	if _, err := registry.Create("bob", "chan-3", "TCK-3", now); err != nil {
		t.Fatalf("Create for bob: %v", err)
	}
	// Once closed and removed, the owner may open again.
	if err := registry.MarkClosed("chan-1"); err != nil {
		t.Fatalf("MarkClosed: %v", err)
	}
	if err := registry.Remove("chan-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := registry.Create("alice", "chan-4", "TCK-4", now); err != nil {
		t.Fatalf("Create after close: %v", err)
	}
}

func TestRegistryTouchUnknownChannel(t *testing.T) {
	t.Parallel()
	registry := NewTicketRegistry()
	if err := registry.Touch("not-a-ticket", time.Now()); !errors.Is(err, ErrNotTicket) {
		t.Fatalf("Touch: got %v, want ErrNotTicket", err)
	}
}

func TestRegistryTouchIsMonotonic(t *testing.T) {
	t.Parallel()
	registry := NewTicketRegistry()
	base := time.Now()
	if _, err := registry.Create("alice", "chan-1", "TCK-1", base); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Touch("chan-1", base.Add(time.Minute)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	// An earlier timestamp must not move activity backwards.
	if err := registry.Touch("chan-1", base.Add(-time.Minute)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	ticket, err := registry.Get("chan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ticket.LastActivityAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastActivityAt: got %v, want %v", ticket.LastActivityAt, base.Add(time.Minute))
	}
}

func TestRegistryVerificationTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		path    []domain.VerificationState
		attempt domain.VerificationState
		wantErr bool
	}{
		{
			name:    "none to pending",
			attempt: domain.VerificationPending,
		},
		{
			name:    "none straight to approved",
			attempt: domain.VerificationApproved,
			wantErr: true,
		},
		{
			name:    "pending to approved skips submission",
			path:    []domain.VerificationState{domain.VerificationPending},
			attempt: domain.VerificationApproved,
			wantErr: true,
		},
		{
			name:    "submitted to approved",
			path:    []domain.VerificationState{domain.VerificationPending, domain.VerificationSubmitted},
			attempt: domain.VerificationApproved,
		},
		{
			name:    "submitted to declined",
			path:    []domain.VerificationState{domain.VerificationPending, domain.VerificationSubmitted},
			attempt: domain.VerificationDeclined,
		},
		{
			name:    "declined back to pending",
			path:    []domain.VerificationState{domain.VerificationPending, domain.VerificationSubmitted, domain.VerificationDeclined},
			attempt: domain.VerificationPending,
		},
		{
			name:    "approved is terminal",
			path:    []domain.VerificationState{domain.VerificationPending, domain.VerificationSubmitted, domain.VerificationApproved},
			attempt: domain.VerificationPending,
			wantErr: true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			registry := NewTicketRegistry()
			if _, err := registry.Create("alice", "chan-1", "TCK-1", time.Now()); err != nil {
				t.Fatalf("Create: %v", err)
			}
			for _, state := range test.path {
				if err := registry.SetVerificationState("chan-1", state); err != nil {
					t.Fatalf("path step %s: %v", state, err)
				}
			}
			err := registry.SetVerificationState("chan-1", test.attempt)
			if test.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("got %v, want ErrInvalidTransition", err)
				}
			} else if err != nil {
				t.Fatalf("SetVerificationState: %v", err)
			}
		})
	}
}

func TestRegistryRemoveSemantics(t *testing.T) {
	t.Parallel()
	registry := NewTicketRegistry()
	if _, err := registry.Create("alice", "chan-1", "TCK-1", time.Now()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Remove("chan-1"); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("Remove before close: got %v, want ErrNotClosed", err)
	}
	if err := registry.MarkClosed("chan-1"); err != nil {
		t.Fatalf("MarkClosed: %v", err)
	}
	if err := registry.Remove("chan-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// Removing again is a no-op.
	if err := registry.Remove("chan-1"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := registry.Get("chan-1"); !errors.Is(err, ErrNotTicket) {
		t.Fatalf("Get after Remove: got %v, want ErrNotTicket", err)
	}
}

func TestRegistrySnapshotCopies(t *testing.T) {
	t.Parallel()
	registry := NewTicketRegistry()
	if _, err := registry.Create("alice", "chan-1", "TCK-1", time.Now()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	snapshot := registry.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("snapshot length: got %d, want 1", len(snapshot))
	}
	snapshot[0].RequestedItem = "mutated"
	ticket, err := registry.Get("chan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ticket.RequestedItem != "" {
		t.Errorf("snapshot mutation leaked into registry: %q", ticket.RequestedItem)
	}
}
