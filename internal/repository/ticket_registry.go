package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

var (
	// ErrNotTicket marks a channel id with no registry entry. Callers treat
	// this as "not a ticket channel", not as a failure.
	ErrNotTicket = errors.New("channel is not a registered ticket")
	// ErrAlreadyOpen marks a creation attempt while the owner has an open ticket.
	ErrAlreadyOpen = errors.New("owner already has an open ticket")
	// ErrInvalidTransition marks a verification state change that does not
	// apply to the ticket's current state.
	ErrInvalidTransition = errors.New("invalid verification transition")
	// ErrNotClosed marks a removal attempt on a ticket that was never closed.
	ErrNotClosed = errors.New("ticket is not closed")
)

// TicketRegistry is the authoritative in-memory table of open tickets.
type TicketRegistry interface {
	Create(owner, channelID, externalKey string, now time.Time) (*domain.Ticket, error)
	Get(channelID string) (*domain.Ticket, error)
	Touch(channelID string, now time.Time) error
	SetRequestedItem(channelID, item string) error
	SetVerificationState(channelID string, next domain.VerificationState) error
	MarkClosed(channelID string) error
	Remove(channelID string) error
	Snapshot() []domain.Ticket
}

type ticketRegistry struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

// NewTicketRegistry builds an empty registry.
func NewTicketRegistry() TicketRegistry {
	return &ticketRegistry{tickets: make(map[string]*domain.Ticket)}
}

// Create registers a ticket. It fails with ErrAlreadyOpen when the owner
// already has a non-closed ticket.
func (r *ticketRegistry) Create(owner, channelID, externalKey string, now time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.Owner == owner && !ticket.Closed {
			return nil, ErrAlreadyOpen
		}
	}
	ticket := &domain.Ticket{
		ChannelID:      channelID,
		Owner:          owner,
		ExternalKey:    externalKey,
		Verification:   domain.VerificationNone,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	r.tickets[channelID] = ticket
	copied := *ticket
	return &copied, nil
}

// Get returns a copy of the ticket for the channel.
func (r *ticketRegistry) Get(channelID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	if !ok {
		return nil, ErrNotTicket
	}
	copied := *ticket
	return &copied, nil
}

// Touch bumps LastActivityAt, keeping it monotonically non-decreasing.
func (r *ticketRegistry) Touch(channelID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	if !ok {
		return ErrNotTicket
	}
	if now.After(ticket.LastActivityAt) {
		ticket.LastActivityAt = now
	}
	return nil
}

// SetRequestedItem records (or overwrites) the item the owner is claiming.
func (r *ticketRegistry) SetRequestedItem(channelID, item string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	if !ok {
		return ErrNotTicket
	}
	ticket.RequestedItem = item
	return nil
}

// SetVerificationState applies a transition, rejecting illegal ones.
func (r *ticketRegistry) SetVerificationState(channelID string, next domain.VerificationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	if !ok {
		return ErrNotTicket
	}
	if !domain.CanTransition(ticket.Verification, next) {
		return ErrInvalidTransition
	}
	ticket.Verification = next
	return nil
}

// MarkClosed flips the terminal closed flag. Closing twice is a no-op.
func (r *ticketRegistry) MarkClosed(channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	if !ok {
		return ErrNotTicket
	}
	ticket.Closed = true
	return nil
}

// Remove deletes the entry once closed. Removing an absent entry is a no-op
// so a duplicate close cannot fail midway.
func (r *ticketRegistry) Remove(channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[channelID]
	if !ok {
		return nil
	}
	if !ticket.Closed {
		return ErrNotClosed
	}
	delete(r.tickets, channelID)
	return nil
}

// Snapshot copies all current entries for iteration outside the lock.
func (r *ticketRegistry) Snapshot() []domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		out = append(out, *ticket)
	}
	return out
}
