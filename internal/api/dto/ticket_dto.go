package dto

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Owner string `json:"owner"`
}

// DecisionRequest payload for manual reviewer verdicts.
type DecisionRequest struct {
	Accepted bool `json:"accepted"`
}

// SendItemRequest payload for direct item delivery.
type SendItemRequest struct {
	User string `json:"user"`
}

// TicketResponse response.
type TicketResponse struct {
	ChannelID      string                   `json:"channel_id"`
	Owner          string                   `json:"owner"`
	ExternalKey    string                   `json:"external_key"`
	RequestedItem  string                   `json:"requested_item,omitempty"`
	Verification   domain.VerificationState `json:"verification"`
	CreatedAt      time.Time                `json:"created_at"`
	LastActivityAt time.Time                `json:"last_activity_at"`
	Closed         bool                     `json:"closed"`
}

// FromTicket maps the domain aggregate to its response form.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ChannelID:      ticket.ChannelID,
		Owner:          ticket.Owner,
		ExternalKey:    ticket.ExternalKey,
		RequestedItem:  ticket.RequestedItem,
		Verification:   ticket.Verification,
		CreatedAt:      ticket.CreatedAt,
		LastActivityAt: ticket.LastActivityAt,
		Closed:         ticket.Closed,
	}
}
