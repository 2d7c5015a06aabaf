package events

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketCreateDenied  EventType = "ticket_create_denied"
	EventEvidenceSubmitted   EventType = "evidence_submitted"
	EventVerificationDecided EventType = "verification_decided"
	EventItemDelivered       EventType = "item_delivered"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketReaped        EventType = "ticket_reaped"
)

// Event represents a domain event emitted by the lifecycle services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	ChannelID string       `json:"channel_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Owner       string `json:"owner"`
	ExternalKey string `json:"external_key"`
}

// TicketCreateDeniedPayload payload.
type TicketCreateDeniedPayload struct {
	Owner             string        `json:"owner"`
	RemainingCooldown time.Duration `json:"remaining_cooldown"`
}

// VerificationDecidedPayload payload.
type VerificationDecidedPayload struct {
	Item     string `json:"item"`
	Accepted bool   `json:"accepted"`
}

// ItemDeliveredPayload payload.
type ItemDeliveredPayload struct {
	Item  string `json:"item"`
	ViaDM bool   `json:"via_dm"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Owner    string `json:"owner"`
	ClosedBy string `json:"closed_by"`
	Reaped   bool   `json:"reaped"`
}
