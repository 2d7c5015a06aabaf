package domain

import "time"

// VerificationState enumerates the evidence-review states of a ticket.
type VerificationState string

const (
	VerificationNone      VerificationState = "NONE"
	VerificationPending   VerificationState = "PENDING_EVIDENCE"
	VerificationSubmitted VerificationState = "SUBMITTED"
	VerificationApproved  VerificationState = "APPROVED"
	VerificationDeclined  VerificationState = "DECLINED"
)

// Ticket is the aggregate for one support interaction. ChannelID doubles as
// the ticket identity: it names the dedicated channel created for the owner
// and is never reused.
type Ticket struct {
	ChannelID      string
	Owner          string
	ExternalKey    string
	RequestedItem  string
	Verification   VerificationState
	CreatedAt      time.Time
	LastActivityAt time.Time
	Closed         bool
}

var allowedVerificationTransitions = map[VerificationState][]VerificationState{
	VerificationNone:      {VerificationPending},
	VerificationPending:   {VerificationSubmitted},
	VerificationSubmitted: {VerificationApproved, VerificationDeclined},
	VerificationDeclined:  {VerificationPending},
	VerificationApproved:  {},
}

// CanTransition reports whether moving from current to next is a legal
// verification transition.
func CanTransition(current, next VerificationState) bool {
	for _, candidate := range allowedVerificationTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
