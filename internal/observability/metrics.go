package observability

import "sync"

// Metrics provides basic in-memory counters for ticket lifecycle outcomes.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// Counter names recorded by the lifecycle services.
const (
	MetricTicketsCreated       = "tickets_created"
	MetricTicketsDenied        = "tickets_denied_cooldown"
	MetricEvidenceSubmitted    = "evidence_submitted"
	MetricVerificationApproved = "verification_approved"
	MetricVerificationDeclined = "verification_declined"
	MetricTicketsClosed        = "tickets_closed"
	MetricTicketsReaped        = "tickets_reaped"
	MetricArchiveFailures      = "archive_failures"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// Inc increments the named counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for name, value := range m.counters {
		out[name] = value
	}
	return out
}
