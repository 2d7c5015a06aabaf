package domain

import "time"

// TranscriptEntry is one rendered line of a ticket conversation.
type TranscriptEntry struct {
	Timestamp     time.Time
	Author        string
	Text          string
	HasAttachment bool
}

// TranscriptRecord is the write-once archival record produced when a ticket
// closes. Entries are ordered oldest-first and bounded; Rendered is the
// truncated textual form posted to the archive channel.
type TranscriptRecord struct {
	ChannelID string
	Owner     string
	ClosedBy  string
	OpenedAt  time.Time
	ClosedAt  time.Time
	Entries   []TranscriptEntry
	Rendered  string
}
