package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryPlatform is an in-process ChatPlatform used by tests and dry runs.
// Channels are plain message logs; direct messages are kept per user.
type MemoryPlatform struct {
	mu       sync.Mutex
	seq      int
	channels map[string][]Message
	direct   map[string][]string

	// RefuseDirect lists users whose direct messages are refused.
	RefuseDirect map[string]bool
	// FailSend, FailCreate and FailDelete force the corresponding calls to
	// error, for exercising external-failure paths.
	FailSend   error
	FailCreate error
	FailDelete error

	// Now supplies message timestamps; defaults to time.Now.
	Now func() time.Time
}

// NewMemoryPlatform constructs an empty platform.
func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{
		channels:     make(map[string][]Message),
		direct:       make(map[string][]string),
		RefuseDirect: make(map[string]bool),
	}
}

func (p *MemoryPlatform) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// CreateChannel provisions a channel with a unique, never-reused id.
func (p *MemoryPlatform) CreateChannel(ctx context.Context, name, owner string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailCreate != nil {
		return "", p.FailCreate
	}
	p.seq++
	id := fmt.Sprintf("chan-%d", p.seq)
	p.channels[id] = nil
	return id, nil
}

// DeleteChannel removes the channel and its history.
func (p *MemoryPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailDelete != nil {
		return p.FailDelete
	}
	delete(p.channels, channelID)
	return nil
}

// SendMessage appends a bot message to the channel log.
func (p *MemoryPlatform) SendMessage(ctx context.Context, channelID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSend != nil {
		return p.FailSend
	}
	if _, ok := p.channels[channelID]; !ok {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	p.channels[channelID] = append(p.channels[channelID], Message{
		Timestamp: p.now(),
		Author:    "bot",
		Text:      content,
	})
	return nil
}

// Record appends a user message to the channel log, mimicking inbound chat.
func (p *MemoryPlatform) Record(channelID, author, text string, attachment bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[channelID] = append(p.channels[channelID], Message{
		Timestamp:     p.now(),
		Author:        author,
		Text:          text,
		HasAttachment: attachment,
	})
}

// FetchHistory returns up to limit messages, oldest first.
func (p *MemoryPlatform) FetchHistory(ctx context.Context, channelID string, limit int) ([]Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	log, ok := p.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %s", channelID)
	}
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]Message, len(log))
	copy(out, log)
	return out, nil
}

// SendDirect stores the content in the user's direct log unless refused.
func (p *MemoryPlatform) SendDirect(ctx context.Context, user, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RefuseDirect[user] {
		return ErrDirectRefused
	}
	p.direct[user] = append(p.direct[user], content)
	return nil
}

// DirectMessages returns the direct log for a user.
func (p *MemoryPlatform) DirectMessages(user string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.direct[user]))
	copy(out, p.direct[user])
	return out
}

// ChannelExists reports whether the channel is still provisioned.
func (p *MemoryPlatform) ChannelExists(channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[channelID]
	return ok
}

// ChannelMessages returns the current channel log.
func (p *MemoryPlatform) ChannelMessages(channelID string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.channels[channelID]))
	copy(out, p.channels[channelID])
	return out
}
