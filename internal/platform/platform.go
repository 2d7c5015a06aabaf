package platform

import (
	"context"
	"errors"
	"time"
)

// ErrDirectRefused is returned by SendDirect when the recipient does not
// accept direct messages. Callers degrade to in-channel delivery.
var ErrDirectRefused = errors.New("direct message refused by recipient")

// Message is one entry of a channel's history.
type Message struct {
	Timestamp     time.Time
	Author        string
	Text          string
	HasAttachment bool
}

// ChatPlatform is the narrow surface the lifecycle services need from the
// chat platform. Implementations own permission handling: a created channel
// is visible to the owner and hidden from everyone else.
type ChatPlatform interface {
	// CreateChannel provisions a private channel for owner and returns its id.
	CreateChannel(ctx context.Context, name, owner string) (string, error)
	// DeleteChannel tears the channel down.
	DeleteChannel(ctx context.Context, channelID string) error
	// SendMessage posts content into the channel.
	SendMessage(ctx context.Context, channelID, content string) error
	// FetchHistory returns up to limit messages, oldest first.
	FetchHistory(ctx context.Context, channelID string, limit int) ([]Message, error)
	// SendDirect delivers content to the user's direct messages. Returns
	// ErrDirectRefused when the platform disallows it.
	SendDirect(ctx context.Context, user, content string) error
}
