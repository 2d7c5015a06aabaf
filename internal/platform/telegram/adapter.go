package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/platform"
)

// Adapter binds the ChatPlatform interface to Telegram. A ticket "channel"
// is the owner's private chat with the bot, identified by its numeric chat
// id in decimal form. Telegram does not let bots read past messages, so the
// adapter mirrors the traffic it sees into a bounded per-channel log which
// serves FetchHistory.
type Adapter struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger

	mu      sync.Mutex
	history map[string][]platform.Message
	limit   int
}

// NewAdapter authorizes against the Bot API.
func NewAdapter(token string, historyLimit int, logger *zap.Logger) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize bot: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("username", api.Self.UserName))
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Adapter{
		api:     api,
		logger:  logger,
		history: make(map[string][]platform.Message),
		limit:   historyLimit,
	}, nil
}

// CreateChannel resolves the owner's private chat. Bots cannot create chats,
// so the private conversation with the owner is the ticket channel.
func (a *Adapter) CreateChannel(ctx context.Context, name, owner string) (string, error) {
	if _, err := strconv.ParseInt(owner, 10, 64); err != nil {
		return "", fmt.Errorf("owner %q is not a telegram user id: %w", owner, err)
	}
	a.mu.Lock()
	a.history[owner] = nil
	a.mu.Unlock()
	return owner, nil
}

// DeleteChannel drops the mirror log. The chat itself cannot be deleted by
// a bot; a closing notice is posted instead.
func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	if err := a.SendMessage(ctx, channelID, "This ticket is now closed."); err != nil {
		a.logger.Warn("closing notice failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	a.mu.Lock()
	delete(a.history, channelID)
	a.mu.Unlock()
	return nil
}

// SendMessage posts content into the channel and mirrors it.
func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad channel id %q: %w", channelID, err)
	}
	if _, err := a.api.Send(tgbotapi.NewMessage(chatID, content)); err != nil {
		return err
	}
	a.record(channelID, platform.Message{
		Timestamp: time.Now(),
		Author:    a.api.Self.UserName,
		Text:      content,
	})
	return nil
}

// FetchHistory serves the mirror log, oldest first.
func (a *Adapter) FetchHistory(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	log, ok := a.history[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %s", channelID)
	}
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]platform.Message, len(log))
	copy(out, log)
	return out, nil
}

// SendDirect messages the user's private chat. A 403 from Telegram means
// the user blocked the bot or never started it; that maps to the refusal
// sentinel so callers fall back to the channel.
func (a *Adapter) SendDirect(ctx context.Context, user, content string) error {
	chatID, err := strconv.ParseInt(user, 10, 64)
	if err != nil {
		return fmt.Errorf("bad user id %q: %w", user, err)
	}
	if _, err := a.api.Send(tgbotapi.NewMessage(chatID, content)); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
			return platform.ErrDirectRefused
		}
		return err
	}
	return nil
}

// RecordInbound mirrors a user message so it shows up in transcripts.
func (a *Adapter) RecordInbound(channelID, author, text string, attachment bool) {
	a.record(channelID, platform.Message{
		Timestamp:     time.Now(),
		Author:        author,
		Text:          text,
		HasAttachment: attachment,
	})
}

func (a *Adapter) record(channelID string, msg platform.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	log := append(a.history[channelID], msg)
	if len(log) > a.limit {
		log = log[len(log)-a.limit:]
	}
	a.history[channelID] = log
}
