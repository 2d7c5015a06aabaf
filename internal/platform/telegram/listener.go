package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// Listener pumps Telegram updates into the lifecycle service: commands and
// buttons become lifecycle events, photos become evidence submissions and
// plain text becomes item naming.
type Listener struct {
	adapter   *Adapter
	lifecycle *service.LifecycleService
	logger    *zap.Logger
}

// NewListener wires the adapter to the lifecycle service.
func NewListener(adapter *Adapter, lifecycle *service.LifecycleService, logger *zap.Logger) *Listener {
	return &Listener{adapter: adapter, lifecycle: lifecycle, logger: logger}
}

// Run consumes updates until the context ends. Updates for different chats
// are handled concurrently; the lifecycle's per-channel locks keep events
// for one ticket in order because each chat's updates arrive sequentially
// here and are dispatched in arrival order.
func (l *Listener) Run(ctx context.Context) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 60
	updates := l.adapter.api.GetUpdatesChan(updateCfg)
	for {
		select {
		case <-ctx.Done():
			l.adapter.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			l.handleUpdate(ctx, update)
		}
	}
}

func (l *Listener) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		l.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		l.handleMessage(ctx, update.Message)
	}
}

func (l *Listener) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	owner := strconv.FormatInt(query.From.ID, 10)
	var channelID string
	if query.Message != nil {
		channelID = strconv.FormatInt(query.Message.Chat.ID, 10)
	}

	var response string
	switch query.Data {
	case "create_ticket":
		response = l.createTicket(ctx, owner)
	case "close_ticket":
		if err := l.lifecycle.CloseRequest(ctx, channelID, domain.Actor{ID: owner}); err != nil {
			response = "Could not close this ticket."
			l.logger.Warn("close via button failed", zap.String("channel_id", channelID), zap.Error(err))
		} else {
			response = "Ticket closed."
		}
	case "cancel_close":
		if l.lifecycle.CancelClose(channelID) {
			response = "Close cancelled."
		} else {
			response = "Nothing to cancel."
		}
	default:
		response = "Unknown action."
	}

	if _, err := l.adapter.api.Request(tgbotapi.NewCallback(query.ID, response)); err != nil {
		l.logger.Warn("callback answer failed", zap.Error(err))
	}
}

func (l *Listener) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.From.IsBot {
		return
	}
	owner := strconv.FormatInt(message.From.ID, 10)
	channelID := strconv.FormatInt(message.Chat.ID, 10)

	if message.IsCommand() {
		l.handleCommand(ctx, message, owner, channelID)
		return
	}

	author := message.From.UserName
	if author == "" {
		author = owner
	}
	l.adapter.RecordInbound(channelID, author, message.Text, len(message.Photo) > 0)

	if len(message.Photo) > 0 {
		image, err := l.downloadLargestPhoto(message.Photo)
		if err != nil {
			l.logger.Warn("photo download failed", zap.String("channel_id", channelID), zap.Error(err))
			return
		}
		if err := l.lifecycle.EvidenceSubmitted(ctx, channelID, image); err != nil {
			l.logger.Warn("evidence handling failed", zap.String("channel_id", channelID), zap.Error(err))
		}
		return
	}
	if message.Text != "" {
		if err := l.lifecycle.ItemNamed(ctx, channelID, message.Text); err != nil {
			l.logger.Warn("item naming failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}
}

func (l *Listener) handleCommand(ctx context.Context, message *tgbotapi.Message, owner, channelID string) {
	switch message.Command() {
	case "start":
		l.sendMenu(message.Chat.ID)
	case "ticket":
		if response := l.createTicket(ctx, owner); response != "" {
			l.reply(message.Chat.ID, response)
		}
	case "close":
		if err := l.lifecycle.CloseRequest(ctx, channelID, domain.Actor{ID: owner}); err != nil {
			l.reply(message.Chat.ID, "Could not close this ticket.")
		}
	default:
		l.reply(message.Chat.ID, "Unknown command. Use /ticket to open a ticket.")
	}
}

func (l *Listener) createTicket(ctx context.Context, owner string) string {
	_, err := l.lifecycle.CreateRequest(ctx, owner)
	if err == nil {
		return "Ticket created. Check the messages above."
	}
	if domainErr := util.ToDomainError(err); domainErr.Code == "COOLDOWN_ACTIVE" {
		if secs, ok := domainErr.Details["retry_after_seconds"].(int64); ok {
			return fmt.Sprintf("You can open another ticket in %s.", (time.Duration(secs) * time.Second).String())
		}
		return "You can only open one ticket per cooldown window."
	}
	l.logger.Warn("ticket create failed", zap.String("owner", owner), zap.Error(err))
	return "Could not create a ticket right now."
}

func (l *Listener) sendMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Welcome! To get a catalog item, open a ticket below.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Create ticket", "create_ticket"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Close ticket", "close_ticket"),
			tgbotapi.NewInlineKeyboardButtonData("Cancel close", "cancel_close"),
		),
	)
	if _, err := l.adapter.api.Send(msg); err != nil {
		l.logger.Warn("menu send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (l *Listener) reply(chatID int64, text string) {
	if _, err := l.adapter.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		l.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (l *Listener) downloadLargestPhoto(photos []tgbotapi.PhotoSize) ([]byte, error) {
	largest := photos[0]
	for _, photo := range photos[1:] {
		if photo.FileSize > largest.FileSize {
			largest = photo
		}
	}
	url, err := l.adapter.api.GetFileDirectURL(largest.FileID)
	if err != nil {
		return nil, err
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
