package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

// ArchiverService serializes a ticket's conversation into a bounded
// transcript and posts it to the archive channel at close time.
type ArchiverService struct {
	chat             platform.ChatPlatform
	archiveChannelID string
	historyLimit     int
	budget           int
	logger           *zap.Logger
	now              func() time.Time
}

// NewArchiverService constructs the archiver. When archiveChannelID is empty
// transcripts are written to the log stream instead of a channel.
func NewArchiverService(chat platform.ChatPlatform, archiveChannelID string, historyLimit, budget int, logger *zap.Logger) *ArchiverService {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	if budget <= 0 {
		budget = 4000
	}
	return &ArchiverService{
		chat:             chat,
		archiveChannelID: archiveChannelID,
		historyLimit:     historyLimit,
		budget:           budget,
		logger:           logger,
		now:              time.Now,
	}
}

// Archive fetches the channel history, renders the transcript and posts it.
// It returns only once the archive post is acknowledged; the caller must not
// delete the channel before then.
func (a *ArchiverService) Archive(ctx context.Context, ticket *domain.Ticket, closedBy string) (*domain.TranscriptRecord, error) {
	history, err := a.chat.FetchHistory(ctx, ticket.ChannelID, a.historyLimit)
	if err != nil {
		return nil, util.NewExternalFailure("history fetch", err)
	}

	entries := make([]domain.TranscriptEntry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, domain.TranscriptEntry{
			Timestamp:     msg.Timestamp,
			Author:        msg.Author,
			Text:          msg.Text,
			HasAttachment: msg.HasAttachment,
		})
	}

	record := &domain.TranscriptRecord{
		ChannelID: ticket.ChannelID,
		Owner:     ticket.Owner,
		ClosedBy:  closedBy,
		OpenedAt:  ticket.CreatedAt,
		ClosedAt:  a.now(),
		Entries:   entries,
		Rendered:  renderTranscript(ticket, closedBy, a.now(), entries, a.budget),
	}

	if a.archiveChannelID == "" {
		a.logger.Info("ticket transcript",
			zap.String("channel_id", ticket.ChannelID),
			zap.String("owner", ticket.Owner),
			zap.String("transcript", record.Rendered))
		return record, nil
	}
	if err := a.chat.SendMessage(ctx, a.archiveChannelID, record.Rendered); err != nil {
		return nil, util.NewExternalFailure("archive post", err)
	}
	return record, nil
}

// renderTranscript builds the archive text: a header plus one line per
// message, truncated to budget characters keeping the most recent lines.
func renderTranscript(ticket *domain.Ticket, closedBy string, closedAt time.Time, entries []domain.TranscriptEntry, budget int) string {
	header := fmt.Sprintf("Ticket %s closed\nOpened by: %s\nClosed by: %s\nOpened: %s\nClosed: %s\n\n",
		ticket.ExternalKey,
		ticket.Owner,
		closedBy,
		ticket.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		closedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := fmt.Sprintf("[%s] %s: %s", entry.Timestamp.UTC().Format("15:04:05"), entry.Author, entry.Text)
		if entry.HasAttachment {
			line += " [attachment]"
		}
		lines = append(lines, line)
	}

	remaining := budget - len(header)
	if remaining < 0 {
		remaining = 0
	}
	// Walk backwards so truncation drops the oldest lines first.
	kept := make([]string, 0, len(lines))
	used := 0
	for i := len(lines) - 1; i >= 0; i-- {
		cost := len(lines[i]) + 1
		if used+cost > remaining {
			break
		}
		kept = append(kept, lines[i])
		used += cost
	}
	var b strings.Builder
	b.WriteString(header)
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString(kept[i])
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
