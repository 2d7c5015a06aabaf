package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/platform"
)

func archiverFixture(t *testing.T, historyLimit, budget int) (*ArchiverService, *platform.MemoryPlatform, *domain.Ticket, string) {
	t.Helper()
	chat := platform.NewMemoryPlatform()
	clock := &manualClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	chat.Now = clock.Now

	archiveID, err := chat.CreateChannel(context.Background(), "archive", "archive")
	if err != nil {
		t.Fatalf("create archive channel: %v", err)
	}
	channelID, err := chat.CreateChannel(context.Background(), "ticket-olga", "olga")
	if err != nil {
		t.Fatalf("create ticket channel: %v", err)
	}

	archiver := NewArchiverService(chat, archiveID, historyLimit, budget, zap.NewNop())
	archiver.now = clock.Now

	ticket := &domain.Ticket{
		ChannelID:   channelID,
		Owner:       "olga",
		ExternalKey: "TCK-ABCD1234",
		CreatedAt:   clock.Now().Add(-time.Hour),
	}
	return archiver, chat, ticket, channelID
}

func TestArchiveRendersHeaderAndLines(t *testing.T) {
	t.Parallel()
	archiver, chat, ticket, channelID := archiverFixture(t, 100, 4000)

	chat.Record(channelID, "olga", "Spotify please", false)
	chat.Record(channelID, "olga", "", true)
	chat.Record(channelID, "bot", "Screenshot received.", false)

	record, err := archiver.Archive(context.Background(), ticket, "olga")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(record.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(record.Entries))
	}

	for _, want := range []string{
		"Ticket TCK-ABCD1234 closed",
		"Opened by: olga",
		"Closed by: olga",
		"olga: Spotify please",
		"[attachment]",
		"bot: Screenshot received.",
	} {
		if !strings.Contains(record.Rendered, want) {
			t.Errorf("transcript missing %q:\n%s", want, record.Rendered)
		}
	}
}

func TestArchiveTruncationKeepsMostRecent(t *testing.T) {
	t.Parallel()
	archiver, chat, ticket, channelID := archiverFixture(t, 100, 300)

	for _, text := range []string{"oldest message", "middle message", "newest message"} {
		chat.Record(channelID, "olga", strings.Repeat(text+" ", 5), false)
	}

	record, err := archiver.Archive(context.Background(), ticket, "admin")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !strings.Contains(record.Rendered, "newest message") {
		t.Errorf("truncation dropped the newest line:\n%s", record.Rendered)
	}
	if strings.Contains(record.Rendered, "oldest message") {
		t.Errorf("truncation kept the oldest line:\n%s", record.Rendered)
	}
	if len(record.Rendered) > 300 {
		t.Errorf("rendered length %d exceeds budget 300", len(record.Rendered))
	}
}

func TestArchiveHonorsHistoryLimit(t *testing.T) {
	t.Parallel()
	archiver, chat, ticket, channelID := archiverFixture(t, 2, 4000)

	chat.Record(channelID, "olga", "first", false)
	chat.Record(channelID, "olga", "second", false)
	chat.Record(channelID, "olga", "third", false)

	record, err := archiver.Archive(context.Background(), ticket, "olga")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(record.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(record.Entries))
	}
	if record.Entries[0].Text != "second" || record.Entries[1].Text != "third" {
		t.Errorf("limit should keep the most recent messages, got %+v", record.Entries)
	}
}

func TestArchiveWithoutChannelLogsOnly(t *testing.T) {
	t.Parallel()
	chat := platform.NewMemoryPlatform()
	channelID, err := chat.CreateChannel(context.Background(), "ticket-pete", "pete")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	chat.Record(channelID, "pete", "hello", false)

	archiver := NewArchiverService(chat, "", 100, 4000, zap.NewNop())
	ticket := &domain.Ticket{ChannelID: channelID, Owner: "pete", ExternalKey: "TCK-0", CreatedAt: time.Now()}
	if _, err := archiver.Archive(context.Background(), ticket, "pete"); err != nil {
		t.Fatalf("Archive without archive channel: %v", err)
	}
}
