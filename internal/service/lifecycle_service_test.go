package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/verify"
	"github.com/spec-kit/ticket-bot/pkg/util"
)

type harness struct {
	lifecycle *LifecycleService
	chat      *platform.MemoryPlatform
	catalog   repository.CatalogRepository
	archiveID string
	clock     *manualClock
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func acceptingRecognizer() verify.TextRecognizer {
	return verify.RecognizerFunc(func(ctx context.Context, image []byte) (string, error) {
		return string(image), nil
	})
}

func newHarness(t *testing.T, cfg config.TicketConfig) *harness {
	t.Helper()
	chat := platform.NewMemoryPlatform()
	archiveID, err := chat.CreateChannel(context.Background(), "archive", "archive")
	if err != nil {
		t.Fatalf("create archive channel: %v", err)
	}
	if cfg.ArchiveChannelID == "" {
		cfg.ArchiveChannelID = archiveID
	}
	if len(cfg.RequiredMarkers) == 0 {
		cfg.RequiredMarkers = []string{"rash tech", "subscribed"}
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.TranscriptBudget == 0 {
		cfg.TranscriptBudget = 4000
	}
	if cfg.CooldownWindow == 0 {
		cfg.CooldownWindow = 24 * time.Hour
	}
	if cfg.InactivityThreshold == 0 {
		cfg.InactivityThreshold = 10 * time.Minute
	}

	logger := zap.NewNop()
	catalog := repository.NewMemoryCatalogRepository()
	clock := &manualClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	chat.Now = clock.Now

	archiver := NewArchiverService(chat, cfg.ArchiveChannelID, cfg.HistoryLimit, cfg.TranscriptBudget, logger)
	archiver.now = clock.Now

	lifecycle := NewLifecycleService(cfg, LifecycleDependencies{
		Registry:   repository.NewTicketRegistry(),
		Cooldowns:  repository.NewMemoryCooldownTracker(cfg.CooldownWindow),
		Catalog:    catalog,
		Chat:       chat,
		Classifier: verify.NewKeywordClassifier(acceptingRecognizer()),
		Archiver:   archiver,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    observability.NewMetrics(),
		Logger:     logger,
	})
	lifecycle.now = clock.Now

	return &harness{
		lifecycle: lifecycle,
		chat:      chat,
		catalog:   catalog,
		archiveID: cfg.ArchiveChannelID,
		clock:     clock,
	}
}

func TestFullApprovalAndCloseScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, "Spotify", "https://x"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ticket, err := h.lifecycle.CreateRequest(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	channelID := ticket.ChannelID

	messages := h.chat.ChannelMessages(channelID)
	if len(messages) == 0 || !strings.Contains(messages[0].Text, "Spotify") {
		t.Fatalf("welcome message should list catalog items, got %v", messages)
	}

	h.chat.Record(channelID, "alice", "Spotify", false)
	if err := h.lifecycle.ItemNamed(ctx, channelID, "spotify"); err != nil {
		t.Fatalf("ItemNamed: %v", err)
	}
	ticket, err = h.lifecycle.Ticket(channelID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if ticket.Verification != domain.VerificationPending {
		t.Fatalf("verification: got %s, want %s", ticket.Verification, domain.VerificationPending)
	}
	if ticket.RequestedItem != "Spotify" {
		t.Fatalf("requested item: got %q, want Spotify", ticket.RequestedItem)
	}

	if err := h.lifecycle.EvidenceSubmitted(ctx, channelID, []byte("RASH TECH Subscribed")); err != nil {
		t.Fatalf("EvidenceSubmitted: %v", err)
	}
	ticket, err = h.lifecycle.Ticket(channelID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if ticket.Verification != domain.VerificationApproved {
		t.Fatalf("verification: got %s, want %s", ticket.Verification, domain.VerificationApproved)
	}

	dms := h.chat.DirectMessages("alice")
	if len(dms) != 1 || !strings.Contains(dms[0], "https://x") {
		t.Fatalf("delivery DM: got %v, want link https://x", dms)
	}

	if err := h.lifecycle.CloseRequest(ctx, channelID, domain.Actor{ID: "alice"}); err != nil {
		t.Fatalf("CloseRequest: %v", err)
	}
	archived := h.chat.ChannelMessages(h.archiveID)
	if len(archived) != 1 {
		t.Fatalf("archive posts: got %d, want 1", len(archived))
	}
	if !strings.Contains(archived[0].Text, "Spotify") {
		t.Errorf("transcript should contain the Spotify line:\n%s", archived[0].Text)
	}
	if h.chat.ChannelExists(channelID) {
		t.Error("ticket channel should be deleted after close")
	}
	if _, err := h.lifecycle.Ticket(channelID); !util.IsCode(err, "NOT_FOUND") {
		t.Errorf("ticket should be removed from registry, got %v", err)
	}
}

func TestCreateRequestCooldown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{CooldownWindow: 24 * time.Hour})
	ctx := context.Background()

	first, err := h.lifecycle.CreateRequest(ctx, "bob")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.CloseRequest(ctx, first.ChannelID, domain.Actor{ID: "bob"}); err != nil {
		t.Fatalf("CloseRequest: %v", err)
	}

	h.clock.Advance(time.Hour)
	_, err = h.lifecycle.CreateRequest(ctx, "bob")
	if !util.IsCode(err, "COOLDOWN_ACTIVE") {
		t.Fatalf("got %v, want COOLDOWN_ACTIVE", err)
	}
	domainErr := util.ToDomainError(err)
	remaining, _ := domainErr.Details["retry_after_seconds"].(int64)
	if want := int64(23 * 60 * 60); remaining != want {
		t.Errorf("retry_after_seconds: got %d, want %d", remaining, want)
	}

	// An admin override clears the window.
	if err := h.lifecycle.RemoveCooldown(ctx, "bob"); err != nil {
		t.Fatalf("RemoveCooldown: %v", err)
	}
	if _, err := h.lifecycle.CreateRequest(ctx, "bob"); err != nil {
		t.Fatalf("CreateRequest after override: %v", err)
	}
}

func TestCreateRequestRollsBackCooldownOnChannelFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()

	h.chat.FailCreate = errors.New("platform down")
	if _, err := h.lifecycle.CreateRequest(ctx, "carol"); !util.IsCode(err, "EXTERNAL_FAILURE") {
		t.Fatalf("got %v, want EXTERNAL_FAILURE", err)
	}

	h.chat.FailCreate = nil
	if _, err := h.lifecycle.CreateRequest(ctx, "carol"); err != nil {
		t.Fatalf("CreateRequest after rollback: %v", err)
	}
}

func TestDecisionRequiresSubmission(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()
	reviewer := domain.Actor{ID: "rev", Privileged: true}

	ticket, err := h.lifecycle.CreateRequest(ctx, "dave")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if err := h.lifecycle.Decision(ctx, ticket.ChannelID, true, reviewer); !util.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("Decision from NONE: got %v, want INVALID_TRANSITION", err)
	}

	if _, err := h.catalog.Upsert(ctx, "Spotify", "https://x"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "Spotify"); err != nil {
		t.Fatalf("ItemNamed: %v", err)
	}
	if err := h.lifecycle.Decision(ctx, ticket.ChannelID, true, reviewer); !util.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("Decision from PENDING_EVIDENCE: got %v, want INVALID_TRANSITION", err)
	}

	if err := h.lifecycle.Decision(ctx, ticket.ChannelID, true, domain.Actor{ID: "dave"}); !util.IsCode(err, "POLICY_DENIED") {
		t.Fatalf("unprivileged Decision: got %v, want POLICY_DENIED", err)
	}
}

func TestDeclineAllowsResubmission(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, "Spotify", "https://x"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ticket, err := h.lifecycle.CreateRequest(ctx, "erin")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "Spotify"); err != nil {
		t.Fatalf("ItemNamed: %v", err)
	}

	// First screenshot misses the markers and is declined.
	if err := h.lifecycle.EvidenceSubmitted(ctx, ticket.ChannelID, []byte("unrelated text")); err != nil {
		t.Fatalf("EvidenceSubmitted: %v", err)
	}
	got, err := h.lifecycle.Ticket(ticket.ChannelID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if got.Verification != domain.VerificationPending {
		t.Fatalf("after decline: got %s, want %s", got.Verification, domain.VerificationPending)
	}

	// Second attempt passes.
	if err := h.lifecycle.EvidenceSubmitted(ctx, ticket.ChannelID, []byte("rash tech subscribed")); err != nil {
		t.Fatalf("second EvidenceSubmitted: %v", err)
	}
	got, err = h.lifecycle.Ticket(ticket.ChannelID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if got.Verification != domain.VerificationApproved {
		t.Fatalf("after resubmission: got %s, want %s", got.Verification, domain.VerificationApproved)
	}
}

func TestUnreadableEvidenceIsNotADecline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, "Spotify", "https://x"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ticket, err := h.lifecycle.CreateRequest(ctx, "frank")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "Spotify"); err != nil {
		t.Fatalf("ItemNamed: %v", err)
	}

	// An empty image is unreadable; the owner is asked to retry and the
	// state stays pending rather than recording a decline.
	if err := h.lifecycle.EvidenceSubmitted(ctx, ticket.ChannelID, nil); err != nil {
		t.Fatalf("EvidenceSubmitted: %v", err)
	}
	got, err := h.lifecycle.Ticket(ticket.ChannelID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if got.Verification != domain.VerificationPending {
		t.Fatalf("after unreadable evidence: got %s, want %s", got.Verification, domain.VerificationPending)
	}
}

func TestDirectMessageFallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, "Spotify", "https://x"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	h.chat.RefuseDirect["grace"] = true

	ticket, err := h.lifecycle.CreateRequest(ctx, "grace")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "Spotify"); err != nil {
		t.Fatalf("ItemNamed: %v", err)
	}
	if err := h.lifecycle.EvidenceSubmitted(ctx, ticket.ChannelID, []byte("rash tech subscribed")); err != nil {
		t.Fatalf("EvidenceSubmitted: %v", err)
	}

	if dms := h.chat.DirectMessages("grace"); len(dms) != 0 {
		t.Fatalf("refused DM still delivered: %v", dms)
	}
	var inChannel bool
	for _, msg := range h.chat.ChannelMessages(ticket.ChannelID) {
		if strings.Contains(msg.Text, "https://x") {
			inChannel = true
		}
	}
	if !inChannel {
		t.Error("link should fall back to the ticket channel when DMs are refused")
	}
}

func TestItemNameOverwriteBeforeSubmission(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, "Spotify", "https://x"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := h.catalog.Upsert(ctx, "YouTube", "https://y"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ticket, err := h.lifecycle.CreateRequest(ctx, "heidi")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "Spotify"); err != nil {
		t.Fatalf("ItemNamed: %v", err)
	}
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "YouTube"); err != nil {
		t.Fatalf("second ItemNamed: %v", err)
	}
	got, err := h.lifecycle.Ticket(ticket.ChannelID)
	if err != nil {
		t.Fatalf("Ticket: %v", err)
	}
	if got.RequestedItem != "YouTube" {
		t.Errorf("requested item: got %q, want YouTube", got.RequestedItem)
	}

	// Ordinary chat that names no catalog item is ignored.
	if err := h.lifecycle.ItemNamed(ctx, ticket.ChannelID, "hello there"); err != nil {
		t.Fatalf("chat noise: %v", err)
	}
	got, _ = h.lifecycle.Ticket(ticket.ChannelID)
	if got.RequestedItem != "YouTube" {
		t.Errorf("chat noise changed requested item to %q", got.RequestedItem)
	}
}

func TestCloseDeniedForStrangers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{})
	ctx := context.Background()

	ticket, err := h.lifecycle.CreateRequest(ctx, "ivan")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.CloseRequest(ctx, ticket.ChannelID, domain.Actor{ID: "mallory"}); !util.IsCode(err, "POLICY_DENIED") {
		t.Fatalf("stranger close: got %v, want POLICY_DENIED", err)
	}
	// A privileged closer may force-close.
	if err := h.lifecycle.CloseRequest(ctx, ticket.ChannelID, domain.Actor{ID: "admin", Privileged: true}); err != nil {
		t.Fatalf("privileged close: %v", err)
	}
}

func TestArchiveFailureAbortsClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{ArchiveChannelID: "missing-archive"})
	ctx := context.Background()

	ticket, err := h.lifecycle.CreateRequest(ctx, "judy")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := h.lifecycle.CloseRequest(ctx, ticket.ChannelID, domain.Actor{ID: "judy"}); err == nil {
		t.Fatal("close should fail when the archive post fails")
	}
	if !h.chat.ChannelExists(ticket.ChannelID) {
		t.Error("channel must never be deleted before the transcript is archived")
	}
	got, err := h.lifecycle.Ticket(ticket.ChannelID)
	if err != nil {
		t.Fatalf("ticket should stay registered: %v", err)
	}
	if got.Closed {
		t.Error("ticket must remain open after a failed archive")
	}
}

func TestCancelCloseAbortsPendingClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t, config.TicketConfig{CloseGrace: time.Minute})
	ctx := context.Background()

	ticket, err := h.lifecycle.CreateRequest(ctx, "kate")
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- h.lifecycle.CloseRequest(ctx, ticket.ChannelID, domain.Actor{ID: "kate"})
	}()

	// Wait for the close to be scheduled, then cancel it.
	deadline := time.After(5 * time.Second)
	for !h.lifecycle.CancelClose(ticket.ChannelID) {
		select {
		case <-deadline:
			t.Fatal("pending close never registered")
		case <-time.After(time.Millisecond):
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("cancelled close returned error: %v", err)
	}
	if !h.chat.ChannelExists(ticket.ChannelID) {
		t.Error("cancelled close deleted the channel")
	}
	if _, err := h.lifecycle.Ticket(ticket.ChannelID); err != nil {
		t.Errorf("cancelled close removed the ticket: %v", err)
	}
}
