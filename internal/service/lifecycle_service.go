package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
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

// LifecycleService is the per-ticket state machine. Inbound events arrive as
// method calls; events for the same channel are serialized by a per-channel
// lock, events for different channels run independently.
type LifecycleService struct {
	registry   repository.TicketRegistry
	cooldowns  repository.CooldownTracker
	catalog    repository.CatalogRepository
	chat       platform.ChatPlatform
	classifier verify.Classifier
	archiver   *ArchiverService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.TicketConfig

	locks locksByChannel

	pendingMu sync.Mutex
	pending   map[string]chan struct{}

	now func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Registry   repository.TicketRegistry
	Cooldowns  repository.CooldownTracker
	Catalog    repository.CatalogRepository
	Chat       platform.ChatPlatform
	Classifier verify.Classifier
	Archiver   *ArchiverService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewLifecycleService constructs the service. Classifier may be nil, in
// which case submitted evidence waits for a manual reviewer decision.
func NewLifecycleService(cfg config.TicketConfig, deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		registry:   deps.Registry,
		cooldowns:  deps.Cooldowns,
		catalog:    deps.Catalog,
		chat:       deps.Chat,
		classifier: deps.Classifier,
		archiver:   deps.Archiver,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
		pending:    make(map[string]chan struct{}),
		now:        time.Now,
	}
}

// CreateRequest opens a ticket for owner: reserve the cooldown slot, create
// the channel, register the ticket, greet. A failed channel creation rolls
// the cooldown reservation back.
func (s *LifecycleService) CreateRequest(ctx context.Context, owner string) (*domain.Ticket, error) {
	reservation, err := s.cooldowns.TryReserve(ctx, owner, s.now())
	if err != nil {
		return nil, util.NewExternalFailure("cooldown reserve", err)
	}
	if !reservation.Allowed {
		s.metrics.Inc(observability.MetricTicketsDenied)
		s.publish(ctx, events.Event{
			Type:  events.EventTicketCreateDenied,
			Actor: domain.Actor{ID: owner},
			Payload: events.TicketCreateDeniedPayload{
				Owner:             owner,
				RemainingCooldown: reservation.Remaining,
			},
		})
		return nil, util.NewCooldownActive(reservation.Remaining)
	}

	channelID, err := s.chat.CreateChannel(ctx, channelName(owner), owner)
	if err != nil {
		if releaseErr := s.cooldowns.Release(ctx, owner); releaseErr != nil {
			s.logger.Error("cooldown rollback failed", zap.String("owner", owner), zap.Error(releaseErr))
		}
		return nil, util.NewExternalFailure("channel create", err)
	}

	ticket, err := s.registry.Create(owner, channelID, generateTicketKey(), s.now())
	if err != nil {
		if releaseErr := s.cooldowns.Release(ctx, owner); releaseErr != nil {
			s.logger.Error("cooldown rollback failed", zap.String("owner", owner), zap.Error(releaseErr))
		}
		if deleteErr := s.chat.DeleteChannel(ctx, channelID); deleteErr != nil {
			s.logger.Error("orphan channel delete failed", zap.String("channel_id", channelID), zap.Error(deleteErr))
		}
		if errors.Is(err, repository.ErrAlreadyOpen) {
			return nil, util.NewConflict("owner already has an open ticket", map[string]any{"owner": owner})
		}
		return nil, util.NewInternalError(err)
	}

	s.sendWelcome(ctx, channelID, owner)

	s.metrics.Inc(observability.MetricTicketsCreated)
	s.publish(ctx, events.Event{
		Type:      events.EventTicketCreated,
		ChannelID: channelID,
		Actor:     domain.Actor{ID: owner},
		Payload: events.TicketCreatedPayload{
			Owner:       owner,
			ExternalKey: ticket.ExternalKey,
		},
	})
	return ticket, nil
}

// ItemNamed handles an inbound text message in a ticket channel. Text that
// does not name a catalog item is ordinary chat and is ignored.
func (s *LifecycleService) ItemNamed(ctx context.Context, channelID, text string) error {
	unlock := s.locks.lock(channelID)
	defer unlock()

	if err := s.registry.Touch(channelID, s.now()); err != nil {
		return nil // not a ticket channel
	}
	ticket, err := s.registry.Get(channelID)
	if err != nil || ticket.Closed {
		return nil
	}
	switch ticket.Verification {
	case domain.VerificationNone, domain.VerificationPending, domain.VerificationDeclined:
	default:
		// Verification already underway or finished; name changes no longer apply.
		return nil
	}

	entry, err := s.catalog.Lookup(ctx, strings.TrimSpace(text))
	if err != nil {
		s.logger.Error("catalog lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}

	// A later recognized name overwrites the earlier one until evidence is
	// submitted.
	if err := s.registry.SetRequestedItem(channelID, entry.Name); err != nil {
		return nil
	}
	if ticket.Verification != domain.VerificationPending {
		if err := s.registry.SetVerificationState(channelID, domain.VerificationPending); err != nil {
			s.logger.Warn("transition to pending failed", zap.String("channel_id", channelID), zap.Error(err))
			return nil
		}
	}
	s.send(ctx, channelID, fmt.Sprintf(
		"You picked %s. To verify eligibility, send a screenshot showing %s in this ticket.",
		entry.Name, strings.Join(s.cfg.RequiredMarkers, " and ")))
	return nil
}

// EvidenceSubmitted handles an uploaded image. It only applies while the
// ticket awaits evidence; anything else is ignored as chat noise.
func (s *LifecycleService) EvidenceSubmitted(ctx context.Context, channelID string, image []byte) error {
	unlock := s.locks.lock(channelID)
	defer unlock()

	if err := s.registry.Touch(channelID, s.now()); err != nil {
		return nil
	}
	ticket, err := s.registry.Get(channelID)
	if err != nil || ticket.Closed || ticket.Verification != domain.VerificationPending {
		return nil
	}

	s.metrics.Inc(observability.MetricEvidenceSubmitted)

	if s.classifier == nil {
		if err := s.registry.SetVerificationState(channelID, domain.VerificationSubmitted); err != nil {
			return nil
		}
		s.publish(ctx, events.Event{
			Type:      events.EventEvidenceSubmitted,
			ChannelID: channelID,
			Actor:     domain.Actor{ID: ticket.Owner},
		})
		s.send(ctx, channelID, "Screenshot received. A reviewer will check it shortly.")
		return nil
	}

	accepted, err := s.classifier.Evaluate(ctx, image, s.cfg.RequiredMarkers)
	if err != nil {
		// Unreadable evidence is not a decline; the owner just retries.
		s.send(ctx, channelID, "We could not read that screenshot. Please send it again.")
		return nil
	}
	if err := s.registry.SetVerificationState(channelID, domain.VerificationSubmitted); err != nil {
		return nil
	}
	return s.decide(ctx, channelID, accepted, domain.SystemActor)
}

// Decision applies a reviewer or classifier verdict. It is an explicit
// command, so an inapplicable state is reported rather than ignored.
func (s *LifecycleService) Decision(ctx context.Context, channelID string, accepted bool, decider domain.Actor) error {
	unlock := s.locks.lock(channelID)
	defer unlock()

	if !decider.Privileged {
		return util.NewPolicyDenied("only privileged reviewers may decide verification")
	}
	ticket, err := s.registry.Get(channelID)
	if err != nil {
		return util.NewNotFound("ticket", map[string]any{"channel_id": channelID})
	}
	if ticket.Verification != domain.VerificationSubmitted {
		next := domain.VerificationApproved
		if !accepted {
			next = domain.VerificationDeclined
		}
		return util.NewInvalidTransition(string(ticket.Verification), string(next))
	}
	return s.decide(ctx, channelID, accepted, decider)
}

// decide records the verdict and notifies the owner. Callers hold the
// channel lock and have verified state SUBMITTED.
func (s *LifecycleService) decide(ctx context.Context, channelID string, accepted bool, decider domain.Actor) error {
	ticket, err := s.registry.Get(channelID)
	if err != nil {
		return util.NewNotFound("ticket", map[string]any{"channel_id": channelID})
	}

	if !accepted {
		if err := s.registry.SetVerificationState(channelID, domain.VerificationDeclined); err != nil {
			return util.NewInvalidTransition(string(ticket.Verification), string(domain.VerificationDeclined))
		}
		s.metrics.Inc(observability.MetricVerificationDeclined)
		s.publish(ctx, events.Event{
			Type:      events.EventVerificationDecided,
			ChannelID: channelID,
			Actor:     decider,
			Payload:   events.VerificationDecidedPayload{Item: ticket.RequestedItem, Accepted: false},
		})
		s.send(ctx, channelID, "Your screenshot was not accepted. Please try again with a clearer one.")
		// The owner may resubmit immediately.
		if err := s.registry.SetVerificationState(channelID, domain.VerificationPending); err != nil {
			s.logger.Warn("reset to pending failed", zap.String("channel_id", channelID), zap.Error(err))
		}
		return nil
	}

	if err := s.registry.SetVerificationState(channelID, domain.VerificationApproved); err != nil {
		return util.NewInvalidTransition(string(ticket.Verification), string(domain.VerificationApproved))
	}
	s.metrics.Inc(observability.MetricVerificationApproved)
	s.publish(ctx, events.Event{
		Type:      events.EventVerificationDecided,
		ChannelID: channelID,
		Actor:     decider,
		Payload:   events.VerificationDecidedPayload{Item: ticket.RequestedItem, Accepted: true},
	})

	link := ""
	if ticket.RequestedItem != "" {
		entry, err := s.catalog.Lookup(ctx, ticket.RequestedItem)
		if err != nil {
			s.logger.Error("catalog lookup failed", zap.String("item", ticket.RequestedItem), zap.Error(err))
		} else if entry != nil {
			link = entry.Link
		}
	}
	if link == "" {
		s.send(ctx, channelID, "Verification complete, but the requested item is no longer in the catalog. An admin will follow up.")
		return nil
	}
	return s.deliver(ctx, ticket, link)
}

// deliver sends the item link by direct message, falling back to the ticket
// channel when direct delivery is refused. The fallback is mandatory.
func (s *LifecycleService) deliver(ctx context.Context, ticket *domain.Ticket, link string) error {
	content := fmt.Sprintf("Verification complete. Here is your %s link: %s", ticket.RequestedItem, link)
	viaDM := true
	if err := s.chat.SendDirect(ctx, ticket.Owner, content); err != nil {
		if !errors.Is(err, platform.ErrDirectRefused) {
			return util.NewExternalFailure("direct message", err)
		}
		viaDM = false
		s.send(ctx, ticket.ChannelID, content)
	} else {
		s.send(ctx, ticket.ChannelID, "Verification complete. Check your direct messages for the link.")
	}
	s.publish(ctx, events.Event{
		Type:      events.EventItemDelivered,
		ChannelID: ticket.ChannelID,
		Actor:     domain.Actor{ID: ticket.Owner},
		Payload:   events.ItemDeliveredPayload{Item: ticket.RequestedItem, ViaDM: viaDM},
	})
	return nil
}

// CloseRequest closes a ticket: grace delay, archive, delete channel, mark
// closed, remove from the registry. The archive step gates the deletion.
func (s *LifecycleService) CloseRequest(ctx context.Context, channelID string, closer domain.Actor) error {
	return s.close(ctx, channelID, closer, false)
}

// Reap closes an idle ticket on behalf of the reaper. Idleness is
// re-checked after the grace delay so a fresh touch aborts the close.
func (s *LifecycleService) Reap(ctx context.Context, channelID string) error {
	return s.close(ctx, channelID, domain.SystemActor, true)
}

func (s *LifecycleService) close(ctx context.Context, channelID string, closer domain.Actor, reaped bool) error {
	unlock := s.locks.lock(channelID)
	ticket, err := s.registry.Get(channelID)
	if err != nil {
		unlock()
		return util.NewNotFound("ticket", map[string]any{"channel_id": channelID})
	}
	if ticket.Closed {
		unlock()
		return nil
	}
	if !closer.CanClose(ticket.Owner) {
		unlock()
		return util.NewPolicyDenied("only the ticket owner or a privileged closer may close this ticket")
	}

	cancel, alreadyPending := s.registerPending(channelID)
	if alreadyPending {
		unlock()
		return nil
	}
	defer s.clearPending(channelID)

	if reaped {
		s.send(ctx, channelID, fmt.Sprintf("This ticket has been idle and will close in %d seconds unless you respond.", int(s.cfg.CloseGrace/time.Second)))
	} else {
		s.send(ctx, channelID, fmt.Sprintf("Ticket will close in %d seconds...", int(s.cfg.CloseGrace/time.Second)))
	}

	// The grace delay is a cancellable suspension point; release the channel
	// lock so touches and CancelClose can land while we wait.
	unlock()
	if !s.wait(ctx, cancel, s.cfg.CloseGrace) {
		return nil
	}

	unlock = s.locks.lock(channelID)
	defer unlock()

	ticket, err = s.registry.Get(channelID)
	if err != nil || ticket.Closed {
		return nil
	}
	if reaped && s.now().Sub(ticket.LastActivityAt) < s.cfg.InactivityThreshold {
		// Touched during the grace window; abort silently.
		return nil
	}

	if _, err := s.archiver.Archive(ctx, ticket, closer.ID); err != nil {
		s.metrics.Inc(observability.MetricArchiveFailures)
		s.send(ctx, channelID, "Could not archive this ticket; it stays open. Please try closing again.")
		return err
	}
	if err := s.chat.DeleteChannel(ctx, channelID); err != nil {
		// The transcript is durable; the channel can be retried or removed
		// by an admin.
		s.send(ctx, channelID, "Could not remove this channel; it stays open. Please try closing again.")
		return util.NewExternalFailure("channel delete", err)
	}
	if err := s.registry.MarkClosed(channelID); err != nil {
		return util.NewInternalError(err)
	}
	if err := s.registry.Remove(channelID); err != nil {
		return util.NewInternalError(err)
	}
	s.locks.forget(channelID)

	s.metrics.Inc(observability.MetricTicketsClosed)
	eventType := events.EventTicketClosed
	if reaped {
		eventType = events.EventTicketReaped
		s.metrics.Inc(observability.MetricTicketsReaped)
	}
	s.publish(ctx, events.Event{
		Type:      eventType,
		ChannelID: channelID,
		Actor:     closer,
		Payload: events.TicketClosedPayload{
			Owner:    ticket.Owner,
			ClosedBy: closer.ID,
			Reaped:   reaped,
		},
	})
	return nil
}

// CancelClose aborts a pending close for the channel, if any.
func (s *LifecycleService) CancelClose(channelID string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	cancel, ok := s.pending[channelID]
	if !ok {
		return false
	}
	delete(s.pending, channelID)
	close(cancel)
	return true
}

// Touch records activity for a channel. Unknown channels are not an error.
func (s *LifecycleService) Touch(channelID string) {
	_ = s.registry.Touch(channelID, s.now())
}

// Ticket returns the registry entry for a channel.
func (s *LifecycleService) Ticket(channelID string) (*domain.Ticket, error) {
	ticket, err := s.registry.Get(channelID)
	if err != nil {
		return nil, util.NewNotFound("ticket", map[string]any{"channel_id": channelID})
	}
	return ticket, nil
}

// Tickets snapshots all registry entries.
func (s *LifecycleService) Tickets() []domain.Ticket {
	return s.registry.Snapshot()
}

// RemoveCooldown clears the owner's cooldown record. Clearing an absent
// record is a no-op.
func (s *LifecycleService) RemoveCooldown(ctx context.Context, owner string) error {
	if err := s.cooldowns.Remove(ctx, owner); err != nil {
		return util.NewExternalFailure("cooldown remove", err)
	}
	return nil
}

// SendItem delivers a catalog item link straight to a user's direct
// messages, outside any ticket.
func (s *LifecycleService) SendItem(ctx context.Context, user, item string) error {
	entry, err := s.catalog.Lookup(ctx, item)
	if err != nil {
		return util.NewExternalFailure("catalog lookup", err)
	}
	if entry == nil {
		return util.NewNotFound("catalog item", map[string]any{"name": item})
	}
	content := fmt.Sprintf("Here is your %s link: %s", entry.Name, entry.Link)
	if err := s.chat.SendDirect(ctx, user, content); err != nil {
		return util.NewExternalFailure("direct message", err)
	}
	return nil
}

func (s *LifecycleService) registerPending(channelID string) (chan struct{}, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, ok := s.pending[channelID]; ok {
		return nil, true
	}
	cancel := make(chan struct{})
	s.pending[channelID] = cancel
	return cancel, false
}

func (s *LifecycleService) clearPending(channelID string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, channelID)
}

// wait blocks for the grace delay. It returns false when the close was
// cancelled or the context ended first.
func (s *LifecycleService) wait(ctx context.Context, cancel chan struct{}, delay time.Duration) bool {
	if delay <= 0 {
		select {
		case <-cancel:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-cancel:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *LifecycleService) sendWelcome(ctx context.Context, channelID, owner string) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		s.logger.Error("catalog list failed", zap.Error(err))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome %s! Here are the items we currently provide:\n", owner)
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item.Name)
	}
	b.WriteString("\nType the name of any item to begin verification.")
	s.send(ctx, channelID, b.String())
}

func (s *LifecycleService) send(ctx context.Context, channelID, content string) {
	if err := s.chat.SendMessage(ctx, channelID, content); err != nil {
		s.logger.Warn("message send failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func channelName(owner string) string {
	return "ticket-" + strings.ToLower(strings.TrimSpace(owner))
}

// locksByChannel hands out one mutex per channel id so events for the same
// ticket never run concurrently.
type locksByChannel struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *locksByChannel) lock(channelID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := l.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[channelID] = lock
	}
	l.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (l *locksByChannel) forget(channelID string) {
	l.mu.Lock()
	delete(l.locks, channelID)
	l.mu.Unlock()
}
