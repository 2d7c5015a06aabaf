package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reservation is the outcome of a cooldown check. Remaining is zero when
// Allowed and never negative.
type Reservation struct {
	Allowed   bool
	Remaining time.Duration
}

// CooldownTracker rate limits ticket creation per owner. TryReserve is
// atomic per owner: on Allowed the owner's record is updated to now in the
// same step.
type CooldownTracker interface {
	TryReserve(ctx context.Context, owner string, now time.Time) (Reservation, error)
	// Release rolls back a reservation made by TryReserve, used when channel
	// creation fails after the reservation succeeded.
	Release(ctx context.Context, owner string) error
	// Remove clears the owner's record unconditionally. Removing an absent
	// record is a no-op.
	Remove(ctx context.Context, owner string) error
}

type memoryCooldownTracker struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewMemoryCooldownTracker keeps cooldown state in process memory.
func NewMemoryCooldownTracker(window time.Duration) CooldownTracker {
	return &memoryCooldownTracker{window: window, last: make(map[string]time.Time)}
}

func (t *memoryCooldownTracker) TryReserve(ctx context.Context, owner string, now time.Time) (Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[owner]; ok {
		elapsed := now.Sub(last)
		if elapsed < t.window {
			return Reservation{Remaining: t.window - elapsed}, nil
		}
	}
	t.last[owner] = now
	return Reservation{Allowed: true}, nil
}

func (t *memoryCooldownTracker) Release(ctx context.Context, owner string) error {
	return t.Remove(ctx, owner)
}

func (t *memoryCooldownTracker) Remove(ctx context.Context, owner string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, owner)
	return nil
}

type redisCooldownTracker struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisCooldownTracker stores cooldown state in Redis so it survives
// restarts. Reservation atomicity rides on SET NX; the remaining wait is
// read back from the key TTL, so the now argument only stamps the value.
func NewRedisCooldownTracker(client *redis.Client, window time.Duration) CooldownTracker {
	return &redisCooldownTracker{client: client, window: window, prefix: "cooldown:"}
}

func (t *redisCooldownTracker) TryReserve(ctx context.Context, owner string, now time.Time) (Reservation, error) {
	key := t.prefix + owner
	set, err := t.client.SetNX(ctx, key, now.UnixMilli(), t.window).Result()
	if err != nil {
		return Reservation{}, err
	}
	if set {
		return Reservation{Allowed: true}, nil
	}
	ttl, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return Reservation{}, err
	}
	if ttl <= 0 {
		// Key expired between SETNX and PTTL; take the slot now.
		set, err = t.client.SetNX(ctx, key, now.UnixMilli(), t.window).Result()
		if err != nil {
			return Reservation{}, err
		}
		if set {
			return Reservation{Allowed: true}, nil
		}
		return Reservation{Remaining: t.window}, nil
	}
	return Reservation{Remaining: ttl}, nil
}

func (t *redisCooldownTracker) Release(ctx context.Context, owner string) error {
	return t.Remove(ctx, owner)
}

func (t *redisCooldownTracker) Remove(ctx context.Context, owner string) error {
	return t.client.Del(ctx, t.prefix+owner).Err()
}
