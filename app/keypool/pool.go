package keypool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftworks/dripfeed/app/database"
)

// ErrExhausted is returned when every key in the pool has reached its usage
// cap or has been flagged as out of quota by the provider.
var ErrExhausted = errors.New("all keys exhausted")

type Key struct {
	Label  string
	Secret string
}

// Pool hands out API keys under two constraints: a single pacing clock
// shared across all keys (a minimum interval between grants), and a
// per-key usage cap. Usage counts are persisted so restarts do not reset
// them. Keys are scanned in fixed order, so the first key is drained
// before the second is touched.
type Pool struct {
	keys    []Key
	cap     int
	pacing  time.Duration
	repo    database.KeyRepository
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	lastGrant time.Time
	exhausted map[string]bool
}

func NewPool(secrets []string, usageCap int, pacing time.Duration, repo database.KeyRepository) *Pool {
	keys := make([]Key, len(secrets))
	for i, secret := range secrets {
		keys[i] = Key{Label: fmt.Sprintf("key-%02d", i+1), Secret: secret}
	}

	return &Pool{
		keys:      keys,
		cap:       usageCap,
		pacing:    pacing,
		repo:      repo,
		now:       time.Now,
		sleep:     sleepContext,
		exhausted: make(map[string]bool),
	}
}

// Acquire returns the first key with remaining quota, after honoring the
// pacing interval since the previous grant.
func (p *Pool) Acquire(ctx context.Context) (Key, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range p.keys {
		if p.exhausted[key.Label] {
			continue
		}

		used, err := p.repo.GetUsage(key.Label)
		if err != nil {
			return Key{}, fmt.Errorf("failed to read usage for %s: %w", key.Label, err)
		}
		if used >= p.cap {
			continue
		}

		if wait := p.pacing - p.now().Sub(p.lastGrant); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return Key{}, err
			}
		}
		p.lastGrant = p.now()

		slog.Debug("Key acquired", "key", key.Label, "used", used, "cap", p.cap)
		return key, nil
	}

	return Key{}, ErrExhausted
}

// RecordUse increments the persisted usage count for the key.
func (p *Pool) RecordUse(key Key) error {
	if err := p.repo.IncrementUsage(key.Label); err != nil {
		return fmt.Errorf("failed to record use of %s: %w", key.Label, err)
	}
	return nil
}

// MarkExhausted flags a key as out of quota for the rest of the process
// lifetime, regardless of its persisted count. Used when the provider
// reports a quota error directly.
func (p *Pool) MarkExhausted(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exhausted[key.Label] = true
	slog.Warn("Key flagged as exhausted by provider", "key", key.Label)
}

func (p *Pool) KeyCount() int {
	return len(p.keys)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
