package keypool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftworks/dripfeed/app/database"
)

type fakeKeyRepo struct {
	usage map[string]int
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{usage: make(map[string]int)}
}

func (r *fakeKeyRepo) GetUsage(label string) (int, error) {
	return r.usage[label], nil
}

func (r *fakeKeyRepo) IncrementUsage(label string) error {
	r.usage[label]++
	return nil
}

func (r *fakeKeyRepo) AllUsage() ([]database.KeyUsage, error) {
	var all []database.KeyUsage
	for label, count := range r.usage {
		all = append(all, database.KeyUsage{Label: label, UsedCount: count})
	}
	return all, nil
}

func newTestPool(secrets []string, usageCap int, repo database.KeyRepository) *Pool {
	pool := NewPool(secrets, usageCap, 0, repo)
	pool.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return pool
}

func TestPool_Acquire_DrainsKeysInOrder(t *testing.T) {
	repo := newFakeKeyRepo()
	pool := newTestPool([]string{"secret-a", "secret-b"}, 2, repo)

	expected := []string{"secret-a", "secret-a", "secret-b", "secret-b"}
	for i, want := range expected {
		key, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i+1, err)
		}
		if key.Secret != want {
			t.Errorf("Acquire %d: expected %s, got %s", i+1, want, key.Secret)
		}
		if err := pool.RecordUse(key); err != nil {
			t.Fatalf("RecordUse %d failed: %v", i+1, err)
		}
	}

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted on fifth acquire, got: %v", err)
	}
}

func TestPool_Acquire_PersistedUsageSurvivesRestart(t *testing.T) {
	repo := newFakeKeyRepo()
	repo.usage["key-01"] = 2

	pool := newTestPool([]string{"secret-a", "secret-b"}, 2, repo)

	key, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if key.Secret != "secret-b" {
		t.Errorf("Expected the second key when the first is already at cap, got %s", key.Secret)
	}
}

func TestPool_Acquire_PacingDelaysGrants(t *testing.T) {
	repo := newFakeKeyRepo()
	pool := NewPool([]string{"secret-a"}, 100, 5*time.Second, repo)

	current := time.Unix(1000, 0)
	pool.now = func() time.Time { return current }

	var slept []time.Duration
	pool.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		current = current.Add(d)
		return nil
	}

	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	if len(slept) != 1 {
		t.Fatalf("Expected exactly one pacing sleep, got %d", len(slept))
	}
	if slept[0] != 5*time.Second {
		t.Errorf("Expected a 5s pacing sleep, got %s", slept[0])
	}
}

func TestPool_MarkExhausted_SkipsKey(t *testing.T) {
	repo := newFakeKeyRepo()
	pool := newTestPool([]string{"secret-a", "secret-b"}, 100, repo)

	key, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.MarkExhausted(key)

	next, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after MarkExhausted failed: %v", err)
	}
	if next.Secret != "secret-b" {
		t.Errorf("Expected rotation to the second key, got %s", next.Secret)
	}

	pool.MarkExhausted(next)
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted with every key flagged, got: %v", err)
	}
}

func TestPool_Acquire_CancelledDuringPacing(t *testing.T) {
	repo := newFakeKeyRepo()
	pool := NewPool([]string{"secret-a"}, 100, time.Hour, repo)

	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pool.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}
