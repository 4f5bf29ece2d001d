package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestCache wraps a fresh MemoryStore with a cache on REDIS_URL. The test
// is skipped when REDIS_URL is not set.
func newTestCache(t *testing.T, redelete time.Duration) (*CachedStore, *MemoryStore) {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	keys := append(listKeys(), marketKey(1))
	if err := rdb.Del(ctx, keys...).Err(); err != nil {
		t.Fatalf("failed to clear cache keys: %v", err)
	}

	ms := NewMemoryStore()
	cs := NewCachedStore(ms, rdb, time.Minute)
	cs.redelete = redelete
	return cs, ms
}

func movePrice(t *testing.T, s Store, id, yes int64) {
	t.Helper()
	ctx := context.Background()
	err := s.InTx(ctx, func(tx Tx) error {
		m, err := tx.LockMarket(ctx, id)
		if err != nil {
			return err
		}
		m.YesPrice, m.NoPrice = yes, 100-yes
		return tx.UpdateMarket(ctx, m)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCachedStore_CommitInvalidatesMarket(t *testing.T) {
	cs, ms := newTestCache(t, 0)
	ctx := context.Background()
	m := seedMarket(t, ms)

	if _, err := cs.GetMarket(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	movePrice(t, cs, m.ID, 60)

	got, err := cs.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.YesPrice != 60 || got.NoPrice != 40 {
		t.Errorf("expected 60/40 after commit, got %d/%d", got.YesPrice, got.NoPrice)
	}
}

// A read that started before the commit and writes the old row back after
// the first invalidation is cleared by the delayed second one.
func TestCachedStore_LateStaleWriteIsCleared(t *testing.T) {
	cs, ms := newTestCache(t, 200*time.Millisecond)
	ctx := context.Background()
	m := seedMarket(t, ms)

	stale, err := ms.GetMarket(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	movePrice(t, cs, m.ID, 60)
	cs.cacheMarket(ctx, stale)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := cs.GetMarket(ctx, m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.YesPrice == 60 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache still serves yes=%d after the delayed invalidation", got.YesPrice)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
