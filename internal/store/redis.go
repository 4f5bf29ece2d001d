package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/college-market/internal/model"
)

// DefaultRedeleteDelay is how long after a commit the affected keys are
// deleted a second time.
const DefaultRedeleteDelay = 500 * time.Millisecond

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for market reads. Writes go to the primary store and invalidate the
// affected keys once they are committed.
//
// A reader that missed the cache before a commit can still write the old
// row back after the invalidation, so every invalidation is repeated after
// redelete. Stale reads are bounded by that delay rather than by ttl.
type CachedStore struct {
	primary  Store
	rdb      *redis.Client
	ttl      time.Duration
	redelete time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary:  primary,
		rdb:      rdb,
		ttl:      ttl,
		redelete: DefaultRedeleteDelay,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	s.invalidateLists(ctx)
	return nil
}

func (s *CachedStore) DeleteMarket(ctx context.Context, id int64) error {
	if err := s.primary.DeleteMarket(ctx, id); err != nil {
		return err
	}
	s.invalidateMarkets(ctx, []int64{id})
	return nil
}

// InTx delegates to the primary store and drops cached copies of every
// market the callback wrote, after the commit succeeds.
func (s *CachedStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var touched []int64
	err := s.primary.InTx(ctx, func(tx Tx) error {
		touched = touched[:0]
		return fn(&trackingTx{Tx: tx, touched: &touched})
	})
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		s.invalidateMarkets(ctx, touched)
	}
	return nil
}

// trackingTx records which markets a transaction updates.
type trackingTx struct {
	Tx
	touched *[]int64
}

func (t *trackingTx) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := t.Tx.UpdateMarket(ctx, m); err != nil {
		return err
	}
	*t.touched = append(*t.touched, m.ID)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ListMarkets(ctx context.Context, category model.Category) ([]model.Market, error) {
	data, err := s.rdb.Get(ctx, marketListKey(category)).Bytes()
	if err == nil {
		var markets []model.Market
		if json.Unmarshal(data, &markets) == nil {
			return markets, nil
		}
	}

	markets, err := s.primary.ListMarkets(ctx, category)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(markets); err == nil {
		s.rdb.Set(ctx, marketListKey(category), data, s.ttl)
	}
	return markets, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.primary.GetUserByUsername(ctx, username)
}

func (s *CachedStore) ListUserPositions(ctx context.Context, userID int64) ([]model.Position, error) {
	return s.primary.ListUserPositions(ctx, userID)
}

func (s *CachedStore) ListUserTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.primary.ListUserTransactions(ctx, userID)
}

func (s *CachedStore) ListMarketTransactions(ctx context.Context, marketID int64) ([]model.Transaction, error) {
	return s.primary.ListMarketTransactions(ctx, marketID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func (s *CachedStore) invalidateMarkets(ctx context.Context, ids []int64) {
	keys := listKeys()
	for _, id := range ids {
		keys = append(keys, marketKey(id))
	}
	s.invalidate(ctx, keys)
}

func (s *CachedStore) invalidateLists(ctx context.Context) {
	s.invalidate(ctx, listKeys())
}

// invalidate deletes keys now and again after s.redelete.
func (s *CachedStore) invalidate(ctx context.Context, keys []string) {
	s.del(ctx, keys)
	if s.redelete <= 0 {
		return
	}
	time.AfterFunc(s.redelete, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.del(ctx, keys)
	})
}

func (s *CachedStore) del(ctx context.Context, keys []string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

func listKeys() []string {
	keys := []string{marketListKey("")}
	for _, c := range model.Categories {
		keys = append(keys, marketListKey(c))
	}
	return keys
}

func marketKey(id int64) string { return fmt.Sprintf("market:%d", id) }

func marketListKey(c model.Category) string {
	if c == "" {
		return "markets:all"
	}
	return fmt.Sprintf("markets:%s", c)
}
