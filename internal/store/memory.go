package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/college-market/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// InTx holds the store-wide write lock for the whole callback, so
// transactions are fully serialized. Writes are staged and applied only
// when the callback succeeds.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[int64]*model.User
	markets      map[int64]*model.Market
	positions    map[model.PositionKey]*model.Position
	transactions []model.Transaction

	nextUserID, nextMarketID, nextPositionID, nextTxID int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*model.User),
		markets:   make(map[int64]*model.Market),
		positions: make(map[model.PositionKey]*model.Position),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return model.ErrUsernameTaken
		}
		if existing.Email == u.Email {
			return model.ErrEmailTaken
		}
	}

	s.nextUserID++
	u.ID = s.nextUserID
	// Store a copy to avoid external mutation.
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			copy := *u
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMarketID++
	m.ID = s.nextMarketID
	copy := *m
	s.markets[m.ID] = &copy
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id int64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context, category model.Category) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if category != "" && m.Category != category {
			continue
		}
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

func (s *MemoryStore) DeleteMarket(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[id]; !ok {
		return fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	delete(s.markets, id)
	for k := range s.positions {
		if k.MarketID == id {
			delete(s.positions, k)
		}
	}
	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.MarketID != id {
			kept = append(kept, t)
		}
	}
	s.transactions = kept
	return nil
}

func (s *MemoryStore) ListUserPositions(_ context.Context, userID int64) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) ListUserTransactions(_ context.Context, userID int64) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			result = append(result, s.transactions[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) ListMarketTransactions(_ context.Context, marketID int64) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, t := range s.transactions {
		if t.MarketID == marketID {
			result = append(result, t)
		}
	}
	return result, nil
}

// InTx runs fn with the store locked and commits staged writes on success.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:         s,
		users:     make(map[int64]model.User),
		markets:   make(map[int64]model.Market),
		positions: make(map[model.PositionKey]model.Position),
		nextPosID: s.nextPositionID,
		nextTxID:  s.nextTxID,
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes on top of the locked store.
type memTx struct {
	s         *MemoryStore
	users     map[int64]model.User
	markets   map[int64]model.Market
	positions map[model.PositionKey]model.Position
	inserted  []model.Transaction

	nextPosID, nextTxID int64
}

func (t *memTx) LockMarket(_ context.Context, id int64) (*model.Market, error) {
	if m, ok := t.markets[id]; ok {
		return &m, nil
	}
	m, ok := t.s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	copy := *m
	return &copy, nil
}

func (t *memTx) LockUser(_ context.Context, id int64) (*model.User, error) {
	if u, ok := t.users[id]; ok {
		return &u, nil
	}
	u, ok := t.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	copy := *u
	return &copy, nil
}

func (t *memTx) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}
	if _, err := t.LockMarket(ctx, m.ID); err != nil {
		return err
	}
	t.markets[m.ID] = *m
	return nil
}

func (t *memTx) SetUserBalance(ctx context.Context, userID, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("user %d: balance must be non-negative, got %d", userID, balance)
	}
	u, err := t.LockUser(ctx, userID)
	if err != nil {
		return err
	}
	u.Balance = balance
	t.users[userID] = *u
	return nil
}

func (t *memTx) GetPosition(_ context.Context, key model.PositionKey) (*model.Position, error) {
	if p, ok := t.positions[key]; ok {
		return &p, nil
	}
	p, ok := t.s.positions[key]
	if !ok {
		return nil, fmt.Errorf("position %+v: %w", key, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (t *memTx) SavePosition(_ context.Context, p *model.Position) error {
	if err := validatePosition(p); err != nil {
		return err
	}
	if p.ID == 0 {
		if _, staged := t.positions[p.Key()]; staged {
			return fmt.Errorf("position %+v: %w", p.Key(), ErrDuplicate)
		}
		if _, exists := t.s.positions[p.Key()]; exists {
			return fmt.Errorf("position %+v: %w", p.Key(), ErrDuplicate)
		}
		t.nextPosID++
		p.ID = t.nextPosID
	}
	t.positions[p.Key()] = *p
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
	if err := validateTransaction(tr); err != nil {
		return err
	}
	t.nextTxID++
	tr.ID = t.nextTxID
	t.inserted = append(t.inserted, *tr)
	return nil
}

func (t *memTx) ListMarketPositions(_ context.Context, marketID int64) ([]model.Position, error) {
	merged := make(map[model.PositionKey]model.Position)
	for k, p := range t.s.positions {
		if k.MarketID == marketID {
			merged[k] = *p
		}
	}
	for k, p := range t.positions {
		if k.MarketID == marketID {
			merged[k] = p
		}
	}
	result := make([]model.Position, 0, len(merged))
	for _, p := range merged {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// commit applies staged writes. Caller holds s.mu.
func (t *memTx) commit() {
	s := t.s
	for id, u := range t.users {
		u := u
		s.users[id] = &u
	}
	for id, m := range t.markets {
		m := m
		s.markets[id] = &m
	}
	for k, p := range t.positions {
		p := p
		s.positions[k] = &p
	}
	s.transactions = append(s.transactions, t.inserted...)
	s.nextPositionID = t.nextPosID
	s.nextTxID = t.nextTxID
}
