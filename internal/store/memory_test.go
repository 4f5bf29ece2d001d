package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atmx/college-market/internal/model"
)

func seedMarket(t *testing.T, s *MemoryStore) *model.Market {
	t.Helper()
	m := &model.Market{
		CollegeName: "Stanford",
		Category:    model.CategoryOther,
		Status:      model.StatusOpen,
		YesPrice:    50,
		NoPrice:     50,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
	return m
}

func seedUser(t *testing.T, s *MemoryStore, username string, balance int64) *model.User {
	t.Helper()
	u := &model.User{
		Username:  username,
		Email:     username + "@example.com",
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return u
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "alice", 100)

	err := s.CreateUser(context.Background(), &model.User{Username: "alice", Email: "other@example.com"})
	if !errors.Is(err, model.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "alice", 100)

	err := s.CreateUser(context.Background(), &model.User{Username: "bob", Email: "alice@example.com"})
	if !errors.Is(err, model.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

// Emails match exactly, as with the UNIQUE constraint in PostgreSQL;
// callers normalize case before storing.
func TestCreateUser_EmailMatchIsExact(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "alice", 100)

	err := s.CreateUser(context.Background(), &model.User{Username: "bob", Email: "ALICE@example.com"})
	if err != nil {
		t.Errorf("expected distinct-case email to be accepted, got %v", err)
	}
}

func TestCreateMarket_RejectsBrokenInvariant(t *testing.T) {
	s := NewMemoryStore()
	err := s.CreateMarket(context.Background(), &model.Market{
		CollegeName: "X", Category: model.CategoryOther, Status: model.StatusOpen,
		YesPrice: 60, NoPrice: 60,
	})
	if !errors.Is(err, model.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetMarket(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListMarkets_FilterByCategory(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s)
	ivy := &model.Market{
		CollegeName: "Yale", Category: model.CategoryIvy, Status: model.StatusOpen,
		YesPrice: 20, NoPrice: 80,
	}
	if err := s.CreateMarket(context.Background(), ivy); err != nil {
		t.Fatal(err)
	}

	all, _ := s.ListMarkets(context.Background(), "")
	if len(all) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(all))
	}
	if all[0].ID >= all[1].ID {
		t.Error("expected markets ordered by id")
	}

	filtered, _ := s.ListMarkets(context.Background(), model.CategoryIvy)
	if len(filtered) != 1 || filtered[0].CollegeName != "Yale" {
		t.Errorf("expected only Yale, got %+v", filtered)
	}
}

func TestInTx_CommitsAllWrites(t *testing.T) {
	s := NewMemoryStore()
	m := seedMarket(t, s)
	u := seedUser(t, s, "alice", 1000)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.SetUserBalance(ctx, u.ID, 500); err != nil {
			return err
		}
		pos := &model.Position{UserID: u.ID, MarketID: m.ID, Outcome: model.OutcomeYes, Shares: 10, AverageCost: 50}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &model.Transaction{
			UserID: u.ID, MarketID: m.ID, Type: model.TransactionBuy, Outcome: model.OutcomeYes,
			Shares: 10, PricePerShare: 50, TotalCost: 500, Timestamp: time.Now(),
		}); err != nil {
			return err
		}
		locked, err := tx.LockMarket(ctx, m.ID)
		if err != nil {
			return err
		}
		locked.TotalYesShares += 10
		return tx.UpdateMarket(ctx, locked)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetUser(ctx, u.ID)
	if got.Balance != 500 {
		t.Errorf("expected balance 500, got %d", got.Balance)
	}
	positions, _ := s.ListUserPositions(ctx, u.ID)
	if len(positions) != 1 || positions[0].ID == 0 {
		t.Fatalf("expected one saved position, got %+v", positions)
	}
	txs, _ := s.ListUserTransactions(ctx, u.ID)
	if len(txs) != 1 || txs[0].ID == 0 {
		t.Fatalf("expected one transaction, got %+v", txs)
	}
	market, _ := s.GetMarket(ctx, m.ID)
	if market.TotalYesShares != 10 {
		t.Errorf("expected 10 yes shares, got %d", market.TotalYesShares)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	m := seedMarket(t, s)
	u := seedUser(t, s, "alice", 1000)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.SetUserBalance(ctx, u.ID, 0); err != nil {
			return err
		}
		if err := tx.SavePosition(ctx, &model.Position{UserID: u.ID, MarketID: m.ID, Outcome: model.OutcomeNo, Shares: 5, AverageCost: 50}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetUser(ctx, u.ID)
	if got.Balance != 1000 {
		t.Errorf("balance should be unchanged, got %d", got.Balance)
	}
	positions, _ := s.ListUserPositions(ctx, u.ID)
	if len(positions) != 0 {
		t.Errorf("expected no positions after rollback, got %d", len(positions))
	}
}

func TestInTx_ReadsOwnWrites(t *testing.T) {
	s := NewMemoryStore()
	m := seedMarket(t, s)
	u := seedUser(t, s, "alice", 1000)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.SetUserBalance(ctx, u.ID, 400); err != nil {
			return err
		}
		got, err := tx.LockUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if got.Balance != 400 {
			t.Errorf("expected staged balance 400, got %d", got.Balance)
		}
		pos := &model.Position{UserID: u.ID, MarketID: m.ID, Outcome: model.OutcomeYes, Shares: 1, AverageCost: 50}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		list, err := tx.ListMarketPositions(ctx, m.ID)
		if err != nil {
			return err
		}
		if len(list) != 1 {
			t.Errorf("expected staged position visible, got %d", len(list))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSavePosition_DuplicateKey(t *testing.T) {
	s := NewMemoryStore()
	m := seedMarket(t, s)
	u := seedUser(t, s, "alice", 1000)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx Tx) error {
		first := &model.Position{UserID: u.ID, MarketID: m.ID, Outcome: model.OutcomeYes, Shares: 1, AverageCost: 50}
		if err := tx.SavePosition(ctx, first); err != nil {
			return err
		}
		dup := &model.Position{UserID: u.ID, MarketID: m.ID, Outcome: model.OutcomeYes, Shares: 1, AverageCost: 50}
		return tx.SavePosition(ctx, dup)
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestSetUserBalance_RejectsNegative(t *testing.T) {
	s := NewMemoryStore()
	u := seedUser(t, s, "alice", 10)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.SetUserBalance(ctx, u.ID, -1)
	})
	if err == nil {
		t.Error("expected error for negative balance")
	}
}

func TestDeleteMarket_Cascades(t *testing.T) {
	s := NewMemoryStore()
	m := seedMarket(t, s)
	other := seedMarket(t, s)
	u := seedUser(t, s, "alice", 1000)
	ctx := context.Background()

	for _, id := range []int64{m.ID, other.ID} {
		id := id
		err := s.InTx(ctx, func(tx Tx) error {
			if err := tx.SavePosition(ctx, &model.Position{UserID: u.ID, MarketID: id, Outcome: model.OutcomeYes, Shares: 1, AverageCost: 50}); err != nil {
				return err
			}
			return tx.InsertTransaction(ctx, &model.Transaction{
				UserID: u.ID, MarketID: id, Type: model.TransactionBuy, Outcome: model.OutcomeYes,
				Shares: 1, PricePerShare: 50, TotalCost: 50, Timestamp: time.Now(),
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteMarket(ctx, m.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.GetMarket(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected market gone, got %v", err)
	}
	positions, _ := s.ListUserPositions(ctx, u.ID)
	if len(positions) != 1 || positions[0].MarketID != other.ID {
		t.Errorf("expected only the other market's position, got %+v", positions)
	}
	txs, _ := s.ListUserTransactions(ctx, u.ID)
	if len(txs) != 1 || txs[0].MarketID != other.ID {
		t.Errorf("expected only the other market's transaction, got %+v", txs)
	}
	if err := s.DeleteMarket(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be not found, got %v", err)
	}
}

func TestListUserTransactions_NewestFirst(t *testing.T) {
	s := NewMemoryStore()
	m := seedMarket(t, s)
	u := seedUser(t, s, "alice", 1000)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		shares := i
		err := s.InTx(ctx, func(tx Tx) error {
			return tx.InsertTransaction(ctx, &model.Transaction{
				UserID: u.ID, MarketID: m.ID, Type: model.TransactionBuy, Outcome: model.OutcomeYes,
				Shares: shares, PricePerShare: 50, TotalCost: 50 * shares, Timestamp: time.Now(),
			})
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	txs, _ := s.ListUserTransactions(ctx, u.ID)
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].Shares != 3 || txs[2].Shares != 1 {
		t.Errorf("expected newest first, got shares %d..%d", txs[0].Shares, txs[2].Shares)
	}

	history, _ := s.ListMarketTransactions(ctx, m.ID)
	if history[0].Shares != 1 {
		t.Errorf("market history should be oldest first, got %d", history[0].Shares)
	}
}
