package storetest

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/store"
)

// Postgres connects to DATABASE_URL and applies the schema. The calling test
// is skipped when DATABASE_URL is not set. Rows are never truncated; the
// Create helpers below remove what they insert.
func Postgres(t *testing.T) (*store.PostgresStore, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}
	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return st, pool
}

var seq atomic.Int64

// UniqueName returns prefix with a time and sequence suffix.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s%d%d", prefix, time.Now().UnixNano()%1_000_000_000, seq.Add(1))
}

// CreateUser inserts a user with a unique username and deletes it, with its
// positions and transactions, when the test ends.
func CreateUser(t *testing.T, st store.Store, pool *pgxpool.Pool, prefix string, balance int64) *model.User {
	t.Helper()
	name := UniqueName(prefix)
	u := &model.User{
		Username:       name,
		Email:          name + "@test.com",
		HashedPassword: "x",
		Balance:        balance,
		CreatedAt:      time.Now().UTC(),
	}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, u.ID); err != nil {
			t.Logf("cleanup user %d: %v", u.ID, err)
		}
	})
	return u
}

// CreateMarket inserts an open market priced at yes/100-yes and deletes it
// when the test ends.
func CreateMarket(t *testing.T, st store.Store, pool *pgxpool.Pool, yes int64) *model.Market {
	t.Helper()
	m := &model.Market{
		CollegeName: UniqueName("College "),
		Category:    model.CategoryOther,
		Status:      model.StatusOpen,
		YesPrice:    yes,
		NoPrice:     100 - yes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("failed to create test market: %v", err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), `DELETE FROM markets WHERE id = $1`, m.ID); err != nil {
			t.Logf("cleanup market %d: %v", m.ID, err)
		}
	})
	return m
}
