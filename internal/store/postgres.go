package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/college-market/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Money is stored as BIGINT cents.
//
// InTx runs at READ COMMITTED and takes row locks with SELECT ... FOR UPDATE,
// so two transactions touching the same market or user row serialize on it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	userColumns = `id, username, email, hashed_password, balance, created_at`

	marketColumns = `id, college_name, description, category, status,
		yes_price, no_price, total_yes_shares, total_no_shares,
		resolved_outcome, resolution_date, created_at`

	positionColumns = `id, user_id, market_id, outcome, shares, average_cost`

	transactionColumns = `id, user_id, market_id, transaction_type, outcome,
		shares, price_per_share, total_cost, timestamp`
)

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, hashed_password, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		u.Username, u.Email, u.HashedPassword, u.Balance, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "users_username_key":
				return model.ErrUsernameTaken
			case "users_email_key":
				return model.ErrEmailTaken
			}
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

// --- Markets ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO markets (college_name, description, category, status,
		                      yes_price, no_price, total_yes_shares, total_no_shares, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		m.CollegeName, m.Description, string(m.Category), string(m.Status),
		m.YesPrice, m.NoPrice, m.TotalYesShares, m.TotalNoShares, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("create market: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context, category model.Category) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets
		 WHERE $1 = '' OR category = $1
		 ORDER BY id`, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

// DeleteMarket relies on ON DELETE CASCADE for positions and transactions.
func (s *PostgresStore) DeleteMarket(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Read-only queries ---

func (s *PostgresStore) ListUserPositions(ctx context.Context, userID int64) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) ListUserTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 ORDER BY timestamp DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *PostgresStore) ListMarketTransactions(ctx context.Context, marketID int64) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE market_id = $1 ORDER BY timestamp, id`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// --- Unit of work ---

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	q querier
}

func (t *pgTx) LockMarket(ctx context.Context, id int64) (*model.Market, error) {
	m, err := scanMarket(t.q.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock market %d: %w", id, err)
	}
	return m, nil
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(t.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock user %d: %w", id, err)
	}
	return u, nil
}

func (t *pgTx) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}
	var outcome *string
	if m.ResolvedOutcome != nil {
		o := string(*m.ResolvedOutcome)
		outcome = &o
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE markets
		 SET status = $2, yes_price = $3, no_price = $4,
		     total_yes_shares = $5, total_no_shares = $6,
		     resolved_outcome = $7, resolution_date = $8
		 WHERE id = $1`,
		m.ID, string(m.Status), m.YesPrice, m.NoPrice,
		m.TotalYesShares, m.TotalNoShares, outcome, m.ResolutionDate,
	)
	if err != nil {
		return fmt.Errorf("update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %d: %w", m.ID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) SetUserBalance(ctx context.Context, userID, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("user %d: balance must be non-negative, got %d", userID, balance)
	}
	tag, err := t.q.Exec(ctx, `UPDATE users SET balance = $2 WHERE id = $1`, userID, balance)
	if err != nil {
		return fmt.Errorf("set balance for user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// GetPosition locks the row too, since the caller always rewrites it.
func (t *pgTx) GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error) {
	p, err := scanPosition(t.q.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE user_id = $1 AND market_id = $2 AND outcome = $3
		 FOR UPDATE`,
		key.UserID, key.MarketID, string(key.Outcome)))
	if err != nil {
		return nil, fmt.Errorf("get position %+v: %w", key, err)
	}
	return p, nil
}

func (t *pgTx) SavePosition(ctx context.Context, p *model.Position) error {
	if err := validatePosition(p); err != nil {
		return err
	}
	if p.ID == 0 {
		err := t.q.QueryRow(ctx,
			`INSERT INTO positions (user_id, market_id, outcome, shares, average_cost)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			p.UserID, p.MarketID, string(p.Outcome), p.Shares, p.AverageCost,
		).Scan(&p.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("position %+v: %w", p.Key(), ErrDuplicate)
			}
			return fmt.Errorf("insert position: %w", err)
		}
		return nil
	}
	_, err := t.q.Exec(ctx,
		`UPDATE positions SET shares = $2, average_cost = $3 WHERE id = $1`,
		p.ID, p.Shares, p.AverageCost)
	if err != nil {
		return fmt.Errorf("update position %d: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	if err := validateTransaction(tr); err != nil {
		return err
	}
	err := t.q.QueryRow(ctx,
		`INSERT INTO transactions (user_id, market_id, transaction_type, outcome,
		                           shares, price_per_share, total_cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		tr.UserID, tr.MarketID, string(tr.Type), string(tr.Outcome),
		tr.Shares, tr.PricePerShare, tr.TotalCost, tr.Timestamp,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *pgTx) ListMarketPositions(ctx context.Context, marketID int64) ([]model.Position, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1 ORDER BY id`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// --- Scanning ---

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// notFound maps pgx.ErrNoRows onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.Balance, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func scanMarket(row rowScanner) (*model.Market, error) {
	var (
		m                model.Market
		category, status string
		resolvedOutcome  *string
		resolutionDate   *time.Time
	)
	if err := row.Scan(&m.ID, &m.CollegeName, &m.Description, &category, &status,
		&m.YesPrice, &m.NoPrice, &m.TotalYesShares, &m.TotalNoShares,
		&resolvedOutcome, &resolutionDate, &m.CreatedAt); err != nil {
		return nil, notFound(err)
	}

	var err error
	if m.Category, err = model.ParseCategory(category); err != nil {
		return nil, fmt.Errorf("market %d: %w", m.ID, err)
	}
	if m.Status, err = model.ParseMarketStatus(status); err != nil {
		return nil, fmt.Errorf("market %d: %w", m.ID, err)
	}
	if resolvedOutcome != nil {
		o, err := model.ParseOutcome(*resolvedOutcome)
		if err != nil {
			return nil, fmt.Errorf("market %d: %w", m.ID, err)
		}
		m.ResolvedOutcome = &o
	}
	m.ResolutionDate = resolutionDate
	return &m, nil
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var p model.Position
	var outcome string
	if err := row.Scan(&p.ID, &p.UserID, &p.MarketID, &outcome, &p.Shares, &p.AverageCost); err != nil {
		return nil, notFound(err)
	}
	o, err := model.ParseOutcome(outcome)
	if err != nil {
		return nil, fmt.Errorf("position %d: %w", p.ID, err)
	}
	p.Outcome = o
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	var txs []model.Transaction
	for rows.Next() {
		var tr model.Transaction
		var typ, outcome string
		if err := rows.Scan(&tr.ID, &tr.UserID, &tr.MarketID, &typ, &outcome,
			&tr.Shares, &tr.PricePerShare, &tr.TotalCost, &tr.Timestamp); err != nil {
			return nil, err
		}
		var err error
		if tr.Type, err = model.ParseTransactionType(typ); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tr.ID, err)
		}
		if tr.Outcome, err = model.ParseOutcome(outcome); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tr.ID, err)
		}
		txs = append(txs, tr)
	}
	return txs, rows.Err()
}
