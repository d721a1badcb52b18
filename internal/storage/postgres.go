package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bids (
		id UUID PRIMARY KEY,
		chain_id BIGINT NOT NULL,
		domain TEXT NOT NULL,
		account TEXT NOT NULL,
		epoch BIGINT NOT NULL,
		amount_wei NUMERIC(78, 0) NOT NULL,
		secret TEXT NOT NULL,
		commitment TEXT NOT NULL,
		deposit_wei NUMERIC(78, 0) NOT NULL,
		status TEXT NOT NULL,
		commit_tx TEXT NOT NULL DEFAULT '',
		reveal_tx TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(chain_id, domain, account, epoch)
	);

	CREATE INDEX IF NOT EXISTS idx_bids_account ON bids(account);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// SaveBid inserts a bid, replacing the amount, secret and commitment of an
// existing entry for the same (chain, domain, account, epoch).
func (s *PostgresStore) SaveBid(ctx context.Context, bid *Bid) error {
	if bid.ID == "" {
		bid.ID = generateID()
	}
	if bid.Status == "" {
		bid.Status = BidPending
	}
	if !bid.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, bid.Status)
	}
	bid.Account = normalizeAccount(bid.Account)

	query := `
		INSERT INTO bids (id, chain_id, domain, account, epoch, amount_wei, secret, commitment, deposit_wei, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chain_id, domain, account, epoch) DO UPDATE SET
			amount_wei = EXCLUDED.amount_wei,
			secret = EXCLUDED.secret,
			commitment = EXCLUDED.commitment,
			deposit_wei = EXCLUDED.deposit_wei,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id::text
	`
	err := s.db.QueryRowContext(ctx, query,
		bid.ID, bid.ChainID, bid.Domain, bid.Account, bid.Epoch,
		bid.AmountWei, bid.Secret, bid.Commitment, bid.DepositWei, string(bid.Status),
	).Scan(&bid.ID)
	if err != nil {
		return fmt.Errorf("saving bid: %w", err)
	}
	return nil
}

const postgresBidColumns = `id::text, chain_id, domain, account, epoch, amount_wei::text, secret, commitment, deposit_wei::text, status, commit_tx, reveal_tx, created_at, updated_at`

func scanPostgresBid(row interface{ Scan(...any) error }) (*Bid, error) {
	var b Bid
	var status string
	var createdAt, updatedAt time.Time
	err := row.Scan(&b.ID, &b.ChainID, &b.Domain, &b.Account, &b.Epoch, &b.AmountWei, &b.Secret,
		&b.Commitment, &b.DepositWei, &status, &b.CommitTx, &b.RevealTx, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = BidStatus(status)
	b.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	b.UpdatedAt = updatedAt.Format("2006-01-02 15:04:05")
	return &b, nil
}

// GetBid retrieves the journaled bid for one auction epoch
func (s *PostgresStore) GetBid(ctx context.Context, chainID int64, domain, account string, epoch int64) (*Bid, error) {
	query := `SELECT ` + postgresBidColumns + ` FROM bids WHERE chain_id = $1 AND domain = $2 AND account = $3 AND epoch = $4`
	bid, err := scanPostgresBid(s.db.QueryRowContext(ctx, query, chainID, domain, normalizeAccount(account), epoch))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return bid, err
}

// UpdateBidStatus moves a bid to status and records the transaction hash
func (s *PostgresStore) UpdateBidStatus(ctx context.Context, id string, status BidStatus, txHash string) error {
	col, err := txColumn(status)
	if err != nil {
		return err
	}

	query := `UPDATE bids SET status = $1, updated_at = NOW() WHERE id = $2`
	args := []any{string(status), id}
	if col != "" {
		query = `UPDATE bids SET status = $1, ` + col + ` = $2, updated_at = NOW() WHERE id = $3`
		args = []any{string(status), txHash, id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating bid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBids lists bids newest first with cursor-based pagination
func (s *PostgresStore) ListBids(ctx context.Context, filter BidFilter, pagination PaginationParams) (*PaginatedResult[Bid], error) {
	limit := pageSize(pagination)
	where, args := bidWhere(filter, pagination.Cursor, func(n int) string { return fmt.Sprintf("$%d", n) })
	args = append(args, limit+1)
	query := fmt.Sprintf(`SELECT %s FROM bids%s ORDER BY id DESC LIMIT $%d`, postgresBidColumns, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []Bid
	for rows.Next() {
		b, err := scanPostgresBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	return paginate(bids, limit), rows.Err()
}

// DeleteBid removes a bid from the journal
func (s *PostgresStore) DeleteBid(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bids WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
