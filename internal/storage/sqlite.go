package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bids (
		id TEXT PRIMARY KEY,
		chain_id INTEGER NOT NULL,
		domain TEXT NOT NULL,
		account TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		amount_wei TEXT NOT NULL,
		secret TEXT NOT NULL,
		commitment TEXT NOT NULL,
		deposit_wei TEXT NOT NULL,
		status TEXT NOT NULL,
		commit_tx TEXT NOT NULL DEFAULT '',
		reveal_tx TEXT NOT NULL DEFAULT '',
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
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
func (s *SQLiteStore) SaveBid(ctx context.Context, bid *Bid) error {
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
		INSERT INTO bids (id, chain_id, domain, account, epoch, amount_wei, secret, commitment, deposit_wei, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(chain_id, domain, account, epoch) DO UPDATE SET
			amount_wei = excluded.amount_wei,
			secret = excluded.secret,
			commitment = excluded.commitment,
			deposit_wei = excluded.deposit_wei,
			status = excluded.status,
			updated_at = datetime('now')
		RETURNING id
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

const sqliteBidColumns = `id, chain_id, domain, account, epoch, amount_wei, secret, commitment, deposit_wei, status, commit_tx, reveal_tx, created_at, updated_at`

func scanSQLiteBid(row interface{ Scan(...any) error }) (*Bid, error) {
	var b Bid
	var status string
	err := row.Scan(&b.ID, &b.ChainID, &b.Domain, &b.Account, &b.Epoch, &b.AmountWei, &b.Secret,
		&b.Commitment, &b.DepositWei, &status, &b.CommitTx, &b.RevealTx, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = BidStatus(status)
	return &b, nil
}

// GetBid retrieves the journaled bid for one auction epoch
func (s *SQLiteStore) GetBid(ctx context.Context, chainID int64, domain, account string, epoch int64) (*Bid, error) {
	query := `SELECT ` + sqliteBidColumns + ` FROM bids WHERE chain_id = ? AND domain = ? AND account = ? AND epoch = ?`
	bid, err := scanSQLiteBid(s.db.QueryRowContext(ctx, query, chainID, domain, normalizeAccount(account), epoch))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return bid, err
}

// UpdateBidStatus moves a bid to status and records the transaction hash
func (s *SQLiteStore) UpdateBidStatus(ctx context.Context, id string, status BidStatus, txHash string) error {
	col, err := txColumn(status)
	if err != nil {
		return err
	}

	query := `UPDATE bids SET status = ?, updated_at = datetime('now') WHERE id = ?`
	args := []any{string(status), id}
	if col != "" {
		query = `UPDATE bids SET status = ?, ` + col + ` = ?, updated_at = datetime('now') WHERE id = ?`
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
func (s *SQLiteStore) ListBids(ctx context.Context, filter BidFilter, pagination PaginationParams) (*PaginatedResult[Bid], error) {
	limit := pageSize(pagination)
	where, args := bidWhere(filter, pagination.Cursor, func(int) string { return "?" })
	query := `SELECT ` + sqliteBidColumns + ` FROM bids` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []Bid
	for rows.Next() {
		b, err := scanSQLiteBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *b)
	}
	return paginate(bids, limit), rows.Err()
}

// DeleteBid removes a bid from the journal
func (s *SQLiteStore) DeleteBid(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bids WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
