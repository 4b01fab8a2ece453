package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Balance
// mutations run inside a transaction; the row-level lock taken by the upsert
// serializes concurrent writers of the same (user, token) key while leaving
// other keys independent.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const upsertUser = `
	INSERT INTO users (address) VALUES ($1)
	ON CONFLICT (address) DO UPDATE SET updated_at = now()
`

// --- LedgerStore ------------------------------------------------------------

func (s *Store) MutateBalance(ctx context.Context, userAddress, token string, amount float64, op wallet.BalanceOp) (float64, error) {
	userAddress = wallet.NormalizeAddress(userAddress)

	var query string
	args := []interface{}{userAddress, token, amount}
	switch op {
	case wallet.OpSet:
		query = `
			INSERT INTO balances (user_address, token, balance) VALUES ($1, $2, $3)
			ON CONFLICT (user_address, token)
			DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()
			RETURNING balance
		`
	case wallet.OpAdd:
		query = `
			INSERT INTO balances (user_address, token, balance) VALUES ($1, $2, $3)
			ON CONFLICT (user_address, token)
			DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = now()
			RETURNING balance
		`
	case wallet.OpSubtract:
		// Subtracting from an absent row initializes it to zero; an existing
		// row floors at zero instead of going negative.
		query = `
			INSERT INTO balances (user_address, token, balance) VALUES ($1, $2, 0)
			ON CONFLICT (user_address, token)
			DO UPDATE SET balance = GREATEST(0, balances.balance - $3), updated_at = now()
			RETURNING balance
		`
	default:
		return 0, fmt.Errorf("unknown balance operation: %s", op)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, upsertUser, userAddress); err != nil {
		return 0, err
	}

	var balance float64
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&balance); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) GetBalances(ctx context.Context, userAddress string) (map[string]float64, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT token, balance FROM balances WHERE user_address = $1
	`, wallet.NormalizeAddress(userAddress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			token   string
			balance float64
		)
		if err := rows.Scan(&token, &balance); err != nil {
			return nil, err
		}
		out[token] = balance
	}
	return out, rows.Err()
}

// --- JournalStore -----------------------------------------------------------

type transactionRow struct {
	TxHash      string  `db:"tx_hash"`
	UserAddress string  `db:"user_address"`
	Token       string  `db:"token"`
	Amount      float64 `db:"amount"`
	Type        string  `db:"type"`
	Status      string  `db:"status"`
	CreatedAt   sql.NullTime `db:"created_at"`
	UpdatedAt   sql.NullTime `db:"updated_at"`
}

func (r transactionRow) toDomain() wallet.Transaction {
	return wallet.Transaction{
		TxHash:      r.TxHash,
		UserAddress: r.UserAddress,
		Token:       r.Token,
		Amount:      r.Amount,
		Type:        wallet.TxType(r.Type),
		Status:      wallet.TxStatus(r.Status),
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}
}

func (s *Store) RecordTransaction(ctx context.Context, txn wallet.Transaction) (bool, error) {
	userAddress := wallet.NormalizeAddress(txn.UserAddress)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, upsertUser, userAddress); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (tx_hash, user_address, token, amount, type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash) DO NOTHING
	`, txn.TxHash, userAddress, txn.Token, txn.Amount, string(txn.Type), string(txn.Status))
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) IsProcessed(ctx context.Context, txHash string) (bool, error) {
	var processed bool
	err := s.db.GetContext(ctx, &processed, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE tx_hash = $1)
	`, txHash)
	return processed, err
}

func (s *Store) ListTransactions(ctx context.Context, userAddress string) ([]wallet.Transaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT tx_hash, user_address, token, amount, type, status, created_at, updated_at
		FROM transactions
		WHERE user_address = $1
		ORDER BY created_at DESC
	`, wallet.NormalizeAddress(userAddress))
	if err != nil {
		return nil, err
	}

	out := make([]wallet.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// --- WithdrawalStore --------------------------------------------------------

type withdrawalRow struct {
	RequestID        string       `db:"request_id"`
	UserAddress      string       `db:"user_address"`
	Token            string       `db:"token"`
	Amount           float64      `db:"amount"`
	RecipientAddress string       `db:"recipient_address"`
	Status           string       `db:"status"`
	CreatedAt        sql.NullTime `db:"created_at"`
	UpdatedAt        sql.NullTime `db:"updated_at"`
}

func (r withdrawalRow) toDomain() wallet.WithdrawalRequest {
	return wallet.WithdrawalRequest{
		RequestID:        r.RequestID,
		UserAddress:      r.UserAddress,
		Token:            r.Token,
		Amount:           r.Amount,
		RecipientAddress: r.RecipientAddress,
		Status:           wallet.WithdrawalStatus(r.Status),
		CreatedAt:        r.CreatedAt.Time,
		UpdatedAt:        r.UpdatedAt.Time,
	}
}

func (s *Store) CreateWithdrawal(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error) {
	userAddress := wallet.NormalizeAddress(req.UserAddress)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wallet.WithdrawalRequest{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, upsertUser, userAddress); err != nil {
		return wallet.WithdrawalRequest{}, err
	}

	var row withdrawalRow
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO withdrawal_requests (request_id, user_address, token, amount, recipient_address, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING request_id, user_address, token, amount, recipient_address, status, created_at, updated_at
	`, req.RequestID, userAddress, req.Token, req.Amount, req.RecipientAddress, string(req.Status)).StructScan(&row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return wallet.WithdrawalRequest{}, storage.ErrDuplicateID
		}
		return wallet.WithdrawalRequest{}, err
	}

	if err := tx.Commit(); err != nil {
		return wallet.WithdrawalRequest{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetWithdrawal(ctx context.Context, requestID string) (wallet.WithdrawalRequest, error) {
	var row withdrawalRow
	err := s.db.GetContext(ctx, &row, `
		SELECT request_id, user_address, token, amount, recipient_address, status, created_at, updated_at
		FROM withdrawal_requests
		WHERE request_id = $1
	`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.WithdrawalRequest{}, storage.ErrNotFound
	}
	if err != nil {
		return wallet.WithdrawalRequest{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateWithdrawalStatus(ctx context.Context, requestID string, status wallet.WithdrawalStatus) (wallet.WithdrawalRequest, error) {
	var row withdrawalRow
	err := s.db.QueryRowxContext(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, updated_at = now()
		WHERE request_id = $1
		RETURNING request_id, user_address, token, amount, recipient_address, status, created_at, updated_at
	`, requestID, string(status)).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.WithdrawalRequest{}, storage.ErrNotFound
	}
	if err != nil {
		return wallet.WithdrawalRequest{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userAddress string) ([]wallet.WithdrawalRequest, error) {
	var rows []withdrawalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT request_id, user_address, token, amount, recipient_address, status, created_at, updated_at
		FROM withdrawal_requests
		WHERE user_address = $1
		ORDER BY created_at DESC
	`, wallet.NormalizeAddress(userAddress))
	if err != nil {
		return nil, err
	}

	out := make([]wallet.WithdrawalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListWithdrawalsByStatus(ctx context.Context, statuses ...wallet.WithdrawalStatus) ([]wallet.WithdrawalRequest, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}

	var rows []withdrawalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT request_id, user_address, token, amount, recipient_address, status, created_at, updated_at
		FROM withdrawal_requests
		WHERE status = ANY($1)
		ORDER BY created_at ASC
	`, pq.Array(names))
	if err != nil {
		return nil, err
	}

	out := make([]wallet.WithdrawalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// --- UserStore --------------------------------------------------------------

func (s *Store) ListUsers(ctx context.Context) ([]wallet.User, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT address, created_at, updated_at FROM users ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wallet.User
	for rows.Next() {
		var (
			u       wallet.User
			created sql.NullTime
			updated sql.NullTime
		)
		if err := rows.Scan(&u.Address, &created, &updated); err != nil {
			return nil, err
		}
		u.CreatedAt = created.Time
		u.UpdatedAt = updated.Time
		out = append(out, u)
	}
	return out, rows.Err()
}
