// Package storage defines the persistence contracts for the wallet layer.
// One canonical set of interfaces, two implementations: memory (tests, local
// development) and postgres (production).
package storage

import (
	"context"
	"errors"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
)

// Sentinel errors shared by all implementations. Services translate these
// into the user-facing error taxonomy.
var (
	// ErrNotFound reports an unknown key on a lookup or update.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateID reports an insert with an already-known unique id.
	ErrDuplicateID = errors.New("storage: duplicate id")
)

// LedgerStore owns balance rows. MutateBalance must apply the whole
// read-modify-write atomically with respect to concurrent mutations of the
// same (userAddress, token) key and must upsert the user row on first touch.
type LedgerStore interface {
	// MutateBalance applies op to the (userAddress, token) balance and
	// returns the resulting balance. Subtract floors at zero.
	MutateBalance(ctx context.Context, userAddress, token string, amount float64, op wallet.BalanceOp) (float64, error)
	// GetBalances returns token -> balance for the user. Unknown users get
	// an empty map, not an error.
	GetBalances(ctx context.Context, userAddress string) (map[string]float64, error)
}

// JournalStore owns the hash-deduplicated transaction journal.
type JournalStore interface {
	// RecordTransaction inserts tx unless its hash is already journaled.
	// A replay is a successful no-op with created == false.
	RecordTransaction(ctx context.Context, tx wallet.Transaction) (created bool, err error)
	// IsProcessed reports whether txHash has been journaled.
	IsProcessed(ctx context.Context, txHash string) (bool, error)
	// ListTransactions returns the user's transactions, newest first.
	ListTransactions(ctx context.Context, userAddress string) ([]wallet.Transaction, error)
}

// WithdrawalStore owns the local mirror of withdrawal requests.
type WithdrawalStore interface {
	// CreateWithdrawal inserts a new request. ErrDuplicateID if the
	// requestId is already known.
	CreateWithdrawal(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error)
	// GetWithdrawal returns the request or ErrNotFound.
	GetWithdrawal(ctx context.Context, requestID string) (wallet.WithdrawalRequest, error)
	// UpdateWithdrawalStatus overwrites the status and refreshes the update
	// timestamp. ErrNotFound if the requestId is unknown.
	UpdateWithdrawalStatus(ctx context.Context, requestID string, status wallet.WithdrawalStatus) (wallet.WithdrawalRequest, error)
	// ListWithdrawals returns the user's requests, newest first.
	ListWithdrawals(ctx context.Context, userAddress string) ([]wallet.WithdrawalRequest, error)
	// ListWithdrawalsByStatus returns all requests currently in one of the
	// given statuses, oldest first. Used by the status refresher.
	ListWithdrawalsByStatus(ctx context.Context, statuses ...wallet.WithdrawalStatus) ([]wallet.WithdrawalRequest, error)
}

// UserStore exposes the implicitly-created user records.
type UserStore interface {
	// ListUsers returns every known user, oldest first.
	ListUsers(ctx context.Context) ([]wallet.User, error)
}

// Store aggregates the full persistence surface a running service needs.
type Store interface {
	LedgerStore
	JournalStore
	WithdrawalStore
	UserStore
}
