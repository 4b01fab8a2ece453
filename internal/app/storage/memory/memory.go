package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. A single mutex serializes all mutations, which trivially
// satisfies the per-key atomicity the ledger requires.
type Store struct {
	mu              sync.RWMutex
	users           map[string]wallet.User
	userOrder       []string
	balances        map[string]map[string]wallet.Balance // userAddress -> token -> row
	journal         map[string]wallet.Transaction        // txHash -> row
	journalByUser   map[string][]string                  // userAddress -> hashes in insert order
	withdrawals     map[string]wallet.WithdrawalRequest  // requestId -> row
	withdrawalOrder []string
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]wallet.User),
		balances:      make(map[string]map[string]wallet.Balance),
		journal:       make(map[string]wallet.Transaction),
		journalByUser: make(map[string][]string),
		withdrawals:   make(map[string]wallet.WithdrawalRequest),
	}
}

func (s *Store) touchUserLocked(address string, now time.Time) {
	if u, ok := s.users[address]; ok {
		u.UpdatedAt = now
		s.users[address] = u
		return
	}
	s.users[address] = wallet.User{Address: address, CreatedAt: now, UpdatedAt: now}
	s.userOrder = append(s.userOrder, address)
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) MutateBalance(_ context.Context, userAddress, token string, amount float64, op wallet.BalanceOp) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userAddress = wallet.NormalizeAddress(userAddress)
	now := time.Now().UTC()
	s.touchUserLocked(userAddress, now)

	rows, ok := s.balances[userAddress]
	if !ok {
		rows = make(map[string]wallet.Balance)
		s.balances[userAddress] = rows
	}

	row, exists := rows[token]
	if !exists {
		row = wallet.Balance{UserAddress: userAddress, Token: token, CreatedAt: now}
	}

	var next float64
	switch op {
	case wallet.OpSet:
		next = amount
	case wallet.OpAdd:
		next = row.Balance + amount
	case wallet.OpSubtract:
		next = row.Balance - amount
		if next < 0 {
			next = 0
		}
	default:
		return 0, fmt.Errorf("unknown balance operation: %s", op)
	}

	row.Balance = next
	row.UpdatedAt = now
	rows[token] = row
	return next, nil
}

func (s *Store) GetBalances(_ context.Context, userAddress string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64)
	for token, row := range s.balances[wallet.NormalizeAddress(userAddress)] {
		out[token] = row.Balance
	}
	return out, nil
}

// JournalStore implementation -------------------------------------------------

func (s *Store) RecordTransaction(_ context.Context, tx wallet.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.journal[tx.TxHash]; exists {
		return false, nil
	}

	now := time.Now().UTC()
	tx.UserAddress = wallet.NormalizeAddress(tx.UserAddress)
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.touchUserLocked(tx.UserAddress, now)

	s.journal[tx.TxHash] = tx
	s.journalByUser[tx.UserAddress] = append(s.journalByUser[tx.UserAddress], tx.TxHash)
	return true, nil
}

func (s *Store) IsProcessed(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.journal[txHash]
	return ok, nil
}

func (s *Store) ListTransactions(_ context.Context, userAddress string) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.journalByUser[wallet.NormalizeAddress(userAddress)]
	out := make([]wallet.Transaction, 0, len(hashes))
	// Insert order is oldest first; walk backwards for newest first.
	for i := len(hashes) - 1; i >= 0; i-- {
		out = append(out, s.journal[hashes[i]])
	}
	return out, nil
}

// WithdrawalStore implementation ----------------------------------------------

func (s *Store) CreateWithdrawal(_ context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.withdrawals[req.RequestID]; exists {
		return wallet.WithdrawalRequest{}, storage.ErrDuplicateID
	}

	now := time.Now().UTC()
	req.UserAddress = wallet.NormalizeAddress(req.UserAddress)
	req.CreatedAt = now
	req.UpdatedAt = now
	s.touchUserLocked(req.UserAddress, now)

	s.withdrawals[req.RequestID] = req
	s.withdrawalOrder = append(s.withdrawalOrder, req.RequestID)
	return req, nil
}

func (s *Store) GetWithdrawal(_ context.Context, requestID string) (wallet.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.withdrawals[requestID]
	if !ok {
		return wallet.WithdrawalRequest{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) UpdateWithdrawalStatus(_ context.Context, requestID string, status wallet.WithdrawalStatus) (wallet.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.withdrawals[requestID]
	if !ok {
		return wallet.WithdrawalRequest{}, storage.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	s.withdrawals[requestID] = req
	return req, nil
}

func (s *Store) ListWithdrawals(_ context.Context, userAddress string) ([]wallet.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userAddress = wallet.NormalizeAddress(userAddress)
	var out []wallet.WithdrawalRequest
	for i := len(s.withdrawalOrder) - 1; i >= 0; i-- {
		req := s.withdrawals[s.withdrawalOrder[i]]
		if req.UserAddress == userAddress {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *Store) ListWithdrawalsByStatus(_ context.Context, statuses ...wallet.WithdrawalStatus) ([]wallet.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[wallet.WithdrawalStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []wallet.WithdrawalRequest
	for _, id := range s.withdrawalOrder {
		if req := s.withdrawals[id]; want[req.Status] {
			out = append(out, req)
		}
	}
	return out, nil
}

// UserStore implementation ----------------------------------------------------

func (s *Store) ListUsers(_ context.Context) ([]wallet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]wallet.User, 0, len(s.userOrder))
	for _, addr := range s.userOrder {
		out = append(out, s.users[addr])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
