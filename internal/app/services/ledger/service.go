// Package ledger implements balance bookkeeping on top of the ledger store.
package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/internal/errors"
	"github.com/novadex/wallet-layer/pkg/logger"
)

// Service validates and applies balance mutations.
type Service struct {
	store storage.LedgerStore
	log   *logger.Logger
}

// New constructs a ledger service.
func New(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{store: store, log: log}
}

// Mutate applies op to the (userAddress, token) balance and returns the
// resulting balance. The store applies the read-modify-write atomically per
// key; this layer owns validation only.
func (s *Service) Mutate(ctx context.Context, userAddress, token string, amount float64, op wallet.BalanceOp) (float64, error) {
	if !wallet.ValidAddress(userAddress) {
		return 0, errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}
	if token == "" {
		return 0, errors.InvalidArgument("token is required")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, errors.InvalidArgument("invalid amount: must be a finite, non-negative number")
	}
	switch op {
	case wallet.OpSet, wallet.OpAdd, wallet.OpSubtract:
	default:
		return 0, errors.InvalidArgument(fmt.Sprintf("unknown balance operation %q", op))
	}

	balance, err := s.store.MutateBalance(ctx, userAddress, token, amount, op)
	if err != nil {
		return 0, errors.StorageFailure(err)
	}
	return balance, nil
}

// Sync applies a set mutation per token. Used by the balance sync endpoint,
// which pushes the client's full view of its balances.
func (s *Service) Sync(ctx context.Context, userAddress string, balances map[string]float64) error {
	if !wallet.ValidAddress(userAddress) {
		return errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}
	if len(balances) == 0 {
		return errors.InvalidArgument("balances are required")
	}

	for token, amount := range balances {
		if _, err := s.Mutate(ctx, userAddress, token, amount, wallet.OpSet); err != nil {
			return err
		}
	}

	s.log.WithField("user", wallet.NormalizeAddress(userAddress)).
		WithField("tokens", len(balances)).
		Info("balances synced")
	return nil
}

// Balances returns token -> balance for the user. A storage failure degrades
// to an empty map so the balance view stays available while the store is
// down; the failure is logged, not surfaced.
func (s *Service) Balances(ctx context.Context, userAddress string) (map[string]float64, error) {
	if !wallet.ValidAddress(userAddress) {
		return nil, errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}

	balances, err := s.store.GetBalances(ctx, userAddress)
	if err != nil {
		s.log.WithError(err).WithField("user", wallet.NormalizeAddress(userAddress)).
			Warn("balance read failed, returning empty view")
		return map[string]float64{}, nil
	}
	return balances, nil
}
