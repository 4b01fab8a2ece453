// Package journal records value-moving events, deduplicated by transaction
// hash. The hash is the idempotency key: replays of the same network event
// must never double-count.
package journal

import (
	"context"
	"strings"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/internal/errors"
	"github.com/novadex/wallet-layer/pkg/logger"
)

// Service validates and journals transactions.
type Service struct {
	store storage.JournalStore
	log   *logger.Logger
}

// New constructs a journal service.
func New(store storage.JournalStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("journal")
	}
	return &Service{store: store, log: log}
}

// Record journals a transaction. A second call with the same hash is a
// successful no-op with created == false; callers treat both outcomes as
// success so their retries stay safe.
func (s *Service) Record(ctx context.Context, userAddress, txHash, token string, amount float64, txType wallet.TxType, status wallet.TxStatus) (created bool, err error) {
	if !wallet.ValidAddress(userAddress) {
		return false, errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}
	if strings.TrimSpace(txHash) == "" {
		return false, errors.InvalidArgument("transaction hash is required")
	}
	if strings.TrimSpace(token) == "" {
		return false, errors.InvalidArgument("token is required")
	}
	if !wallet.ValidAmount(amount) {
		return false, errors.InvalidArgument("invalid amount: must be a finite, positive number")
	}
	if !wallet.ValidTxType(txType) {
		return false, errors.InvalidArgument("invalid transaction type: must be deposit, withdrawal or swap")
	}
	if !wallet.ValidTxStatus(status) {
		return false, errors.InvalidArgument("invalid transaction status: must be pending, confirmed or failed")
	}

	created, err = s.store.RecordTransaction(ctx, wallet.Transaction{
		UserAddress: userAddress,
		TxHash:      txHash,
		Token:       token,
		Amount:      amount,
		Type:        txType,
		Status:      status,
	})
	if err != nil {
		return false, errors.StorageFailure(err)
	}

	if created {
		s.log.WithField("tx_hash", txHash).
			WithField("user", wallet.NormalizeAddress(userAddress)).
			WithField("type", string(txType)).
			Info("transaction recorded")
	} else {
		s.log.WithField("tx_hash", txHash).Debug("transaction already recorded, skipping")
	}
	return created, nil
}

// IsProcessed reports whether txHash has been journaled. Unlike the list
// views this does not degrade on storage failure: answering "not processed"
// while blind would invite double-counting.
func (s *Service) IsProcessed(ctx context.Context, txHash string) (bool, error) {
	if strings.TrimSpace(txHash) == "" {
		return false, errors.InvalidArgument("transaction hash is required")
	}
	processed, err := s.store.IsProcessed(ctx, txHash)
	if err != nil {
		return false, errors.StorageFailure(err)
	}
	return processed, nil
}

// List returns the user's transactions, newest first. A storage failure
// degrades to an empty list to keep the history view available.
func (s *Service) List(ctx context.Context, userAddress string) ([]wallet.Transaction, error) {
	if !wallet.ValidAddress(userAddress) {
		return nil, errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}

	txs, err := s.store.ListTransactions(ctx, userAddress)
	if err != nil {
		s.log.WithError(err).WithField("user", wallet.NormalizeAddress(userAddress)).
			Warn("transaction list read failed, returning empty view")
		return []wallet.Transaction{}, nil
	}
	if txs == nil {
		txs = []wallet.Transaction{}
	}
	return txs, nil
}
