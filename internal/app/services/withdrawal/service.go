// Package withdrawal gateways user withdrawal requests to the external
// approval authority and mirrors their state locally. The local store is a
// cache of the authority's decisions, never the system of record: this layer
// only writes pending on create and thereafter only statuses the authority
// itself reported.
package withdrawal

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/internal/dedup"
	"github.com/novadex/wallet-layer/internal/errors"
	"github.com/novadex/wallet-layer/internal/gateway"
	"github.com/novadex/wallet-layer/pkg/logger"
)

// Authority is the outbound surface of the approval authority.
type Authority interface {
	Submit(ctx context.Context, req gateway.SubmitRequest) (*gateway.AuthorityResponse, error)
	QueryStatus(ctx context.Context, requestID string) (*gateway.AuthorityResponse, error)
}

// Service handles the withdrawal request lifecycle.
type Service struct {
	store     storage.WithdrawalStore
	authority Authority
	dedupe    *dedup.Cache
	log       *logger.Logger
}

// New constructs a withdrawal service. A nil cache gets the default window.
func New(store storage.WithdrawalStore, authority Authority, cache *dedup.Cache, log *logger.Logger) *Service {
	if cache == nil {
		cache = dedup.NewCache(dedup.DefaultWindow)
	}
	if log == nil {
		log = logger.NewDefault("withdrawal")
	}
	return &Service{store: store, authority: authority, dedupe: cache, log: log}
}

// CreateResult is the outcome of a Create call. MirrorErr is non-nil when the
// authority accepted the request but the local mirror write failed; the
// caller decides whether that degrades or fails the request.
type CreateResult struct {
	Request   wallet.WithdrawalRequest
	Authority *gateway.AuthorityResponse
	MirrorErr error
}

// Create validates the submission, screens it through the duplicate cache,
// forwards it to the authority and mirrors the accepted request locally as
// pending. Validation happens before any network or storage write, and every
// failure carries its own user-facing reason. No store lock is held while the
// authority call is in flight.
func (s *Service) Create(ctx context.Context, userAddress, token string, amount float64, recipientAddress string) (CreateResult, error) {
	if !wallet.ValidAddress(recipientAddress) {
		s.log.LogSecurityEvent("invalid_address_attempt", "warning", map[string]interface{}{
			"recipient": recipientAddress,
			"user":      userAddress,
			"token":     token,
			"amount":    amount,
		})
		return CreateResult{}, errors.InvalidArgument("invalid recipient address: must start with 0x followed by 40 hex characters")
	}
	if !wallet.ValidAddress(userAddress) {
		return CreateResult{}, errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}
	if strings.TrimSpace(token) == "" {
		return CreateResult{}, errors.InvalidArgument("token is required")
	}
	if !wallet.ValidAmount(amount) {
		return CreateResult{}, errors.InvalidArgument("invalid amount: must be a finite number greater than zero")
	}

	userAddress = wallet.NormalizeAddress(userAddress)
	if !s.dedupe.Allow(userAddress, token, amount, recipientAddress) {
		s.log.LogSecurityEvent("duplicate_withdrawal_suppressed", "info", map[string]interface{}{
			"user":   userAddress,
			"token":  token,
			"amount": amount,
		})
		return CreateResult{}, errors.DuplicateRequest("an identical request is already being processed, wait a few seconds before retrying")
	}

	resp, err := s.authority.Submit(ctx, gateway.SubmitRequest{
		Token:       token,
		Amount:      amount,
		Address:     recipientAddress,
		UserAddress: userAddress,
	})
	if err != nil {
		return CreateResult{}, err
	}

	requestID := resp.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req, mirrorErr := s.mirrorCreate(ctx, wallet.WithdrawalRequest{
		RequestID:        requestID,
		UserAddress:      userAddress,
		Token:            token,
		Amount:           amount,
		RecipientAddress: recipientAddress,
		Status:           wallet.WithdrawalPending,
	})

	s.log.WithField("request_id", requestID).
		WithField("user", userAddress).
		WithField("token", token).
		Info("withdrawal request forwarded")

	return CreateResult{Request: req, Authority: resp, MirrorErr: mirrorErr}, nil
}

// mirrorCreate inserts the local pending row. A requestId collision with the
// same submission means the mirror already knows the request, which is a
// successful no-op for a create the authority has accepted. A collision with
// a different submission is a genuine conflict.
func (s *Service) mirrorCreate(ctx context.Context, req wallet.WithdrawalRequest) (wallet.WithdrawalRequest, error) {
	created, err := s.store.CreateWithdrawal(ctx, req)
	if err == nil {
		return created, nil
	}
	if err == storage.ErrDuplicateID {
		existing, getErr := s.store.GetWithdrawal(ctx, req.RequestID)
		if getErr == nil {
			if existing.UserAddress == req.UserAddress &&
				existing.Token == req.Token &&
				existing.Amount == req.Amount &&
				existing.RecipientAddress == req.RecipientAddress {
				return existing, nil
			}
			return req, errors.DuplicateRequestID(req.RequestID)
		}
		err = getErr
	}
	s.log.WithError(err).WithField("request_id", req.RequestID).
		Error("withdrawal mirror write failed")
	return req, errors.StorageFailure(err)
}

// Status queries the authority for the request's current state and, when the
// reported status is a legal step forward, folds it into the local mirror.
// Mirror failures never fail the query: the authority's answer is the answer.
func (s *Service) Status(ctx context.Context, requestID string) (*gateway.AuthorityResponse, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, errors.InvalidArgument("request id is required")
	}

	resp, err := s.authority.QueryStatus(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if reported := wallet.WithdrawalStatus(resp.Status); wallet.ValidWithdrawalStatus(reported) {
		if _, err := s.UpdateStatus(ctx, requestID, reported); err != nil {
			s.log.WithError(err).WithField("request_id", requestID).
				Debug("authority status not mirrored")
		}
	}
	return resp, nil
}

// UpdateStatus overwrites the local status with one a caller confirmed with
// the authority. Backward transitions out of a terminal state are refused;
// the authority is trusted for everything the transition table allows.
func (s *Service) UpdateStatus(ctx context.Context, requestID string, status wallet.WithdrawalStatus) (wallet.WithdrawalRequest, error) {
	if !wallet.ValidWithdrawalStatus(status) {
		return wallet.WithdrawalRequest{}, errors.InvalidArgument("invalid withdrawal status: must be pending, approved, rejected or completed")
	}

	current, err := s.store.GetWithdrawal(ctx, requestID)
	if err == storage.ErrNotFound {
		return wallet.WithdrawalRequest{}, errors.NotFound("withdrawal request", requestID)
	}
	if err != nil {
		return wallet.WithdrawalRequest{}, errors.StorageFailure(err)
	}

	if !wallet.CanTransition(current.Status, status) {
		return wallet.WithdrawalRequest{}, errors.InvalidArgument("illegal status transition").
			WithDetails("from", string(current.Status)).
			WithDetails("to", string(status))
	}
	if current.Status == status {
		return current, nil
	}

	updated, err := s.store.UpdateWithdrawalStatus(ctx, requestID, status)
	if err == storage.ErrNotFound {
		return wallet.WithdrawalRequest{}, errors.NotFound("withdrawal request", requestID)
	}
	if err != nil {
		return wallet.WithdrawalRequest{}, errors.StorageFailure(err)
	}

	s.log.WithField("request_id", requestID).
		WithField("from", string(current.Status)).
		WithField("to", string(status)).
		Info("withdrawal status updated")
	return updated, nil
}

// List returns the user's locally mirrored requests, newest first. A storage
// failure degrades to an empty list to keep the view available.
func (s *Service) List(ctx context.Context, userAddress string) ([]wallet.WithdrawalRequest, error) {
	if !wallet.ValidAddress(userAddress) {
		return nil, errors.InvalidArgument("invalid user address: must start with 0x followed by 40 hex characters")
	}

	reqs, err := s.store.ListWithdrawals(ctx, userAddress)
	if err != nil {
		s.log.WithError(err).WithField("user", wallet.NormalizeAddress(userAddress)).
			Warn("withdrawal list read failed, returning empty view")
		return []wallet.WithdrawalRequest{}, nil
	}
	if reqs == nil {
		reqs = []wallet.WithdrawalRequest{}
	}
	return reqs, nil
}
