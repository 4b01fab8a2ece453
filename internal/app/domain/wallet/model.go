// Package wallet defines the core domain types for the wallet layer: token
// balances, journaled transactions and withdrawal requests.
package wallet

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// TxType enumerates the value-moving event kinds recorded in the journal.
type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
	TxSwap       TxType = "swap"
)

// TxStatus enumerates journal transaction states.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// WithdrawalStatus enumerates withdrawal request states. The local store is a
// mirror; the approval authority owns the real state.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

// BalanceOp selects the mutation applied to a balance row.
type BalanceOp string

const (
	OpSet      BalanceOp = "set"
	OpAdd      BalanceOp = "add"
	OpSubtract BalanceOp = "subtract"
)

// Balance is one (user, token) ledger row.
type Balance struct {
	UserAddress string    `json:"userAddress"`
	Token       string    `json:"token"`
	Balance     float64   `json:"balance"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Transaction is one journaled value-moving event, deduplicated by TxHash.
type Transaction struct {
	UserAddress string    `json:"userAddress"`
	TxHash      string    `json:"txHash"`
	Token       string    `json:"token"`
	Amount      float64   `json:"amount"`
	Type        TxType    `json:"type"`
	Status      TxStatus  `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WithdrawalRequest mirrors a request forwarded to the approval authority.
type WithdrawalRequest struct {
	RequestID        string           `json:"requestId"`
	UserAddress      string           `json:"userAddress"`
	Token            string           `json:"token"`
	Amount           float64          `json:"amount"`
	RecipientAddress string           `json:"recipientAddress"`
	Status           WithdrawalStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// User is a known wallet address, created implicitly on first touch.
type User struct {
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress lowercases an address to its canonical form. Addresses are
// compared case-insensitively everywhere, so stores key on this form.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidAmount reports whether v is a finite, strictly positive amount.
func ValidAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// ValidTxType reports whether t is a known transaction type.
func ValidTxType(t TxType) bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxSwap:
		return true
	}
	return false
}

// ValidTxStatus reports whether s is a known transaction status.
func ValidTxStatus(s TxStatus) bool {
	switch s {
	case TxPending, TxConfirmed, TxFailed:
		return true
	}
	return false
}

// ValidWithdrawalStatus reports whether s is a known withdrawal status.
func ValidWithdrawalStatus(s WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalCompleted:
		return true
	}
	return false
}

// statusRank orders withdrawal statuses along the request lifecycle.
// Rejected and completed share the terminal rank.
func statusRank(s WithdrawalStatus) int {
	switch s {
	case WithdrawalPending:
		return 0
	case WithdrawalApproved:
		return 1
	case WithdrawalRejected, WithdrawalCompleted:
		return 2
	}
	return -1
}

// CanTransition reports whether moving a withdrawal from one status to
// another is legal. The authority is trusted for any forward move, including
// skips over states that were never observed locally (a request approved and
// completed between two polls goes straight pending -> completed). Only
// rewinds out of a later or terminal state are refused.
func CanTransition(from, to WithdrawalStatus) bool {
	if from == to {
		return true
	}
	fromRank, toRank := statusRank(from), statusRank(to)
	if fromRank < 0 || toRank < 0 {
		return false
	}
	return toRank > fromRank
}
