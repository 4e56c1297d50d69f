package domain

import (
	"errors"
)

// Kind classifies a failure so callers can tell "fix your input" apart from
// "wait and retry" and "this will never succeed".
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindExternal     Kind = "external"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// Error is a structured failure carrying a stable machine-readable code.
// Two Errors match under errors.Is when their codes match, so a wrapped
// external failure still matches its sentinel.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// External wraps a dependency failure under one of the sentinel codes while
// keeping the cause reachable through errors.Unwrap.
func External(sentinel *Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	// Already classified under the same code: keep the original chain.
	if errors.Is(cause, sentinel) {
		return cause
	}
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: sentinel.Msg, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// Infrastructure errors returned by caches, locks and blob storage.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
)

// Not found.
var (
	ErrMarketNotFound   = newError(KindNotFound, "market_not_found", "market not found")
	ErrPositionNotFound = newError(KindNotFound, "position_not_found", "position not found")
)

// State conflicts.
var (
	ErrMarketExpired      = newError(KindConflict, "market_expired", "market expired")
	ErrMarketNotExpired   = newError(KindConflict, "market_not_expired", "market not yet expired")
	ErrMarketResolved     = newError(KindConflict, "market_resolved", "market already resolved")
	ErrAlreadyPredicted   = newError(KindConflict, "already_predicted", "address already predicted on market")
	ErrMarketNotResolved  = newError(KindConflict, "market_not_resolved", "market not resolved")
	ErrNotWinningPosition = newError(KindConflict, "not_winning_position", "not a winning position")
	ErrReentrantCall      = newError(KindConflict, "reentrant_call", "reentrant call rejected")

	// ErrAlreadyResolved is returned by a second resolution attempt.
	ErrAlreadyResolved = ErrMarketResolved
)

// Validation.
var (
	ErrZeroStake               = newError(KindValidation, "zero_stake", "stake must be greater than zero")
	ErrStakeBelowMinimum       = newError(KindValidation, "stake_below_minimum", "stake below market minimum")
	ErrValueMismatch           = newError(KindValidation, "value_mismatch", "value sent must equal stake plus fee")
	ErrEmptyName               = newError(KindValidation, "empty_name", "market name must not be empty")
	ErrInvalidExpiration       = newError(KindValidation, "invalid_expiration", "expiration must be in the future")
	ErrInvalidThreshold        = newError(KindValidation, "invalid_threshold", "threshold must be greater than zero")
	ErrOracleNotRegistered     = newError(KindValidation, "oracle_not_registered", "no oracle registered for market")
	ErrOracleAlreadyRegistered = newError(KindValidation, "oracle_already_registered", "oracle already registered for market")
	ErrInvalidOutcome          = newError(KindValidation, "invalid_outcome", "invalid outcome")
	ErrInvalidAddress          = newError(KindValidation, "invalid_address", "address must be non-zero")
	ErrInvalidFee              = newError(KindValidation, "invalid_fee", "fee must not exceed 10000 basis points")
	ErrInvalidAmount           = newError(KindValidation, "invalid_amount", "invalid amount")
	ErrInvalidProvider         = newError(KindValidation, "invalid_provider", "unknown oracle provider")
	ErrAmountOverflow          = newError(KindValidation, "amount_overflow", "amount overflows 256 bits")
	ErrAmountUnderflow         = newError(KindValidation, "amount_underflow", "amount underflow")
)

// External failures.
var (
	ErrCollectFailed        = newError(KindExternal, "collect_failed", "stake collection failed")
	ErrFeeTransferFailed    = newError(KindExternal, "fee_transfer_failed", "fee transfer failed")
	ErrRewardTransferFailed = newError(KindExternal, "reward_transfer_failed", "reward transfer failed")
	ErrOracleStale          = newError(KindExternal, "oracle_stale", "oracle data stale")
	ErrOracleInvalid        = newError(KindExternal, "oracle_invalid", "oracle data invalid")
	ErrOracleUnavailable    = newError(KindExternal, "oracle_unavailable", "oracle unavailable")
)

// Authorization.
var (
	ErrUnauthorized     = newError(KindUnauthorized, "unauthorized", "caller not authorized")
	ErrNotPositionOwner = newError(KindUnauthorized, "not_position_owner", "caller does not own position")
)

// ErrInconsistentState signals a broken invariant, e.g. a winning position on
// a market whose winning total is zero.
var ErrInconsistentState = newError(KindInternal, "inconsistent_state", "inconsistent state")
