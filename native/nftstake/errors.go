package nftstake

import (
	"errors"

	"nftstake/native/common"
)

var (
	errNilState    = errors.New("nftstake: state not configured")
	errNilRegistry = errors.New("nftstake: token registry not configured")
)

// Authorization failures.
var (
	// ErrNotTokenOwner is returned when the registry does not list the caller
	// as the owner of a token being staked.
	ErrNotTokenOwner = errors.New("nftstake: you do not own this token")
	// ErrBatchNotOwned is returned when any token of a batch stake is not
	// owned by the caller.
	ErrBatchNotOwned = errors.New("nftstake: there is a token you do not own in the batch")
	// ErrNotRecordHolder is returned when the caller is not the recorded holder
	// of a staked token.
	ErrNotRecordHolder = errors.New("nftstake: you do not own this token to unstake it")
	// ErrNotAdmin is returned when a non-administrator invokes an admin operation.
	ErrNotAdmin = errors.New("nftstake: caller is not the administrator")
)

// Timing failures.
var (
	// ErrClaimDelay is returned when the claim delay has not elapsed.
	ErrClaimDelay = errors.New("nftstake: must wait the claim delay")
	// ErrUnbonding is returned when the unbonding period has not elapsed.
	ErrUnbonding = errors.New("nftstake: must wait for the unbonding period")
)

// State failures.
var (
	// ErrNothingToClaim is returned when the caller has no staked tokens or
	// nothing has accrued since the last claim.
	ErrNothingToClaim = errors.New("nftstake: nothing to claim")
	// ErrNotStaked is returned when unstaking a token that already left the
	// staked state.
	ErrNotStaked = errors.New("nftstake: token is not staked")
	// ErrNotUnstaked is returned when withdrawing a token that is not unbonding.
	ErrNotUnstaked = errors.New("nftstake: cannot withdraw until you unstake")
	// ErrEmptyBatch is returned for batch calls without tokens.
	ErrEmptyBatch = errors.New("nftstake: batch must contain at least one token")
	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("nftstake: you can only process 10 tokens in a single batch")
	// ErrDuplicateToken is returned when a batch lists the same token twice.
	ErrDuplicateToken = errors.New("nftstake: duplicate token in batch")
	// ErrAlreadyInitialized is returned on a second initialisation.
	ErrAlreadyInitialized = errors.New("nftstake: ledger already initialized")
	// ErrNotInitialized is returned by every operation before initialisation.
	ErrNotInitialized = errors.New("nftstake: ledger not initialized")
	// ErrNotPaused is returned when unpausing an active ledger.
	ErrNotPaused = errors.New("nftstake: ledger is not paused")
	// ErrOperationUnavailable is returned when an admin operation is not part
	// of the ledger's configured operation set.
	ErrOperationUnavailable = errors.New("nftstake: operation unavailable at current params version")
	// ErrVersionDowngrade is returned when an upgrade does not increase the version.
	ErrVersionDowngrade = errors.New("nftstake: params version must increase")
	// ErrRewardOverflow is returned when accrued rewards exceed 256 bits.
	ErrRewardOverflow = errors.New("nftstake: reward overflow")
	// ErrRecordNotFound is returned by queries for unknown tokens.
	ErrRecordNotFound = errors.New("nftstake: stake record not found")
	// ErrInvalidAddress is returned when an address argument is the zero address.
	ErrInvalidAddress = errors.New("nftstake: address must not be zero")
)

// ErrPaused is returned by custody entry points while the ledger is paused.
// It aliases the shared module pause error so callers can match either.
var ErrPaused = common.ErrModulePaused

// ErrorKind classifies ledger failures for transports and metrics.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindAuthorization ErrorKind = "authorization"
	KindTiming        ErrorKind = "timing"
	KindState         ErrorKind = "state"
	KindAvailability  ErrorKind = "availability"
	KindValidation    ErrorKind = "validation"
	KindInternal      ErrorKind = "internal"
)

// KindOf maps an error returned by the engine onto its taxonomy bucket.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotTokenOwner), errors.Is(err, ErrBatchNotOwned),
		errors.Is(err, ErrNotRecordHolder), errors.Is(err, ErrNotAdmin):
		return KindAuthorization
	case errors.Is(err, ErrClaimDelay), errors.Is(err, ErrUnbonding):
		return KindTiming
	case errors.Is(err, ErrPaused), errors.Is(err, ErrNotInitialized):
		return KindAvailability
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrDuplicateToken):
		return KindValidation
	case errors.Is(err, ErrNothingToClaim), errors.Is(err, ErrNotUnstaked), errors.Is(err, ErrNotStaked),
		errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, ErrNotPaused), errors.Is(err, ErrOperationUnavailable),
		errors.Is(err, ErrVersionDowngrade), errors.Is(err, ErrRewardOverflow),
		errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrUnknownToken):
		return KindState
	default:
		return KindInternal
	}
}
