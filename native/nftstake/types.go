package nftstake

import "math/big"

// ModuleName identifies the staking ledger for pause guards and metrics.
const ModuleName = "nftstake"

// MaxBatchSize caps the number of tokens a single batch call may touch.
const MaxBatchSize = 10

// Status captures the lifecycle stage of a stake record.
type Status uint8

const (
	// StatusNone marks the zero value; no record exists.
	StatusNone Status = iota
	// StatusStaked indicates the token sits in custody and accrues rewards.
	StatusStaked
	// StatusUnbonding indicates an unstake was requested and the unbonding
	// clock is running. No rewards accrue.
	StatusUnbonding
	// StatusWithdrawn indicates custody returned to the holder.
	StatusWithdrawn
)

// String renders the status for events and API payloads.
func (s Status) String() string {
	switch s {
	case StatusStaked:
		return "staked"
	case StatusUnbonding:
		return "unbonding"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return "none"
	}
}

// Valid reports whether the status is one of the persisted lifecycle stages.
func (s Status) Valid() bool {
	return s == StatusStaked || s == StatusUnbonding || s == StatusWithdrawn
}

// Live reports whether the record still holds custody of the token.
func (s Status) Live() bool {
	return s == StatusStaked || s == StatusUnbonding
}

// StakeRecord tracks one token's custody and accrual lifecycle.
type StakeRecord struct {
	TokenID            uint64   `json:"tokenId"`
	Holder             [20]byte `json:"holder"`
	StakedAt           int64    `json:"stakedAt"`
	LastClaimAt        int64    `json:"lastClaimAt"`
	UnstakeRequestedAt int64    `json:"unstakeRequestedAt"`
	Status             Status   `json:"status"`
}

// UnstakeRequested returns when unbonding started. Zero is a valid time, so
// the status decides whether a request exists.
func (r *StakeRecord) UnstakeRequested() (int64, bool) {
	if r == nil || r.Status != StatusUnbonding {
		return 0, false
	}
	return r.UnstakeRequestedAt, true
}

// Clone returns a copy of the record.
func (r *StakeRecord) Clone() *StakeRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// RewardAccount aggregates the settled rewards of a holder.
type RewardAccount struct {
	Holder       [20]byte `json:"holder"`
	TotalClaimed *big.Int `json:"totalClaimed"`
	LastClaimAt  int64    `json:"lastClaimAt"`
	Claims       uint64   `json:"claims"`
}

// Clone returns a deep copy of the reward account.
func (a *RewardAccount) Clone() *RewardAccount {
	if a == nil {
		return nil
	}
	clone := *a
	if a.TotalClaimed != nil {
		clone.TotalClaimed = new(big.Int).Set(a.TotalClaimed)
	}
	return &clone
}

func newRewardAccount(holder [20]byte) *RewardAccount {
	return &RewardAccount{Holder: holder, TotalClaimed: big.NewInt(0)}
}

// Operation set versions. Each version is a superset of the previous one.
const (
	// ParamsVersionV1 allows pause and unpause.
	ParamsVersionV1 uint32 = 1
	// ParamsVersionV2 adds the economic parameter setters.
	ParamsVersionV2 uint32 = 2
	// LatestParamsVersion is applied when initialisation omits a version.
	LatestParamsVersion = ParamsVersionV2
)

// Params is the single process-wide configuration record.
type Params struct {
	Admin           [20]byte `json:"admin"`
	Custodian       [20]byte `json:"custodian"`
	Registry        string   `json:"registry"`
	RewardRate      uint64   `json:"rewardRate"`
	ClaimDelay      int64    `json:"claimDelay"`
	UnbondingPeriod int64    `json:"unbondingPeriod"`
	Paused          bool     `json:"paused"`
	Version         uint32   `json:"version"`
	InitializedAt   int64    `json:"initializedAt"`
}

// Clone returns a copy of the parameters.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// IsPaused implements common.PauseView for the staking module.
func (p *Params) IsPaused(module string) bool {
	return p != nil && module == ModuleName && p.Paused
}

// InitParams carries the one-time initialisation arguments.
type InitParams struct {
	Admin           [20]byte
	Custodian       [20]byte
	Registry        string
	RewardRate      uint64
	UnbondingPeriod int64
	ClaimDelay      int64
	Version         uint32
}

// ClaimResult reports a settled reward claim.
type ClaimResult struct {
	Holder    [20]byte `json:"holder"`
	Amount    *big.Int `json:"amount"`
	TokenIDs  []uint64 `json:"tokenIds"`
	ClaimedAt int64    `json:"claimedAt"`
}

// PendingRewards previews what a claim would pay at the current time.
type PendingRewards struct {
	Holder         [20]byte `json:"holder"`
	Amount         *big.Int `json:"amount"`
	StakedTokens   int      `json:"stakedTokens"`
	ClaimableAt    int64    `json:"claimableAt"`
	ClaimableNow   bool     `json:"claimableNow"`
	ComputedAtUnix int64    `json:"computedAt"`
}
