package nftstake

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"nftstake/core/events"
	"nftstake/core/types"
	"nftstake/native/common"
)

// ErrUnknownToken is returned by registries for tokens that were never minted.
// The engine reports it to callers as an ownership failure.
var ErrUnknownToken = errors.New("nftstake: unknown token")

var errCustodyMismatch = errors.New("nftstake: registry and ledger disagree on token custody")

type engineState interface {
	NFTStakeParamsGet() (*Params, bool, error)
	NFTStakeParamsPut(params *Params) error
	NFTStakeRecordGet(tokenID uint64) (*StakeRecord, bool, error)
	NFTStakeRecordPut(record *StakeRecord) error
	NFTStakeHolderTokensGet(holder [20]byte) ([]uint64, error)
	NFTStakeHolderTokensPut(holder [20]byte, tokenIDs []uint64) error
	NFTStakeRewardAccountGet(holder [20]byte) (*RewardAccount, bool, error)
	NFTStakeRewardAccountPut(account *RewardAccount) error
}

// TokenRegistry is the owner-of-record for every unique token.
type TokenRegistry interface {
	OwnerOf(tokenID uint64) ([20]byte, error)
	TransferCustody(from, to [20]byte, tokenID uint64) error
}

// Payout credits settled rewards to a holder.
type Payout interface {
	Credit(holder [20]byte, amount *big.Int) error
}

// Engine implements the staking ledger state machine on top of an injected
// state backend, token registry and payout collaborator. It is not safe for
// concurrent use; callers serialise operations.
type Engine struct {
	state    engineState
	registry TokenRegistry
	payout   Payout
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs a staking engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the token registry consulted for ownership.
func (e *Engine) SetRegistry(registry TokenRegistry) { e.registry = registry }

// SetPayout configures the collaborator credited on reward claims. A nil
// payout leaves settlement to the reward accounts alone.
func (e *Engine) SetPayout(payout Payout) { e.payout = payout }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func isZeroAddress(a [20]byte) bool {
	var zero [20]byte
	return a == zero
}

// params loads the configuration once for the current operation.
func (e *Engine) params() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, ok, err := e.state.NFTStakeParamsGet()
	if err != nil {
		return nil, err
	}
	if !ok || params == nil {
		return nil, ErrNotInitialized
	}
	return params, nil
}

func (e *Engine) custodyParams() (*Params, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if e.registry == nil {
		return nil, errNilRegistry
	}
	return params, nil
}

// Initialize stores the ledger configuration. It succeeds exactly once.
func (e *Engine) Initialize(init InitParams) (*Params, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.NFTStakeParamsGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	if isZeroAddress(init.Admin) || isZeroAddress(init.Custodian) {
		return nil, ErrInvalidAddress
	}
	version := init.Version
	if version == 0 {
		version = LatestParamsVersion
	}
	params := &Params{
		Admin:           init.Admin,
		Custodian:       init.Custodian,
		Registry:        init.Registry,
		RewardRate:      init.RewardRate,
		ClaimDelay:      init.ClaimDelay,
		UnbondingPeriod: init.UnbondingPeriod,
		Version:         version,
		InitializedAt:   e.now(),
	}
	if err := e.state.NFTStakeParamsPut(params); err != nil {
		return nil, err
	}
	e.emit(InitializedEvent(params))
	return params.Clone(), nil
}

// checkBatch enforces the size bound before any other validation and rejects
// duplicate identifiers.
func checkBatch(tokenIDs []uint64) error {
	if len(tokenIDs) == 0 {
		return ErrEmptyBatch
	}
	if len(tokenIDs) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	seen := make(map[uint64]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateToken, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// StakeOne moves a token owned by caller into custody and opens a record.
func (e *Engine) StakeOne(caller [20]byte, tokenID uint64) (*StakeRecord, error) {
	records, err := e.stake(caller, []uint64{tokenID}, false)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// StakeBatch stakes up to MaxBatchSize tokens atomically.
func (e *Engine) StakeBatch(caller [20]byte, tokenIDs []uint64) ([]*StakeRecord, error) {
	return e.stake(caller, tokenIDs, true)
}

func (e *Engine) stake(caller [20]byte, tokenIDs []uint64, batch bool) ([]*StakeRecord, error) {
	params, err := e.custodyParams()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(params, ModuleName); err != nil {
		return nil, err
	}
	if batch {
		if err := checkBatch(tokenIDs); err != nil {
			return nil, err
		}
	}
	ownershipErr := ErrNotTokenOwner
	if batch {
		ownershipErr = ErrBatchNotOwned
	}
	for _, id := range tokenIDs {
		owner, err := e.registry.OwnerOf(id)
		if errors.Is(err, ErrUnknownToken) {
			return nil, fmt.Errorf("%w: token %d", ownershipErr, id)
		}
		if err != nil {
			return nil, err
		}
		if owner != caller {
			return nil, fmt.Errorf("%w: token %d", ownershipErr, id)
		}
		existing, ok, err := e.state.NFTStakeRecordGet(id)
		if err != nil {
			return nil, err
		}
		if ok && existing != nil && existing.Status.Live() {
			return nil, fmt.Errorf("%w: token %d", errCustodyMismatch, id)
		}
	}
	if err := e.moveCustody(caller, params.Custodian, tokenIDs); err != nil {
		return nil, err
	}
	now := e.now()
	records := make([]*StakeRecord, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		records = append(records, &StakeRecord{
			TokenID:     id,
			Holder:      caller,
			StakedAt:    now,
			LastClaimAt: now,
			Status:      StatusStaked,
		})
	}
	if err := e.persistStake(caller, records); err != nil {
		e.revertCustody(params.Custodian, caller, tokenIDs)
		return nil, err
	}
	if batch {
		e.emit(StakedBatchEvent(caller, tokenIDs, now))
	} else {
		e.emit(StakedEvent(caller, tokenIDs[0], now))
	}
	out := make([]*StakeRecord, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (e *Engine) persistStake(holder [20]byte, records []*StakeRecord) error {
	ids := make([]uint64, 0, len(records))
	for _, rec := range records {
		if err := e.state.NFTStakeRecordPut(rec); err != nil {
			return err
		}
		ids = append(ids, rec.TokenID)
	}
	return e.indexAdd(holder, ids)
}

// moveCustody transfers every token from -> to. A failure part way through
// returns the already moved tokens before reporting the error.
func (e *Engine) moveCustody(from, to [20]byte, tokenIDs []uint64) error {
	for i, id := range tokenIDs {
		if err := e.registry.TransferCustody(from, to, id); err != nil {
			e.revertCustody(to, from, tokenIDs[:i])
			return fmt.Errorf("nftstake: transfer custody of token %d: %w", id, err)
		}
	}
	return nil
}

func (e *Engine) revertCustody(from, to [20]byte, tokenIDs []uint64) {
	for i := len(tokenIDs) - 1; i >= 0; i-- {
		_ = e.registry.TransferCustody(from, to, tokenIDs[i])
	}
}

func (e *Engine) indexAdd(holder [20]byte, ids []uint64) error {
	current, err := e.state.NFTStakeHolderTokensGet(holder)
	if err != nil {
		return err
	}
	set := make(map[uint64]struct{}, len(current)+len(ids))
	for _, id := range current {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return e.state.NFTStakeHolderTokensPut(holder, sortedIDs(set))
}

func (e *Engine) indexRemove(holder [20]byte, id uint64) error {
	current, err := e.state.NFTStakeHolderTokensGet(holder)
	if err != nil {
		return err
	}
	set := make(map[uint64]struct{}, len(current))
	for _, existing := range current {
		if existing != id {
			set[existing] = struct{}{}
		}
	}
	return e.state.NFTStakeHolderTokensPut(holder, sortedIDs(set))
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnstakeOne starts the unbonding clock for a staked token held by caller.
func (e *Engine) UnstakeOne(caller [20]byte, tokenID uint64) (*StakeRecord, error) {
	records, err := e.unstake(caller, []uint64{tokenID}, false)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// UnstakeBatch starts unbonding for up to MaxBatchSize tokens atomically.
func (e *Engine) UnstakeBatch(caller [20]byte, tokenIDs []uint64) ([]*StakeRecord, error) {
	return e.unstake(caller, tokenIDs, true)
}

func (e *Engine) unstake(caller [20]byte, tokenIDs []uint64, batch bool) ([]*StakeRecord, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(params, ModuleName); err != nil {
		return nil, err
	}
	if batch {
		if err := checkBatch(tokenIDs); err != nil {
			return nil, err
		}
	}
	records := make([]*StakeRecord, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		rec, ok, err := e.state.NFTStakeRecordGet(id)
		if err != nil {
			return nil, err
		}
		if !ok || rec == nil || rec.Holder != caller || !rec.Status.Live() {
			return nil, fmt.Errorf("%w: token %d", ErrNotRecordHolder, id)
		}
		if rec.Status != StatusStaked {
			return nil, fmt.Errorf("%w: token %d", ErrNotStaked, id)
		}
		records = append(records, rec)
	}
	now := e.now()
	previous := make([]*StakeRecord, 0, len(records))
	for _, rec := range records {
		previous = append(previous, rec.Clone())
		rec.Status = StatusUnbonding
		rec.UnstakeRequestedAt = now
		if err := e.state.NFTStakeRecordPut(rec); err != nil {
			e.restoreRecords(previous)
			return nil, err
		}
	}
	releaseAt := now + params.UnbondingPeriod
	if batch {
		e.emit(UnstakedBatchEvent(caller, tokenIDs, now, releaseAt))
	} else {
		e.emit(UnstakedEvent(caller, tokenIDs[0], now, releaseAt))
	}
	out := make([]*StakeRecord, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out, nil
}

// Withdraw returns custody of an unbonded token to its recorded holder. Any
// caller may trigger it; the destination is fixed by the record.
func (e *Engine) Withdraw(caller [20]byte, tokenID uint64) (*StakeRecord, error) {
	params, err := e.custodyParams()
	if err != nil {
		return nil, err
	}
	rec, ok, err := e.state.NFTStakeRecordGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || rec == nil || rec.Status != StatusUnbonding {
		return nil, fmt.Errorf("%w: token %d", ErrNotUnstaked, tokenID)
	}
	now := e.now()
	if now-rec.UnstakeRequestedAt < params.UnbondingPeriod {
		return nil, fmt.Errorf("%w: token %d releases at %d", ErrUnbonding, tokenID, rec.UnstakeRequestedAt+params.UnbondingPeriod)
	}
	if err := e.moveCustody(params.Custodian, rec.Holder, []uint64{tokenID}); err != nil {
		return nil, err
	}
	rec.Status = StatusWithdrawn
	rec.UnstakeRequestedAt = 0
	if err := e.state.NFTStakeRecordPut(rec); err != nil {
		e.revertCustody(rec.Holder, params.Custodian, []uint64{tokenID})
		return nil, err
	}
	if err := e.indexRemove(rec.Holder, tokenID); err != nil {
		e.revertCustody(rec.Holder, params.Custodian, []uint64{tokenID})
		return nil, err
	}
	e.emit(WithdrawnEvent(rec.Holder, caller, tokenID, now))
	return rec.Clone(), nil
}

func (e *Engine) stakedRecords(holder [20]byte) ([]*StakeRecord, error) {
	ids, err := e.state.NFTStakeHolderTokensGet(holder)
	if err != nil {
		return nil, err
	}
	out := make([]*StakeRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := e.state.NFTStakeRecordGet(id)
		if err != nil {
			return nil, err
		}
		if !ok || rec == nil || rec.Holder != holder {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ClaimRewards settles every staked record of caller. The claim is all or
// nothing: the claim delay is evaluated against the most recently settled
// record of the position.
func (e *Engine) ClaimRewards(caller [20]byte) (*ClaimResult, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	records, err := e.stakedRecords(caller)
	if err != nil {
		return nil, err
	}
	now := e.now()
	position, err := settle(records, params.RewardRate, now)
	if err != nil {
		return nil, err
	}
	if position.empty() || position.total.IsZero() {
		return nil, ErrNothingToClaim
	}
	if position.minElapsed < params.ClaimDelay {
		return nil, fmt.Errorf("%w: claimable at %d", ErrClaimDelay, position.claimableAt(params.ClaimDelay))
	}
	amount := position.amount()

	previous := make([]*StakeRecord, 0, len(position.tokens))
	for _, rec := range records {
		if rec.Status != StatusStaked {
			continue
		}
		previous = append(previous, rec.Clone())
		rec.LastClaimAt = now
		if err := e.state.NFTStakeRecordPut(rec); err != nil {
			e.restoreRecords(previous)
			return nil, err
		}
	}
	account, ok, err := e.state.NFTStakeRewardAccountGet(caller)
	if err != nil {
		e.restoreRecords(previous)
		return nil, err
	}
	if !ok || account == nil {
		account = newRewardAccount(caller)
	}
	before := account.Clone()
	if account.TotalClaimed == nil {
		account.TotalClaimed = big.NewInt(0)
	}
	account.TotalClaimed = new(big.Int).Add(account.TotalClaimed, amount)
	account.LastClaimAt = now
	account.Claims++
	if err := e.state.NFTStakeRewardAccountPut(account); err != nil {
		e.restoreRecords(previous)
		return nil, err
	}
	if e.payout != nil {
		if err := e.payout.Credit(caller, new(big.Int).Set(amount)); err != nil {
			e.restoreRecords(previous)
			_ = e.state.NFTStakeRewardAccountPut(before)
			return nil, fmt.Errorf("nftstake: credit rewards: %w", err)
		}
	}
	e.emit(RewardsClaimedEvent(caller, amount.String(), len(position.tokens), now))
	return &ClaimResult{
		Holder:    caller,
		Amount:    amount,
		TokenIDs:  append([]uint64(nil), position.tokens...),
		ClaimedAt: now,
	}, nil
}

func (e *Engine) restoreRecords(records []*StakeRecord) {
	for _, rec := range records {
		_ = e.state.NFTStakeRecordPut(rec)
	}
}
