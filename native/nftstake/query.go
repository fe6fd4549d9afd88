package nftstake

import "math/big"

// Params returns the current configuration.
func (e *Engine) Params() (*Params, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	return params.Clone(), nil
}

// Record returns the stake record for tokenID.
func (e *Engine) Record(tokenID uint64) (*StakeRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	rec, ok, err := e.state.NFTStakeRecordGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// HolderRecords returns the live (staked or unbonding) records of holder
// ordered by token id.
func (e *Engine) HolderRecords(holder [20]byte) ([]*StakeRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	records, err := e.stakedRecords(holder)
	if err != nil {
		return nil, err
	}
	out := make([]*StakeRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status.Live() {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// RewardAccount returns the settled reward totals of holder.
func (e *Engine) RewardAccount(holder [20]byte) (*RewardAccount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, ok, err := e.state.NFTStakeRewardAccountGet(holder)
	if err != nil {
		return nil, err
	}
	if !ok || account == nil {
		return newRewardAccount(holder), nil
	}
	return account.Clone(), nil
}

// PendingRewards previews the claim holder could make right now without
// mutating state.
func (e *Engine) PendingRewards(holder [20]byte) (*PendingRewards, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	records, err := e.stakedRecords(holder)
	if err != nil {
		return nil, err
	}
	now := e.now()
	position, err := settle(records, params.RewardRate, now)
	if err != nil {
		return nil, err
	}
	out := &PendingRewards{
		Holder:         holder,
		Amount:         big.NewInt(0),
		ComputedAtUnix: now,
	}
	if position.empty() {
		return out, nil
	}
	out.Amount = position.amount()
	out.StakedTokens = len(position.tokens)
	out.ClaimableAt = position.claimableAt(params.ClaimDelay)
	out.ClaimableNow = out.Amount.Sign() > 0 && position.minElapsed >= params.ClaimDelay
	return out, nil
}
