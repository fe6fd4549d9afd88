package nftstake

import (
	"testing"
)

func TestPauseRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Pause(holderA)
	mustErr(t, err, ErrNotAdmin)
	_, err = f.engine.SetRewardRate(holderA, 5)
	mustErr(t, err, ErrNotAdmin)
	_, err = f.engine.SetClaimDelay(holderA, 5)
	mustErr(t, err, ErrNotAdmin)
	_, err = f.engine.SetUnbondingPeriod(holderA, 5)
	mustErr(t, err, ErrNotAdmin)
	_, err = f.engine.Upgrade(holderA, 3)
	mustErr(t, err, ErrNotAdmin)
}

func TestPauseBlocksEveryCaller(t *testing.T) {
	f := newFixture(t)
	f.registry.mint(admin, 50)
	if _, err := f.engine.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := f.engine.StakeOne(holderA, 1)
	mustErr(t, err, ErrPaused)
	_, err = f.engine.StakeOne(admin, 50)
	mustErr(t, err, ErrPaused)
	_, err = f.engine.StakeBatch(holderB, []uint64{2, 3})
	mustErr(t, err, ErrPaused)
	_, err = f.engine.UnstakeOne(holderA, 1)
	mustErr(t, err, ErrPaused)
	_, err = f.engine.UnstakeBatch(holderA, []uint64{1})
	mustErr(t, err, ErrPaused)

	if _, err := f.engine.Unpause(admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake after unpause: %v", err)
	}
}

func TestPauseTransitions(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Unpause(admin)
	mustErr(t, err, ErrNotPaused)
	params, err := f.engine.Pause(admin)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !params.Paused {
		t.Fatalf("params not paused")
	}
	_, err = f.engine.Pause(admin)
	mustErr(t, err, ErrPaused)
	got := f.events.kinds()
	if got[len(got)-1] != EventTypePaused {
		t.Fatalf("missing pause event: %v", got)
	}
}

func TestClaimAvailableWhilePaused(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.at(90)
	res, err := f.engine.ClaimRewards(holderA)
	if err != nil {
		t.Fatalf("claim while paused: %v", err)
	}
	if res.Amount.Int64() != 90 {
		t.Fatalf("expected 90, got %s", res.Amount)
	}
}

func TestSettersApplyAndEmit(t *testing.T) {
	f := newFixture(t)
	params, err := f.engine.SetRewardRate(admin, 7)
	if err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if params.RewardRate != 7 {
		t.Fatalf("rate not applied: %+v", params)
	}
	last := f.events.events[len(f.events.events)-1]
	if last.Type != EventTypeParamsUpdated || last.Attr("field") != "rewardRate" ||
		last.Attr("previous") != "1" || last.Attr("current") != "7" {
		t.Fatalf("unexpected params event: %+v", last)
	}
	if _, err := f.engine.SetClaimDelay(admin, 10); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	if _, err := f.engine.SetUnbondingPeriod(admin, 5); err != nil {
		t.Fatalf("set unbonding: %v", err)
	}
	stored, err := f.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if stored.ClaimDelay != 10 || stored.UnbondingPeriod != 5 {
		t.Fatalf("setters not persisted: %+v", stored)
	}
}

func TestSettersAcceptZero(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.SetRewardRate(admin, 0); err != nil {
		t.Fatalf("zero rate rejected: %v", err)
	}
	if _, err := f.engine.SetClaimDelay(admin, 0); err != nil {
		t.Fatalf("zero delay rejected: %v", err)
	}
	if _, err := f.engine.SetUnbondingPeriod(admin, 0); err != nil {
		t.Fatalf("zero unbonding rejected: %v", err)
	}
	f.at(500)
	// A zero rate accrues nothing, so the position has nothing to claim.
	_, err := f.engine.ClaimRewards(holderA)
	mustErr(t, err, ErrNothingToClaim)

	if _, err := f.engine.UnstakeOne(holderA, 1); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if _, err := f.engine.Withdraw(holderA, 1); err != nil {
		t.Fatalf("zero unbonding should allow immediate withdraw: %v", err)
	}
}

func TestSettersUnavailableOnV1(t *testing.T) {
	engine := NewEngine()
	state := newMockState()
	engine.SetState(state)
	engine.SetRegistry(newMockRegistry())
	if _, err := engine.Initialize(InitParams{Admin: admin, Custodian: custodian, RewardRate: 1, Version: ParamsVersionV1}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	_, err := engine.SetRewardRate(admin, 3)
	mustErr(t, err, ErrOperationUnavailable)
	if _, err := engine.Pause(admin); err != nil {
		t.Fatalf("pause available on v1: %v", err)
	}

	params, err := engine.Upgrade(admin, ParamsVersionV2)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if params.Version != ParamsVersionV2 || !params.Paused {
		t.Fatalf("upgrade lost state: %+v", params)
	}
	if _, err := engine.SetRewardRate(admin, 3); err != nil {
		t.Fatalf("setter after upgrade: %v", err)
	}
	_, err = engine.Upgrade(admin, ParamsVersionV1)
	mustErr(t, err, ErrVersionDowngrade)
	_, err = engine.Upgrade(admin, ParamsVersionV2)
	mustErr(t, err, ErrVersionDowngrade)
}

func TestUpgradePreservesRecords(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeBatch(holderB, []uint64{2, 3}); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.Upgrade(admin, 3); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	records, err := f.engine.HolderRecords(holderB)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records lost across upgrade: %d", len(records))
	}
}

func TestRateChangeAppliesToFutureClaims(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	f.at(100)
	if _, err := f.engine.SetRewardRate(admin, 3); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	res, err := f.engine.ClaimRewards(holderA)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Accrual is rate at claim time × elapsed since the last claim.
	if res.Amount.Int64() != 300 {
		t.Fatalf("expected 300, got %s", res.Amount)
	}
}
