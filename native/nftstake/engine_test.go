package nftstake

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"nftstake/core/events"
	"nftstake/core/types"
)

type mockState struct {
	params   *Params
	records  map[uint64]*StakeRecord
	holders  map[[20]byte][]uint64
	accounts map[[20]byte]*RewardAccount
	failPut  bool
}

func newMockState() *mockState {
	return &mockState{
		records:  make(map[uint64]*StakeRecord),
		holders:  make(map[[20]byte][]uint64),
		accounts: make(map[[20]byte]*RewardAccount),
	}
}

func (m *mockState) NFTStakeParamsGet() (*Params, bool, error) {
	if m.params == nil {
		return nil, false, nil
	}
	return m.params.Clone(), true, nil
}

func (m *mockState) NFTStakeParamsPut(params *Params) error {
	m.params = params.Clone()
	return nil
}

func (m *mockState) NFTStakeRecordGet(tokenID uint64) (*StakeRecord, bool, error) {
	rec, ok := m.records[tokenID]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *mockState) NFTStakeRecordPut(record *StakeRecord) error {
	if m.failPut {
		return errors.New("disk full")
	}
	m.records[record.TokenID] = record.Clone()
	return nil
}

func (m *mockState) NFTStakeHolderTokensGet(holder [20]byte) ([]uint64, error) {
	return append([]uint64(nil), m.holders[holder]...), nil
}

func (m *mockState) NFTStakeHolderTokensPut(holder [20]byte, tokenIDs []uint64) error {
	m.holders[holder] = append([]uint64(nil), tokenIDs...)
	return nil
}

func (m *mockState) NFTStakeRewardAccountGet(holder [20]byte) (*RewardAccount, bool, error) {
	acc, ok := m.accounts[holder]
	if !ok {
		return nil, false, nil
	}
	return acc.Clone(), true, nil
}

func (m *mockState) NFTStakeRewardAccountPut(account *RewardAccount) error {
	m.accounts[account.Holder] = account.Clone()
	return nil
}

type mockRegistry struct {
	owners    map[uint64][20]byte
	failToken uint64
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{owners: make(map[uint64][20]byte)}
}

func (r *mockRegistry) mint(owner [20]byte, ids ...uint64) {
	for _, id := range ids {
		r.owners[id] = owner
	}
}

func (r *mockRegistry) OwnerOf(tokenID uint64) ([20]byte, error) {
	owner, ok := r.owners[tokenID]
	if !ok {
		return [20]byte{}, fmt.Errorf("registry: %w", ErrUnknownToken)
	}
	return owner, nil
}

func (r *mockRegistry) TransferCustody(from, to [20]byte, tokenID uint64) error {
	if r.failToken != 0 && r.failToken == tokenID {
		return errors.New("registry: operator not approved")
	}
	if r.owners[tokenID] != from {
		return errors.New("registry: from is not owner")
	}
	r.owners[tokenID] = to
	return nil
}

type mockPayout struct {
	credited map[[20]byte]*big.Int
	fail     bool
}

func (p *mockPayout) Credit(holder [20]byte, amount *big.Int) error {
	if p.fail {
		return errors.New("treasury offline")
	}
	if p.credited == nil {
		p.credited = make(map[[20]byte]*big.Int)
	}
	prev := p.credited[holder]
	if prev == nil {
		prev = big.NewInt(0)
	}
	p.credited[holder] = new(big.Int).Add(prev, amount)
	return nil
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if payload, ok := evt.(interface{ Event() *types.Event }); ok {
		c.events = append(c.events, payload.Event())
	}
}

func (c *captureEmitter) kinds() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Type
	}
	return out
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

var (
	admin     = addr(0xAA)
	custodian = addr(0xCC)
	holderA   = addr(0x01)
	holderB   = addr(0x02)
	holderC   = addr(0x03)
)

type fixture struct {
	engine   *Engine
	state    *mockState
	registry *mockRegistry
	payout   *mockPayout
	events   *captureEmitter
	clock    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine:   NewEngine(),
		state:    newMockState(),
		registry: newMockRegistry(),
		payout:   &mockPayout{},
		events:   &captureEmitter{},
	}
	f.engine.SetState(f.state)
	f.engine.SetRegistry(f.registry)
	f.engine.SetPayout(f.payout)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() int64 { return f.clock })
	if _, err := f.engine.Initialize(InitParams{
		Admin:           admin,
		Custodian:       custodian,
		Registry:        "registry-test",
		RewardRate:      1,
		UnbondingPeriod: 30,
		ClaimDelay:      60,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	f.registry.mint(holderA, 1)
	f.registry.mint(holderB, 2, 3)
	f.registry.mint(holderC, 4)
	return f
}

func (f *fixture) at(ts int64) { f.clock = ts }

func mustErr(t *testing.T, err error, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Initialize(InitParams{Admin: admin, Custodian: custodian})
	mustErr(t, err, ErrAlreadyInitialized)

	params, err := f.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Version != LatestParamsVersion || params.RewardRate != 1 || params.ClaimDelay != 60 || params.UnbondingPeriod != 30 {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestOperationsRequireInitialization(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	engine.SetRegistry(newMockRegistry())
	_, err := engine.StakeOne(holderA, 1)
	mustErr(t, err, ErrNotInitialized)
	_, err = engine.ClaimRewards(holderA)
	mustErr(t, err, ErrNotInitialized)
	_, err = engine.Pause(admin)
	mustErr(t, err, ErrNotInitialized)
}

func TestInitializeRejectsZeroAddresses(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	_, err := engine.Initialize(InitParams{Custodian: custodian})
	mustErr(t, err, ErrInvalidAddress)
}

func TestStakeOneMovesCustody(t *testing.T) {
	f := newFixture(t)
	f.at(5)
	rec, err := f.engine.StakeOne(holderA, 1)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if rec.Status != StatusStaked || rec.StakedAt != 5 || rec.LastClaimAt != 5 || rec.UnstakeRequestedAt != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if f.registry.owners[1] != custodian {
		t.Fatalf("custody not transferred")
	}
	if got := f.events.kinds(); len(got) != 2 || got[1] != EventTypeStaked {
		t.Fatalf("unexpected events: %v", got)
	}
	if f.events.events[1].Attr("tokenId") != "1" {
		t.Fatalf("stake event missing token id: %+v", f.events.events[1])
	}
}

func TestStakeRequiresRegistryOwnership(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.StakeOne(holderB, 1)
	mustErr(t, err, ErrNotTokenOwner)
	_, err = f.engine.StakeOne(holderA, 99)
	mustErr(t, err, ErrNotTokenOwner)
	if _, ok := f.state.records[1]; ok {
		t.Fatalf("record created for foreign stake")
	}
}

func TestRestakeHeldTokenFails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	_, err := f.engine.StakeOne(holderA, 1)
	mustErr(t, err, ErrNotTokenOwner)
}

func TestStakeBatch(t *testing.T) {
	f := newFixture(t)
	records, err := f.engine.StakeBatch(holderB, []uint64{2, 3})
	if err != nil {
		t.Fatalf("batch stake: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	got := f.events.kinds()
	if got[len(got)-1] != EventTypeStakedBatch || len(got) != 2 {
		t.Fatalf("expected a single batch event, got %v", got)
	}
	if ids := f.state.holders[holderB]; len(ids) != 2 {
		t.Fatalf("holder index not updated: %v", ids)
	}
}

func TestStakeBatchAllOrNothing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeBatch(holderB, []uint64{2, 3}); err != nil {
		t.Fatalf("batch stake: %v", err)
	}
	before := len(f.events.events)
	_, err := f.engine.StakeBatch(holderC, []uint64{2, 3, 4})
	mustErr(t, err, ErrBatchNotOwned)
	if f.registry.owners[4] != holderC {
		t.Fatalf("token 4 moved despite rejected batch")
	}
	for _, id := range []uint64{2, 3} {
		rec := f.state.records[id]
		if rec.Holder != holderB || rec.Status != StatusStaked {
			t.Fatalf("record %d disturbed: %+v", id, rec)
		}
	}
	if len(f.events.events) != before {
		t.Fatalf("rejected batch emitted events")
	}
}

func TestStakeBatchSizeBounds(t *testing.T) {
	f := newFixture(t)
	eleven := make([]uint64, 0, 11)
	for id := uint64(100); id < 111; id++ {
		eleven = append(eleven, id)
	}
	// Ownership is irrelevant: the cap is checked first.
	_, err := f.engine.StakeBatch(holderA, eleven)
	mustErr(t, err, ErrBatchTooLarge)

	f.registry.mint(holderA, eleven...)
	_, err = f.engine.StakeBatch(holderA, eleven)
	mustErr(t, err, ErrBatchTooLarge)

	if _, err := f.engine.StakeBatch(holderA, eleven[:10]); err != nil {
		t.Fatalf("batch of 10 rejected: %v", err)
	}
	_, err = f.engine.StakeBatch(holderA, nil)
	mustErr(t, err, ErrEmptyBatch)
}

func TestStakeBatchRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.StakeBatch(holderB, []uint64{2, 2})
	mustErr(t, err, ErrDuplicateToken)
	if f.registry.owners[2] != holderB {
		t.Fatalf("duplicate batch moved custody")
	}
}

func TestStakeBatchRevertsPartialTransfers(t *testing.T) {
	f := newFixture(t)
	f.registry.failToken = 3
	_, err := f.engine.StakeBatch(holderB, []uint64{2, 3})
	if err == nil {
		t.Fatalf("expected transfer failure")
	}
	if f.registry.owners[2] != holderB || f.registry.owners[3] != holderB {
		t.Fatalf("custody not restored after failed batch: %v", f.registry.owners)
	}
	if len(f.state.records) != 0 {
		t.Fatalf("records persisted after failed batch")
	}
}

func TestStakeRevertsCustodyWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.state.failPut = true
	if _, err := f.engine.StakeOne(holderA, 1); err == nil {
		t.Fatalf("expected persist failure")
	}
	if f.registry.owners[1] != holderA {
		t.Fatalf("custody not returned after persist failure")
	}
}

func TestUnstakeRequiresRecordedHolder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.StakeOne(holderB, 2); err != nil {
		t.Fatalf("stake: %v", err)
	}
	f.at(120)
	_, err := f.engine.UnstakeOne(holderB, 1)
	mustErr(t, err, ErrNotRecordHolder)
	_, err = f.engine.UnstakeOne(holderB, 77)
	mustErr(t, err, ErrNotRecordHolder)
	if f.state.records[1].Status != StatusStaked {
		t.Fatalf("foreign unstake changed record")
	}
}

func TestUnstakeTwiceFails(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.UnstakeOne(holderA, 1); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	_, err := f.engine.UnstakeOne(holderA, 1)
	mustErr(t, err, ErrNotStaked)
}

func TestUnstakeBatchAllOrNothing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeBatch(holderB, []uint64{2, 3}); err != nil {
		t.Fatalf("batch stake: %v", err)
	}
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	f.at(10)
	_, err := f.engine.UnstakeBatch(holderB, []uint64{2, 1})
	mustErr(t, err, ErrNotRecordHolder)
	if f.state.records[2].Status != StatusStaked {
		t.Fatalf("partial unstake applied")
	}
	records, err := f.engine.UnstakeBatch(holderB, []uint64{2, 3})
	if err != nil {
		t.Fatalf("unstake batch: %v", err)
	}
	for _, rec := range records {
		if rec.Status != StatusUnbonding || rec.UnstakeRequestedAt != 10 {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
	got := f.events.kinds()
	if got[len(got)-1] != EventTypeUnstakedBatch {
		t.Fatalf("missing batch unstake event: %v", got)
	}
}

func TestUnstakeBatchCap(t *testing.T) {
	f := newFixture(t)
	ids := make([]uint64, 0, 11)
	for id := uint64(200); id < 211; id++ {
		ids = append(ids, id)
	}
	_, err := f.engine.UnstakeBatch(holderA, ids)
	mustErr(t, err, ErrBatchTooLarge)
}

func TestWithdrawBoundary(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	f.at(100)
	if _, err := f.engine.UnstakeOne(holderA, 1); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	f.at(129)
	_, err := f.engine.Withdraw(holderA, 1)
	mustErr(t, err, ErrUnbonding)
	f.at(130)
	rec, err := f.engine.Withdraw(holderA, 1)
	if err != nil {
		t.Fatalf("withdraw at boundary: %v", err)
	}
	if rec.Status != StatusWithdrawn || rec.UnstakeRequestedAt != 0 {
		t.Fatalf("unexpected record after withdraw: %+v", rec)
	}
	if f.registry.owners[1] != holderA {
		t.Fatalf("custody not returned to holder")
	}
	if ids := f.state.holders[holderA]; len(ids) != 0 {
		t.Fatalf("holder index still lists withdrawn token: %v", ids)
	}
}

func TestUnstakeAtEpochZeroIsStillUnbonding(t *testing.T) {
	f := newFixture(t)
	rec, err := f.engine.StakeOne(holderA, 1)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, ok := rec.UnstakeRequested(); ok {
		t.Fatalf("staked record reports an unstake request")
	}
	rec, err = f.engine.UnstakeOne(holderA, 1)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	at, ok := rec.UnstakeRequested()
	if !ok || at != 0 || rec.Status != StatusUnbonding {
		t.Fatalf("unstake at t=0 not recorded: at=%d ok=%v %+v", at, ok, rec)
	}
	f.at(29)
	_, err = f.engine.Withdraw(holderA, 1)
	mustErr(t, err, ErrUnbonding)
	f.at(30)
	rec, err = f.engine.Withdraw(holderA, 1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, ok := rec.UnstakeRequested(); ok {
		t.Fatalf("withdrawn record reports an unstake request")
	}
}

func TestWithdrawRequiresUnstake(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Withdraw(holderA, 1)
	mustErr(t, err, ErrNotUnstaked)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	f.at(1_000)
	_, err = f.engine.Withdraw(holderA, 1)
	mustErr(t, err, ErrNotUnstaked)
}

func TestWithdrawByThirdPartyReturnsToHolder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeBatch(holderB, []uint64{2, 3}); err != nil {
		t.Fatalf("batch stake: %v", err)
	}
	if _, err := f.engine.UnstakeOne(holderB, 2); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	f.at(60)
	if _, err := f.engine.Withdraw(holderA, 2); err != nil {
		t.Fatalf("third party withdraw: %v", err)
	}
	if f.registry.owners[2] != holderB {
		t.Fatalf("token returned to caller instead of holder")
	}
	last := f.events.events[len(f.events.events)-1]
	if last.Type != EventTypeWithdrawn || last.Attr("caller") == "" {
		t.Fatalf("withdraw event should record the third-party caller: %+v", last)
	}
	_, err := f.engine.Withdraw(holderB, 3)
	mustErr(t, err, ErrNotUnstaked)
}

func TestRestakeAfterWithdraw(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.UnstakeOne(holderA, 1); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	f.at(30)
	if _, err := f.engine.Withdraw(holderA, 1); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.at(40)
	rec, err := f.engine.StakeOne(holderA, 1)
	if err != nil {
		t.Fatalf("restake: %v", err)
	}
	if rec.StakedAt != 40 || rec.Status != StatusStaked {
		t.Fatalf("restake did not open a fresh lifecycle: %+v", rec)
	}
}

func TestWithdrawAvailableWhilePaused(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.UnstakeOne(holderA, 1); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if _, err := f.engine.Pause(admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.at(30)
	if _, err := f.engine.Withdraw(holderA, 1); err != nil {
		t.Fatalf("withdraw while paused: %v", err)
	}
}

func TestHolderIsolation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.StakeOne(holderA, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := f.engine.StakeBatch(holderB, []uint64{2, 3}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if _, err := f.engine.UnstakeOne(holderA, 1); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	records, err := f.engine.HolderRecords(holderB)
	if err != nil {
		t.Fatalf("holder records: %v", err)
	}
	for _, rec := range records {
		if rec.Status != StatusStaked || rec.Holder != holderB {
			t.Fatalf("holder B records contaminated: %+v", rec)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]ErrorKind{
		nil:                                   KindNone,
		ErrNotAdmin:                           KindAuthorization,
		fmt.Errorf("x: %w", ErrBatchNotOwned): KindAuthorization,
		ErrClaimDelay:                         KindTiming,
		ErrUnbonding:                          KindTiming,
		ErrPaused:                             KindAvailability,
		ErrNothingToClaim:                     KindState,
		ErrBatchTooLarge:                      KindState,
		ErrDuplicateToken:                     KindValidation,
		errors.New("boom"):                    KindInternal,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v) = %q, want %q", err, got, want)
		}
	}
}
