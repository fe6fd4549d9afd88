package stakingd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nftstake/core/events"
	"nftstake/crypto"
	"nftstake/native/nftregistry"
	stake "nftstake/native/nftstake"
	"nftstake/native/rewards"
	"nftstake/observability"
	telemetry "nftstake/observability/otel"
	stakestate "nftstake/state/nftstake"
	"nftstake/storage"
)

// NodeOptions configures a Node.
type NodeOptions struct {
	RewardSymbol string
	SupplyCap    *big.Int
	// Sink receives events after their operation commits. Nil discards them.
	Sink   events.Emitter
	Logger *slog.Logger
	// Clock overrides the ledger clock; tests pin it.
	Clock func() time.Time
}

// Node serialises ledger operations. Every mutation runs under a single writer
// lock against a fresh state overlay; the overlay is committed atomically and
// buffered events are flushed to the sink only when the operation succeeds.
type Node struct {
	mu       sync.RWMutex
	store    *stakestate.Store
	engine   *stake.Engine
	registry *nftregistry.Registry
	ledger   *rewards.Ledger
	buffer   *events.Buffer
	sink     events.Emitter
	logger   *slog.Logger
	metrics  *observability.StakingdMetrics
	tracer   trace.Tracer
	clock    func() time.Time
}

// NewNode wires the engine, registry and reward ledger over db.
func NewNode(db storage.Database, opts NodeOptions) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("stakingd: database required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	symbol := opts.RewardSymbol
	if symbol == "" {
		symbol = "STK"
	}
	n := &Node{
		store:    stakestate.NewStore(db),
		engine:   stake.NewEngine(),
		registry: nftregistry.NewRegistry(),
		ledger:   rewards.NewLedger(symbol, opts.SupplyCap),
		buffer:   events.NewBuffer(),
		sink:     sink,
		logger:   logger,
		metrics:  observability.Stakingd(),
		tracer:   telemetry.Tracer(),
		clock:    clock,
	}
	now := func() int64 { return n.clock().Unix() }

	n.registry.SetState(n.store)
	n.registry.SetEmitter(n.buffer)
	n.registry.SetNowFunc(now)

	n.ledger.SetState(n.store)
	n.ledger.SetEmitter(n.buffer)

	n.engine.SetState(n.store)
	n.engine.SetRegistry(n.registry)
	n.engine.SetPayout(n.ledger)
	n.engine.SetEmitter(n.buffer)
	n.engine.SetNowFunc(now)

	params, err := n.engine.Params()
	switch {
	case err == nil:
		n.registry.SetOperator(params.Custodian)
		n.metrics.SetPause(params.Paused)
	case errors.Is(err, stake.ErrNotInitialized):
	default:
		return nil, fmt.Errorf("stakingd: load params: %w", err)
	}
	count, err := n.store.CustodyCountGet()
	if err != nil {
		return nil, fmt.Errorf("stakingd: load custody count: %w", err)
	}
	n.metrics.SetStaked(int(count))
	return n, nil
}

// mutation runs inside the writer lock and reports how many tokens entered
// (positive) or left (negative) custody.
type mutation func() (custodyDelta int, err error)

func (n *Node) apply(ctx context.Context, op string, fn mutation) error {
	_, span := n.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	start := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	delta, err := fn()
	var custody uint64
	if err == nil {
		custody, err = n.adjustCustody(delta)
	}
	if err == nil {
		err = n.store.Commit()
	}
	if err != nil {
		n.store.Discard()
		n.buffer.Discard()
		kind := outcomeOf(err)
		n.metrics.ObserveOperation(op, string(kind), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind == stake.KindInternal {
			n.logger.Error("ledger operation failed", slog.String("op", op), slog.Any("error", err))
		} else {
			n.logger.Debug("ledger operation rejected", slog.String("op", op), slog.String("outcome", string(kind)), slog.Any("error", err))
		}
		return err
	}
	span.SetAttributes(attribute.Int("nftstake.events", n.buffer.Len()))
	n.buffer.Flush(n.sink)
	if delta != 0 {
		n.metrics.SetStaked(int(custody))
	}
	n.metrics.ObserveOperation(op, "ok", time.Since(start))
	return nil
}

// outcomeOf classifies a failed operation. Registry and reward ledger errors
// pass through the engine unwrapped by its taxonomy, so they are sorted here.
func outcomeOf(err error) stake.ErrorKind {
	switch {
	case errors.Is(err, nftregistry.ErrNotApproved), errors.Is(err, nftregistry.ErrNotOwner),
		errors.Is(err, nftregistry.ErrNotMinter):
		return stake.KindAuthorization
	case errors.Is(err, nftregistry.ErrTokenExists), errors.Is(err, rewards.ErrSupplyExhausted):
		return stake.KindState
	case errors.Is(err, nftregistry.ErrZeroRecipient), errors.Is(err, rewards.ErrInvalidAmount):
		return stake.KindValidation
	default:
		return stake.KindOf(err)
	}
}

func (n *Node) adjustCustody(delta int) (uint64, error) {
	count, err := n.store.CustodyCountGet()
	if err != nil || delta == 0 {
		return count, err
	}
	next := int64(count) + int64(delta)
	if next < 0 {
		next = 0
	}
	if err := n.store.CustodyCountPut(uint64(next)); err != nil {
		return 0, err
	}
	return uint64(next), nil
}

// Initialized reports whether the ledger parameters exist.
func (n *Node) Initialized() bool {
	_, err := n.Params()
	return err == nil
}

// ApplyGenesis initialises a fresh ledger from g in a single commit: params,
// registry mints and custodian approvals. It reports false when the ledger was
// already initialised, in which case only the registry minter is refreshed.
func (n *Node) ApplyGenesis(ctx context.Context, g *Genesis) (bool, error) {
	if g == nil {
		return false, fmt.Errorf("stakingd: genesis required")
	}
	init, err := g.InitParams()
	if err != nil {
		return false, err
	}
	minter, err := g.Minter()
	if err != nil {
		return false, err
	}
	approved, err := g.ApprovedOwners()
	if err != nil {
		return false, err
	}
	if n.Initialized() {
		n.mu.Lock()
		n.registry.SetMinter(minter)
		n.mu.Unlock()
		return false, nil
	}
	err = n.apply(ctx, "genesis", func() (int, error) {
		params, err := n.engine.Initialize(init)
		if err != nil {
			return 0, err
		}
		n.registry.SetMinter(minter)
		n.registry.SetOperator(params.Custodian)
		for _, tok := range g.Tokens {
			owner, err := crypto.ParseAddress(tok.Owner)
			if err != nil {
				return 0, err
			}
			if _, err := n.registry.Mint(minter, owner, tok.ID, tok.URI); err != nil {
				return 0, fmt.Errorf("mint token %d: %w", tok.ID, err)
			}
		}
		for _, owner := range approved {
			if err := n.registry.SetApprovalForAll(owner, params.Custodian, true); err != nil {
				return 0, fmt.Errorf("approve custodian for %s: %w", crypto.FromRaw(owner), err)
			}
		}
		return 0, nil
	})
	if err != nil {
		return false, err
	}
	n.metrics.SetPause(false)
	n.logger.Info("genesis applied", slog.Int("tokens", len(g.Tokens)))
	return true, nil
}

// Stake locks one token for caller.
func (n *Node) Stake(ctx context.Context, caller [20]byte, tokenID uint64) (*stake.StakeRecord, error) {
	var record *stake.StakeRecord
	err := n.apply(ctx, "stake", func() (int, error) {
		var err error
		record, err = n.engine.StakeOne(caller, tokenID)
		if err != nil {
			return 0, err
		}
		return 1, nil
	})
	return record, err
}

// StakeBatch locks every token in tokenIDs or none of them.
func (n *Node) StakeBatch(ctx context.Context, caller [20]byte, tokenIDs []uint64) ([]*stake.StakeRecord, error) {
	var records []*stake.StakeRecord
	err := n.apply(ctx, "stake_batch", func() (int, error) {
		var err error
		records, err = n.engine.StakeBatch(caller, tokenIDs)
		return len(records), err
	})
	return records, err
}

// Unstake starts the unbonding clock for one token.
func (n *Node) Unstake(ctx context.Context, caller [20]byte, tokenID uint64) (*stake.StakeRecord, error) {
	var record *stake.StakeRecord
	err := n.apply(ctx, "unstake", func() (int, error) {
		var err error
		record, err = n.engine.UnstakeOne(caller, tokenID)
		return 0, err
	})
	return record, err
}

// UnstakeBatch starts unbonding for every token in tokenIDs or none of them.
func (n *Node) UnstakeBatch(ctx context.Context, caller [20]byte, tokenIDs []uint64) ([]*stake.StakeRecord, error) {
	var records []*stake.StakeRecord
	err := n.apply(ctx, "unstake_batch", func() (int, error) {
		var err error
		records, err = n.engine.UnstakeBatch(caller, tokenIDs)
		return 0, err
	})
	return records, err
}

// Withdraw returns custody of an unbonded token to its holder.
func (n *Node) Withdraw(ctx context.Context, caller [20]byte, tokenID uint64) (*stake.StakeRecord, error) {
	var record *stake.StakeRecord
	err := n.apply(ctx, "withdraw", func() (int, error) {
		var err error
		record, err = n.engine.Withdraw(caller, tokenID)
		if err != nil {
			return 0, err
		}
		return -1, nil
	})
	return record, err
}

// Claim settles the caller's accrued rewards.
func (n *Node) Claim(ctx context.Context, caller [20]byte) (*stake.ClaimResult, error) {
	var result *stake.ClaimResult
	err := n.apply(ctx, "claim", func() (int, error) {
		var err error
		result, err = n.engine.ClaimRewards(caller)
		return 0, err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordRewards(result.Amount)
	return result, nil
}

// Approve records owner's operator approval of the custodian in the registry.
func (n *Node) Approve(ctx context.Context, owner [20]byte, approved bool) error {
	return n.apply(ctx, "approve", func() (int, error) {
		params, err := n.engine.Params()
		if err != nil {
			return 0, err
		}
		return 0, n.registry.SetApprovalForAll(owner, params.Custodian, approved)
	})
}

// Pause engages the custody pause.
func (n *Node) Pause(ctx context.Context, caller [20]byte) (*stake.Params, error) {
	return n.adminOp(ctx, "pause", func() (*stake.Params, error) { return n.engine.Pause(caller) })
}

// Unpause lifts the custody pause.
func (n *Node) Unpause(ctx context.Context, caller [20]byte) (*stake.Params, error) {
	return n.adminOp(ctx, "unpause", func() (*stake.Params, error) { return n.engine.Unpause(caller) })
}

func (n *Node) SetRewardRate(ctx context.Context, caller [20]byte, rate uint64) (*stake.Params, error) {
	return n.adminOp(ctx, "set_reward_rate", func() (*stake.Params, error) { return n.engine.SetRewardRate(caller, rate) })
}

func (n *Node) SetClaimDelay(ctx context.Context, caller [20]byte, delay int64) (*stake.Params, error) {
	return n.adminOp(ctx, "set_claim_delay", func() (*stake.Params, error) { return n.engine.SetClaimDelay(caller, delay) })
}

func (n *Node) SetUnbondingPeriod(ctx context.Context, caller [20]byte, period int64) (*stake.Params, error) {
	return n.adminOp(ctx, "set_unbonding_period", func() (*stake.Params, error) { return n.engine.SetUnbondingPeriod(caller, period) })
}

// Upgrade bumps the parameter version, unlocking newer administrative setters.
func (n *Node) Upgrade(ctx context.Context, caller [20]byte, version uint32) (*stake.Params, error) {
	return n.adminOp(ctx, "upgrade", func() (*stake.Params, error) { return n.engine.Upgrade(caller, version) })
}

func (n *Node) adminOp(ctx context.Context, op string, fn func() (*stake.Params, error)) (*stake.Params, error) {
	var params *stake.Params
	err := n.apply(ctx, op, func() (int, error) {
		var err error
		params, err = fn()
		return 0, err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.SetPause(params.Paused)
	return params, nil
}

// Params returns the committed ledger parameters.
func (n *Node) Params() (*stake.Params, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.Params()
}

// Record returns the stake record for tokenID.
func (n *Node) Record(tokenID uint64) (*stake.StakeRecord, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.Record(tokenID)
}

// HolderRecords lists the live records held by holder.
func (n *Node) HolderRecords(holder [20]byte) ([]*stake.StakeRecord, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.HolderRecords(holder)
}

// RewardAccount returns holder's claim history.
func (n *Node) RewardAccount(holder [20]byte) (*stake.RewardAccount, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.RewardAccount(holder)
}

// PendingRewards previews what holder could claim now.
func (n *Node) PendingRewards(holder [20]byte) (*stake.PendingRewards, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.PendingRewards(holder)
}

// RewardBalance returns holder's credited reward units.
func (n *Node) RewardBalance(holder [20]byte) (*big.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.BalanceOf(holder)
}

// RewardSymbol names the reward unit.
func (n *Node) RewardSymbol() string { return n.ledger.Symbol() }

// Token returns the registry entry for id.
func (n *Node) Token(id uint64) (*nftregistry.Token, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registry.Token(id)
}
