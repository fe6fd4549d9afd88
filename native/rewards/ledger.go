package rewards

import (
	"errors"
	"fmt"
	"math/big"

	"nftstake/core/events"
	"nftstake/core/types"
	"nftstake/crypto"
	"nftstake/native/nftstake"
)

const EventTypeCredited = "rewards.credited"

var (
	// ErrSupplyExhausted is returned when a credit would exceed the cap.
	ErrSupplyExhausted = errors.New("rewards: supply cap reached")
	ErrInvalidAmount   = errors.New("rewards: amount must be positive")

	errNilState = errors.New("rewards: state not configured")
)

type ledgerState interface {
	RewardBalanceGet(holder [20]byte) (*big.Int, error)
	RewardBalancePut(holder [20]byte, balance *big.Int) error
	RewardSupplyGet() (*big.Int, error)
	RewardSupplyPut(supply *big.Int) error
}

type credited struct{ evt *types.Event }

func (c credited) EventType() string   { return c.evt.Type }
func (c credited) Event() *types.Event { return c.evt }

// Ledger mints the reward token credited on staking claims.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
	symbol  string
	limit   *big.Int
}

var _ nftstake.Payout = (*Ledger)(nil)

// NewLedger constructs a ledger for the named reward token. A nil or
// non-positive cap leaves supply unbounded.
func NewLedger(symbol string, limit *big.Int) *Ledger {
	l := &Ledger{symbol: symbol, emitter: events.NoopEmitter{}}
	if limit != nil && limit.Sign() > 0 {
		l.limit = new(big.Int).Set(limit)
	}
	return l
}

func (l *Ledger) SetState(state ledgerState) { l.state = state }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Symbol returns the reward token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Credit mints amount to holder.
func (l *Ledger) Credit(holder [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	supply, err := l.Supply()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(supply, amount)
	if l.limit != nil && next.Cmp(l.limit) > 0 {
		return fmt.Errorf("%w: cap %s, requested supply %s", ErrSupplyExhausted, l.limit, next)
	}
	balance, err := l.BalanceOf(holder)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if err := l.state.RewardBalancePut(holder, balance); err != nil {
		return err
	}
	if err := l.state.RewardSupplyPut(next); err != nil {
		return err
	}
	l.emitter.Emit(credited{evt: &types.Event{Type: EventTypeCredited, Attributes: map[string]string{
		"holder": crypto.HexAddress(holder),
		"amount": amount.String(),
		"symbol": l.symbol,
	}}})
	return nil
}

// BalanceOf returns the reward balance of holder.
func (l *Ledger) BalanceOf(holder [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.state.RewardBalanceGet(holder)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// Supply returns the total amount ever credited.
func (l *Ledger) Supply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.RewardSupplyGet()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(supply), nil
}
