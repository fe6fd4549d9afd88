package nftstake

import (
	"fmt"
	"strconv"
)

func requireAdmin(params *Params, caller [20]byte) error {
	if params.Admin != caller {
		return ErrNotAdmin
	}
	return nil
}

// Pause disables stake and unstake for every caller, the administrator
// included. Claims and withdrawals stay available.
func (e *Engine) Pause(caller [20]byte) (*Params, error) {
	return e.togglePause(caller, true)
}

// Unpause re-enables stake and unstake.
func (e *Engine) Unpause(caller [20]byte) (*Params, error) {
	return e.togglePause(caller, false)
}

func (e *Engine) togglePause(caller [20]byte, paused bool) (*Params, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(params, caller); err != nil {
		return nil, err
	}
	switch {
	case paused && params.Paused:
		return nil, ErrPaused
	case !paused && !params.Paused:
		return nil, ErrNotPaused
	}
	params.Paused = paused
	if err := e.state.NFTStakeParamsPut(params); err != nil {
		return nil, err
	}
	e.emit(PauseEvent(caller, paused))
	return params.Clone(), nil
}

// setter applies a v2 parameter mutation after the admin and version checks.
func (e *Engine) setter(caller [20]byte, field string, apply func(*Params) (string, string)) (*Params, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(params, caller); err != nil {
		return nil, err
	}
	if params.Version < ParamsVersionV2 {
		return nil, fmt.Errorf("%w: %s requires version %d", ErrOperationUnavailable, field, ParamsVersionV2)
	}
	previous, current := apply(params)
	if err := e.state.NFTStakeParamsPut(params); err != nil {
		return nil, err
	}
	e.emit(ParamsUpdatedEvent(caller, field, previous, current))
	return params.Clone(), nil
}

// SetRewardRate changes the reward units accrued per token per second. Any
// value, zero included, is accepted.
func (e *Engine) SetRewardRate(caller [20]byte, rate uint64) (*Params, error) {
	return e.setter(caller, "rewardRate", func(p *Params) (string, string) {
		prev := p.RewardRate
		p.RewardRate = rate
		return strconv.FormatUint(prev, 10), strconv.FormatUint(rate, 10)
	})
}

// SetClaimDelay changes the minimum seconds between claims.
func (e *Engine) SetClaimDelay(caller [20]byte, delay int64) (*Params, error) {
	return e.setter(caller, "claimDelay", func(p *Params) (string, string) {
		prev := p.ClaimDelay
		p.ClaimDelay = delay
		return strconv.FormatInt(prev, 10), strconv.FormatInt(delay, 10)
	})
}

// SetUnbondingPeriod changes the seconds a token must unbond before withdrawal.
func (e *Engine) SetUnbondingPeriod(caller [20]byte, period int64) (*Params, error) {
	return e.setter(caller, "unbondingPeriod", func(p *Params) (string, string) {
		prev := p.UnbondingPeriod
		p.UnbondingPeriod = period
		return strconv.FormatInt(prev, 10), strconv.FormatInt(period, 10)
	})
}

// Upgrade raises the operation set version. Stake records are untouched.
func (e *Engine) Upgrade(caller [20]byte, version uint32) (*Params, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(params, caller); err != nil {
		return nil, err
	}
	if version <= params.Version {
		return nil, fmt.Errorf("%w: current %d, requested %d", ErrVersionDowngrade, params.Version, version)
	}
	previous := params.Version
	params.Version = version
	if err := e.state.NFTStakeParamsPut(params); err != nil {
		return nil, err
	}
	e.emit(UpgradedEvent(caller, previous, version))
	return params.Clone(), nil
}
