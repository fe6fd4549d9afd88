package nftstake

import (
	"math/big"

	"github.com/holiman/uint256"
)

// accrue returns rate × elapsed for a single record. Negative elapsed time
// (a clock that moved backwards) accrues nothing.
func accrue(rate uint64, lastClaimAt, now int64) (*uint256.Int, error) {
	elapsed := now - lastClaimAt
	if elapsed <= 0 || rate == 0 {
		return new(uint256.Int), nil
	}
	reward, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(rate), uint256.NewInt(uint64(elapsed)))
	if overflow {
		return nil, ErrRewardOverflow
	}
	return reward, nil
}

// settlement summarises the staked position of a holder at a point in time.
type settlement struct {
	total      *uint256.Int
	minElapsed int64
	earliest   int64
	tokens     []uint64
}

// settle sums accrual over every staked record and tracks the most recent
// LastClaimAt, which bounds when the whole position becomes claimable.
func settle(records []*StakeRecord, rate uint64, now int64) (*settlement, error) {
	out := &settlement{total: new(uint256.Int), minElapsed: -1}
	for _, rec := range records {
		if rec == nil || rec.Status != StatusStaked {
			continue
		}
		reward, err := accrue(rate, rec.LastClaimAt, now)
		if err != nil {
			return nil, err
		}
		if _, overflow := out.total.AddOverflow(out.total, reward); overflow {
			return nil, ErrRewardOverflow
		}
		elapsed := now - rec.LastClaimAt
		if out.minElapsed < 0 || elapsed < out.minElapsed {
			out.minElapsed = elapsed
		}
		if rec.LastClaimAt > out.earliest {
			out.earliest = rec.LastClaimAt
		}
		out.tokens = append(out.tokens, rec.TokenID)
	}
	return out, nil
}

func (s *settlement) empty() bool { return s == nil || len(s.tokens) == 0 }

func (s *settlement) amount() *big.Int {
	if s == nil || s.total == nil {
		return big.NewInt(0)
	}
	return s.total.ToBig()
}

// claimableAt returns the first unix second at which every record satisfies
// the claim delay.
func (s *settlement) claimableAt(delay int64) int64 {
	if s == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	return s.earliest + delay
}
