package nftstake

import (
	"strconv"
	"strings"

	"nftstake/core/events"
	"nftstake/core/types"
	"nftstake/crypto"
)

const (
	// EventTypeStaked is emitted when a single token enters custody.
	EventTypeStaked = "nftstake.staked"
	// EventTypeStakedBatch is emitted once per successful batch stake.
	EventTypeStakedBatch = "nftstake.staked_batch"
	// EventTypeUnstaked is emitted when a single token starts unbonding.
	EventTypeUnstaked = "nftstake.unstaked"
	// EventTypeUnstakedBatch is emitted once per successful batch unstake.
	EventTypeUnstakedBatch = "nftstake.unstaked_batch"
	// EventTypeRewardsClaimed is emitted when a holder settles rewards.
	EventTypeRewardsClaimed = "nftstake.rewards_claimed"
	// EventTypeWithdrawn is emitted when custody returns to the holder.
	EventTypeWithdrawn = "nftstake.withdrawn"
	// EventTypePaused is emitted when the administrator pauses the ledger.
	EventTypePaused = "nftstake.paused"
	// EventTypeUnpaused is emitted when the administrator resumes the ledger.
	EventTypeUnpaused = "nftstake.unpaused"
	// EventTypeParamsUpdated is emitted when an economic parameter changes.
	EventTypeParamsUpdated = "nftstake.params_updated"
	// EventTypeUpgraded is emitted when the operation set version increases.
	EventTypeUpgraded = "nftstake.upgraded"
	// EventTypeInitialized is emitted once when the ledger is configured.
	EventTypeInitialized = "nftstake.initialized"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func bech32Of(a [20]byte) string { return crypto.FromRaw(a).String() }

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

// StakedEvent captures a single token entering custody.
func StakedEvent(holder [20]byte, tokenID uint64, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeStaked,
		Attributes: map[string]string{
			"holder":   bech32Of(holder),
			"tokenId":  strconv.FormatUint(tokenID, 10),
			"stakedAt": strconv.FormatInt(at, 10),
		},
	}
}

// StakedBatchEvent captures a batch of tokens entering custody.
func StakedBatchEvent(holder [20]byte, tokenIDs []uint64, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeStakedBatch,
		Attributes: map[string]string{
			"holder":   bech32Of(holder),
			"tokenIds": joinIDs(tokenIDs),
			"count":    strconv.Itoa(len(tokenIDs)),
			"stakedAt": strconv.FormatInt(at, 10),
		},
	}
}

// UnstakedEvent captures a single token entering the unbonding period.
func UnstakedEvent(holder [20]byte, tokenID uint64, at int64, releaseAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeUnstaked,
		Attributes: map[string]string{
			"holder":      bech32Of(holder),
			"tokenId":     strconv.FormatUint(tokenID, 10),
			"requestedAt": strconv.FormatInt(at, 10),
			"releaseAt":   strconv.FormatInt(releaseAt, 10),
		},
	}
}

// UnstakedBatchEvent captures a batch of tokens entering the unbonding period.
func UnstakedBatchEvent(holder [20]byte, tokenIDs []uint64, at int64, releaseAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeUnstakedBatch,
		Attributes: map[string]string{
			"holder":      bech32Of(holder),
			"tokenIds":    joinIDs(tokenIDs),
			"count":       strconv.Itoa(len(tokenIDs)),
			"requestedAt": strconv.FormatInt(at, 10),
			"releaseAt":   strconv.FormatInt(releaseAt, 10),
		},
	}
}

// RewardsClaimedEvent captures a settled reward claim.
func RewardsClaimedEvent(holder [20]byte, amount string, tokens int, at int64) *types.Event {
	return &types.Event{
		Type: EventTypeRewardsClaimed,
		Attributes: map[string]string{
			"holder":    bech32Of(holder),
			"amount":    amount,
			"tokens":    strconv.Itoa(tokens),
			"claimedAt": strconv.FormatInt(at, 10),
		},
	}
}

// WithdrawnEvent captures custody returning to the recorded holder.
func WithdrawnEvent(holder [20]byte, caller [20]byte, tokenID uint64, at int64) *types.Event {
	attrs := map[string]string{
		"holder":      bech32Of(holder),
		"tokenId":     strconv.FormatUint(tokenID, 10),
		"withdrawnAt": strconv.FormatInt(at, 10),
	}
	if caller != holder {
		attrs["caller"] = bech32Of(caller)
	}
	return &types.Event{Type: EventTypeWithdrawn, Attributes: attrs}
}

// PauseEvent captures a pause toggle.
func PauseEvent(admin [20]byte, paused bool) *types.Event {
	kind := EventTypeUnpaused
	if paused {
		kind = EventTypePaused
	}
	return &types.Event{Type: kind, Attributes: map[string]string{"admin": bech32Of(admin)}}
}

// ParamsUpdatedEvent captures a single economic parameter change.
func ParamsUpdatedEvent(admin [20]byte, field string, previous, current string) *types.Event {
	return &types.Event{
		Type: EventTypeParamsUpdated,
		Attributes: map[string]string{
			"admin":    bech32Of(admin),
			"field":    field,
			"previous": previous,
			"current":  current,
		},
	}
}

// UpgradedEvent captures an operation set upgrade.
func UpgradedEvent(admin [20]byte, from, to uint32) *types.Event {
	return &types.Event{
		Type: EventTypeUpgraded,
		Attributes: map[string]string{
			"admin": bech32Of(admin),
			"from":  strconv.FormatUint(uint64(from), 10),
			"to":    strconv.FormatUint(uint64(to), 10),
		},
	}
}

// InitializedEvent captures the one-time ledger configuration.
func InitializedEvent(p *Params) *types.Event {
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"admin":           bech32Of(p.Admin),
			"custodian":       bech32Of(p.Custodian),
			"registry":        p.Registry,
			"rewardRate":      strconv.FormatUint(p.RewardRate, 10),
			"claimDelay":      strconv.FormatInt(p.ClaimDelay, 10),
			"unbondingPeriod": strconv.FormatInt(p.UnbondingPeriod, 10),
			"version":         strconv.FormatUint(uint64(p.Version), 10),
		},
	}
}
