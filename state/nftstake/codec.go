package nftstake

import (
	"math/big"

	"nftstake/native/nftregistry"
	stake "nftstake/native/nftstake"
)

// RLP has no signed integers; timestamps and durations are stored as their
// two's complement uint64 so negative values round trip.

type storedParams struct {
	Admin           [20]byte
	Custodian       [20]byte
	Registry        string
	RewardRate      uint64
	ClaimDelay      uint64
	UnbondingPeriod uint64
	Paused          bool
	Version         uint32
	InitializedAt   uint64
}

func newStoredParams(p *stake.Params) *storedParams {
	return &storedParams{
		Admin:           p.Admin,
		Custodian:       p.Custodian,
		Registry:        p.Registry,
		RewardRate:      p.RewardRate,
		ClaimDelay:      uint64(p.ClaimDelay),
		UnbondingPeriod: uint64(p.UnbondingPeriod),
		Paused:          p.Paused,
		Version:         p.Version,
		InitializedAt:   uint64(p.InitializedAt),
	}
}

func (s *storedParams) params() *stake.Params {
	return &stake.Params{
		Admin:           s.Admin,
		Custodian:       s.Custodian,
		Registry:        s.Registry,
		RewardRate:      s.RewardRate,
		ClaimDelay:      int64(s.ClaimDelay),
		UnbondingPeriod: int64(s.UnbondingPeriod),
		Paused:          s.Paused,
		Version:         s.Version,
		InitializedAt:   int64(s.InitializedAt),
	}
}

type storedRecord struct {
	TokenID            uint64
	Holder             [20]byte
	StakedAt           uint64
	LastClaimAt        uint64
	UnstakeRequestedAt uint64
	Status             uint8
}

func newStoredRecord(r *stake.StakeRecord) *storedRecord {
	return &storedRecord{
		TokenID:            r.TokenID,
		Holder:             r.Holder,
		StakedAt:           uint64(r.StakedAt),
		LastClaimAt:        uint64(r.LastClaimAt),
		UnstakeRequestedAt: uint64(r.UnstakeRequestedAt),
		Status:             uint8(r.Status),
	}
}

func (s *storedRecord) record() *stake.StakeRecord {
	return &stake.StakeRecord{
		TokenID:            s.TokenID,
		Holder:             s.Holder,
		StakedAt:           int64(s.StakedAt),
		LastClaimAt:        int64(s.LastClaimAt),
		UnstakeRequestedAt: int64(s.UnstakeRequestedAt),
		Status:             stake.Status(s.Status),
	}
}

type storedAccount struct {
	Holder       [20]byte
	TotalClaimed *big.Int
	LastClaimAt  uint64
	Claims       uint64
}

func newStoredAccount(a *stake.RewardAccount) *storedAccount {
	stored := &storedAccount{
		Holder:       a.Holder,
		TotalClaimed: big.NewInt(0),
		LastClaimAt:  uint64(a.LastClaimAt),
		Claims:       a.Claims,
	}
	if a.TotalClaimed != nil {
		stored.TotalClaimed.Set(a.TotalClaimed)
	}
	return stored
}

func (s *storedAccount) account() *stake.RewardAccount {
	acc := &stake.RewardAccount{
		Holder:       s.Holder,
		TotalClaimed: big.NewInt(0),
		LastClaimAt:  int64(s.LastClaimAt),
		Claims:       s.Claims,
	}
	if s.TotalClaimed != nil {
		acc.TotalClaimed.Set(s.TotalClaimed)
	}
	return acc
}

type storedToken struct {
	ID       uint64
	Owner    [20]byte
	URI      string
	MintedAt uint64
}

func newStoredToken(t *nftregistry.Token) *storedToken {
	return &storedToken{ID: t.ID, Owner: t.Owner, URI: t.URI, MintedAt: uint64(t.MintedAt)}
}

func (s *storedToken) token() *nftregistry.Token {
	return &nftregistry.Token{ID: s.ID, Owner: s.Owner, URI: s.URI, MintedAt: int64(s.MintedAt)}
}
