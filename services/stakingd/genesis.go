package stakingd

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"nftstake/crypto"
	stake "nftstake/native/nftstake"
)

// Defaults applied when the genesis file omits an economic parameter.
const (
	DefaultRewardRate      uint64 = 1
	DefaultClaimDelay      int64  = 60
	DefaultUnbondingPeriod int64  = 30
)

// Genesis seeds a fresh ledger: the one-time parameters, registry mints and
// the owners that pre-approve the custodian.
type Genesis struct {
	Params    GenesisParams     `toml:"params"`
	Registry  GenesisRegistry   `toml:"registry"`
	Tokens    []GenesisToken    `toml:"tokens"`
	Approvals []GenesisApproval `toml:"approvals"`
}

type GenesisParams struct {
	Admin                  string  `toml:"admin"`
	Custodian              string  `toml:"custodian"`
	Registry               string  `toml:"registry"`
	RewardRate             *uint64 `toml:"reward_rate"`
	ClaimDelaySeconds      *int64  `toml:"claim_delay_seconds"`
	UnbondingPeriodSeconds *int64  `toml:"unbonding_period_seconds"`
	Version                uint32  `toml:"version"`
}

type GenesisRegistry struct {
	Minter string `toml:"minter"`
}

// GenesisToken mints one token.
type GenesisToken struct {
	ID    uint64 `toml:"id"`
	Owner string `toml:"owner"`
	URI   string `toml:"uri"`
}

// GenesisApproval makes the custodian an operator for every token of Owner,
// current and future, so they can be staked straight away.
type GenesisApproval struct {
	Owner string `toml:"owner"`
}

// LoadGenesis decodes and validates the TOML genesis at path.
func LoadGenesis(path string) (*Genesis, error) {
	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis: unknown key %s", undecoded[0].String())
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks addresses and token uniqueness.
func (g *Genesis) Validate() error {
	if _, err := g.InitParams(); err != nil {
		return err
	}
	if _, err := g.Minter(); err != nil {
		return err
	}
	seen := make(map[uint64]struct{}, len(g.Tokens))
	for i, tok := range g.Tokens {
		if _, dup := seen[tok.ID]; dup {
			return fmt.Errorf("genesis: token %d listed twice", tok.ID)
		}
		seen[tok.ID] = struct{}{}
		if _, err := crypto.ParseAddress(tok.Owner); err != nil {
			return fmt.Errorf("genesis: tokens[%d].owner: %w", i, err)
		}
	}
	if _, err := g.ApprovedOwners(); err != nil {
		return err
	}
	return nil
}

// ApprovedOwners returns the distinct owners listed under approvals, in file
// order.
func (g *Genesis) ApprovedOwners() ([][20]byte, error) {
	out := make([][20]byte, 0, len(g.Approvals))
	seen := make(map[[20]byte]struct{}, len(g.Approvals))
	for i, approval := range g.Approvals {
		owner, err := crypto.ParseAddress(approval.Owner)
		if err != nil {
			return nil, fmt.Errorf("genesis: approvals[%d].owner: %w", i, err)
		}
		if _, dup := seen[owner]; dup {
			return nil, fmt.Errorf("genesis: approval for %s listed twice", crypto.FromRaw(owner))
		}
		seen[owner] = struct{}{}
		out = append(out, owner)
	}
	return out, nil
}

// InitParams converts the genesis parameters into engine initialisation
// arguments, filling defaults.
func (g *Genesis) InitParams() (stake.InitParams, error) {
	var out stake.InitParams
	admin, err := crypto.ParseAddress(g.Params.Admin)
	if err != nil {
		return out, fmt.Errorf("genesis: params.admin: %w", err)
	}
	custodian, err := crypto.ParseAddress(g.Params.Custodian)
	if err != nil {
		return out, fmt.Errorf("genesis: params.custodian: %w", err)
	}
	out = stake.InitParams{
		Admin:           admin,
		Custodian:       custodian,
		Registry:        strings.TrimSpace(g.Params.Registry),
		RewardRate:      DefaultRewardRate,
		ClaimDelay:      DefaultClaimDelay,
		UnbondingPeriod: DefaultUnbondingPeriod,
		Version:         g.Params.Version,
	}
	if out.Registry == "" {
		out.Registry = "genesis"
	}
	if g.Params.RewardRate != nil {
		out.RewardRate = *g.Params.RewardRate
	}
	if g.Params.ClaimDelaySeconds != nil {
		out.ClaimDelay = *g.Params.ClaimDelaySeconds
	}
	if g.Params.UnbondingPeriodSeconds != nil {
		out.UnbondingPeriod = *g.Params.UnbondingPeriodSeconds
	}
	if out.Version > stake.LatestParamsVersion {
		return out, fmt.Errorf("genesis: params.version %d unsupported", out.Version)
	}
	return out, nil
}

// Minter returns the registry minter, or the zero address when unset.
func (g *Genesis) Minter() ([20]byte, error) {
	raw := strings.TrimSpace(g.Registry.Minter)
	if raw == "" {
		return [20]byte{}, nil
	}
	minter, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("genesis: registry.minter: %w", err)
	}
	return minter, nil
}
