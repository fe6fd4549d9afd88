package nftregistry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nftstake/core/events"
	"nftstake/core/types"
	"nftstake/crypto"
	"nftstake/native/nftstake"
)

const (
	EventTypeMinted      = "nftregistry.minted"
	EventTypeTransferred = "nftregistry.transferred"
	EventTypeApproval    = "nftregistry.approval"
)

var (
	ErrTokenExists   = errors.New("nftregistry: token already minted")
	ErrNotMinter     = errors.New("nftregistry: caller is not the minter")
	ErrNotOwner      = errors.New("nftregistry: from is not the token owner")
	ErrNotApproved   = errors.New("nftregistry: operator not approved by owner")
	ErrZeroRecipient = errors.New("nftregistry: recipient address required")

	errNilState = errors.New("nftregistry: state not configured")
)

// Token is the owner-of-record entry for a unique token.
type Token struct {
	ID       uint64
	Owner    [20]byte
	URI      string
	MintedAt int64
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

type registryState interface {
	NFTRegistryTokenGet(id uint64) (*Token, bool, error)
	NFTRegistryTokenPut(token *Token) error
	NFTRegistryApprovalGet(owner, operator [20]byte) (bool, error)
	NFTRegistryApprovalPut(owner, operator [20]byte, approved bool) error
}

var _ nftstake.TokenRegistry = (*Registry)(nil)

type eventEnvelope struct{ evt *types.Event }

func (e eventEnvelope) EventType() string   { return e.evt.Type }
func (e eventEnvelope) Event() *types.Event { return e.evt }

// Registry tracks token ownership and operator approvals. The operator is the
// staking custodian; it may move any token whose owner approved it.
type Registry struct {
	state    registryState
	emitter  events.Emitter
	nowFn    func() int64
	minter   [20]byte
	operator [20]byte
}

// NewRegistry constructs a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (r *Registry) SetState(state registryState) { r.state = state }

// SetMinter restricts minting to the supplied address. The zero address
// leaves minting open.
func (r *Registry) SetMinter(minter [20]byte) { r.minter = minter }

// SetOperator configures the custodian allowed to move approved tokens.
func (r *Registry) SetOperator(operator [20]byte) { r.operator = operator }

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) SetNowFunc(now func() int64) {
	if now != nil {
		r.nowFn = now
	}
}

func (r *Registry) emit(evt *types.Event) {
	if r.emitter != nil && evt != nil {
		r.emitter.Emit(eventEnvelope{evt: evt})
	}
}

func (r *Registry) token(id uint64) (*Token, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	tok, ok, err := r.state.NFTRegistryTokenGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || tok == nil {
		return nil, fmt.Errorf("nftregistry: token %d: %w", id, nftstake.ErrUnknownToken)
	}
	return tok, nil
}

// Mint creates token id owned by to.
func (r *Registry) Mint(caller, to [20]byte, id uint64, uri string) (*Token, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var zero [20]byte
	if r.minter != zero && caller != r.minter {
		return nil, ErrNotMinter
	}
	if to == zero {
		return nil, ErrZeroRecipient
	}
	if _, ok, err := r.state.NFTRegistryTokenGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %d", ErrTokenExists, id)
	}
	tok := &Token{ID: id, Owner: to, URI: strings.TrimSpace(uri), MintedAt: r.nowFn()}
	if err := r.state.NFTRegistryTokenPut(tok); err != nil {
		return nil, err
	}
	r.emit(&types.Event{Type: EventTypeMinted, Attributes: map[string]string{
		"tokenId": strconv.FormatUint(id, 10),
		"owner":   crypto.HexAddress(to),
		"uri":     tok.URI,
	}})
	return tok.Clone(), nil
}

// Token returns the registry entry for id.
func (r *Registry) Token(id uint64) (*Token, error) {
	tok, err := r.token(id)
	if err != nil {
		return nil, err
	}
	return tok.Clone(), nil
}

// OwnerOf implements nftstake.TokenRegistry.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	tok, err := r.token(id)
	if err != nil {
		return [20]byte{}, err
	}
	return tok.Owner, nil
}

// SetApprovalForAll records whether operator may move every token of owner.
func (r *Registry) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if err := r.state.NFTRegistryApprovalPut(owner, operator, approved); err != nil {
		return err
	}
	r.emit(&types.Event{Type: EventTypeApproval, Attributes: map[string]string{
		"owner":    crypto.HexAddress(owner),
		"operator": crypto.HexAddress(operator),
		"approved": strconv.FormatBool(approved),
	}})
	return nil
}

// IsApprovedForAll reports the operator approval of owner.
func (r *Registry) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilState
	}
	return r.state.NFTRegistryApprovalGet(owner, operator)
}

// Transfer moves a token on behalf of its owner.
func (r *Registry) Transfer(caller, to [20]byte, id uint64) error {
	return r.move(caller, caller, to, id)
}

// TransferCustody implements nftstake.TokenRegistry. It is invoked by the
// staking custodian, so from must be the operator itself or have approved it.
func (r *Registry) TransferCustody(from, to [20]byte, id uint64) error {
	if from != r.operator {
		approved, err := r.IsApprovedForAll(from, r.operator)
		if err != nil {
			return err
		}
		if !approved {
			return fmt.Errorf("%w: owner %s", ErrNotApproved, crypto.HexAddress(from))
		}
	}
	return r.move(r.operator, from, to, id)
}

func (r *Registry) move(actor, from, to [20]byte, id uint64) error {
	var zero [20]byte
	if to == zero {
		return ErrZeroRecipient
	}
	tok, err := r.token(id)
	if err != nil {
		return err
	}
	if tok.Owner != from {
		return fmt.Errorf("%w: token %d", ErrNotOwner, id)
	}
	tok.Owner = to
	if err := r.state.NFTRegistryTokenPut(tok); err != nil {
		return err
	}
	r.emit(&types.Event{Type: EventTypeTransferred, Attributes: map[string]string{
		"tokenId": strconv.FormatUint(id, 10),
		"from":    crypto.HexAddress(from),
		"to":      crypto.HexAddress(to),
		"actor":   crypto.HexAddress(actor),
	}})
	return nil
}
