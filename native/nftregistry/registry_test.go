package nftregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nftstake/native/nftstake"
)

type memState struct {
	tokens    map[uint64]*Token
	approvals map[[40]byte]bool
}

func newMemState() *memState {
	return &memState{tokens: make(map[uint64]*Token), approvals: make(map[[40]byte]bool)}
}

func pairKey(owner, operator [20]byte) [40]byte {
	var k [40]byte
	copy(k[:20], owner[:])
	copy(k[20:], operator[:])
	return k
}

func (m *memState) NFTRegistryTokenGet(id uint64) (*Token, bool, error) {
	tok, ok := m.tokens[id]
	return tok.Clone(), ok, nil
}

func (m *memState) NFTRegistryTokenPut(token *Token) error {
	m.tokens[token.ID] = token.Clone()
	return nil
}

func (m *memState) NFTRegistryApprovalGet(owner, operator [20]byte) (bool, error) {
	return m.approvals[pairKey(owner, operator)], nil
}

func (m *memState) NFTRegistryApprovalPut(owner, operator [20]byte, approved bool) error {
	m.approvals[pairKey(owner, operator)] = approved
	return nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

var (
	minter    = addr(0xEE)
	custodian = addr(0xCC)
	alice     = addr(0x01)
	bob       = addr(0x02)
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.SetState(newMemState())
	reg.SetMinter(minter)
	reg.SetOperator(custodian)
	reg.SetNowFunc(func() int64 { return 42 })
	return reg
}

func TestMint(t *testing.T) {
	reg := newTestRegistry(t)
	tok, err := reg.Mint(minter, alice, 1, " ipfs://one ")
	require.NoError(t, err)
	require.Equal(t, "ipfs://one", tok.URI)
	require.Equal(t, int64(42), tok.MintedAt)

	owner, err := reg.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	_, err = reg.Mint(minter, alice, 1, "")
	require.ErrorIs(t, err, ErrTokenExists)
	_, err = reg.Mint(alice, alice, 2, "")
	require.ErrorIs(t, err, ErrNotMinter)
	_, err = reg.Mint(minter, [20]byte{}, 2, "")
	require.ErrorIs(t, err, ErrZeroRecipient)
}

func TestOwnerOfUnknownToken(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.OwnerOf(9)
	require.ErrorIs(t, err, nftstake.ErrUnknownToken)
}

func TestTransferCustodyRequiresApproval(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Mint(minter, alice, 1, "")
	require.NoError(t, err)

	require.ErrorIs(t, reg.TransferCustody(alice, custodian, 1), ErrNotApproved)

	require.NoError(t, reg.SetApprovalForAll(alice, custodian, true))
	require.NoError(t, reg.TransferCustody(alice, custodian, 1))
	owner, _ := reg.OwnerOf(1)
	require.Equal(t, custodian, owner)

	// The custodian returns tokens without needing an approval of its own.
	require.NoError(t, reg.TransferCustody(custodian, alice, 1))
	owner, _ = reg.OwnerOf(1)
	require.Equal(t, alice, owner)

	require.NoError(t, reg.SetApprovalForAll(alice, custodian, false))
	require.ErrorIs(t, reg.TransferCustody(alice, custodian, 1), ErrNotApproved)
}

func TestTransferCustodyChecksOwner(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Mint(minter, alice, 1, "")
	require.NoError(t, err)
	require.NoError(t, reg.SetApprovalForAll(bob, custodian, true))
	require.ErrorIs(t, reg.TransferCustody(bob, custodian, 1), ErrNotOwner)
}

func TestTransfer(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Mint(minter, alice, 1, "")
	require.NoError(t, err)
	require.ErrorIs(t, reg.Transfer(bob, bob, 1), ErrNotOwner)
	require.NoError(t, reg.Transfer(alice, bob, 1))
	owner, _ := reg.OwnerOf(1)
	require.Equal(t, bob, owner)
}
