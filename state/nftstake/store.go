package nftstake

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"nftstake/native/nftregistry"
	stake "nftstake/native/nftstake"
	"nftstake/storage"
)

// Store is a write overlay over a storage.Database. Every mutation stays in
// memory until Commit writes the overlay as one atomic batch; Discard drops
// it. Store implements the state interfaces of the staking engine, the token
// registry and the reward ledger.
type Store struct {
	mu    sync.Mutex
	db    storage.Database
	dirty map[string][]byte
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db, dirty: make(map[string][]byte)}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	s.mu.Lock()
	data, ok := s.dirty[string(key)]
	s.mu.Unlock()
	if !ok {
		var err error
		data, err = s.db.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %x: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty[string(key)] = encoded
	s.mu.Unlock()
	return nil
}

// del records a tombstone so Commit removes the key.
func (s *Store) del(key []byte) {
	s.mu.Lock()
	s.dirty[string(key)] = nil
	s.mu.Unlock()
}

// Pending reports the number of uncommitted keys.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Commit writes the overlay to the database atomically. Keys are applied in
// sorted order so identical overlays produce identical batches.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		if v := s.dirty[k]; v == nil {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), v)
		}
	}
	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	s.dirty = make(map[string][]byte)
	return nil
}

// Discard drops every uncommitted mutation.
func (s *Store) Discard() {
	s.mu.Lock()
	s.dirty = make(map[string][]byte)
	s.mu.Unlock()
}

// --- staking engine ---

func (s *Store) NFTStakeParamsGet() (*stake.Params, bool, error) {
	var stored storedParams
	ok, err := s.get(paramsKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.params(), true, nil
}

func (s *Store) NFTStakeParamsPut(params *stake.Params) error {
	if params == nil {
		return errors.New("state: nil params")
	}
	return s.put(paramsKey, newStoredParams(params))
}

func (s *Store) NFTStakeRecordGet(tokenID uint64) (*stake.StakeRecord, bool, error) {
	var stored storedRecord
	ok, err := s.get(recordKey(tokenID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.record(), true, nil
}

func (s *Store) NFTStakeRecordPut(record *stake.StakeRecord) error {
	if record == nil {
		return errors.New("state: nil stake record")
	}
	return s.put(recordKey(record.TokenID), newStoredRecord(record))
}

func (s *Store) NFTStakeHolderTokensGet(holder [20]byte) ([]uint64, error) {
	var ids []uint64
	if _, err := s.get(holderKey(holder), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) NFTStakeHolderTokensPut(holder [20]byte, tokenIDs []uint64) error {
	if len(tokenIDs) == 0 {
		s.del(holderKey(holder))
		return nil
	}
	return s.put(holderKey(holder), tokenIDs)
}

func (s *Store) NFTStakeRewardAccountGet(holder [20]byte) (*stake.RewardAccount, bool, error) {
	var stored storedAccount
	ok, err := s.get(accountKey(holder), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.account(), true, nil
}

func (s *Store) NFTStakeRewardAccountPut(account *stake.RewardAccount) error {
	if account == nil {
		return errors.New("state: nil reward account")
	}
	return s.put(accountKey(account.Holder), newStoredAccount(account))
}

// CustodyCountGet returns the number of tokens currently in custody.
func (s *Store) CustodyCountGet() (uint64, error) {
	var count uint64
	if _, err := s.get(custodyCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CustodyCountPut(count uint64) error {
	return s.put(custodyCountKey, count)
}

// --- token registry ---

func (s *Store) NFTRegistryTokenGet(id uint64) (*nftregistry.Token, bool, error) {
	var stored storedToken
	ok, err := s.get(tokenKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.token(), true, nil
}

func (s *Store) NFTRegistryTokenPut(token *nftregistry.Token) error {
	if token == nil {
		return errors.New("state: nil token")
	}
	return s.put(tokenKey(token.ID), newStoredToken(token))
}

func (s *Store) NFTRegistryApprovalGet(owner, operator [20]byte) (bool, error) {
	var approved bool
	if _, err := s.get(approvalKey(owner, operator), &approved); err != nil {
		return false, err
	}
	return approved, nil
}

func (s *Store) NFTRegistryApprovalPut(owner, operator [20]byte, approved bool) error {
	if !approved {
		s.del(approvalKey(owner, operator))
		return nil
	}
	return s.put(approvalKey(owner, operator), true)
}

// --- reward ledger ---

func (s *Store) RewardBalanceGet(holder [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := s.get(balanceKey(holder), balance)
	if err != nil || !ok {
		return nil, err
	}
	return balance, nil
}

func (s *Store) RewardBalancePut(holder [20]byte, balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return errors.New("state: invalid reward balance")
	}
	return s.put(balanceKey(holder), balance)
}

func (s *Store) RewardSupplyGet() (*big.Int, error) {
	supply := new(big.Int)
	ok, err := s.get(rewardSupplyKey, supply)
	if err != nil || !ok {
		return nil, err
	}
	return supply, nil
}

func (s *Store) RewardSupplyPut(supply *big.Int) error {
	if supply == nil || supply.Sign() < 0 {
		return errors.New("state: invalid reward supply")
	}
	return s.put(rewardSupplyKey, supply)
}
