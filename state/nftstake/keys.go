package nftstake

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	paramsKey       = hashedKey([]byte("nftstake:params"))
	recordPrefix    = []byte("nftstake:record:")
	holderPrefix    = []byte("nftstake:holder:")
	accountPrefix   = []byte("nftstake:reward:")
	tokenPrefix     = []byte("nftregistry:token:")
	approvalPrefix  = []byte("nftregistry:approval:")
	balancePrefix   = []byte("rewards:balance:")
	rewardSupplyKey = hashedKey([]byte("rewards:supply"))
	custodyCountKey = hashedKey([]byte("nftstake:custody-count"))
)

func hashedKey(parts ...[]byte) []byte {
	return ethcrypto.Keccak256(parts...)
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func recordKey(tokenID uint64) []byte {
	return hashedKey(recordPrefix, uint64Bytes(tokenID))
}

func holderKey(holder [20]byte) []byte {
	return hashedKey(holderPrefix, holder[:])
}

func accountKey(holder [20]byte) []byte {
	return hashedKey(accountPrefix, holder[:])
}

func tokenKey(id uint64) []byte {
	return hashedKey(tokenPrefix, uint64Bytes(id))
}

func approvalKey(owner, operator [20]byte) []byte {
	return hashedKey(approvalPrefix, owner[:], operator[:])
}

func balanceKey(holder [20]byte) []byte {
	return hashedKey(balancePrefix, holder[:])
}
