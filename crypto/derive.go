package crypto

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"launchcore/core/types"
)

// Derivation domains. Each derived sub-account is the keccak256 hash of its
// domain tag and inputs, truncated to 20 bytes, so components can reference an
// account before it is first credited.
const (
	domainVaultBox       = "launchcore/vault/box"
	domainPoolFunding    = "launchcore/pool/funding"
	domainStakingWrapper = "launchcore/staking/wrapper"
)

func derive(domain string, parts ...[]byte) types.Address {
	data := []byte(domain)
	for _, p := range parts {
		data = append(data, p...)
	}
	sum := ethcrypto.Keccak256(data)
	var addr types.Address
	copy(addr[:], sum[12:])
	return addr
}

// VaultBoxAddress derives the custody sub-account for a vault allocation.
func VaultBoxAddress(asset, admin types.Address) types.Address {
	return derive(domainVaultBox, asset[:], admin[:])
}

// PoolFundingAddress derives the funding sub-account for a distribution pool.
func PoolFundingAddress(poolID [32]byte) types.Address {
	return derive(domainPoolFunding, poolID[:])
}

// StakedWrapperAddress derives the custody account of the per-asset staked
// wrapper. The derivation is stable, so the wrapper can be referenced before
// its first stake creates it.
func StakedWrapperAddress(asset types.Address) types.Address {
	return derive(domainStakingWrapper, asset[:])
}

// PoolID derives a deterministic pool identifier from its owner and a
// per-owner sequence number.
func PoolID(owner types.Address, sequence uint64) [32]byte {
	seq := make([]byte, 8)
	for i := 0; i < 8; i++ {
		seq[7-i] = byte(sequence >> (8 * i))
	}
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256([]byte("launchcore/pool/id"), owner[:], seq))
	return id
}
