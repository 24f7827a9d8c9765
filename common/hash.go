package common

import "golang.org/x/crypto/sha3"

// Keccak256 hashes data with the Keccak256 function used throughout the
// consensus-critical byte formats: block hashes, trie node hashes, the
// empty-uncles-list hash, transaction hashes.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash is Keccak256 with the result already folded into a Hash.
func Keccak256Hash(data ...[]byte) Hash {
	return BytesToHash(Keccak256(data...))
}
