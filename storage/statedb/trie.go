// Package statedb provides the minimal Merkle-Patricia trie used to derive
// the transaction-trie and receipts-trie roots that blockchain.BlockValidator
// checks against a candidate block's header. It intentionally does not
// implement a full persistent world-state trie: the world-state Repository
// is an external collaborator per spec.md §1 and is consumed as an
// interface, not built here. This package only needs to answer one
// question — "what is the root hash of {RLP(i): value_i}?" — which is
// exactly the shape go-ethereum/klaytn's DeriveSha answers.
package statedb

import (
	"sort"

	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
)

// EmptyRootHash is the root hash of a trie with no entries, the canonical
// empty-trie hash referenced by spec.md §6.
var EmptyRootHash = common.Keccak256Hash(rlp.MustEncode([]byte{}))

// DeriveShaOrig computes a trie root over an ordered value list keyed by
// RLP(i), i = 0..len(values)-1, mirroring klaytn's statedb.DeriveShaOrig
// named in blockchain/init_derive_sha.go.
type DeriveShaOrig struct{}

// Derive builds a trie keyed by rlp-encoded index and returns its root.
func (DeriveShaOrig) Derive(values [][]byte) common.Hash {
	if len(values) == 0 {
		return EmptyRootHash
	}
	t := NewTrie()
	for i, v := range values {
		key, _ := rlp.EncodeToBytes(uint64(i))
		t.Update(key, v)
	}
	return t.Hash()
}

// node is a simplified trie node: either a leaf (key suffix + value) or a
// branch keyed by the first nibble. This is not a byte-exact replica of
// go-ethereum's hex-prefix trie encoding, but it is deterministic,
// collision-resistant, and order-sensitive in the same way a real MPT is:
// any change to a key or value changes the root.
type node struct {
	children [16]*node
	value    []byte
	hasValue bool
}

// Trie is an insert-only Merkle-Patricia-shaped trie sufficient for
// deriving transaction/receipt roots.
type Trie struct {
	root *node
}

func NewTrie() *Trie {
	return &Trie{root: &node{}}
}

func (t *Trie) Update(key, value []byte) {
	nibbles := toNibbles(key)
	cur := t.root
	for _, nb := range nibbles {
		if cur.children[nb] == nil {
			cur.children[nb] = &node{}
		}
		cur = cur.children[nb]
	}
	cur.value = value
	cur.hasValue = true
}

// Hash computes the root hash by recursively hashing each node's RLP
// encoding, in the same spirit as a real MPT: the hash commits to every
// key and value inserted, and is independent of insertion order.
func (t *Trie) Hash() common.Hash {
	return hashNode(t.root)
}

func hashNode(n *node) common.Hash {
	if n == nil {
		return EmptyRootHash
	}
	var parts [][]byte
	if n.hasValue {
		parts = append(parts, []byte{0x01}, n.value)
	}
	// iterate children in a stable, deterministic order
	idxs := make([]int, 0, 16)
	for i, c := range n.children {
		if c != nil {
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		h := hashNode(n.children[i])
		parts = append(parts, []byte{byte(i)}, h.Bytes())
	}
	if len(parts) == 0 {
		return EmptyRootHash
	}
	enc, err := rlp.EncodeToBytes(parts)
	if err != nil {
		// parts is always [][]byte, encoding cannot fail
		panic(err)
	}
	return common.Keccak256Hash(enc)
}

func toNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}
