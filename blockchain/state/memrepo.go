// Package state provides a reference blockchain.Repository: an
// in-memory account map whose snapshots are full copies, rooted by
// feeding its account set through storage/statedb's trie the same way
// blockchain/state/database.go's Database/Trie pair roots the real
// world-state trie. It is not meant to replace a production trie-backed
// store — the real Repository is explicitly an external collaborator
// per spec.md §1 — but it is a complete, correct implementation usable
// by tests and the bootstrap binary's dev-mode single-node chain.
package state

import (
	"math/big"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/relayix/chaincore/blockchain"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
	"github.com/relayix/chaincore/storage/statedb"
)

// account is the per-address state this reference Repository tracks;
// real contract storage/code are out of scope (the EVM collaborator
// that would populate them is external, see blockchain.TransactionExecutor).
type account struct {
	Nonce   uint64
	Balance *big.Int
}

func (a *account) clone() *account {
	return &account{Nonce: a.Nonce, Balance: new(big.Int).Set(a.Balance)}
}

// store is the shared, cross-fork backing every Repository instance
// descended from the same genesis points at: the committed-root history
// that makes SnapshotTo(root) possible for an arbitrary ancestor.
type store struct {
	mu      sync.Mutex
	history map[common.Hash]map[common.Address]*account
	bytes   *fastcache.Cache // account RLP byte cache, keyed by address
}

func newStore() *store {
	return &store{
		history: make(map[common.Hash]map[common.Address]*account),
		bytes:   fastcache.New(4 * 1024 * 1024),
	}
}

// Repository is the reference blockchain.Repository implementation.
type Repository struct {
	st       *store
	accounts map[common.Address]*account
	parent   *Repository
}

var _ blockchain.Repository = (*Repository)(nil)

// NewGenesisRepository returns an empty Repository representing the
// state before any block has been applied.
func NewGenesisRepository() *Repository {
	return &Repository{st: newStore(), accounts: make(map[common.Address]*account)}
}

func cloneAccounts(src map[common.Address]*account) map[common.Address]*account {
	dst := make(map[common.Address]*account, len(src))
	for addr, a := range src {
		dst[addr] = a.clone()
	}
	return dst
}

func (r *Repository) get(addr common.Address) *account {
	if a, ok := r.accounts[addr]; ok {
		return a
	}
	return nil
}

func (r *Repository) getOrCreate(addr common.Address) *account {
	if a := r.get(addr); a != nil {
		return a
	}
	a := &account{Balance: new(big.Int)}
	r.accounts[addr] = a
	return a
}

func (r *Repository) GetNonce(addr common.Address) uint64 {
	if a := r.get(addr); a != nil {
		return a.Nonce
	}
	return 0
}

// SetNonce is not part of blockchain.Repository (transaction execution
// advances the nonce, and that is the executor collaborator's job) but
// is exposed for tests that need to seed state directly.
func (r *Repository) SetNonce(addr common.Address, nonce uint64) {
	r.getOrCreate(addr).Nonce = nonce
}

func (r *Repository) GetBalance(addr common.Address) *big.Int {
	if a := r.get(addr); a != nil {
		return new(big.Int).Set(a.Balance)
	}
	return new(big.Int)
}

func (r *Repository) AddBalance(addr common.Address, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 {
		r.getOrCreate(addr)
		return
	}
	a := r.getOrCreate(addr)
	a.Balance.Add(a.Balance, delta)
}

// GetRoot derives a root hash over the current account set: for each
// account, its address followed by its RLP encoding, in ascending address
// order (the map has no natural order of its own), fed as an ordered
// value list through the same DeriveShaOrig the receipts root uses.
func (r *Repository) GetRoot() common.Hash {
	if len(r.accounts) == 0 {
		return statedb.EmptyRootHash
	}
	addrs := make([]common.Address, 0, len(r.accounts))
	for addr := range r.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i].Bytes()) < string(addrs[j].Bytes())
	})

	values := make([][]byte, len(addrs))
	for i, addr := range addrs {
		a := r.accounts[addr]
		enc, err := r.st.encodeAccount(addr, a)
		if err != nil {
			return common.Hash{}
		}
		values[i] = append(addr.Bytes(), enc...)
	}
	return statedb.DeriveShaOrig{}.Derive(values)
}

// encodeAccount RLP-encodes a, content-addressed by (addr, nonce,
// balance) so repeated GetRoot calls over an unchanged account — common
// during the retry-on-null diagnostic heuristic, which re-derives the
// root against the same state twice — skip the reflective encode.
func (s *store) encodeAccount(addr common.Address, a *account) ([]byte, error) {
	key := append(append(addr.Bytes(), encodeUint64(a.Nonce)...), a.Balance.Bytes()...)
	if cached, ok := s.bytes.HasGet(nil, key); ok {
		return cached, nil
	}
	enc, err := rlp.EncodeToBytes(a)
	if err != nil {
		return nil, err
	}
	s.bytes.Set(key, enc)
	return enc, nil
}

func encodeUint64(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

// StartTracking returns a child Repository holding a copy of r's account
// set as it is now. The child's writes do not reach r until Commit, which
// replaces r's account set with the child's; writes made to r after this
// call are not visible through the child.
func (r *Repository) StartTracking() blockchain.Repository {
	return &Repository{st: r.st, accounts: cloneAccounts(r.accounts), parent: r}
}

// SnapshotTo returns a new Repository rooted at a previously committed
// root, sharing this Repository's history store so further commits
// continue to accumulate into it. Returns an empty Repository if root
// was never committed (the same empty state NewGenesisRepository starts
// from).
func (r *Repository) SnapshotTo(root common.Hash) blockchain.Repository {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	snap, ok := r.st.history[root]
	if !ok {
		return &Repository{st: r.st, accounts: make(map[common.Address]*account)}
	}
	return &Repository{st: r.st, accounts: cloneAccounts(snap)}
}

// Commit copies this Repository's account set over its parent's (for a
// StartTracking child) or, for a top-level Repository, records it into
// the shared history keyed by its current root so a later SnapshotTo
// can find it.
func (r *Repository) Commit() error {
	if r.parent != nil {
		r.parent.accounts = cloneAccounts(r.accounts)
		return nil
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.history[r.GetRoot()] = cloneAccounts(r.accounts)
	return nil
}

// Rollback discards this Repository's pending writes; since nothing was
// merged into the parent until Commit, there is nothing further to undo.
func (r *Repository) Rollback() {}
