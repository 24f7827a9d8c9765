package blockchain

import (
	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/log"
	"github.com/relayix/chaincore/params"
	"github.com/relayix/chaincore/ser/rlp"
	"github.com/relayix/chaincore/storage/statedb"

	set "gopkg.in/fatih/set.v0"
)

var validatorLogger = log.NewModuleLogger(log.Blockchain)

// BlockValidator is component C2: structural and semantic checks on a
// candidate block. Ported in idiom from
// aboreum-go-ethereum/core/block_processor.go's ValidateHeader/VerifyUncles,
// generalized to spec.md §4.2's exact check order and to an injected
// ParentBlockHeaderValidator/Signer instead of a single PoW check.
type BlockValidator struct {
	parentValidator ParentBlockHeaderValidator
	signer          Signer
	blockSource     interface {
		GetChainBlockByNumber(number uint64) *types.Block
	}
}

func NewBlockValidator(parentValidator ParentBlockHeaderValidator, signer Signer, blockSource interface {
	GetChainBlockByNumber(number uint64) *types.Block
}) *BlockValidator {
	return &BlockValidator{parentValidator: parentValidator, signer: signer, blockSource: blockSource}
}

// IsValid runs every spec.md §4.2 check against block given repo as the
// state to read nonces from, short-circuiting on the first failure. It
// never panics: on failure it logs the reason and returns false.
func (v *BlockValidator) IsValid(repo Repository, block *types.Block, parent *types.Block) bool {
	if block.IsGenesis() {
		return true
	}

	if parent == nil {
		validatorLogger.Warn("block rejected: parent unknown", "number", block.NumberU64())
		return false
	}

	if v.parentValidator != nil && !v.parentValidator.ValidateHeader(block.Header(), parent.Header()) {
		validatorLogger.Warn("block rejected: parent header rule failed", "number", block.NumberU64())
		return false
	}

	if !v.validateTxTrieRoot(block) {
		return false
	}

	if !v.validateSendersAndNonces(repo, block) {
		return false
	}

	return true
}

func (v *BlockValidator) validateTxTrieRoot(block *types.Block) bool {
	txs := block.Transactions()
	var root common.Hash
	if len(txs) == 0 {
		root = statedb.EmptyRootHash
	} else {
		t := statedb.NewTrie()
		for i, tx := range txs {
			key, _ := rlp.EncodeToBytes(uint64(i))
			enc, err := tx.EncodeRLP()
			if err != nil {
				validatorLogger.Warn("block rejected: tx encode failed", "index", i, "err", err)
				return false
			}
			t.Update(key, enc)
		}
		root = t.Hash()
	}
	if root != block.TxTrieRoot() {
		validatorLogger.Warn("block rejected: tx trie root mismatch",
			"number", block.NumberU64(), "have", root.String(), "want", block.TxTrieRoot().String())
		return false
	}
	return true
}

func (v *BlockValidator) validateSendersAndNonces(repo Repository, block *types.Block) bool {
	expected := make(map[common.Address]uint64)
	for i, tx := range block.Transactions() {
		sender, ok := tx.CachedFrom()
		if !ok {
			if v.signer == nil {
				validatorLogger.Warn("block rejected: no signer configured to recover sender", "index", i)
				return false
			}
			recovered, err := v.signer.Sender(tx)
			if err != nil {
				validatorLogger.Warn("block rejected: sender not recoverable", "index", i, "err", err)
				return false
			}
			sender = recovered
			tx.StoreFrom(sender)
		}
		if sender.IsZero() {
			validatorLogger.Warn("block rejected: null sender", "index", i)
			return false
		}

		next, seen := expected[sender]
		if !seen {
			next = repo.GetNonce(sender)
		}
		if tx.Nonce() != next {
			validatorLogger.Warn("block rejected: nonce mismatch",
				"index", i, "sender", sender.String(), "have", tx.Nonce(), "want", next)
			return false
		}
		expected[sender] = next + 1
	}
	return true
}

// ValidateUncles runs spec.md §4.2's uncle validation: uncles-hash check,
// per-block uncle cap, per-uncle header/parent-generation/uniqueness
// checks, walking the parent chain from block (exclusive) back up to
// params.UncleGenerationLimit generations. Ported in idiom from
// aboreum-go-ethereum's VerifyUncles.
func (v *BlockValidator) ValidateUncles(block *types.Block, ancestorOf func(hash common.Hash) *types.Block) error {
	uncles := block.Uncles()

	encUncles, err := rlp.EncodeToBytes(uncles)
	if err != nil {
		return &UncleError{Reason: "uncles encode failed"}
	}
	if common.Keccak256Hash(encUncles) != block.Header().UncleHash {
		return &UncleError{Reason: "uncle hash mismatch"}
	}
	if len(uncles) > params.UncleListLimit {
		return &UncleError{Reason: "too many uncles"}
	}
	if len(uncles) == 0 {
		return nil
	}

	ancestors := set.New()
	usedUncles := set.New()
	ancestorHeaders := make(map[common.Hash]*types.Header)

	cursor := ancestorOf(block.ParentHash())
	for gen := 0; cursor != nil && gen < params.UncleGenerationLimit; gen++ {
		ancestorHeaders[cursor.Hash()] = cursor.Header()
		ancestors.Add(cursor.Hash())
		for _, u := range cursor.Uncles() {
			usedUncles.Add(u.Hash())
		}
		cursor = ancestorOf(cursor.ParentHash())
	}
	usedUncles.Add(block.Hash())

	for i, uncle := range uncles {
		uh := uncle.Hash()
		if usedUncles.Has(uh) {
			return &UncleError{Reason: "not unique", Index: i}
		}
		usedUncles.Add(uh)

		if ancestors.Has(uh) {
			return &UncleError{Reason: "uncle is ancestor", Index: i}
		}
		if !ancestors.Has(uncle.ParentHash) {
			return &UncleError{Reason: "uncle's parent unknown", Index: i}
		}
		uncleParent := ancestorHeaders[uncle.ParentHash]
		if v.parentValidator != nil && !v.parentValidator.ValidateHeader(uncle, uncleParent) {
			return &UncleError{Reason: "uncle header invalid", Index: i}
		}
	}
	return nil
}

// UncleError is returned by ValidateUncles; its Reason distinguishes the
// boundary cases spec.md §8 scenario 6 expects callers to be able to
// report ("not unique" etc).
type UncleError struct {
	Reason string
	Index  int
}

func (e *UncleError) Error() string {
	return "invalid uncle: " + e.Reason
}
