package types

import (
	"math/big"

	"github.com/relayix/chaincore/common"
)

// TransactionExecutionSummary is the per-transaction outcome an executor
// hands back beyond the receipt: gas used and the fee paid, which the
// reward distributor (C4) folds into the miner's on-paper reward total
// per spec.md §4.4 / §9.
type TransactionExecutionSummary struct {
	TxHash  common.Hash
	GasUsed uint64
	Fee     *big.Int
}

// BlockSummary is the outcome of executing a block: the block itself, the
// coinbase->reward credits, the ordered receipts and execution summaries,
// and — once committed — the post-import total difficulty (spec.md §3).
type BlockSummary struct {
	Block              *Block
	Rewards            map[common.Address]*big.Int
	Receipts           Receipts
	Summaries          []*TransactionExecutionSummary
	TotalDifficulty    *big.Int

	// Diagnostic marks a summary produced by the retry-on-null heuristic
	// (spec.md §4.5 "Retry-on-null heuristic", §9 second open question).
	// It is set only when Diagnostics.LenientRetry lets the retried result
	// through; without LenientRetry a retry that succeeds yields no
	// summary and the import is reported as INVALID_BLOCK.
	Diagnostic bool
}

// BetterThan reports whether s's total difficulty exceeds td, the
// fork-choice comparison spec.md §3 defines.
func (s *BlockSummary) BetterThan(td *big.Int) bool {
	if s.TotalDifficulty == nil || td == nil {
		return false
	}
	return s.TotalDifficulty.Cmp(td) > 0
}

// ImportResult is the terminal outcome of TryToConnect, spec.md §7.
type ImportResult int

const (
	ImportResultExist ImportResult = iota
	ImportResultImportedBest
	ImportResultImportedNotBest
	ImportResultInvalidBlock
	ImportResultNoParent
)

func (r ImportResult) String() string {
	switch r {
	case ImportResultExist:
		return "EXIST"
	case ImportResultImportedBest:
		return "IMPORTED_BEST"
	case ImportResultImportedNotBest:
		return "IMPORTED_NOT_BEST"
	case ImportResultInvalidBlock:
		return "INVALID_BLOCK"
	case ImportResultNoParent:
		return "NO_PARENT"
	default:
		return "UNKNOWN"
	}
}
