// Package params carries the per-fork constants spec.md §6 calls out as
// "Tunables": block-reward schedule, the EIP-658 switch-over block,
// hard-fork state transfers, extra-data policy, and the uncle
// generation/list limits. Grounded on params/protocol_params.go's role
// in the teacher corpus (a dedicated constants package) and
// node/ranger/config.go's DefaultConfig idiom.
package params

import "math/big"

const (
	// MagicRewardOffset is the constant spec.md §4.4 names
	// MAGIC_REWARD_OFFSET, used in the uncle reward formula.
	MagicRewardOffset = 8

	// UncleListLimit is the maximum number of uncles a single block may
	// reference.
	UncleListLimit = 2

	// UncleGenerationLimit is the maximum distance, in block numbers,
	// between an uncle's parent and the importing block.
	UncleGenerationLimit = 7

	// MaximumExtraDataSize bounds the header's Extra field, ported from
	// aboreum-go-ethereum/core/block_processor.go's ValidateHeader.
	MaximumExtraDataSize = 32

	// InitialMinGasPrice is the INITIAL_MIN_GAS_PRICE tunable named in
	// spec.md §6.
	InitialMinGasPrice = 18 * 1_000_000_000
)

// HardForkTransfer is a single scheduled state transfer applied at a given
// block number before transaction execution (e.g. a DAO-style recovery),
// spec.md §4.3 step 1.
type HardForkTransfer struct {
	BlockNumber *big.Int
	From        []byte // common.Address bytes, kept untyped to avoid an import cycle
	To          []byte
	Amount      *big.Int
}

// BlockchainConfig is the per-fork configuration the executor driver (C3)
// and reward distributor (C4) consult for the active block number.
type BlockchainConfig struct {
	// StartBlock is the first block number this configuration applies to.
	StartBlock *big.Int

	// BlockReward is the static per-block miner reward before inclusion
	// and uncle rewards, spec.md §4.4's BLOCK_REWARD.
	BlockReward *big.Int

	// EIP658 enables the post-state-status-bit receipt encoding;
	// otherwise receipts carry the post-transaction state root.
	EIP658 bool

	// HardForkTransfers lists scheduled state transfers; each is applied
	// at its own BlockNumber while this configuration is the active one.
	HardForkTransfers []HardForkTransfer

	// ExitOnBlockConflict is not read by the importer: escalation of the
	// invalid-block retry (the diagnostic heuristic in spec.md §4.5) is
	// governed by blockchain.Diagnostics.
	ExitOnBlockConflict bool
}

// ChainConfig is the ordered, ascending-by-StartBlock schedule of
// BlockchainConfig entries a BlockChain consults via ConfigForBlock.
type ChainConfig struct {
	Forks []*BlockchainConfig
}

// ConfigForBlock returns the BlockchainConfig active at number, i.e. the
// entry with the greatest StartBlock <= number. Forks must be sorted
// ascending by StartBlock; callers construct ChainConfig once at startup.
func (c *ChainConfig) ConfigForBlock(number *big.Int) *BlockchainConfig {
	var active *BlockchainConfig
	for _, f := range c.Forks {
		if f.StartBlock.Cmp(number) <= 0 {
			active = f
		} else {
			break
		}
	}
	return active
}

// DefaultChainConfig is a single-fork schedule suitable for tests and the
// bootstrap binary's dev-mode genesis-only chain.
func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{Forks: []*BlockchainConfig{
		{
			StartBlock:  big.NewInt(0),
			BlockReward: big.NewInt(5_000_000_000_000_000_000),
			EIP658:      true,
		},
	}}
}
