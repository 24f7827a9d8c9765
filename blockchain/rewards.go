package blockchain

import (
	"math/big"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/params"
)

// DistributeRewards is component C4. Ported in idiom and in exact
// arithmetic from aboreum-go-ethereum/core/block_processor.go's
// AccumulateRewards, generalized from a single package constant to a
// per-fork BlockchainConfig. All arithmetic is big.Int; division
// truncates toward zero per spec.md §4.4.
//
// Honors the spec.md §9 open question verbatim: the repository mutation
// for the miner's coinbase is minerReward only (fees were already
// credited by the executor during transaction processing); the returned
// map's miner entry additionally includes the summed transaction fees so
// reward *reports* reconcile even though the two numbers diverge. Do not
// "fix" this split.
func DistributeRewards(track Repository, block *types.Block, cfg *params.BlockchainConfig, totalFees *big.Int) map[common.Address]*big.Int {
	rewards := make(map[common.Address]*big.Int)
	if cfg == nil || cfg.BlockReward == nil {
		return rewards
	}

	blockReward := cfg.BlockReward
	uncles := block.Uncles()

	inclusionReward := new(big.Int).Div(blockReward, big.NewInt(32))
	minerReward := new(big.Int).Set(blockReward)

	for _, uncle := range uncles {
		// uncleReward = BLOCK_REWARD * (MAGIC_REWARD_OFFSET + uncle.number - block.number) / MAGIC_REWARD_OFFSET
		num := new(big.Int).Add(big.NewInt(params.MagicRewardOffset), uncle.Number)
		num.Sub(num, block.Number())

		uncleReward := new(big.Int).Mul(blockReward, num)
		uncleReward.Div(uncleReward, big.NewInt(params.MagicRewardOffset))

		track.AddBalance(uncle.Coinbase, uncleReward)
		creditReward(rewards, uncle.Coinbase, uncleReward)

		minerReward.Add(minerReward, inclusionReward)
	}

	track.AddBalance(block.Coinbase(), minerReward)

	onPaper := new(big.Int).Set(minerReward)
	if totalFees != nil {
		onPaper.Add(onPaper, totalFees)
	}
	creditReward(rewards, block.Coinbase(), onPaper)

	return rewards
}

func creditReward(rewards map[common.Address]*big.Int, addr common.Address, amount *big.Int) {
	if existing, ok := rewards[addr]; ok {
		existing.Add(existing, amount)
	} else {
		rewards[addr] = new(big.Int).Set(amount)
	}
}
