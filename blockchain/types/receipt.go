package types

import (
	"math/big"

	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
)

// ReceiptStatus is the post-EIP-658 success/failure bit.
type ReceiptStatus uint64

const (
	ReceiptStatusFailed ReceiptStatus = 0
	ReceiptStatusSuccessful ReceiptStatus = 1
)

// Log is a single event log entry emitted by a transaction.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is the post-execution outcome of a single transaction, carrying
// either the pre-EIP-658 post-state root or the post-EIP-658 status bit
// per spec.md §3 and §4.3.
type Receipt struct {
	// PostState is set when the active BlockchainConfig does not enable
	// EIP-658; it is the repository's root immediately after the
	// transaction committed.
	PostState []byte
	// Status is set when EIP-658 is enabled; 1 if the transaction
	// executed without reverting.
	Status            ReceiptStatus
	CumulativeGasUsed uint64
	Bloom             common.Bloom
	Logs              []*Log

	// TxHash is not part of the RLP-encoded trie value (it is the trie
	// key's logical subject, not its content) but is convenient to carry
	// alongside the receipt for the TransactionStore.
	TxHash common.Hash
}

func NewReceipt(postState []byte, cumulativeGasUsed uint64) *Receipt {
	return &Receipt{PostState: postState, CumulativeGasUsed: cumulativeGasUsed}
}

// IsSuccessful reports whether the receipt represents a transaction that
// completed without reverting. Pre-EIP-658 receipts carry no status bit;
// callers must not call IsSuccessful on those (SetStatus was never
// invoked), mirroring the Java source's eip658-gated branch in
// blockchain applyBlock.
func (r *Receipt) IsSuccessful() bool {
	return r.Status == ReceiptStatusSuccessful
}

func (r *Receipt) SetStatus(ok bool) {
	if ok {
		r.Status = ReceiptStatusSuccessful
	} else {
		r.Status = ReceiptStatusFailed
	}
	r.PostState = nil
}

func (r *Receipt) SetPostState(root common.Hash) {
	r.PostState = append([]byte(nil), root.Bytes()...)
}

// receiptRLP is the shape a Receipt takes inside the receipts trie.
type receiptRLP struct {
	PostStateOrStatus []byte
	CumulativeGasUsed uint64
	Bloom             common.Bloom
	Logs              []*logRLP
}

type logRLP struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

func (r *Receipt) statusBytes() []byte {
	if r.PostState != nil {
		return r.PostState
	}
	return big.NewInt(int64(r.Status)).Bytes()
}

func (r *Receipt) EncodeRLP() ([]byte, error) {
	logs := make([]*logRLP, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = &logRLP{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	return rlp.EncodeToBytes(&receiptRLP{
		PostStateOrStatus: r.statusBytes(),
		CumulativeGasUsed: r.CumulativeGasUsed,
		Bloom:             r.Bloom,
		Logs:              logs,
	})
}

type Receipts []*Receipt

// CreateBloom ORs together the per-receipt blooms, the check C5's inner
// `add` uses to validate header.Bloom against execution output.
func CreateBloom(receipts Receipts) common.Bloom {
	var bloom common.Bloom
	for _, r := range receipts {
		bloom.OrBloom(r.Bloom)
	}
	return bloom
}
