package types

import (
	"math/big"
	"sync/atomic"

	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
)

// txData is the RLP-encoded body of a Transaction. Signature recovery is
// deliberately not performed here: deriving the sender from (V, R, S)
// requires a secp256k1 implementation, which — like the EVM interpreter —
// this core treats as an external collaborator (see Signer in
// blockchain/interfaces.go) rather than reimplementing.
type txData struct {
	AccountNonce uint64
	Price        *big.Int
	GasLimit     uint64
	Recipient    *common.Address `rlp:"nil"`
	Amount       *big.Int
	Payload      []byte
	V, R, S      *big.Int
}

// Transaction is a single signed transaction. It caches its hash and
// recovered sender the way go-ethereum's types.Transaction does, so a
// signer is only consulted once per transaction.
type Transaction struct {
	data txData

	hash atomic.Value
	from atomic.Value
}

func NewTransaction(nonce uint64, to *common.Address, amount *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *Transaction {
	return &Transaction{data: txData{
		AccountNonce: nonce,
		Recipient:    to,
		Amount:       amount,
		GasLimit:     gasLimit,
		Price:        gasPrice,
		Payload:      data,
		V:            new(big.Int),
		R:            new(big.Int),
		S:            new(big.Int),
	}}
}

func (tx *Transaction) Nonce() uint64        { return tx.data.AccountNonce }
func (tx *Transaction) GasPrice() *big.Int   { return tx.data.Price }
func (tx *Transaction) Gas() uint64          { return tx.data.GasLimit }
func (tx *Transaction) To() *common.Address  { return tx.data.Recipient }
func (tx *Transaction) Value() *big.Int      { return tx.data.Amount }
func (tx *Transaction) Data() []byte         { return tx.data.Payload }
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	return tx.data.V, tx.data.R, tx.data.S
}

// SetSignature fills in the raw ECDSA signature values; used by tests that
// construct signed transactions without a real signer.
func (tx *Transaction) SetSignature(v, r, s *big.Int) {
	tx.data.V, tx.data.R, tx.data.S = v, r, s
	tx.hash = atomic.Value{}
	tx.from = atomic.Value{}
}

// CachedFrom returns the sender address cached by a prior call to
// StoreFrom, or the zero address if none has been cached yet.
func (tx *Transaction) CachedFrom() (common.Address, bool) {
	if v := tx.from.Load(); v != nil {
		return v.(common.Address), true
	}
	return common.Address{}, false
}

// StoreFrom caches the sender recovered by a Signer so repeated validation
// passes over the same block don't re-run signature recovery.
func (tx *Transaction) StoreFrom(addr common.Address) {
	tx.from.Store(addr)
}

func (tx *Transaction) Hash() common.Hash {
	if h := tx.hash.Load(); h != nil {
		return h.(common.Hash)
	}
	enc, err := rlp.EncodeToBytes(tx.data)
	if err != nil {
		return common.Hash{}
	}
	h := common.Keccak256Hash(enc)
	tx.hash.Store(h)
	return h
}

// EncodeRLP encodes the transaction body, matching the shape the tx-trie
// root derivation and the transaction store persist.
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(tx.data)
}

func (tx *Transaction) DecodeRLP(raw []byte) error {
	return rlp.DecodeBytes(raw, &tx.data)
}

type Transactions []*Transaction

// Len and Swap mirror go-ethereum's types.Transactions. Less is not
// defined, so Transactions does not satisfy sort.Interface on its own.
func (s Transactions) Len() int      { return len(s) }
func (s Transactions) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
