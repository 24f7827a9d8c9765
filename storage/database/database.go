// Package database is the persistent storage layer behind
// blockchain.BlockStore and blockchain.TransactionStore: a small
// key-value abstraction (Database) with dual badger/goleveldb backends,
// fronted by an LRU cache for header/body/TD lookups. Ported in idiom
// from storage/database/db_manager.go's DBManager, trimmed to the keys
// the block-import core actually reads and writes.
package database

import (
	"encoding/binary"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/log"
)

var logger = log.NewModuleLogger(log.StorageDatabase)

// Database is the minimal key-value contract both backends satisfy.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Close()
}

// Backend selects which on-disk engine NewDBManager opens.
type Backend int

const (
	BadgerBackend Backend = iota
	LevelDBBackend
)

// key-prefix scheme: one flat namespace, prefix byte + payload, same
// idiom as db_manager.go's headerPrefix/blockBodyPrefix/etc.
var (
	headerPrefix    = []byte("h")
	bodyPrefix      = []byte("b")
	tdPrefix        = []byte("t")
	canonicalPrefix = []byte("c")
	txLookupPrefix  = []byte("l")
)

func bodyKey(number uint64, hash common.Hash) []byte {
	return append(append(bodyPrefix, encodeNumber(number)...), hash.Bytes()...)
}

func tdKey(number uint64, hash common.Hash) []byte {
	return append(append(tdPrefix, encodeNumber(number)...), hash.Bytes()...)
}

func canonicalKey(number uint64) []byte {
	return append(canonicalPrefix, encodeNumber(number)...)
}

func txLookupKey(txHash common.Hash) []byte {
	return append(txLookupPrefix, txHash.Bytes()...)
}

func encodeNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

// blockEnvelope is the RLP shape a full block is stored under: header,
// transactions and uncles together, so a single Get reconstructs a
// *types.Block without a second round trip for the body.
type blockEnvelope struct {
	Header *types.Header
	Body   *types.Body
}
