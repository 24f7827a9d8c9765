package database

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// OpenFileLimit mirrors the teacher's package-level tunable for the
// number of OS file handles goleveldb is allowed to hold open.
var OpenFileLimit = 64

// levelDB is the secondary backend, selected for archival/read-heavy
// deployments where badger's LSM+value-log split isn't the better fit.
// Adapted from storage/database/leveldb_database.go, trimmed of the
// compaction/read/write metrics meters (out of scope: see metrics
// package, which keeps only the in-process counter/gauge registry).
type levelDB struct {
	fn string
	db *leveldb.DB
}

func getLDBOptions(cacheSizeMB, numHandles int) *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

// NewLevelDB opens (creating if necessary) a goleveldb store rooted at
// file, recovering from a corrupted manifest the same way the teacher's
// NewLDBDatabase does.
func NewLevelDB(file string, cacheSizeMB, numHandles int) (Database, error) {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if numHandles < 16 {
		numHandles = OpenFileLimit
	}

	db, err := leveldb.OpenFile(file, getLDBOptions(cacheSizeMB, numHandles))
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &levelDB{fn: file, db: db}, nil
}

func (db *levelDB) Put(key, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *levelDB) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *levelDB) Get(key []byte) ([]byte, error) {
	return db.db.Get(key, nil)
}

func (db *levelDB) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *levelDB) Close() {
	if err := db.db.Close(); err != nil {
		logger.Error("error closing leveldb", "err", err)
	}
}
