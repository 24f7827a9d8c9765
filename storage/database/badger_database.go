package database

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"
)

const gcThreshold = int64(1 << 30)
const sizeGCTickerTime = 1 * time.Minute

// badgerDB is the default Database backend, adapted from the teacher's
// storage/database/badger_database.go with the periodic value-log GC
// kept as-is: this core expects to run unattended for long stretches.
type badgerDB struct {
	fn       string
	db       *badger.DB
	gcTicker *time.Ticker
	done     chan struct{}
}

func getBadgerDBDefaultOption(dbDir string) badger.Options {
	opts := badger.DefaultOptions
	opts.Dir = dbDir
	opts.ValueDir = dbDir
	return opts
}

// NewBadgerDB opens (creating if necessary) a badger store rooted at dbDir.
func NewBadgerDB(dbDir string) (Database, error) {
	if fi, err := os.Stat(dbDir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("database: %s is not a directory", dbDir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("database: mkdir %s: %w", dbDir, err)
		}
	} else {
		return nil, fmt.Errorf("database: stat %s: %w", dbDir, err)
	}

	opts := getBadgerDBDefaultOption(dbDir)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("database: open badger at %s: %w", dbDir, err)
	}

	bg := &badgerDB{
		fn:       dbDir,
		db:       db,
		gcTicker: time.NewTicker(sizeGCTickerTime),
		done:     make(chan struct{}),
	}
	go bg.runValueLogGC()
	return bg, nil
}

// runValueLogGC periodically reclaims badger's value log once it has
// grown by gcThreshold since the last pass.
func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.gcTicker.C:
			_, currSize := bg.db.Size()
			if currSize-lastSize < gcThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				logger.Warn("value log gc failed", "err", err)
				continue
			}
			_, lastSize = bg.db.Size()
		case <-bg.done:
			return
		}
	}
}

func (bg *badgerDB) Put(key, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Close() {
	close(bg.done)
	bg.gcTicker.Stop()
	if err := bg.db.Close(); err != nil {
		logger.Error("error closing badger db", "err", err)
	}
}
