package main

import (
	"os"

	"github.com/naoina/toml"

	"github.com/relayix/chaincore/storage/database"
)

// Config is the bootstrap binary's settings, TOML-tagged the way
// node/ranger/config.go tags its Config struct.
type Config struct {
	DataDir       string `toml:"datadir"`
	Backend       string `toml:"backend"` // "badger" or "leveldb"
	FlushQueueDepth int  `toml:"flushqueuedepth"`

	KafkaBrokers []string `toml:"kafkabrokers,omitempty"`
	KafkaTopic   string   `toml:"kafkatopic,omitempty"`

	RedisAddr string `toml:"redisaddr,omitempty"`

	ArchiveDir     string `toml:"archivedir,omitempty"`
	ArchiveMaxSize int64  `toml:"archivemaxsize,omitempty"`

	TestMode       bool `toml:"testmode"`
	RetryOnInvalid bool `toml:"retryoninvalid"`
}

// DefaultConfig mirrors node/ranger/config.go's DefaultConfig idiom: a
// single package-level value new commands start from and override.
var DefaultConfig = Config{
	DataDir:         "chaincore-data",
	Backend:         "badger",
	FlushQueueDepth: 256,
}

func backendFor(name string) database.Backend {
	if name == "leveldb" {
		return database.LevelDBBackend
	}
	return database.BadgerBackend
}

func loadConfig(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewDecoder(f).Decode(cfg)
}
