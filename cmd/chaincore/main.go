// Command chaincore is the bootstrap binary: it wires the storage
// backend, reference repository, flush manager and listener together
// into a blockchain.BlockChain, logs the stored best block and exits; it
// has no block-import command. Grounded on the teacher's urfave/cli + naoina/toml bootstrap
// idiom (node/ranger/config.go's Config/DefaultConfig), trimmed of the
// P2P/RPC surface that is out of scope for this core.
package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/urfave/cli"

	"github.com/relayix/chaincore/blockchain"
	"github.com/relayix/chaincore/blockchain/state"
	"github.com/relayix/chaincore/internal/flush"
	"github.com/relayix/chaincore/internal/listener"
	"github.com/relayix/chaincore/log"
	"github.com/relayix/chaincore/params"
	"github.com/relayix/chaincore/storage/database"
)

var logger = log.NewModuleLogger(log.Cmd)

func main() {
	app := cli.NewApp()
	app.Name = "chaincore"
	app.Usage = "block-import and chain-management core"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
		cli.StringFlag{Name: "datadir", Value: DefaultConfig.DataDir},
		cli.StringFlag{Name: "backend", Value: DefaultConfig.Backend, Usage: "badger or leveldb"},
		cli.BoolFlag{Name: "testmode"},
		cli.BoolFlag{Name: "retryoninvalid"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := DefaultConfig
	if path := c.String("config"); path != "" {
		if err := loadConfig(path, &cfg); err != nil {
			return fmt.Errorf("chaincore: load config: %w", err)
		}
	}
	if c.IsSet("datadir") {
		cfg.DataDir = c.String("datadir")
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("testmode") {
		cfg.TestMode = c.Bool("testmode")
	}
	if c.IsSet("retryoninvalid") {
		cfg.RetryOnInvalid = c.Bool("retryoninvalid")
	}

	chain, err := buildChain(cfg)
	if err != nil {
		return err
	}
	defer chain.Close()

	logger.Info("chaincore started", "datadir", cfg.DataDir, "backend", cfg.Backend)
	best := chain.GetBestBlock()
	logger.Info("best block", "number", best.NumberU64(), "hash", best.Hash().String())
	return nil
}

// buildChain wires every collaborator blockchain.NewBlockChain needs,
// the way node/ranger's node-construction code wires Ethereum's
// consensus/downloader/database stack together.
func buildChain(cfg Config) (*blockchain.BlockChain, error) {
	dbManager, err := database.NewDBManager(backendFor(cfg.Backend), cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("chaincore: open database: %w", err)
	}

	repo := state.NewGenesisRepository()

	if dbManager.GetBestBlock() == nil {
		dbManager.SaveBlock(genesisBlock(), big.NewInt(0), true)
	}

	var ev blockchain.EthereumListener = listener.ConsoleListener{}
	if len(cfg.KafkaBrokers) > 0 {
		kl, err := listener.NewKafkaListener(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("chaincore: kafka listener: %w", err)
		}
		ev = kl
	}

	flushDepth := cfg.FlushQueueDepth
	if flushDepth <= 0 {
		flushDepth = DefaultConfig.FlushQueueDepth
	}
	flusher := flush.New(flushDepth)

	bcCfg := blockchain.Config{
		TestMode: cfg.TestMode,
		Diagnostics: blockchain.Diagnostics{
			RetryOnInvalid: cfg.RetryOnInvalid,
		},
	}

	return blockchain.NewBlockChain(
		bcCfg,
		repo,
		dbManager,
		dbManager,
		noopExecutorFactory{},
		params.DefaultChainConfig(),
		alwaysValidHeader{},
		nil,
		ev,
		nil,
		flusher,
		nil,
	), nil
}
