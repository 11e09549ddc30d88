// This program performs administrative tasks against the ledger store while
// the node is stopped.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/ledger/app/tooling/admin/commands"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/badger"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args  conf.Args
		State struct {
			DBPath      string `conf:"default:zblock/ledger.db"`
			Backend     string `conf:"default:leveldb"`
			GenesisPath string `conf:"default:zblock/genesis.json"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "ledger administration",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen := genesis.Default()
	if cfg.State.GenesisPath != "" {
		if gen, err = genesis.Load(cfg.State.GenesisPath); err != nil {
			return fmt.Errorf("unable to load genesis: %w", err)
		}
	}

	var storage database.Storage
	switch cfg.State.Backend {
	case "leveldb":
		storage, err = leveldb.New(cfg.State.DBPath, log)
	case "badger":
		storage, err = badger.New(cfg.State.DBPath, log)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.State.Backend)
	}
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}

	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...))
	}

	db, err := database.Open(gen, storage, ev)
	if err != nil {
		storage.Close()
		return err
	}
	defer db.Close()

	return processCommands(cfg.Args, db)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, db *database.Database) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(args.Num(1), db); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "blocks":
		if err := commands.Blocks(args.Num(1), db); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}
	case "revert":
		if err := commands.Revert(args.Num(1), db); err != nil {
			return fmt.Errorf("reverting: %w", err)
		}
	default:
		fmt.Println("bals [address]: replay the canonical chain and print the balances")
		fmt.Println("blocks [from]:  print the canonical blocks")
		fmt.Println("revert <height>: drop the canonical blocks above the height")
	}

	return nil
}
