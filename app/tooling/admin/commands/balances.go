// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Balances replays the canonical chain from the genesis allocation and prints
// the resulting balances. Any account whose stored state differs from the
// replayed state is reported.
func Balances(onlyAct string, db *database.Database) error {
	accounts, err := db.Replay()
	if err != nil {
		return err
	}

	var only database.Address
	if onlyAct != "" {
		if only, err = database.ToAddress(onlyAct); err != nil {
			return err
		}
	}

	tip := db.Tip()
	fmt.Printf("Tip: %s  Height: %d\n\n", tip.Hash, tip.Height)

	var mismatch int
	for address, account := range accounts {
		if !only.IsZero() && address != only {
			continue
		}

		stored, err := db.ReadAccount(address)
		if err != nil {
			return err
		}

		fmt.Printf("Account: %s  Balance: %d  Nonce: %d\n", address, account.Balance, account.Nonce)
		if stored != account {
			mismatch++
			fmt.Printf("  MISMATCH stored Balance: %d  Nonce: %d\n", stored.Balance, stored.Nonce)
		}
	}

	if mismatch > 0 {
		return fmt.Errorf("%w: %d accounts differ from the replay", database.ErrInvariantViolation, mismatch)
	}

	return nil
}
