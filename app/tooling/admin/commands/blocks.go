package commands

import (
	"fmt"
	"strconv"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Blocks prints the canonical blocks starting at the from height.
func Blocks(from string, db *database.Database) error {
	var start uint64
	if from != "" {
		var err error
		if start, err = strconv.ParseUint(from, 10, 64); err != nil {
			return err
		}
	}

	latest := db.Tip().Height
	for num := start; num <= latest; num++ {
		block, err := db.GetBlockByNumber(num)
		if err != nil {
			return err
		}

		work, err := db.Work(block.Hash())
		if err != nil {
			return err
		}

		fmt.Printf("Number: %d  Hash: %s  Trans: %d  Work: %s  Beneficiary: %s\n",
			num, block.Hash(), len(block.Trans), work, block.Header.Beneficiary)
	}

	return nil
}
