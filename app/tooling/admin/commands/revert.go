package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Revert drops every canonical block above the height.
func Revert(height string, db *database.Database) error {
	if height == "" {
		return errors.New("height required")
	}

	num, err := strconv.ParseUint(height, 10, 64)
	if err != nil {
		return err
	}

	if err := db.RevertToHeight(num); err != nil {
		return err
	}

	tip := db.Tip()
	fmt.Printf("Tip: %s  Height: %d\n", tip.Hash, tip.Height)

	return nil
}
