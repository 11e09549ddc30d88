// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the known accounts.
package nameservice

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[database.Address]string
}

// New constructs a name service with the accounts of the key files found
// under the root folder. The file name without the .ecdsa extension is the
// account name.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[database.Address]string),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("load %s: %w", fileName, err)
		}

		address := database.PublicKeyToAddress(signature.PublicKeyBytes(&privateKey.PublicKey))
		ns.accounts[address] = strings.TrimSuffix(filepath.Base(fileName), ".ecdsa")

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account. Unknown accounts are
// returned in their encoded form.
func (ns *NameService) Lookup(address database.Address) string {
	name, exists := ns.accounts[address]
	if !exists {
		return address.String()
	}
	return name
}

// Find returns the account registered under the name.
func (ns *NameService) Find(name string) (database.Address, bool) {
	for address, n := range ns.accounts {
		if n == name {
			return address, true
		}
	}
	return database.Address{}, false
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[database.Address]string {
	cpy := make(map[database.Address]string, len(ns.accounts))
	for address, name := range ns.accounts {
		cpy[address] = name
	}
	return cpy
}
