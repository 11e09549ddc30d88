package database

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/btcsuite/btcutil/base58"
)

// AddressLength is the number of bytes in an address.
const AddressLength = 20

// addressVersion is the Base58Check version byte for account addresses.
const addressVersion byte = 0x00

// Address represents an account on the ledger. It's the last 20 bytes of the
// SHA-256 digest of the account's uncompressed public key.
type Address [AddressLength]byte

// ZeroAddress is never a valid account.
var ZeroAddress Address

// ToAddress decodes the Base58Check string form of an address.
func ToAddress(s string) (Address, error) {
	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		switch {
		case errors.Is(err, base58.ErrChecksum):
			return Address{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
		default:
			return Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
		}
	}

	if version != addressVersion {
		return Address{}, fmt.Errorf("%w: version %d", ErrInvalidAddress, version)
	}

	if len(payload) != AddressLength {
		return Address{}, fmt.Errorf("%w: payload length %d", ErrInvalidAddress, len(payload))
	}

	var a Address
	copy(a[:], payload)
	return a, nil
}

// PublicKeyToAddress derives the address for the uncompressed public key.
func PublicKeyToAddress(publicKey []byte) Address {
	hash := signature.Sum(publicKey)

	var a Address
	copy(a[:], hash[signature.HashLength-AddressLength:])
	return a
}

// String returns the Base58Check encoding of the address.
func (a Address) String() string {
	return base58.CheckEncode(a[:], addressVersion)
}

// IsZero reports whether this is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements the encoding.TextMarshaler interface.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ToAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr
	return nil
}

// =============================================================================

// Account represents information stored in the database for an individual
// account. Nonce is the next nonce the account is expected to use.
type Account struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// AccountReader represents a read only view of account state.
type AccountReader interface {
	ReadAccount(address Address) (Account, error)
}

// Accounts is an in memory set of accounts that can be used as a view.
type Accounts map[Address]Account

// ReadAccount implements the AccountReader interface. Unknown addresses read
// as the zero account.
func (a Accounts) ReadAccount(address Address) (Account, error) {
	return a[address], nil
}

// Copy makes a copy of the accounts.
func (a Accounts) Copy() Accounts {
	accounts := make(Accounts, len(a))
	for address, account := range a {
		accounts[address] = account
	}
	return accounts
}
