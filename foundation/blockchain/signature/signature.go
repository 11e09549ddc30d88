// Package signature provides helper functions for handling the blockchain
// hashing and signature needs. SHA-256 is the only hash function used by the
// ledger: block linking, signing payloads, merkle nodes, address derivation
// and address checksums all go through Sum.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashLength is the size in bytes of every hash produced by this package.
const HashLength = sha256.Size

// SignatureLength is the size of a recoverable signature in the [R|S|V] format.
const SignatureLength = crypto.SignatureLength

// stamp is prefixed to every signing payload so a signature produced for
// this ledger can't be replayed as a signature over some other message.
var stamp = []byte("\x19Ledger Signed Message:\n32")

// =============================================================================

// Hash represents a 32 byte SHA-256 digest.
type Hash [HashLength]byte

// ZeroHash represents a hash code of zeros.
var ZeroHash Hash

// Sum returns the SHA-256 digest of the concatenation of the data.
func Sum(data ...[]byte) Hash {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}

	var hash Hash
	copy(hash[:], h.Sum(nil))
	return hash
}

// ToHash converts a 0x prefixed hex string into a hash.
func ToHash(hex string) (Hash, error) {
	b, err := hexutil.Decode(hex)
	if err != nil {
		return Hash{}, err
	}

	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("invalid hash length, got %d, exp %d", len(b), HashLength)
	}

	var hash Hash
	copy(hash[:], b)
	return hash, nil
}

// Hex returns the 0x prefixed hex encoding of the hash.
func (h Hash) Hex() string {
	return hexutil.Encode(h[:])
}

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return h.Hex()
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Big interprets the hash as a big-endian unsigned integer.
func (h Hash) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(text []byte) error {
	hash, err := ToHash(string(text))
	if err != nil {
		return err
	}

	*h = hash
	return nil
}

// =============================================================================

// Sign uses the specified private key to sign the data.
func Sign(data []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	digest := stampDigest(data)

	// Sign the digest with the private key to produce a signature.
	sig, err := crypto.Sign(digest[:], privateKey)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	if !VerifySignature(data, sig, PublicKeyBytes(&privateKey.PublicKey)) {
		return nil, errors.New("invalid signature")
	}

	return sig, nil
}

// VerifySignature reports whether sig is a valid signature of the message by
// the owner of the public key. Malformed signatures or keys verify as false.
func VerifySignature(message []byte, sig []byte, publicKey []byte) bool {
	if len(sig) != SignatureLength || len(publicKey) == 0 {
		return false
	}

	if !validValues(sig) {
		return false
	}

	digest := stampDigest(message)
	return crypto.VerifySignature(publicKey, digest[:], sig[:SignatureLength-1])
}

// RecoverPublicKey extracts the uncompressed public key of the account that
// signed the message.
func RecoverPublicKey(message []byte, sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length, got %d, exp %d", len(sig), SignatureLength)
	}

	if !validValues(sig) {
		return nil, errors.New("invalid signature values")
	}

	// NOTE: If the same exact data for the given signature is not provided
	// we will get the wrong public key back. The caller has to compare the
	// key against the account it expects.
	digest := stampDigest(message)
	return crypto.Ecrecover(digest[:], sig)
}

// PublicKeyBytes returns the 65 byte uncompressed encoding of the public key.
func PublicKeyBytes(publicKey *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(publicKey)
}

// =============================================================================

// stampDigest returns a hash of 32 bytes that represents the data with the
// ledger stamp embedded into the final hash.
func stampDigest(data []byte) Hash {
	txHash := Sum(data)
	return Sum(stamp, txHash[:])
}

// validValues checks the recovery id is either 0 or 1 and the R and S values
// are in range, rejecting the malleable upper half of S.
func validValues(sig []byte) bool {
	v := sig[SignatureLength-1]
	if v != 0 && v != 1 {
		return false
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])

	return crypto.ValidateSignatureValues(v, r, s, true)
}
