package database

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
)

// Tx is the transactional information between two parties.
type Tx struct {
	ChainID uint16  `json:"chain_id"` // Identifies the chain the transaction is meant for.
	Nonce   uint64  `json:"nonce"`    // Next expected nonce of the sending account.
	From    Address `json:"from"`     // Account sending the value.
	To      Address `json:"to"`       // Account receiving the value.
	Value   uint64  `json:"value"`    // Amount moved from one account to the other.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, nonce uint64, from Address, to Address, value uint64) (Tx, error) {
	tx := Tx{
		ChainID: chainID,
		Nonce:   nonce,
		From:    from,
		To:      to,
		Value:   value,
	}

	if err := tx.validateAccounts(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction. The key must
// belong to the from account.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if from := PublicKeyToAddress(signature.PublicKeyBytes(&privateKey.PublicKey)); from != tx.From {
		return SignedTx{}, fmt.Errorf("%w: key belongs to %s, not %s", ErrInvalidSignature, from, tx.From)
	}

	payload, err := tx.payload()
	if err != nil {
		return SignedTx{}, err
	}

	sig, err := signature.Sign(payload, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:  tx,
		Sig: sig,
	}

	return signedTx, nil
}

// payload returns the bytes that get signed.
func (tx Tx) payload() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

// validateAccounts checks the from and to accounts are usable.
func (tx Tx) validateAccounts() error {
	switch {
	case tx.From.IsZero():
		return fmt.Errorf("%w: missing from account", ErrMalformedTransaction)
	case tx.To.IsZero():
		return fmt.Errorf("%w: missing to account", ErrMalformedTransaction)
	case tx.From == tx.To:
		return fmt.Errorf("%w: sending money to yourself, from %s, to %s", ErrMalformedTransaction, tx.From, tx.To)
	}

	return nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	Sig hexutil.Bytes `json:"sig"` // Recoverable signature in the [R|S|V] format.
}

// ValidateStructure checks the transaction is well formed for the specified
// chain without looking at the signature's cryptography.
func (tx SignedTx) ValidateStructure(chainID uint16) error {
	if err := tx.validateAccounts(); err != nil {
		return err
	}

	if tx.ChainID != chainID {
		return fmt.Errorf("%w: wrong chain id, got %d, exp %d", ErrMalformedTransaction, tx.ChainID, chainID)
	}

	if len(tx.Sig) != signature.SignatureLength {
		return fmt.Errorf("%w: signature length %d", ErrMalformedTransaction, len(tx.Sig))
	}

	return nil
}

// VerifySignature checks the signature was produced by the owner of the
// public key and that the key belongs to the from account.
func (tx SignedTx) VerifySignature(publicKey []byte) error {
	if PublicKeyToAddress(publicKey) != tx.From {
		return fmt.Errorf("%w: public key does not belong to %s", ErrInvalidSignature, tx.From)
	}

	payload, err := tx.payload()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}

	if !signature.VerifySignature(payload, tx.Sig, publicKey) {
		return ErrInvalidSignature
	}

	return nil
}

// SenderPublicKey recovers the public key of the account that signed the
// transaction.
func (tx SignedTx) SenderPublicKey() ([]byte, error) {
	payload, err := tx.payload()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}

	publicKey, err := signature.RecoverPublicKey(payload, tx.Sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return publicKey, nil
}

// Validate performs the structural and signature checks on the transaction.
// It never reads ledger state.
func (tx SignedTx) Validate(chainID uint16) error {
	if err := tx.ValidateStructure(chainID); err != nil {
		return err
	}

	publicKey, err := tx.SenderPublicKey()
	if err != nil {
		return err
	}

	return tx.VerifySignature(publicKey)
}

// Hash implements the merkle Hashable interface for providing a hash
// of a signed transaction.
func (tx SignedTx) Hash() (signature.Hash, error) {
	data, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return signature.Hash{}, err
	}

	return signature.Sum(data), nil
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two signed transactions. If the nonce, from account and
// signatures are the same, the two transactions are the same.
func (tx SignedTx) Equals(otherTx SignedTx) bool {
	return tx.From == otherTx.From && tx.Nonce == otherTx.Nonce && bytes.Equal(tx.Sig, otherTx.Sig)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d", tx.From, tx.Nonce)
}
