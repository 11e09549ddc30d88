package mempool_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	kennedyKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	pavelKey   = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	minerKey   = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

func TestCRUD(t *testing.T) {
	kennedy, kennedyID := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)

	t.Log("Given the need to validate mempool api.")
	{
		mp := mempool.New()

		mp.Upsert(sign(t, kennedy, 1, pavelID, 10))
		mp.Upsert(sign(t, kennedy, 0, pavelID, 10))
		if n := mp.Upsert(sign(t, kennedy, 0, pavelID, 20)); n != 2 {
			t.Fatalf("\t%s\tShould replace a transaction with the same nonce, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould replace a transaction with the same nonce.", success)

		cpy := mp.Copy()
		if len(cpy) != 2 || cpy[0].Nonce != 0 || cpy[0].Value != 20 || cpy[1].Nonce != 1 {
			t.Fatalf("\t%s\tShould get back the transactions ordered by nonce.", failed)
		}
		t.Logf("\t%s\tShould get back the transactions ordered by nonce.", success)

		removed, err := mp.Prune(database.Accounts{kennedyID: {Balance: 100, Nonce: 1}})
		if err != nil || removed != 1 || mp.Count() != 1 {
			t.Fatalf("\t%s\tShould prune the used nonce, removed %d: %v.", failed, removed, err)
		}
		t.Logf("\t%s\tShould prune the used nonce.", success)

		mp.Delete(cpy[1])
		if mp.Count() != 0 {
			t.Fatalf("\t%s\tShould be able to delete a transaction.", failed)
		}
		t.Logf("\t%s\tShould be able to delete a transaction.", success)
	}
}

func TestPickBest(t *testing.T) {
	kennedy, kennedyID := key(t, kennedyKey)
	pavel, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	view := database.Accounts{
		kennedyID: {Balance: 100, Nonce: 3},
		pavelID:   {Balance: 50},
	}

	type table struct {
		name    string
		txs     []database.SignedTx
		howMany int
		exp     []uint64
	}

	tt := []table{
		{
			name: "gap",
			txs: []database.SignedTx{
				sign(t, kennedy, 3, minerID, 10),
				sign(t, kennedy, 5, minerID, 10),
			},
			howMany: -1,
			exp:     []uint64{3},
		},
		{
			name: "stale",
			txs: []database.SignedTx{
				sign(t, kennedy, 2, minerID, 10),
				sign(t, kennedy, 3, minerID, 10),
				sign(t, kennedy, 4, minerID, 10),
			},
			howMany: -1,
			exp:     []uint64{3, 4},
		},
		{
			name: "balance",
			txs: []database.SignedTx{
				sign(t, kennedy, 3, minerID, 60),
				sign(t, kennedy, 4, minerID, 60),
			},
			howMany: -1,
			exp:     []uint64{3},
		},
		{
			// Rows are ordered by address and pavel sorts before kennedy.
			name: "rows",
			txs: []database.SignedTx{
				sign(t, kennedy, 3, minerID, 1),
				sign(t, kennedy, 4, minerID, 1),
				sign(t, pavel, 0, minerID, 1),
				sign(t, pavel, 1, minerID, 1),
			},
			howMany: 3,
			exp:     []uint64{0, 3, 1},
		},
	}

	t.Log("Given the need to pick transactions that apply against state.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				mp := mempool.New()
				for _, tx := range tst.txs {
					mp.Upsert(tx)
				}

				best, err := mp.PickBest(view, tst.howMany)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to pick transactions: %v", failed, testID, err)
				}

				if len(best) != len(tst.exp) {
					t.Fatalf("\t%s\tTest %d:\tShould get %d transactions, got %d.", failed, testID, len(tst.exp), len(best))
				}

				for i, tx := range best {
					if tx.Nonce != tst.exp[i] {
						t.Fatalf("\t%s\tTest %d:\tShould get nonce %d at %d, got %d.", failed, testID, tst.exp[i], i, tx.Nonce)
					}
				}

				block := database.Block{
					Header: database.BlockHeader{Number: 1, Beneficiary: minerID},
					Trans:  best,
				}
				if _, err := block.ValidateInternalConsistency(view, 0); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould pick transactions that apply: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould pick transactions that apply.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

// =============================================================================

func key(t *testing.T, hexKey string) (*ecdsa.PrivateKey, database.Address) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %v", err)
	}

	return pk, database.PublicKeyToAddress(signature.PublicKeyBytes(&pk.PublicKey))
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, nonce uint64, to database.Address, value uint64) database.SignedTx {
	from := database.PublicKeyToAddress(signature.PublicKeyBytes(&pk.PublicKey))

	tx, err := database.NewTx(1, nonce, from, to, value)
	if err != nil {
		t.Fatalf("Should be able to construct the transaction: %v", err)
	}

	signed, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %v", err)
	}

	return signed
}
