package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Accounts used by the tests.
const (
	kennedyKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	pavelKey   = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	minerKey   = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

	kennedyAddr = "1KUJrHMeMMuXV8os22iKuKEkjRhL1L9vQF"
	pavelAddr   = "1A7S6E5qYDfLSnTBmA2VJ6eLT5NGBBPQ4m"
)

const (
	chainID = 1
	spacing = 8
)

// =============================================================================

func Test_ExtendChain(t *testing.T) {
	st := newState(t)
	kennedy, kennedyID := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	gen := st.RetrieveLatestBlock()
	target := gen.Header.Target

	t.Log("Given the need to extend the chain with proposed blocks.")
	{
		a1 := mine(t, gen, target, gen.Header.TimeStamp+spacing, minerID, sign(t, kennedy, 0, pavelID, 10))

		result, err := st.ProcessProposedBlock(a1)
		if err != nil || result != state.Extended {
			t.Fatalf("\t%s\tShould extend the chain, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould extend the chain.", success)

		tip := st.RetrieveTip()
		if tip.Hash != a1.Hash() || tip.Height != 1 {
			t.Fatalf("\t%s\tShould have the block as the tip.", failed)
		}
		t.Logf("\t%s\tShould have the block as the tip.", success)

		checkAccounts(t, st, map[database.Address]database.Account{
			kennedyID: {Balance: 990, Nonce: 1},
			pavelID:   {Balance: 110},
			minerID:   {Balance: 700},
		})

		if st.Status() != state.Idle {
			t.Fatalf("\t%s\tShould be idle after processing, got %s.", failed, st.Status())
		}
		t.Logf("\t%s\tShould be idle after processing.", success)

		if _, err := st.ProcessProposedBlock(a1); !errors.Is(err, database.ErrDuplicateBlock) {
			t.Fatalf("\t%s\tShould reject a duplicate block, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject a duplicate block.", success)

		if _, err := st.ProcessProposedBlock(gen); !errors.Is(err, database.ErrDuplicateBlock) {
			t.Fatalf("\t%s\tShould reject the genesis block as a duplicate, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject the genesis block as a duplicate.", success)

		blocks, err := st.QueryBlocksByNumber(0, state.QueryLatest)
		if err != nil || len(blocks) != 2 || blocks[1].Hash() != a1.Hash() {
			t.Fatalf("\t%s\tShould be able to query the canonical blocks: %v.", failed, err)
		}
		t.Logf("\t%s\tShould be able to query the canonical blocks.", success)

		blocks, err = st.QueryBlocksByAccount(pavelID)
		if err != nil || len(blocks) != 1 {
			t.Fatalf("\t%s\tShould be able to query the blocks of an account: %v.", failed, err)
		}
		t.Logf("\t%s\tShould be able to query the blocks of an account.", success)
	}
}

func Test_RejectCandidate(t *testing.T) {
	st := newState(t)
	kennedy, kennedyID := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	gen := st.RetrieveLatestBlock()
	target := gen.Header.Target
	ts := gen.Header.TimeStamp + spacing

	type table struct {
		name  string
		block func() database.Block
		err   error
	}

	tt := []table{
		{
			name: "unknown parent",
			block: func() database.Block {
				orphan := mine(t, gen, target, ts, pavelID)
				return mine(t, orphan, target, ts+spacing, minerID)
			},
			err: database.ErrUnknownParent,
		},
		{
			name: "unsolved",
			block: func() database.Block {
				return unsolved(t, mine(t, gen, target, ts, minerID))
			},
			err: database.ErrConsensusRejected,
		},
		{
			name: "wrong target",
			block: func() database.Block {
				return mine(t, gen, new(big.Int).Rsh(target, 1), ts, minerID)
			},
			err: database.ErrConsensusRejected,
		},
		{
			name: "double spend",
			block: func() database.Block {
				return mine(t, gen, target, ts, minerID,
					sign(t, kennedy, 0, pavelID, 600),
					sign(t, kennedy, 1, pavelID, 600),
				)
			},
			err: database.ErrDoubleSpend,
		},
		{
			name: "nonce gap",
			block: func() database.Block {
				return mine(t, gen, target, ts, minerID, sign(t, kennedy, 1, pavelID, 10))
			},
			err: database.ErrNonceMismatch,
		},
		{
			name: "stale timestamp",
			block: func() database.Block {
				block := mine(t, gen, target, ts, minerID)
				block.Header.TimeStamp = gen.Header.TimeStamp
				return block
			},
			err: database.ErrInvalidBlock,
		},
	}

	t.Log("Given the need to reject invalid blocks without changing the ledger.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				block := tst.block()

				result, err := st.ProcessProposedBlock(block)
				if !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould reject the block with %v, got %s: %v.", failed, testID, tst.err, result, err)
				}
				t.Logf("\t%s\tTest %d:\tShould reject the block.", success, testID)

				if tip := st.RetrieveTip(); tip.Hash != gen.Hash() || tip.Height != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould leave the tip unchanged.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould leave the tip unchanged.", success, testID)

				if _, err := st.QueryBlockByHash(block.Hash()); !errors.Is(err, database.ErrNotFound) {
					t.Fatalf("\t%s\tTest %d:\tShould not store the block, got %v.", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould not store the block.", success, testID)

				checkAccounts(t, st, map[database.Address]database.Account{
					kennedyID: {Balance: 1000},
					pavelID:   {Balance: 100},
					minerID:   {},
				})
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Reorganize(t *testing.T) {
	st := newState(t)
	kennedy, kennedyID := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	gen := st.RetrieveLatestBlock()
	t0 := gen.Header.Target
	tx := sign(t, kennedy, 0, pavelID, 10)

	// Chain A has five blocks at the ideal spacing.
	a1 := mine(t, gen, t0, gen.Header.TimeStamp+spacing, minerID)
	a2 := mine(t, a1, t0, a1.Header.TimeStamp+spacing, minerID)
	a3 := mine(t, a2, t0, a2.Header.TimeStamp+spacing, minerID, tx)
	a4 := mine(t, a3, t0, a3.Header.TimeStamp+spacing, minerID)
	a5 := mine(t, a4, t0, a4.Header.TimeStamp+spacing, minerID)

	// Chain B shares A1 and A2. B3 comes fast so B4 carries a harder target.
	b3 := mine(t, a2, t0, a2.Header.TimeStamp+1, pavelID)
	b4Target := pow.NextTarget(params(t), 4, []pow.Header{a2.Header.PowHeader(), b3.Header.PowHeader()})
	b4 := mine(t, b3, b4Target, b3.Header.TimeStamp+spacing, pavelID)

	t.Log("Given the need to follow the branch with the most work.")
	{
		for _, b := range []database.Block{a1, a2, a3, a4, a5} {
			if _, err := st.ProcessProposedBlock(b); err != nil {
				t.Fatalf("\t%s\tShould be able to extend with block %d: %v", failed, b.Header.Number, err)
			}
		}
		t.Logf("\t%s\tShould be able to build chain A.", success)

		result, err := st.ProcessProposedBlock(b3)
		if err != nil || result != state.ForkCandidate {
			t.Fatalf("\t%s\tShould keep B3 as a fork candidate, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould keep B3 as a fork candidate.", success)

		if st.RetrieveTip().Hash != a5.Hash() {
			t.Fatalf("\t%s\tShould keep A5 as the tip.", failed)
		}
		t.Logf("\t%s\tShould keep A5 as the tip.", success)

		result, err = st.ProcessProposedBlock(b4)
		if err != nil || result != state.Reorganized {
			t.Fatalf("\t%s\tShould reorganize onto B4, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould reorganize onto B4.", success)

		tip := st.RetrieveTip()
		if tip.Hash != b4.Hash() || tip.Height != 4 || tip.Work.Cmp(big.NewInt(16)) != 0 {
			t.Logf("\t%s\tgot: %s %d %s", failed, tip.Hash, tip.Height, tip.Work)
			t.Fatalf("\t%s\tShould have B4 as the tip with the most work.", failed)
		}
		t.Logf("\t%s\tShould have B4 as the tip with the most work.", success)

		checkAccounts(t, st, map[database.Address]database.Account{
			kennedyID: {Balance: 1000},
			pavelID:   {Balance: 100 + 2*700},
			minerID:   {Balance: 2 * 700},
		})

		blocks, err := st.QueryBlocksByNumber(3, 4)
		if err != nil || len(blocks) != 2 || blocks[0].Hash() != b3.Hash() || blocks[1].Hash() != b4.Hash() {
			t.Fatalf("\t%s\tShould index the new branch by height: %v.", failed, err)
		}
		t.Logf("\t%s\tShould index the new branch by height.", success)

		mp := st.RetrieveMempool()
		if len(mp) != 1 || !mp[0].Equals(tx) {
			t.Fatalf("\t%s\tShould return the detached transaction to the mempool, got %d.", failed, len(mp))
		}
		t.Logf("\t%s\tShould return the detached transaction to the mempool.", success)

		if _, err := st.QueryBlockByHash(a5.Hash()); err != nil {
			t.Fatalf("\t%s\tShould keep the detached blocks: %v.", failed, err)
		}
		t.Logf("\t%s\tShould keep the detached blocks.", success)

		if st.Status() != state.Idle {
			t.Fatalf("\t%s\tShould be idle after the reorganization, got %s.", failed, st.Status())
		}
		t.Logf("\t%s\tShould be idle after the reorganization.", success)
	}
}

func Test_ForkTie(t *testing.T) {
	st := newState(t)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	gen := st.RetrieveLatestBlock()
	t0 := gen.Header.Target

	a1 := mine(t, gen, t0, gen.Header.TimeStamp+spacing, minerID)
	a2 := mine(t, a1, t0, a1.Header.TimeStamp+spacing, minerID)

	b1 := mine(t, gen, t0, gen.Header.TimeStamp+spacing+1, pavelID)
	b2 := mine(t, b1, t0, b1.Header.TimeStamp+spacing, pavelID)
	b3 := mine(t, b2, t0, b2.Header.TimeStamp+spacing, pavelID)

	t.Log("Given the need to keep the first seen tip when work is equal.")
	{
		for _, b := range []database.Block{a1, a2} {
			if _, err := st.ProcessProposedBlock(b); err != nil {
				t.Fatalf("\t%s\tShould be able to extend with block %d: %v", failed, b.Header.Number, err)
			}
		}

		for _, b := range []database.Block{b1, b2} {
			result, err := st.ProcessProposedBlock(b)
			if err != nil || result != state.ForkCandidate {
				t.Fatalf("\t%s\tShould keep block %d as a fork candidate, got %s: %v.", failed, b.Header.Number, result, err)
			}
		}
		t.Logf("\t%s\tShould keep the competing branch as fork candidates.", success)

		if st.RetrieveTip().Hash != a2.Hash() {
			t.Fatalf("\t%s\tShould keep the first seen tip on a tie.", failed)
		}
		t.Logf("\t%s\tShould keep the first seen tip on a tie.", success)

		result, err := st.ProcessProposedBlock(b3)
		if err != nil || result != state.Reorganized {
			t.Fatalf("\t%s\tShould reorganize once the branch has more work, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould reorganize once the branch has more work.", success)

		checkAccounts(t, st, map[database.Address]database.Account{
			pavelID: {Balance: 100 + 3*700},
			minerID: {},
		})
	}
}

func Test_InvalidBranch(t *testing.T) {
	st := newState(t)
	kennedy, _ := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	gen := st.RetrieveLatestBlock()
	t0 := gen.Header.Target

	a1 := mine(t, gen, t0, gen.Header.TimeStamp+spacing, minerID)
	a2 := mine(t, a1, t0, a1.Header.TimeStamp+spacing, minerID)
	a3 := mine(t, a2, t0, a2.Header.TimeStamp+spacing, minerID)
	a4 := mine(t, a3, t0, a3.Header.TimeStamp+spacing, minerID)
	a5 := mine(t, a4, t0, a4.Header.TimeStamp+spacing, minerID)

	// B3 spends more than kennedy owns. Its signature is fine so it is only
	// caught when the branch is replayed.
	b3 := mine(t, a2, t0, a2.Header.TimeStamp+1, pavelID, sign(t, kennedy, 0, pavelID, 5000))
	b4Target := pow.NextTarget(params(t), 4, []pow.Header{a2.Header.PowHeader(), b3.Header.PowHeader()})
	b4 := mine(t, b3, b4Target, b3.Header.TimeStamp+spacing, pavelID)
	b5 := mine(t, b4, b4Target, b4.Header.TimeStamp+spacing, pavelID)

	t.Log("Given the need to abort a reorganization onto an invalid branch.")
	{
		for _, b := range []database.Block{a1, a2, a3, a4, a5} {
			if _, err := st.ProcessProposedBlock(b); err != nil {
				t.Fatalf("\t%s\tShould be able to extend with block %d: %v", failed, b.Header.Number, err)
			}
		}

		if result, err := st.ProcessProposedBlock(b3); err != nil || result != state.ForkCandidate {
			t.Fatalf("\t%s\tShould keep B3 as a fork candidate, got %s: %v.", failed, result, err)
		}

		_, err := st.ProcessProposedBlock(b4)
		if !errors.Is(err, database.ErrDoubleSpend) {
			t.Fatalf("\t%s\tShould fail the reorganization with a double spend, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould fail the reorganization with a double spend.", success)

		hash, ok := database.IsBlockError(err)
		if !ok || hash != b3.Hash() {
			t.Fatalf("\t%s\tShould name B3 as the failing block.", failed)
		}
		t.Logf("\t%s\tShould name B3 as the failing block.", success)

		tip := st.RetrieveTip()
		if tip.Hash != a5.Hash() || tip.Height != 5 {
			t.Fatalf("\t%s\tShould leave A5 as the tip.", failed)
		}
		t.Logf("\t%s\tShould leave A5 as the tip.", success)

		checkAccounts(t, st, map[database.Address]database.Account{
			pavelID: {Balance: 100},
			minerID: {Balance: 5 * 700},
		})

		for _, b := range []database.Block{b3, b4, b5} {
			if _, err := st.ProcessProposedBlock(b); !errors.Is(err, database.ErrInvalidBlock) {
				t.Fatalf("\t%s\tShould reject block %d of the invalid branch, got %v.", failed, b.Header.Number, err)
			}
		}
		t.Logf("\t%s\tShould reject the invalid branch and its descendants.", success)

		if st.Status() != state.Idle {
			t.Fatalf("\t%s\tShould be idle after the failure, got %s.", failed, st.Status())
		}
		t.Logf("\t%s\tShould be idle after the failure.", success)
	}
}

func Test_RepeatedTransaction(t *testing.T) {
	st := newState(t)
	kennedy, kennedyID := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	gen := st.RetrieveLatestBlock()
	t0 := gen.Header.Target

	txs := []database.SignedTx{
		sign(t, kennedy, 0, pavelID, 10),
		sign(t, kennedy, 1, pavelID, 10),
		sign(t, kennedy, 2, pavelID, 10),
	}

	honest := mine(t, gen, t0, gen.Header.TimeStamp+spacing, minerID, txs...)

	// Repeating the last transaction pads the odd merkle level the same way
	// the tree does, so the header and its hash do not change.
	repeated := honest
	repeated.Trans = append(slices.Clone(txs), txs[2])

	t.Log("Given the need to accept a block after a copy with a repeated transaction is rejected.")
	{
		if repeated.Hash() != honest.Hash() {
			t.Fatalf("\t%s\tShould share the block hash.", failed)
		}
		t.Logf("\t%s\tShould share the block hash.", success)

		if _, err := st.ProcessProposedBlock(repeated); !errors.Is(err, database.ErrInvalidBlock) {
			t.Fatalf("\t%s\tShould reject the repeated transaction, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject the repeated transaction.", success)

		result, err := st.ProcessProposedBlock(honest)
		if err != nil || result != state.Extended {
			t.Fatalf("\t%s\tShould extend the chain with the block, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould extend the chain with the block.", success)

		if tip := st.RetrieveTip(); tip.Hash != honest.Hash() || tip.Height != 1 {
			t.Fatalf("\t%s\tShould have the block as the tip, got %d.", failed, tip.Height)
		}
		t.Logf("\t%s\tShould have the block as the tip.", success)

		checkAccounts(t, st, map[database.Address]database.Account{
			kennedyID: {Balance: 970, Nonce: 3},
			pavelID:   {Balance: 130},
		})
	}

	t.Log("Given the need to keep a fork candidate after a copy with a repeated transaction is rejected.")
	{
		fork := mine(t, gen, t0, gen.Header.TimeStamp+spacing+1, pavelID, txs...)
		repeated := fork
		repeated.Trans = append(slices.Clone(txs), txs[2])

		if _, err := st.ProcessProposedBlock(repeated); !errors.Is(err, database.ErrInvalidBlock) {
			t.Fatalf("\t%s\tShould reject the repeated transaction on the fork, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject the repeated transaction on the fork.", success)

		result, err := st.ProcessProposedBlock(fork)
		if err != nil || result != state.ForkCandidate {
			t.Fatalf("\t%s\tShould keep the block as a fork candidate, got %s: %v.", failed, result, err)
		}
		t.Logf("\t%s\tShould keep the block as a fork candidate.", success)

		stored, err := st.QueryBlockByHash(fork.Hash())
		if err != nil || len(stored.Trans) != len(txs) {
			t.Fatalf("\t%s\tShould store the body that was mined: %v.", failed, err)
		}
		t.Logf("\t%s\tShould store the body that was mined.", success)
	}
}

func Test_StorageFailure(t *testing.T) {
	storage, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open storage: %v", err)
	}
	fs := failingStorage{Storage: storage}

	_, minerID := key(t, minerKey)

	st, err := state.New(state.Config{
		BeneficiaryID: minerID,
		Genesis:       testGenesis(),
		Storage:       &fs,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %v", err)
	}
	defer st.Shutdown()

	gen := st.RetrieveLatestBlock()
	a1 := mine(t, gen, gen.Header.Target, gen.Header.TimeStamp+spacing, minerID)

	t.Log("Given the need to stop writing when the store fails.")
	{
		fs.fail = true

		_, err := st.ProcessProposedBlock(a1)
		if !errors.Is(err, database.ErrInvariantViolation) || !errors.Is(err, database.ErrStorageFailure) {
			t.Fatalf("\t%s\tShould report the storage failure as fatal, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould report the storage failure as fatal.", success)

		fs.fail = false

		if _, err := st.ProcessProposedBlock(a1); !errors.Is(err, database.ErrInvariantViolation) {
			t.Fatalf("\t%s\tShould refuse further writes, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould refuse further writes.", success)

		if st.RetrieveTip().Hash != gen.Hash() {
			t.Fatalf("\t%s\tShould leave the tip unchanged.", failed)
		}
		t.Logf("\t%s\tShould leave the tip unchanged.", success)
	}
}

func Test_MineNewBlock(t *testing.T) {
	st := newState(t)
	kennedy, kennedyID := key(t, kennedyKey)
	_, pavelID := key(t, pavelKey)
	_, minerID := key(t, minerKey)

	t.Log("Given the need to mine the transactions in the mempool.")
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := st.MineNewBlock(ctx); !errors.Is(err, state.ErrNoTransactions) {
			t.Fatalf("\t%s\tShould not mine an empty mempool, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould not mine an empty mempool.", success)

		for nonce := uint64(0); nonce < 2; nonce++ {
			if err := st.SubmitWalletTransaction(sign(t, kennedy, nonce, pavelID, 100)); err != nil {
				t.Fatalf("\t%s\tShould be able to submit transaction %d: %v", failed, nonce, err)
			}
		}

		if n := st.QueryMempoolLength(); n != 2 {
			t.Fatalf("\t%s\tShould have 2 transactions in the mempool, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould accept wallet transactions.", success)

		block, err := st.MineNewBlock(ctx)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		if len(block.Trans) != 2 || st.RetrieveTip().Hash != block.Hash() {
			t.Fatalf("\t%s\tShould make the mined block the tip.", failed)
		}
		t.Logf("\t%s\tShould make the mined block the tip.", success)

		if n := st.QueryMempoolLength(); n != 0 {
			t.Fatalf("\t%s\tShould empty the mempool, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould empty the mempool.", success)

		checkAccounts(t, st, map[database.Address]database.Account{
			kennedyID: {Balance: 800, Nonce: 2},
			pavelID:   {Balance: 300},
			minerID:   {Balance: 700},
		})

		if err := st.SubmitWalletTransaction(sign(t, kennedy, 1, pavelID, 100)); !errors.Is(err, database.ErrNonceMismatch) {
			t.Fatalf("\t%s\tShould reject a used nonce, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject a used nonce.", success)

		other, err := database.NewTx(chainID+1, 2, kennedyID, pavelID, 1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
		}
		otherSigned, err := other.Sign(kennedy)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
		}
		if err := st.SubmitWalletTransaction(otherSigned); !errors.Is(err, database.ErrMalformedTransaction) {
			t.Fatalf("\t%s\tShould reject a transaction for another chain, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject a transaction for another chain.", success)
	}
}

// =============================================================================

// failingStorage fails every write while fail is set.
type failingStorage struct {
	database.Storage
	fail bool
}

func (fs *failingStorage) Write(batch *database.Batch) error {
	if fs.fail {
		return errors.New("disk full")
	}
	return fs.Storage.Write(batch)
}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:           time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        chainID,
		TransPerBlock:  10,
		PowLimit:       "0x7" + strings.Repeat("f", 63),
		TargetSpacing:  spacing,
		RetargetWindow: 2,
		MaxAdjustment:  4,
		MiningReward:   700,
		Balances: map[string]uint64{
			kennedyAddr: 1000,
			pavelAddr:   100,
		},
	}
}

func params(t *testing.T) pow.Params {
	p, err := testGenesis().Params()
	if err != nil {
		t.Fatalf("Should be able to read the pow params: %v", err)
	}
	return p
}

func newState(t *testing.T) *state.State {
	storage, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open storage: %v", err)
	}

	_, minerID := key(t, minerKey)

	st, err := state.New(state.Config{
		BeneficiaryID: minerID,
		Genesis:       testGenesis(),
		Storage:       storage,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %v", err)
	}
	t.Cleanup(func() { st.Shutdown() })

	return st
}

func key(t *testing.T, hexKey string) (*ecdsa.PrivateKey, database.Address) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %v", err)
	}

	return pk, database.PublicKeyToAddress(signature.PublicKeyBytes(&pk.PublicKey))
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, nonce uint64, to database.Address, value uint64) database.SignedTx {
	from := database.PublicKeyToAddress(signature.PublicKeyBytes(&pk.PublicKey))

	tx, err := database.NewTx(chainID, nonce, from, to, value)
	if err != nil {
		t.Fatalf("Should be able to construct the transaction: %v", err)
	}

	signed, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %v", err)
	}

	return signed
}

func mine(t *testing.T, parent database.Block, target *big.Int, ts uint64, bnfc database.Address, txs ...database.SignedTx) database.Block {
	block, err := database.POW(context.Background(), database.POWArgs{
		Beneficiary: bnfc,
		Target:      target,
		PrevBlock:   parent,
		Trans:       txs,
		TimeStamp:   ts,
	})
	if err != nil {
		t.Fatalf("Should be able to mine a block: %v", err)
	}

	return block
}

// unsolved returns a copy of the block with a nonce that doesn't meet the
// block's target.
func unsolved(t *testing.T, block database.Block) database.Block {
	for nonce := uint64(0); nonce < 1_000; nonce++ {
		block.Header.Nonce = nonce
		if block.Hash().Big().Cmp(block.Header.Target) > 0 {
			return block
		}
	}

	t.Fatalf("Should be able to find a nonce that misses the target.")
	return database.Block{}
}

func checkAccounts(t *testing.T, st *state.State, exp map[database.Address]database.Account) {
	t.Helper()

	for address, account := range exp {
		got, err := st.QueryAccount(address)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read account %s: %v", failed, address, err)
		}

		if got != account {
			t.Logf("\t%s\tgot: %+v", failed, got)
			t.Logf("\t%s\texp: %+v", failed, account)
			t.Fatalf("\t%s\tShould have the right state for account %s.", failed, address)
		}
	}
	t.Logf("\t%s\tShould have the right account state.", success)
}
