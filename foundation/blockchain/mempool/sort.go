package mempool

import (
	"bytes"
	"sort"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// executable sorts the account's transactions by nonce and returns the
// contiguous run starting at the account's next nonce that the balance covers.
func executable(account database.Account, txs []database.SignedTx) []database.SignedTx {
	sort.Sort(byNonce(txs))

	nonce := account.Nonce
	balance := account.Balance

	var run []database.SignedTx
	for _, tx := range txs {
		if tx.Nonce < nonce {
			continue
		}
		if tx.Nonce != nonce || tx.Value > balance {
			break
		}

		run = append(run, tx)
		balance -= tx.Value
		nonce++
	}

	return run
}

// selectRows picks the first transaction of every account, then the second,
// and so on until enough transactions are selected. Inside a row the accounts
// are ordered by address.
func selectRows(m map[database.Address][]database.SignedTx, howMany int) []database.SignedTx {
	accounts := make([]database.Address, 0, len(m))
	for from := range m {
		accounts = append(accounts, from)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})

	final := []database.SignedTx{}
	for row := 0; len(final) < howMany; row++ {
		var picked bool
		for _, from := range accounts {
			if row >= len(m[from]) {
				continue
			}

			final = append(final, m[from][row])
			picked = true

			if len(final) == howMany {
				break
			}
		}

		if !picked {
			break
		}
	}

	return final
}

// =============================================================================

// byNonce provides sorting support by the transaction nonce value.
type byNonce []database.SignedTx

// Len returns the number of transactions in the list.
func (bn byNonce) Len() int {
	return len(bn)
}

// Less helps to sort the list by nonce in ascending order to keep the
// transactions in the right order of processing.
func (bn byNonce) Less(i, j int) bool {
	return bn[i].Nonce < bn[j].Nonce
}

// Swap moves transactions in the order of the nonce value.
func (bn byNonce) Swap(i, j int) {
	bn[i], bn[j] = bn[j], bn[i]
}

// byAccountNonce provides sorting support by account and then nonce.
type byAccountNonce []database.SignedTx

func (ba byAccountNonce) Len() int {
	return len(ba)
}

func (ba byAccountNonce) Less(i, j int) bool {
	if c := bytes.Compare(ba[i].From[:], ba[j].From[:]); c != 0 {
		return c < 0
	}
	return ba[i].Nonce < ba[j].Nonce
}

func (ba byAccountNonce) Swap(i, j int) {
	ba[i], ba[j] = ba[j], ba[i]
}
