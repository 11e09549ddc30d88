package state

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveTip returns the hash, height and cumulative work of the tip.
func (s *State) RetrieveTip() database.Tip {
	return s.db.Tip()
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []database.SignedTx {
	return s.mempool.Copy()
}

// RetrieveBeneficiary returns the address mining rewards are paid to.
func (s *State) RetrieveBeneficiary() database.Address {
	return s.beneficiaryID
}
