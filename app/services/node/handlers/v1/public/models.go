package public

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// submitTx is the wallet transaction as it arrives over the wire.
type submitTx struct {
	ChainID uint16 `json:"chain_id" validate:"required"`
	Nonce   uint64 `json:"nonce"`
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required,nefield=From"`
	Value   uint64 `json:"value"`
	Sig     string `json:"sig" validate:"required,hexadecimal"`
}

// toSignedTx converts the wire form into a signed transaction.
func (st submitTx) toSignedTx() (database.SignedTx, error) {
	from, err := database.ToAddress(st.From)
	if err != nil {
		return database.SignedTx{}, err
	}

	to, err := database.ToAddress(st.To)
	if err != nil {
		return database.SignedTx{}, err
	}

	sig, err := hexutil.Decode(st.Sig)
	if err != nil {
		return database.SignedTx{}, err
	}

	signedTx := database.SignedTx{
		Tx: database.Tx{
			ChainID: st.ChainID,
			Nonce:   st.Nonce,
			From:    from,
			To:      to,
			Value:   st.Value,
		},
		Sig: sig,
	}

	return signedTx, nil
}

type submitResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type tip struct {
	Hash       string `json:"hash"`
	Height     uint64 `json:"height"`
	Work       string `json:"work"`
	NextTarget string `json:"next_target"`
	Status     string `json:"status"`
	Mempool    int    `json:"mempool"`
}

type info struct {
	Address database.Address `json:"address"`
	Name    string           `json:"name"`
	Balance uint64           `json:"balance"`
	Nonce   uint64           `json:"nonce"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type tx struct {
	FromAccount database.Address `json:"from"`
	FromName    string           `json:"from_name"`
	To          database.Address `json:"to"`
	ToName      string           `json:"to_name"`
	ChainID     uint16           `json:"chain_id"`
	Nonce       uint64           `json:"nonce"`
	Value       uint64           `json:"value"`
	Sig         string           `json:"sig"`
}

func toTx(ns *nameservice.NameService, signedTx database.SignedTx) tx {
	return tx{
		FromAccount: signedTx.From,
		FromName:    ns.Lookup(signedTx.From),
		To:          signedTx.To,
		ToName:      ns.Lookup(signedTx.To),
		ChainID:     signedTx.ChainID,
		Nonce:       signedTx.Nonce,
		Value:       signedTx.Value,
		Sig:         hexutil.Encode(signedTx.Sig),
	}
}

type block struct {
	Hash            string           `json:"hash"`
	Number          uint64           `json:"number"`
	PrevBlockHash   string           `json:"prev_block_hash"`
	TransRoot       string           `json:"trans_root"`
	TimeStamp       uint64           `json:"timestamp"`
	Nonce           uint64           `json:"nonce"`
	Target          string           `json:"target"`
	Beneficiary     database.Address `json:"beneficiary"`
	BeneficiaryName string           `json:"beneficiary_name"`
	Transactions    []tx             `json:"txs"`
}

func toBlock(ns *nameservice.NameService, blk database.Block) block {
	trans := make([]tx, len(blk.Trans))
	for i, tran := range blk.Trans {
		trans[i] = toTx(ns, tran)
	}

	return block{
		Hash:            blk.Hash().Hex(),
		Number:          blk.Header.Number,
		PrevBlockHash:   blk.Header.PrevBlockHash.Hex(),
		TransRoot:       blk.Header.TransRoot.Hex(),
		TimeStamp:       blk.Header.TimeStamp,
		Nonce:           blk.Header.Nonce,
		Target:          hexutil.EncodeBig(blk.Header.Target),
		Beneficiary:     blk.Header.Beneficiary,
		BeneficiaryName: ns.Lookup(blk.Header.Beneficiary),
		Transactions:    trans,
	}
}

func toBlocks(ns *nameservice.NameService, blks []database.Block) []block {
	blocks := make([]block, len(blks))
	for i, blk := range blks {
		blocks[i] = toBlock(ns, blk)
	}
	return blocks
}
