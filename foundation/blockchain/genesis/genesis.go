// Package genesis maintains access to the genesis configuration.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date           time.Time         `json:"date"`
	ChainID        uint16            `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock  uint16            `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	PowLimit       string            `json:"pow_limit"`       // Easiest target allowed, 0x prefixed hex.
	TargetSpacing  uint64            `json:"target_spacing"`  // Seconds expected between blocks.
	RetargetWindow uint64            `json:"retarget_window"` // Number of blocks between difficulty adjustments.
	MaxAdjustment  int64             `json:"max_adjustment"`  // Bound on how far one adjustment can move the target.
	MiningReward   uint64            `json:"mining_reward"`   // Reward for mining a block.
	Balances       map[string]uint64 `json:"balances"`
}

// Default returns the genesis configuration the node ships with.
func Default() Genesis {
	return Genesis{
		Date:           time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		TransPerBlock:  10,
		PowLimit:       "0x" + "fffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		TargetSpacing:  15,
		RetargetWindow: 10,
		MaxAdjustment:  4,
		MiningReward:   700,
		Balances: map[string]uint64{
			"1KUJrHMeMMuXV8os22iKuKEkjRhL1L9vQF": 1_000_000,
			"1QJML9vN5jNuLh2gFCby3Uwsv6Ta8QTDTQ": 100_000,
			"1A7S6E5qYDfLSnTBmA2VJ6eLT5NGBBPQ4m": 100_000,
		},
	}
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if _, err := genesis.Params(); err != nil {
		return Genesis{}, fmt.Errorf("genesis %s: %w", path, err)
	}

	return genesis, nil
}

// Params returns the proof of work parameters of the chain.
func (g Genesis) Params() (pow.Params, error) {
	limit, err := hexutil.DecodeBig(g.PowLimit)
	if err != nil {
		return pow.Params{}, fmt.Errorf("pow limit: %w", err)
	}

	params := pow.Params{
		PowLimit:       limit,
		TargetSpacing:  g.TargetSpacing,
		RetargetWindow: g.RetargetWindow,
		MaxAdjustment:  g.MaxAdjustment,
	}

	if err := params.Validate(); err != nil {
		return pow.Params{}, err
	}

	return params, nil
}
