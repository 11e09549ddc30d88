// Package pow implements the proof of work consensus rules: the validity
// predicate a block hash must satisfy, the difficulty adjustment schedule, the
// amount of work a block represents for fork choice, and the nonce search a
// miner performs.
package pow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// ErrNoSolution is returned by Solve when the whole nonce space was searched.
var ErrNoSolution = errors.New("nonce space exhausted")

// twoTo256 is the size of the hash space.
var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// MaxTarget is the largest value a 256 bit hash can take.
var MaxTarget = new(big.Int).Sub(twoTo256, big.NewInt(1))

// =============================================================================

// Params represents the consensus parameters of a chain.
type Params struct {
	PowLimit       *big.Int // Easiest target a block may carry.
	TargetSpacing  uint64   // Expected number of seconds between blocks.
	RetargetWindow uint64   // Number of blocks between target adjustments.
	MaxAdjustment  int64    // Bound on the adjustment factor, both ways, per window.
}

// Validate checks the parameters describe a usable schedule.
func (p Params) Validate() error {
	switch {
	case p.PowLimit == nil || p.PowLimit.Sign() <= 0:
		return errors.New("pow limit must be positive")
	case p.PowLimit.Cmp(MaxTarget) > 0:
		return errors.New("pow limit exceeds the hash space")
	case p.TargetSpacing == 0:
		return errors.New("target spacing must be positive")
	case p.RetargetWindow < 2:
		return errors.New("retarget window needs at least two blocks")
	case p.MaxAdjustment < 1:
		return errors.New("max adjustment must be at least one")
	}

	return nil
}

// IsRetargetHeight reports whether the block at the specified height gets a
// freshly computed target instead of inheriting its parent's.
func (p Params) IsRetargetHeight(height uint64) bool {
	return height > 0 && height%p.RetargetWindow == 0
}

// Header is the part of a block header the difficulty schedule looks at.
type Header struct {
	TimeStamp uint64
	Target    *big.Int
}

// NextTarget returns the target required for a block at the specified
// height. The window holds the trailing headers of the block's own branch,
// oldest first, and its last element is the parent. Outside a retarget height
// only the parent is consulted.
func NextTarget(p Params, height uint64, window []Header) *big.Int {
	if len(window) == 0 {
		return new(big.Int).Set(p.PowLimit)
	}

	parent := window[len(window)-1]
	if !p.IsRetargetHeight(height) || len(window) < 2 {
		return new(big.Int).Set(parent.Target)
	}

	first := window[0]
	expected := new(big.Int).SetUint64(uint64(len(window)-1) * p.TargetSpacing)

	var actual *big.Int
	switch {
	case parent.TimeStamp > first.TimeStamp:
		actual = new(big.Int).SetUint64(parent.TimeStamp - first.TimeStamp)
	default:
		actual = new(big.Int)
	}

	// Clamp the measured time so a single window can't move the target by
	// more than the max adjustment factor.
	maxAdj := big.NewInt(p.MaxAdjustment)
	lower := new(big.Int).Div(expected, maxAdj)
	upper := new(big.Int).Mul(expected, maxAdj)
	if actual.Cmp(lower) < 0 {
		actual = lower
	}
	if actual.Cmp(upper) > 0 {
		actual = upper
	}

	target := new(big.Int).Mul(parent.Target, actual)
	target.Div(target, expected)

	if target.Cmp(p.PowLimit) > 0 {
		target.Set(p.PowLimit)
	}
	if target.Sign() <= 0 {
		target.SetInt64(1)
	}

	return target
}

// =============================================================================

// MeetsTarget reports whether the hash, read as a big-endian unsigned
// integer, is less than or equal to the target.
func MeetsTarget(hash signature.Hash, target *big.Int) bool {
	if target == nil || target.Sign() <= 0 {
		return false
	}

	return hash.Big().Cmp(target) <= 0
}

// Work returns the expected number of hashes needed to find a hash that meets
// the target, 2^256 / (target+1).
func Work(target *big.Int) *big.Int {
	if target == nil || target.Sign() < 0 {
		return new(big.Int)
	}

	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(twoTo256, denom)
}

// =============================================================================

// Solve searches the nonce space for a value whose hash meets the target. The
// hash function is called with each candidate nonce. The search starts at a
// random nonce and stops when the context is cancelled.
func Solve(ctx context.Context, target *big.Int, hash func(nonce uint64) signature.Hash, ev func(v string, args ...any)) (uint64, error) {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("pow: Solve: MINING: started: target[%s]", target.Text(16))
	defer ev("pow: Solve: MINING: completed")

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found or the space runs out.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, fmt.Errorf("random nonce: %w", err)
	}
	start := nBig.Uint64()

	nonce := start
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("pow: Solve: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("pow: Solve: MINING: CANCELLED")
			return 0, ctx.Err()
		}

		if MeetsTarget(hash(nonce), target) {
			ev("pow: Solve: MINING: SOLVED: nonce[%d]: attempts[%d]", nonce, attempts)
			return nonce, nil
		}

		nonce++
		if nonce == start {
			return 0, ErrNoSolution
		}
	}
}
