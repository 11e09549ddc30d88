// Package state is the core API for the blockchain and implements all the
// business rules and processing. It decides which proposed blocks extend the
// chain, which are kept as fork candidates and when the chain reorganizes.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/pow"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
}

// =============================================================================

// Status represents what the chain manager is doing.
type Status int32

// Set of states the chain manager moves through while processing a block.
const (
	Idle Status = iota
	ValidatingCandidate
	Applying
	Reorganizing
)

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case ValidatingCandidate:
		return "validating_candidate"
	case Applying:
		return "applying"
	case Reorganizing:
		return "reorganizing"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Result represents what happened to an accepted block.
type Result int

// Set of outcomes for an accepted block.
const (
	Extended Result = iota + 1
	Reorganized
	ForkCandidate
)

// String implements the fmt.Stringer interface.
func (r Result) String() string {
	switch r {
	case Extended:
		return "extended"
	case Reorganized:
		return "reorganized"
	case ForkCandidate:
		return "fork_candidate"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryID database.Address
	Genesis       genesis.Genesis
	Storage       database.Storage
	EvHandler     EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	beneficiaryID database.Address
	evHandler     EventHandler

	genesis genesis.Genesis
	params  pow.Params
	mempool *mempool.Mempool
	db      *database.Database

	status  atomic.Int32
	invalid map[signature.Hash]struct{}
	halted  error

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	params, err := cfg.Genesis.Params()
	if err != nil {
		return nil, fmt.Errorf("genesis params: %w", err)
	}

	// Access the storage for the blockchain. Only the tip is loaded, blocks
	// are read on demand.
	db, err := database.Open(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		evHandler:     ev,

		genesis: cfg.Genesis,
		params:  params,
		mempool: mempool.New(),
		db:      db,

		invalid: make(map[signature.Hash]struct{}),
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Make sure the database is properly closed.
	return s.db.Close()
}

// Status returns what the chain manager is currently doing.
func (s *State) Status() Status {
	return Status(s.status.Load())
}

// =============================================================================

// setStatus records the current status.
func (s *State) setStatus(status Status) {
	s.status.Store(int32(status))
	s.evHandler("state: status[%s]", status)
}

// halt stops the node from accepting any more writes after the ledger could
// not be updated.
func (s *State) halt(err error) error {
	s.halted = fmt.Errorf("%w: %w", database.ErrInvariantViolation, err)
	s.evHandler("state: HALTED: %s", s.halted)

	return s.halted
}
