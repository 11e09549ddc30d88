// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ardanlabs/ledger/foundation/web"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var st submitTx
	if err := web.Decode(r, &st); err != nil {
		if web.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(fmt.Errorf("%w: %w", database.ErrMalformedTransaction, err), http.StatusBadRequest)
	}

	signedTx, err := st.toSignedTx()
	if err != nil {
		return trusted(err)
	}

	h.Log.Infow("add user tran", "traceid", web.GetTraceID(ctx), "from:nonce", signedTx, "to", signedTx.To, "value", signedTx.Value)
	if err := h.State.SubmitWalletTransaction(signedTx); err != nil {
		return trusted(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transactions added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitBlock accepts a solved block from a miner.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var blk database.Block
	if err := web.Decode(r, &blk); err != nil {
		return errs.NewTrusted(fmt.Errorf("%w: %w", database.ErrInvalidBlock, err), http.StatusBadRequest)
	}

	h.Log.Infow("submit block", "traceid", web.GetTraceID(ctx), "number", blk.Header.Number, "hash", blk.Hash())

	result, err := h.State.ProcessProposedBlock(blk)
	if err != nil {
		te := errs.GetTrusted(trusted(err))
		if te == nil {
			return err
		}

		return web.Respond(ctx, w, submitResult{Status: "rejected", Reason: err.Error()}, te.Status)
	}

	return web.Respond(ctx, w, submitResult{Status: result.String()}, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Tip returns the end of the canonical chain.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	t := h.State.RetrieveTip()

	target, err := h.State.QueryNextTarget()
	if err != nil {
		return err
	}

	resp := tip{
		Hash:       t.Hash.Hex(),
		Height:     t.Height,
		Work:       t.Work.String(),
		NextTarget: hexutil.EncodeBig(target),
		Status:     h.State.Status().String(),
		Mempool:    h.State.QueryMempoolLength(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var filter database.Address
	if s := web.Param(r, "address"); s != "" {
		address, err := database.ToAddress(s)
		if err != nil {
			return trusted(err)
		}
		filter = address
	}

	mempool := h.State.RetrieveMempool()

	trans := make([]tx, 0, len(mempool))
	for _, tran := range mempool {
		if !filter.IsZero() && filter != tran.From && filter != tran.To {
			continue
		}
		trans = append(trans, toTx(h.NS, tran))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Account returns the current balance and nonce for the account.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := database.ToAddress(web.Param(r, "address"))
	if err != nil {
		return trusted(err)
	}

	account, err := h.State.QueryAccount(address)
	if err != nil {
		return err
	}

	resp := info{
		Address: address,
		Name:    h.NS.Lookup(address),
		Balance: account.Balance,
		Nonce:   account.Nonce,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Accounts returns the current balances for the accounts known by name.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	names := h.NS.Copy()

	acts := make([]info, 0, len(names))
	for address, name := range names {
		account, err := h.State.QueryAccount(address)
		if err != nil {
			return err
		}

		acts = append(acts, info{
			Address: address,
			Name:    name,
			Balance: account.Balance,
			Nonce:   account.Nonce,
		})
	}

	ai := actInfo{
		LatestBlock: h.State.RetrieveLatestBlock().Hash().Hex(),
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// BlockByHash returns the block with the hash from any branch.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := signature.ToHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blk, err := h.State.QueryBlockByHash(hash)
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blk), http.StatusOK)
}

// BlockByNumber returns the canonical block at the height.
func (h Handlers) BlockByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	num, err := strconv.ParseUint(web.Param(r, "number"), 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blks, err := h.State.QueryBlocksByNumber(num, num)
	if err != nil {
		return trusted(err)
	}

	if len(blks) == 0 {
		return errs.NewTrusted(fmt.Errorf("block %d: %w", num, database.ErrNotFound), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blks[0]), http.StatusOK)
}

// BlocksByNumber returns the canonical blocks in the range. Use "latest" for
// either end to refer to the tip.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := blockNumber(web.Param(r, "from"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := blockNumber(web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blks, err := h.State.QueryBlocksByNumber(from, to)
	if err != nil {
		return trusted(err)
	}

	if len(blks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, toBlocks(h.NS, blks), http.StatusOK)
}

// BlocksByAccount returns the canonical blocks holding transactions of the
// account.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address, err := database.ToAddress(web.Param(r, "address"))
	if err != nil {
		return trusted(err)
	}

	blks, err := h.State.QueryBlocksByAccount(address)
	if err != nil {
		return err
	}

	if len(blks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, toBlocks(h.NS, blks), http.StatusOK)
}

// =============================================================================

// trusted converts the ledger errors a client can act on into trusted errors
// carrying the matching status code. Anything else is returned as is.
func trusted(err error) error {
	switch {
	case errors.Is(err, database.ErrInvariantViolation),
		errors.Is(err, database.ErrStorageFailure):
		return err

	case errors.Is(err, database.ErrNotFound):
		return errs.NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, database.ErrDuplicateBlock):
		return errs.NewTrusted(err, http.StatusConflict)

	case errors.Is(err, database.ErrUnknownParent):
		return errs.NewTrusted(err, http.StatusUnprocessableEntity)

	case errors.Is(err, database.ErrMalformedTransaction),
		errors.Is(err, database.ErrInvalidSignature),
		errors.Is(err, database.ErrDoubleSpend),
		errors.Is(err, database.ErrNonceMismatch),
		errors.Is(err, database.ErrInvalidAddress),
		errors.Is(err, database.ErrConsensusRejected),
		errors.Is(err, database.ErrInvalidBlock):
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return err
}

// blockNumber parses a block number where "latest" means the tip.
func blockNumber(s string) (uint64, error) {
	if s == "latest" {
		return state.QueryLatest, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
