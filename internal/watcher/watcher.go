// Package watcher polls the chain for inbound transfers to wallets we
// custody and feeds them to the settlement recorder. The cursor lives in
// memory only: a restart rescans a recent window and the recorder's
// signature idempotency absorbs the replays.
package watcher

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/textpesa/textpesa/internal/chain"
)

// Recorder stores an observed transfer if its recipient is one of ours.
type Recorder interface {
	RecordIncoming(ctx context.Context, recipient, sender string, amount *big.Int, contract, sig string) (bool, error)
}

// Watcher scans blocks forward from a cursor on an interval.
type Watcher struct {
	chain    chain.Client
	recorder Recorder
	logger   *slog.Logger
	interval time.Duration
	rescan   uint64

	cursor  uint64
	started bool
}

// New builds a watcher. rescan is how many blocks behind the head the first
// scan starts, bounding the catch-up after a restart.
func New(chainClient chain.Client, recorder Recorder, logger *slog.Logger, interval time.Duration, rescan uint64) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		chain:    chainClient,
		recorder: recorder,
		logger:   logger,
		interval: interval,
		rescan:   rescan,
	}
}

// Run blocks until the context is cancelled, scanning on each tick.
func (w *Watcher) Run(ctx context.Context) {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := w.Scan(ctx); err != nil {
				w.logger.Error("chain scan failed", "error", err)
			}
		}
	}
}

// Scan processes every block between the cursor and the current head. The
// cursor only advances past a block once all of its transfers were offered
// to the recorder, so a mid-scan failure resumes at the failed block.
func (w *Watcher) Scan(ctx context.Context) error {
	head, err := w.chain.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if !w.started {
		w.cursor = 0
		if head > w.rescan {
			w.cursor = head - w.rescan
		}
		w.started = true
	}

	for b := w.cursor + 1; b <= head; b++ {
		transfers, err := w.chain.BlockTransfers(ctx, b)
		if err != nil {
			return err
		}
		for _, t := range transfers {
			ours, err := w.recorder.RecordIncoming(ctx, t.To, t.From, t.Amount, t.Contract, t.Signature)
			if err != nil {
				return err
			}
			if ours {
				w.logger.Info("inbound transfer recorded",
					"block", b, "signature", t.Signature, "to", t.To)
			}
		}
		w.cursor = b
	}
	return nil
}
