package domain

import (
	"context"
	"log/slog"
	"sync"

	"github.com/monito83/OgWalletBot/internal/chains"
	"github.com/monito83/OgWalletBot/internal/storage"
)

// TransferLog persists the IDs of transfers the engine has acted on.
type TransferLog interface {
	MarkTransferProcessed(ctx context.Context, t storage.ProcessedTransfer) error
	IsTransferProcessed(ctx context.Context, id string) (bool, error)
	ListProcessedTransfers(ctx context.Context, sinceHeight uint64) ([]storage.ProcessedTransfer, error)
}

// dedupCache remembers processed transfer IDs. The in-memory map covers the
// scan window and is evicted by height; the log covers everything else.
// Ignored transfers are only remembered in memory so repeat sightings are
// not reported again.
type dedupCache struct {
	mu      sync.Mutex
	seen    map[string]uint64
	ignored map[string]uint64
	log     TransferLog
	logger  *slog.Logger
}

func newDedupCache(log TransferLog, logger *slog.Logger) *dedupCache {
	return &dedupCache{
		seen:    make(map[string]uint64),
		ignored: make(map[string]uint64),
		log:     log,
		logger:  logger,
	}
}

// ignore notes a transfer that was evaluated without effect and reports
// whether this is the first time it was seen.
func (d *dedupCache) ignore(t chains.Transfer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ignored[t.ID]; ok {
		return false
	}
	d.ignored[t.ID] = t.BlockHeight
	return true
}

// warm loads recently processed transfers from the log.
func (d *dedupCache) warm(ctx context.Context, sinceHeight uint64) error {
	if d.log == nil {
		return nil
	}
	rows, err := d.log.ListProcessedTransfers(ctx, sinceHeight)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range rows {
		d.seen[r.ID] = r.BlockHeight
	}
	return nil
}

// processed reports whether t was already handled. A log read failure is
// reported as an error so the caller can retry the transfer later instead of
// risking a second refund.
func (d *dedupCache) processed(ctx context.Context, t chains.Transfer) (bool, error) {
	d.mu.Lock()
	_, ok := d.seen[t.ID]
	d.mu.Unlock()
	if ok || d.log == nil {
		return ok, nil
	}

	ok, err := d.log.IsTransferProcessed(ctx, t.ID)
	if err != nil {
		return false, err
	}
	if ok {
		d.mu.Lock()
		d.seen[t.ID] = t.BlockHeight
		d.mu.Unlock()
	}
	return ok, nil
}

// mark records t. The in-memory entry is kept even if the log write fails.
func (d *dedupCache) mark(ctx context.Context, t chains.Transfer, outcome Outcome) {
	d.mu.Lock()
	d.seen[t.ID] = t.BlockHeight
	d.mu.Unlock()

	if d.log == nil {
		return
	}
	err := d.log.MarkTransferProcessed(ctx, storage.ProcessedTransfer{
		ID:          t.ID,
		BlockHeight: t.BlockHeight,
		Outcome:     string(outcome),
	})
	if err != nil {
		d.logger.Error("failed to persist processed transfer", "tx", t.ID, "error", err)
	}
}

// evict drops in-memory entries below height.
func (d *dedupCache) evict(belowHeight uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, h := range d.seen {
		if h < belowHeight {
			delete(d.seen, id)
			n++
		}
	}
	for id, h := range d.ignored {
		if h < belowHeight {
			delete(d.ignored, id)
		}
	}
	return n
}

func (d *dedupCache) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
