package domain

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/monito83/OgWalletBot/internal/chains"
)

// ScanResult is what one pass over the recent block window observed.
// An unknown head means nothing was scanned.
type ScanResult struct {
	Head         uint64
	HeadKnown    bool
	Transfers    []chains.Transfer
	FailedBlocks int
}

// Scanner reads recent blocks for transfers to the receiving address.
type Scanner struct {
	ledger      chains.Ledger
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
}

// NewScanner creates a scanner that waits delay between block requests and
// keeps at most concurrency requests in flight.
func NewScanner(ledger chains.Ledger, delay time.Duration, concurrency int, logger *slog.Logger) *Scanner {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{
		ledger:      ledger,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: concurrency,
		logger:      logger,
	}
}

// ScanRecentTransfers fetches blocks [head-window, head] and returns the
// transfers to `to` in block order, then in-block order. Failed blocks are
// skipped; a failed head lookup yields an empty result. It never errors.
func (s *Scanner) ScanRecentTransfers(ctx context.Context, to string, window uint64) ScanResult {
	head, err := s.ledger.HeadHeight(ctx)
	if err != nil {
		s.logger.Warn("ledger head unavailable, skipping scan", "error", err)
		return ScanResult{}
	}

	from := uint64(0)
	if head > window {
		from = head - window
	}
	count := int(head - from + 1)
	perBlock := make([][]chains.Transfer, count)
	failed := make([]bool, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := 0; i < count; i++ {
		if err := s.limiter.Wait(gctx); err != nil {
			// context done: mark the rest as not fetched
			for j := i; j < count; j++ {
				failed[j] = true
			}
			break
		}
		height := from + uint64(i)
		g.Go(func() error {
			transfers, err := s.ledger.TransfersTo(gctx, height, to)
			if err != nil {
				s.logger.Debug("skipping block", "block", height, "error", err)
				failed[i] = true
				return nil
			}
			perBlock[i] = transfers
			return nil
		})
	}
	_ = g.Wait()

	res := ScanResult{Head: head, HeadKnown: true}
	for i, transfers := range perBlock {
		if failed[i] {
			res.FailedBlocks++
			continue
		}
		res.Transfers = append(res.Transfers, transfers...)
	}
	if res.FailedBlocks > 0 {
		s.logger.Warn("scan skipped blocks", "failed", res.FailedBlocks, "from", from, "head", head)
	}
	return res
}
