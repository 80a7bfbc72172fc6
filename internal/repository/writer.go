package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/model"
)

// Writer buffers journal entries and settlements in memory and flushes
// them to the repository on a fixed interval. Append and SaveSettlement
// never block the caller; a failed flush keeps the batch for the next
// tick. Satisfies the ledger and settlement sink contracts.
type Writer struct {
	repo     *JournalRepository
	interval time.Duration
	log      zerolog.Logger

	mu          sync.Mutex
	entries     []model.LedgerEntry
	settlements []model.SettlementEntry
}

// NewWriter creates a writer flushing every interval.
func NewWriter(repo *JournalRepository, interval time.Duration, log zerolog.Logger) *Writer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Writer{
		repo:     repo,
		interval: interval,
		log:      log.With().Str("component", "journal-writer").Logger(),
	}
}

// Append implements ledger.Sink.
func (w *Writer) Append(e model.LedgerEntry) {
	w.mu.Lock()
	w.entries = append(w.entries, e)
	w.mu.Unlock()
}

// SaveSettlement implements settle.Sink.
func (w *Writer) SaveSettlement(e model.SettlementEntry) {
	w.mu.Lock()
	w.settlements = append(w.settlements, e)
	w.mu.Unlock()
}

// Run flushes on the interval until ctx is cancelled, then makes a final
// flush on a fresh deadline so shutdown does not lose the tail.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			w.Flush(drainCtx)
			cancel()
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush writes everything buffered so far. Failed batches are re-queued.
func (w *Writer) Flush(ctx context.Context) {
	w.mu.Lock()
	entries := w.entries
	settlements := w.settlements
	w.entries = nil
	w.settlements = nil
	w.mu.Unlock()

	if len(entries) > 0 {
		if err := w.repo.InsertEntries(ctx, entries); err != nil {
			w.log.Error().Err(err).Int("count", len(entries)).Msg("journal flush failed, re-queued")
			w.mu.Lock()
			w.entries = append(entries, w.entries...)
			w.mu.Unlock()
		}
	}
	if len(settlements) > 0 {
		if err := w.repo.InsertSettlements(ctx, settlements); err != nil {
			w.log.Error().Err(err).Int("count", len(settlements)).Msg("settlement flush failed, re-queued")
			w.mu.Lock()
			w.settlements = append(settlements, w.settlements...)
			w.mu.Unlock()
		}
	}
}

// Pending reports buffered counts, for tests and shutdown logging.
func (w *Writer) Pending() (entries, settlements int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries), len(w.settlements)
}
