package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/primewallet/walletclient/internal/logging"
	"github.com/primewallet/walletclient/internal/transfer"
)

// Source fetches transactions from the backend.
type Source interface {
	FetchTransactions(ctx context.Context, f transfer.Filters) ([]transfer.Record, error)
}

// Syncer copies backend transactions into a Store.
type Syncer struct {
	source Source
	store  Store
	logger *slog.Logger
}

// NewSyncer builds a Syncer.
func NewSyncer(source Source, store Store, logger *slog.Logger) *Syncer {
	return &Syncer{source: source, store: store, logger: logging.Component(logger, "history")}
}

// SyncResult summarises one Sync.
type SyncResult struct {
	Fetched int
	Added   int
	Skipped int
}

// Sync fetches one page of transactions and stores the ones not seen before.
// Records without an id cannot be deduplicated and are skipped.
func (s *Syncer) Sync(ctx context.Context, f transfer.Filters) (SyncResult, error) {
	records, err := s.source.FetchTransactions(ctx, f)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync history: %w", err)
	}

	res := SyncResult{Fetched: len(records)}
	keep := records[:0:0]
	for _, rec := range records {
		if rec.ID == "" {
			res.Skipped++
			continue
		}
		keep = append(keep, rec)
	}

	added, err := s.store.Save(ctx, keep)
	res.Added = added
	if err != nil {
		return res, fmt.Errorf("sync history: %w", err)
	}
	s.logger.Info("history synced",
		slog.Int("fetched", res.Fetched),
		slog.Int("added", res.Added),
		slog.Int("skipped", res.Skipped))
	return res, nil
}
