package ledger

import (
	"context"
	"log"

	"tosti/internal/store"
)

type Worker struct {
	store     store.LedgerStore
	sink      Sink
	batchSize int
}

type Config struct {
	BatchSize int
}

func New(st store.LedgerStore, sink Sink, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Worker{store: st, sink: sink, batchSize: batch}
}

// Result summarizes one pass over the pending exports.
type Result struct {
	Sent   int
	Failed int
}

// Run sends at most one batch. A failing key is left pending for the next
// run and does not stop the others.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	var result Result
	keys, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return result, err
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		ran, err := w.store.RunExport(ctx, key.ID, w.sink.Push)
		if err != nil {
			log.Printf("ledger export key=%s err=%v", key.Key, err)
			if ran {
				result.Failed++
			}
			continue
		}
		if ran {
			result.Sent++
		}
	}
	return result, nil
}
