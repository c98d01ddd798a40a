package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"tosti/internal/events"
	"tosti/internal/store"
)

type envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Relay tails the outbox and pushes new events to the hub.
type Relay struct {
	store     store.OutboxStore
	hub       *Hub
	batchSize int
	last      int64
	running   int32
}

func NewRelay(st store.OutboxStore, h *Hub, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{store: st, hub: h, batchSize: batchSize}
}

// Seek skips everything already in the outbox; clients only get events
// written after the relay started.
func (r *Relay) Seek(ctx context.Context) error {
	last, err := r.store.LatestOutboxID(ctx)
	if err != nil {
		return err
	}
	r.last = last
	return nil
}

// Poll forwards one batch and reports how many events were read. Overlapping
// calls return immediately.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&r.running, 0)

	batch, err := r.store.ListOutboxEvents(ctx, r.last, r.batchSize)
	if err != nil {
		return 0, err
	}
	for _, event := range batch {
		r.last = event.ID
		decoded, err := events.Decode(event.Type, event.Payload)
		if err != nil {
			log.Printf("relay skip event=%s type=%s err=%v", event.EventID, event.Type, err)
			continue
		}
		payload, err := json.Marshal(envelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt})
		if err != nil {
			continue
		}
		r.hub.Broadcast(payload, decoded.Topics())
	}
	return len(batch), nil
}

func (r *Relay) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if _, err := r.Poll(pollCtx); err != nil {
				log.Printf("relay poll error: %v", err)
			}
			cancel()
		}
	}
}
