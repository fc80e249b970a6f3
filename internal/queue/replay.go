package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"collabhub/internal/dbmysql"
)

// DeadLetterStore is the part of the ledger the replayer works through.
type DeadLetterStore interface {
	ListUnresolved(ctx context.Context, limit int) ([]dbmysql.DeadLetter, error)
	MarkResolved(ctx context.Context, id uint64) error
}

// EventPublisher enqueues one event.
type EventPublisher interface {
	Publish(ctx context.Context, pattern string, data interface{}) (string, error)
}

// Replayer puts unresolved dead letters back on the work queue.
type Replayer struct {
	ledger    DeadLetterStore
	publisher EventPublisher
	limit     int
}

func NewReplayer(ledger DeadLetterStore, publisher EventPublisher, limit int) *Replayer {
	return &Replayer{ledger: ledger, publisher: publisher, limit: limit}
}

// Replay re-enqueues up to limit unresolved letters and marks each one resolved
// once it is back on the queue. Letters whose payload is not an envelope stay
// unresolved. It returns how many were re-enqueued.
func (r *Replayer) Replay(ctx context.Context) (int, error) {
	letters, err := r.ledger.ListUnresolved(ctx, r.limit)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, dl := range letters {
		var env Envelope
		if err := json.Unmarshal(dl.Payload, &env); err != nil || env.Pattern == "" {
			log.Printf("Skipping dead letter %d: payload is not an envelope", dl.ID)
			continue
		}
		if _, err := r.publisher.Publish(ctx, env.Pattern, env.Data); err != nil {
			return replayed, fmt.Errorf("failed to replay dead letter %d: %w", dl.ID, err)
		}
		if err := r.ledger.MarkResolved(ctx, dl.ID); err != nil {
			return replayed, fmt.Errorf("dead letter %d was replayed but not resolved: %w", dl.ID, err)
		}
		replayed++
	}
	if replayed > 0 {
		log.Printf("Replayed %d dead letter(s)", replayed)
	}
	return replayed, nil
}

// Run replays once and then every interval until ctx is done. A zero interval
// replays only once.
func (r *Replayer) Run(ctx context.Context, interval time.Duration) {
	if _, err := r.Replay(ctx); err != nil {
		log.Printf("Dead letter replay failed: %v", err)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Replay(ctx); err != nil {
				log.Printf("Dead letter replay failed: %v", err)
			}
		}
	}
}
