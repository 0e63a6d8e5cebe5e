package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/gobarber/libs/db"
)

// Inserter writes one outbox row.
type Inserter interface {
	Insert(ctx context.Context, q db.Querier, evt Event) error
}

// Aggregate is implemented by job payloads that name the aggregate they belong to.
type Aggregate interface {
	AggregateType() string
	AggregateID() string
}

// Queue enqueues background jobs as outbox rows. Enqueue returns as soon as the row is
// committed; delivery to workers happens in the Publisher.
type Queue struct {
	q    db.Querier
	repo Inserter
}

func NewQueue(q db.Querier, repo Inserter) *Queue {
	return &Queue{q: q, repo: repo}
}

func (q *Queue) Enqueue(ctx context.Context, key string, payload any) error {
	return q.EnqueueIn(ctx, q.q, key, payload)
}

// EnqueueIn writes the job through tx so it commits or rolls back with the caller's work.
// A nil tx falls back to the queue's own querier.
func (q *Queue) EnqueueIn(ctx context.Context, tx db.Querier, key string, payload any) error {
	if tx == nil {
		tx = q.q
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", key, err)
	}
	evt := Event{EventType: key, Payload: body}
	if agg, ok := payload.(Aggregate); ok {
		evt.AggregateType = agg.AggregateType()
		evt.AggregateID = agg.AggregateID()
	}
	if err := q.repo.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("enqueue job %s: %w", key, err)
	}
	return nil
}
