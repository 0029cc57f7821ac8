package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

// EventStore persists the append-only RideRequestEvent audit trail and
// doubles as an orchestrator.EventSink, the same
// append-on-every-transition idiom the teacher's ride_events table used,
// retargeted at ride_request_events.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Publish satisfies orchestrator.EventSink.
func (s *EventStore) Publish(ctx context.Context, evt domain.RideRequestEvent) error {
	return s.Append(ctx, evt)
}

func (s *EventStore) Append(ctx context.Context, evt domain.RideRequestEvent) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ride_request_events (request_id, type, actor_id, actor_role, detail, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, evt.RequestID, evt.Type, nullableString(evt.ActorID), nullableString(evt.ActorRole), nullableString(evt.Detail), evt.CreatedAt)
	return err
}

func (s *EventStore) ListEvents(ctx context.Context, requestID int64, limit, offset int) ([]domain.RideRequestEvent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, request_id, type, actor_id, actor_role, detail, created_at
FROM ride_request_events
WHERE request_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3
`, requestID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RideRequestEvent
	for rows.Next() {
		var evt domain.RideRequestEvent
		var actorID, actorRole, detail *string
		if err := rows.Scan(&evt.ID, &evt.RequestID, &evt.Type, &actorID, &actorRole, &detail, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			evt.ActorID = *actorID
		}
		if actorRole != nil {
			evt.ActorRole = *actorRole
		}
		if detail != nil {
			evt.Detail = *detail
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *EventStore) CountEvents(ctx context.Context, requestID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ride_request_events WHERE request_id = $1`, requestID).Scan(&count)
	return count, err
}
