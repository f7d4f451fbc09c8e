package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ActivityEvent represents a normalized activity event in our system.
// ActivityID is globally unique and serves as the dedup key.
type ActivityEvent struct {
	ActivityID         string
	OwnerAddress       string
	Outcome            string // "pending", "confirmed" or "failed"
	DeliveryClass      string // "bundled", "priority" or "direct"
	DeliveryConfidence float64
	CostEstimate       int64
	DetailCount        int
	ObservedAt         *time.Time // nil when the ledger reported no timestamp
	CreatedAt          time.Time
}

// InsertActivityEventParams contains the parameters for inserting an event.
type InsertActivityEventParams struct {
	ActivityID         string
	OwnerAddress       string
	Outcome            string
	DeliveryClass      string
	DeliveryConfidence float64
	CostEstimate       int64
	DetailCount        int
	ObservedAt         *time.Time
}

// ListActivityEventsParams contains pagination parameters.
type ListActivityEventsParams struct {
	OwnerAddress string // empty means all addresses
	Limit        int32
	Offset       int32
}

const insertActivityEventSQL = `
INSERT INTO activity_events (
	activity_id, owner_address, outcome, delivery_class,
	delivery_confidence, cost_estimate, detail_count, observed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (activity_id) DO NOTHING
`

// InsertActivityEvent inserts a new activity event. A duplicate activity id is
// absorbed by the unique constraint and reported as created=false; it is never
// an error, so replays and overlapping fetch windows stay idempotent.
func (s *Store) InsertActivityEvent(ctx context.Context, params InsertActivityEventParams) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertActivityEventSQL,
		params.ActivityID,
		params.OwnerAddress,
		params.Outcome,
		params.DeliveryClass,
		params.DeliveryConfidence,
		params.CostEstimate,
		params.DetailCount,
		pgtimestamptzFromTimePtr(params.ObservedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert activity event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetActivityEvent retrieves an event by its activity id.
// Returns pgx.ErrNoRows (wrapped) if no such event exists.
func (s *Store) GetActivityEvent(ctx context.Context, activityID string) (*ActivityEvent, error) {
	row := s.pool.QueryRow(ctx, `
SELECT activity_id, owner_address, outcome, delivery_class,
       delivery_confidence, cost_estimate, detail_count, observed_at, created_at
FROM activity_events
WHERE activity_id = $1
`, activityID)

	event, err := scanActivityEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity event %s: %w", activityID, err)
	}
	return event, nil
}

// ListActivityEvents retrieves events ordered by persistence time, newest
// first. When OwnerAddress is set, results are scoped to that address.
func (s *Store) ListActivityEvents(ctx context.Context, params ListActivityEventsParams) ([]*ActivityEvent, error) {
	var rows pgx.Rows
	var err error
	if params.OwnerAddress != "" {
		rows, err = s.pool.Query(ctx, `
SELECT activity_id, owner_address, outcome, delivery_class,
       delivery_confidence, cost_estimate, detail_count, observed_at, created_at
FROM activity_events
WHERE owner_address = $1
ORDER BY created_at DESC, activity_id
LIMIT $2 OFFSET $3
`, params.OwnerAddress, params.Limit, params.Offset)
	} else {
		rows, err = s.pool.Query(ctx, `
SELECT activity_id, owner_address, outcome, delivery_class,
       delivery_confidence, cost_estimate, detail_count, observed_at, created_at
FROM activity_events
ORDER BY created_at DESC, activity_id
LIMIT $1 OFFSET $2
`, params.Limit, params.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list activity events: %w", err)
	}
	defer rows.Close()

	var events []*ActivityEvent
	for rows.Next() {
		event, err := scanActivityEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity events: %w", err)
	}
	return events, nil
}

// CountActivityEvents returns the number of stored events for an address, or
// all events when ownerAddress is empty.
func (s *Store) CountActivityEvents(ctx context.Context, ownerAddress string) (int64, error) {
	var count int64
	var err error
	if ownerAddress != "" {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM activity_events WHERE owner_address = $1`, ownerAddress,
		).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_events`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count activity events: %w", err)
	}
	return count, nil
}

// LatestActivityID returns the most recently persisted activity id for an
// address, or "" when none exists. Used to seed a cursor across restarts.
func (s *Store) LatestActivityID(ctx context.Context, ownerAddress string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
SELECT activity_id
FROM activity_events
WHERE owner_address = $1
ORDER BY created_at DESC, activity_id
LIMIT 1
`, ownerAddress).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest activity id: %w", err)
	}
	return id, nil
}

func scanActivityEvent(row pgx.Row) (*ActivityEvent, error) {
	var event ActivityEvent
	var observedAt pgtype.Timestamptz
	err := row.Scan(
		&event.ActivityID,
		&event.OwnerAddress,
		&event.Outcome,
		&event.DeliveryClass,
		&event.DeliveryConfidence,
		&event.CostEstimate,
		&event.DetailCount,
		&observedAt,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.ObservedAt = timePtrFromPgtimestamptz(observedAt)
	return &event, nil
}

// pgtimestamptzFromTimePtr converts *time.Time to pgtype.Timestamptz.
func pgtimestamptzFromTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// timePtrFromPgtimestamptz converts pgtype.Timestamptz to *time.Time.
func timePtrFromPgtimestamptz(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
