package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicklasc86/travelbot/internal/domain/model"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) InsertBatch(ctx context.Context, events []model.TipEvent) error {
	if len(events) == 0 {
		return nil
	}
	if r.pool == nil {
		return nil
	}

	const query = `
INSERT INTO tip_events (
	tip_id,
	action,
	payload,
	occurred_at,
	created_at
) VALUES (
	$1,
	$2,
	$3::jsonb,
	$4,
	NOW()
)
`

	batch := &pgx.Batch{}
	for _, event := range events {
		if strings.TrimSpace(event.TipID) == "" {
			return fmt.Errorf("tip event without tip id")
		}

		props := event.Props
		if props == nil {
			props = map[string]any{}
		}
		payload, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("marshal tip event props: %w", err)
		}

		occurredAt := event.OccurredAt.UTC()
		if event.OccurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}
		batch.Queue(query, event.TipID, string(event.Action), string(payload), occurredAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert tip event batch item #%d: %w", i, err)
		}
	}

	return nil
}

func (r *EventRepo) ListByTip(ctx context.Context, tipID string) ([]model.TipEvent, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT tip_id, action, payload, occurred_at
FROM tip_events
WHERE tip_id = $1
ORDER BY occurred_at ASC, id ASC
`, tipID)
	if err != nil {
		return nil, fmt.Errorf("list tip events: %w", err)
	}
	defer rows.Close()

	items := make([]model.TipEvent, 0)
	for rows.Next() {
		var (
			event   model.TipEvent
			payload []byte
		)
		if err := rows.Scan(&event.TipID, &event.Action, &payload, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan tip event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Props); err != nil {
				return nil, fmt.Errorf("decode tip event payload: %w", err)
			}
		}
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tip events: %w", err)
	}

	return items, nil
}

func (r *EventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM tip_events WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old tip events: %w", err)
	}
	return tag.RowsAffected(), nil
}
