package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
)

var (
	ErrTipNotFound      = errors.New("tip not found")
	ErrTipStateConflict = errors.New("tip is both pending and published")
)

type ReviewRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{
		pool: pool,
		now:  time.Now,
	}
}

// InsertPending queues a tip. A second insert with the same id is a no-op.
func (r *ReviewRepo) InsertPending(ctx context.Context, tip model.Tip) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(tip.ID) == "" {
		return fmt.Errorf("tip id is required")
	}
	if tip.Reason == nil || !tip.Reason.Valid() {
		return fmt.Errorf("review reason is required")
	}

	var moderation any
	if len(tip.ModerationResult) > 0 {
		moderation = string(tip.ModerationResult)
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO review_tips (
	id,
	text,
	city,
	country,
	confidence,
	moderation,
	reason,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
ON CONFLICT (id) DO NOTHING
`, tip.ID, tip.Text, tip.City, tip.Country, tip.Confidence, moderation, string(*tip.Reason), r.createdAt(tip.CreatedAt)); err != nil {
		return fmt.Errorf("insert pending tip: %w", err)
	}

	return nil
}

func (r *ReviewRepo) ListPending(ctx context.Context) ([]model.Tip, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, text, city, country, confidence, moderation, reason, created_at
FROM review_tips
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list pending tips: %w", err)
	}
	defer rows.Close()

	items := make([]model.Tip, 0)
	for rows.Next() {
		tip, err := scanPendingTip(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending tips: %w", err)
	}

	return items, nil
}

func (r *ReviewRepo) GetPending(ctx context.Context, id string) (model.Tip, error) {
	if r.pool == nil {
		return model.Tip{}, fmt.Errorf("postgres pool is nil")
	}

	row := r.pool.QueryRow(ctx, `
SELECT id, text, city, country, confidence, moderation, reason, created_at
FROM review_tips
WHERE id = $1
`, id)
	tip, err := scanPendingTip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tip{}, ErrTipNotFound
		}
		return model.Tip{}, err
	}
	return tip, nil
}

func (r *ReviewRepo) DeletePending(ctx context.Context, id string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM review_tips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pending tip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTipNotFound
	}
	return nil
}

// InsertApproved records a published tip. A second insert with the same id is a no-op.
func (r *ReviewRepo) InsertApproved(ctx context.Context, tip model.ApprovedTip) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(tip.ID) == "" {
		return fmt.Errorf("tip id is required")
	}

	if _, err := r.pool.Exec(ctx, insertApprovedSQL,
		tip.ID, tip.Text, tip.City, tip.Country, tip.Confidence, r.createdAt(tip.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert approved tip: %w", err)
	}
	return nil
}

// Promote moves a pending tip into approved_tips in one transaction.
func (r *ReviewRepo) Promote(ctx context.Context, tip model.ApprovedTip) error {
	if strings.TrimSpace(tip.ID) == "" {
		return fmt.Errorf("tip id is required")
	}

	return WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertApprovedSQL,
			tip.ID, tip.Text, tip.City, tip.Country, tip.Confidence, r.createdAt(tip.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert approved tip: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM review_tips WHERE id = $1`, tip.ID)
		if err != nil {
			return fmt.Errorf("delete pending tip: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrTipNotFound
		}
		return nil
	})
}

func (r *ReviewRepo) GetApproved(ctx context.Context, id string) (model.ApprovedTip, error) {
	if r.pool == nil {
		return model.ApprovedTip{}, fmt.Errorf("postgres pool is nil")
	}

	var tip model.ApprovedTip
	err := r.pool.QueryRow(ctx, `
SELECT id, text, city, country, confidence, created_at
FROM approved_tips
WHERE id = $1
`, id).Scan(&tip.ID, &tip.Text, &tip.City, &tip.Country, &tip.Confidence, &tip.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ApprovedTip{}, ErrTipNotFound
		}
		return model.ApprovedTip{}, fmt.Errorf("get approved tip: %w", err)
	}
	return tip, nil
}

// StateOf reports where a tip id lives. Presence in both tables is reported as ErrTipStateConflict.
func (r *ReviewRepo) StateOf(ctx context.Context, id string) (enums.TipState, error) {
	if r.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var pending, published bool
	if err := r.pool.QueryRow(ctx, `
SELECT
	EXISTS (SELECT 1 FROM review_tips WHERE id = $1),
	EXISTS (SELECT 1 FROM approved_tips WHERE id = $1)
`, id).Scan(&pending, &published); err != nil {
		return "", fmt.Errorf("query tip state: %w", err)
	}

	switch {
	case pending && published:
		return "", ErrTipStateConflict
	case pending:
		return enums.TipStatePending, nil
	case published:
		return enums.TipStatePublished, nil
	default:
		return enums.TipStateAbsent, nil
	}
}

const insertApprovedSQL = `
INSERT INTO approved_tips (
	id,
	text,
	city,
	country,
	confidence,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`

func (r *ReviewRepo) createdAt(ts time.Time) time.Time {
	if ts.IsZero() {
		return r.now().UTC()
	}
	return ts.UTC()
}

func scanPendingTip(row pgx.Row) (model.Tip, error) {
	var (
		tip        model.Tip
		moderation []byte
		reason     string
	)
	if err := row.Scan(
		&tip.ID,
		&tip.Text,
		&tip.City,
		&tip.Country,
		&tip.Confidence,
		&moderation,
		&reason,
		&tip.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tip{}, err
		}
		return model.Tip{}, fmt.Errorf("scan pending tip: %w", err)
	}

	if len(moderation) > 0 {
		tip.ModerationResult = moderation
	}
	rr := enums.ReviewReason(reason)
	tip.Reason = &rr
	return tip, nil
}
