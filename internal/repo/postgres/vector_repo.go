package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nicklasc86/travelbot/internal/domain/model"
)

// VectorRepo stores tip embeddings in tip_vectors and ranks them by cosine similarity.
type VectorRepo struct {
	pool      *pgxpool.Pool
	namespace string
}

func NewVectorRepo(pool *pgxpool.Pool, namespace string) *VectorRepo {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "default"
	}
	return &VectorRepo{pool: pool, namespace: namespace}
}

func (r *VectorRepo) Upsert(ctx context.Context, id string, values []float32, meta model.VectorMetadata) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("vector id is required")
	}
	if len(values) == 0 {
		return fmt.Errorf("vector values are empty")
	}

	embedding, err := vectorLiteral(values)
	if err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO tip_vectors (
	id,
	namespace,
	embedding,
	city,
	country,
	text,
	updated_at
) VALUES ($1, $2, $3::vector, $4, $5, $6, NOW())
ON CONFLICT (namespace, id) DO UPDATE SET
	embedding = EXCLUDED.embedding,
	city = EXCLUDED.city,
	country = EXCLUDED.country,
	text = EXCLUDED.text,
	updated_at = NOW()
`, id, r.namespace, embedding, meta.City, meta.Country, meta.Text); err != nil {
		return fmt.Errorf("upsert tip vector: %w", err)
	}

	return nil
}

func (r *VectorRepo) Query(ctx context.Context, values []float32, filter model.VectorFilter, topK int) ([]model.VectorMatch, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 3
	}

	embedding, err := vectorLiteral(values)
	if err != nil {
		return nil, err
	}

	args := []any{embedding, r.namespace}
	where := []string{"namespace = $2"}
	if model.IsKnown(filter.City) {
		args = append(args, filter.City)
		where = append(where, fmt.Sprintf("city = $%d", len(args)))
	}
	if model.IsKnown(filter.Country) {
		args = append(args, filter.Country)
		where = append(where, fmt.Sprintf("country = $%d", len(args)))
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
SELECT id, 1 - (embedding <=> $1::vector) AS score, city, country, text
FROM tip_vectors
WHERE %s
ORDER BY embedding <=> $1::vector
LIMIT $%d
`, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tip vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]model.VectorMatch, 0, topK)
	for rows.Next() {
		var m model.VectorMatch
		if err := rows.Scan(&m.ID, &m.Score, &m.Metadata.City, &m.Metadata.Country, &m.Metadata.Text); err != nil {
			return nil, fmt.Errorf("scan tip vector: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tip vectors: %w", err)
	}

	return matches, nil
}

// vectorLiteral renders values in the pgvector text format so no custom type registration is needed.
func vectorLiteral(values []float32) (string, error) {
	raw, err := pgvector.NewVector(values).Value()
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	literal, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("encode vector: unexpected value %T", raw)
	}
	return literal, nil
}
