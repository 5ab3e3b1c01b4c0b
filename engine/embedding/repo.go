package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/bizradar/bizradar/engine/core"
)

// ErrEmbeddingNotFound is returned for lookups with no persisted row.
var ErrEmbeddingNotFound = errors.New("embedding not found")

// DB is the subset of pgxpool.Pool the repositories need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EmbeddingRepo persists business vectors keyed by
// (business_id, provider, model).
type EmbeddingRepo interface {
	SaveEmbedding(ctx context.Context, emb *BusinessEmbedding) (*BusinessEmbedding, error)
	GetEmbedding(ctx context.Context, businessID, provider, model string) (*BusinessEmbedding, error)
	GetBusinessEmbeddings(ctx context.Context, businessID string) ([]*BusinessEmbedding, error)
	FindSimilar(ctx context.Context, vector []float32, opts FindSimilarOptions) ([]SimilarBusiness, error)
	DeleteEmbedding(ctx context.Context, businessID string) error
	CountEmbeddings(ctx context.Context, provider, model string) (int, error)
	Stats(ctx context.Context, provider, model string) (*EmbeddingStats, error)
}

type pgEmbeddingRepo struct {
	db DB
}

func NewEmbeddingRepo(db DB) EmbeddingRepo {
	return &pgEmbeddingRepo{db: db}
}

// SaveEmbedding upserts on the natural key. Last writer wins; content
// identity is guarded by the hash check upstream.
func (r *pgEmbeddingRepo) SaveEmbedding(
	ctx context.Context,
	emb *BusinessEmbedding,
) (*BusinessEmbedding, error) {
	if emb == nil {
		return nil, errors.New("embedding is required")
	}
	if len(emb.Embedding) == 0 {
		return nil, errors.New("embedding vector is empty")
	}
	saved := *emb
	if saved.ID == "" {
		saved.ID = core.MustNewID().String()
	}
	saved.Dimension = len(saved.Embedding)
	now := time.Now().UTC()
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now
	_, err := r.db.Exec(ctx,
		`INSERT INTO business_embeddings
			(id, business_id, content_hash, embedding, provider, model, embedding_dimension, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (business_id, provider, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			embedding_dimension = EXCLUDED.embedding_dimension,
			updated_at = EXCLUDED.updated_at`,
		saved.ID,
		saved.BusinessID,
		saved.ContentHash,
		pgvector.NewVector(saved.Embedding),
		saved.Provider,
		saved.Model,
		saved.Dimension,
		saved.CreatedAt,
		saved.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save embedding for %q: %w", saved.BusinessID, err)
	}
	return &saved, nil
}

func (r *pgEmbeddingRepo) GetEmbedding(
	ctx context.Context,
	businessID, provider, model string,
) (*BusinessEmbedding, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, business_id, content_hash, embedding, provider, model, embedding_dimension, created_at, updated_at
		FROM business_embeddings
		WHERE business_id = $1 AND provider = $2 AND model = $3`,
		businessID, provider, model,
	)
	emb, err := scanEmbedding(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding for %q: %w", businessID, err)
	}
	return emb, nil
}

func (r *pgEmbeddingRepo) GetBusinessEmbeddings(
	ctx context.Context,
	businessID string,
) ([]*BusinessEmbedding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, business_id, content_hash, embedding, provider, model, embedding_dimension, created_at, updated_at
		FROM business_embeddings
		WHERE business_id = $1
		ORDER BY created_at DESC`,
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("list embeddings for %q: %w", businessID, err)
	}
	defer rows.Close()
	var out []*BusinessEmbedding
	for rows.Next() {
		emb, scanErr := scanEmbedding(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan embedding: %w", scanErr)
		}
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list embeddings rows: %w", err)
	}
	return out, nil
}

// FindSimilar delegates scoring to pgvector: similarity is
// 1 - (embedding <=> query) with predicates composed in SQL, never a full
// scan in application code.
func (r *pgEmbeddingRepo) FindSimilar(
	ctx context.Context,
	vector []float32,
	opts FindSimilarOptions,
) ([]SimilarBusiness, error) {
	if len(vector) == 0 {
		return nil, errors.New("query vector is empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.5
	}
	builder := strings.Builder{}
	builder.WriteString(`SELECT b.id, b.name, 1 - (be.embedding <=> $1) AS similarity
		FROM business_embeddings be
		JOIN businesses b ON be.business_id = b.id
		WHERE 1 - (be.embedding <=> $1) > $2`)
	args := []any{pgvector.NewVector(vector), threshold}
	if opts.ExcludeBusinessID != "" {
		builder.WriteString(fmt.Sprintf(" AND be.business_id != $%d", len(args)+1))
		args = append(args, opts.ExcludeBusinessID)
	}
	if opts.Category != "" {
		builder.WriteString(fmt.Sprintf(" AND b.category = $%d", len(args)+1))
		args = append(args, opts.Category)
	}
	if opts.GeoRadius != nil {
		builder.WriteString(fmt.Sprintf(
			" AND earth_distance(ll_to_earth(b.latitude, b.longitude), ll_to_earth($%d, $%d)) < $%d",
			len(args)+1, len(args)+2, len(args)+3,
		))
		args = append(args, opts.GeoRadius.Latitude, opts.GeoRadius.Longitude, opts.GeoRadius.RadiusKm*1000)
	}
	builder.WriteString(fmt.Sprintf(" ORDER BY similarity DESC LIMIT $%d", len(args)+1))
	args = append(args, limit)
	rows, err := r.db.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	defer rows.Close()
	results := make([]SimilarBusiness, 0, limit)
	for rows.Next() {
		var hit SimilarBusiness
		if err := rows.Scan(&hit.ID, &hit.Name, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity hit: %w", err)
		}
		results = append(results, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find similar rows: %w", err)
	}
	return results, nil
}

func (r *pgEmbeddingRepo) DeleteEmbedding(ctx context.Context, businessID string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM business_embeddings WHERE business_id = $1`, businessID,
	); err != nil {
		return fmt.Errorf("delete embeddings for %q: %w", businessID, err)
	}
	return nil
}

func (r *pgEmbeddingRepo) CountEmbeddings(ctx context.Context, provider, model string) (int, error) {
	query := `SELECT COUNT(*) FROM business_embeddings`
	args := []any{}
	if provider != "" {
		query += ` WHERE provider = $1`
		args = append(args, provider)
		if model != "" {
			query += ` AND model = $2`
			args = append(args, model)
		}
	}
	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

func (r *pgEmbeddingRepo) Stats(ctx context.Context, provider, model string) (*EmbeddingStats, error) {
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(ROUND(AVG(embedding_dimension)), 0), MIN(created_at), MAX(created_at)
		FROM business_embeddings
		WHERE provider = $1 AND model = $2`,
		provider, model,
	)
	stats := &EmbeddingStats{}
	var avg float64
	if err := row.Scan(&stats.TotalEmbeddings, &avg, &stats.OldestEmbedding, &stats.NewestEmbedding); err != nil {
		return nil, fmt.Errorf("embedding stats: %w", err)
	}
	stats.AverageDimension = int(avg)
	return stats, nil
}

func scanEmbedding(row pgx.Row) (*BusinessEmbedding, error) {
	emb := &BusinessEmbedding{}
	var vector pgvector.Vector
	if err := row.Scan(
		&emb.ID,
		&emb.BusinessID,
		&emb.ContentHash,
		&vector,
		&emb.Provider,
		&emb.Model,
		&emb.Dimension,
		&emb.CreatedAt,
		&emb.UpdatedAt,
	); err != nil {
		return nil, err
	}
	emb.Embedding = vector.Slice()
	return emb, nil
}
