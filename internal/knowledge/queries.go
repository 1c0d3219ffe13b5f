package knowledge

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx used by Queries, satisfied by *pgxpool.Pool
// and pgx.Tx alike.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the pgx-backed implementation of Querier.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries over the given connection or pool.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// UpsertPassageParams are the inputs for UpsertPassage.
type UpsertPassageParams struct {
	ID        string
	Content   string
	Source    string
	Embedding *pgvector.Vector
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

const upsertPassage = `
INSERT INTO passages (id, content, source, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    source = EXCLUDED.source,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata
`

// UpsertPassage inserts or updates a passage.
func (q *Queries) UpsertPassage(ctx context.Context, arg UpsertPassageParams) error {
	_, err := q.db.Exec(ctx, upsertPassage,
		arg.ID, arg.Content, arg.Source, arg.Embedding, arg.Metadata, arg.CreatedAt)
	return err
}

// SearchPassagesParams are the inputs for SearchPassages.
type SearchPassagesParams struct {
	Embedding *pgvector.Vector
	MinScore  float64
	Limit     int32
}

// SearchPassagesRow is one vector search hit.
type SearchPassagesRow struct {
	ID        string
	Content   string
	Source    string
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
	Score     float64
}

const searchPassages = `
SELECT id, content, source, metadata, created_at,
       1 - (embedding <=> $1) AS score
FROM passages
WHERE 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1
LIMIT $3
`

// SearchPassages runs a cosine-distance vector search, best matches
// first.
func (q *Queries) SearchPassages(ctx context.Context, arg SearchPassagesParams) ([]SearchPassagesRow, error) {
	rows, err := q.db.Query(ctx, searchPassages, arg.Embedding, arg.MinScore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SearchPassagesRow
	for rows.Next() {
		var row SearchPassagesRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Source, &row.Metadata, &row.CreatedAt, &row.Score); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

const countPassages = `SELECT count(*) FROM passages`

// CountPassages returns the number of stored passages.
func (q *Queries) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countPassages).Scan(&count)
	return count, err
}

const deletePassage = `DELETE FROM passages WHERE id = $1`

// DeletePassage removes a passage by ID.
func (q *Queries) DeletePassage(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deletePassage, id)
	return err
}
