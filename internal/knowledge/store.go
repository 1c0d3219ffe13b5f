// Package knowledge manages the vetted support content that grounds
// chat responses, stored in PostgreSQL with pgvector embeddings.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations Store needs. Defined by the
// consumer so tests can substitute a mock for the pgx implementation.
type Querier interface {
	UpsertPassage(ctx context.Context, arg UpsertPassageParams) error
	SearchPassages(ctx context.Context, arg SearchPassagesParams) ([]SearchPassagesRow, error)
	CountPassages(ctx context.Context) (int64, error)
	DeletePassage(ctx context.Context, id string) error
}

// Store manages knowledge passages with vector search. Content is
// embedded on write; search embeds the query and compares by cosine
// similarity in the database.
//
// Safe for concurrent use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds and upserts a passage.
func (s *Store) Add(ctx context.Context, p Passage) error {
	if p.ID == "" {
		return fmt.Errorf("passage ID is required")
	}
	if p.Content == "" {
		return fmt.Errorf("passage %q has no content", p.ID)
	}

	vec, err := embedText(ctx, s.embedder, p.Content)
	if err != nil {
		return fmt.Errorf("embedding passage %q: %w", p.ID, err)
	}
	embedding := pgvector.NewVector(vec)

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encoding passage metadata: %w", err)
	}

	err = s.queries.UpsertPassage(ctx, UpsertPassageParams{
		ID:        p.ID,
		Content:   p.Content,
		Source:    p.Source,
		Embedding: &embedding,
		Metadata:  metadata,
		CreatedAt: pgtype.Timestamptz{Time: p.CreatedAt, Valid: !p.CreatedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upserting passage %q: %w", p.ID, err)
	}

	s.logger.Debug("passage added", "id", p.ID, "content_length", len(p.Content))
	return nil
}

// Search returns the passages most relevant to the query, best first.
// A bounded timeout keeps slow vector scans from holding up requests.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec, err := embedText(queryCtx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	embedding := pgvector.NewVector(vec)

	rows, err := s.queries.SearchPassages(queryCtx, SearchPassagesParams{
		Embedding: &embedding,
		MinScore:  cfg.minScore,
		Limit:     int32(cfg.topK),
	})
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				s.logger.Warn("skipping passage with bad metadata", "id", row.ID, "error", err)
				continue
			}
		}
		results = append(results, Result{
			Passage: Passage{
				ID:        row.ID,
				Content:   row.Content,
				Source:    row.Source,
				Metadata:  metadata,
				CreatedAt: row.CreatedAt.Time,
			},
			Score: row.Score,
		})
	}

	s.logger.Debug("knowledge search", "query_length", len(query), "results", len(results))
	return results, nil
}

// Count returns the number of stored passages.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.queries.CountPassages(ctx)
}

// Delete removes a passage by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.queries.DeletePassage(ctx, id); err != nil {
		return fmt.Errorf("deleting passage %q: %w", id, err)
	}
	return nil
}

// embedText embeds a single text through the store's embedder.
func embedText(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
