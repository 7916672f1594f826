// Package suggest finds a user's past questions semantically close to a new
// query, powering suggested questions in the UI.
package suggest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/singleflight"

	"github.com/datapilot-ai/datapilot/internal/service/embedding"
	"github.com/datapilot-ai/datapilot/internal/storage"
)

// Service embeds query text and searches the question history by vector
// distance.
type Service struct {
	db       *storage.DB
	provider embedding.Provider
	logger   *slog.Logger

	// embedGroup deduplicates concurrent embedding requests for identical
	// text, e.g. a user hammering the suggestion endpoint while typing.
	embedGroup singleflight.Group
}

// New creates a suggestion service.
func New(db *storage.DB, provider embedding.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, provider: provider, logger: logger}
}

// EmbedQuestion embeds a question title for persistence alongside a new
// question record. Returns nil (not an error) when the provider fails or
// yields a zero vector, so a missing embedding never blocks saving the
// question itself.
func (s *Service) EmbedQuestion(ctx context.Context, title string) *pgvector.Vector {
	vec, err := s.embed(ctx, title)
	if err != nil {
		s.logger.Warn("suggest: embed question failed, saving without embedding", "error", err)
		return nil
	}
	if isZeroVector(vec) {
		return nil
	}
	return &vec
}

// Similar returns the user's past questions nearest to the query text. With
// a no-op embedding provider the search is disabled and returns nothing.
func (s *Service) Similar(ctx context.Context, userID uuid.UUID, query string, limit int) ([]storage.SimilarQuestion, error) {
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("suggest: embed query: %w", err)
	}
	if isZeroVector(vec) {
		return nil, nil
	}
	return s.db.SimilarQuestions(ctx, userID, vec, limit)
}

// isZeroVector reports whether every component is zero. Cosine distance is
// undefined against a zero vector, so one must never reach the database.
func isZeroVector(v pgvector.Vector) bool {
	for _, f := range v.Slice() {
		if f != 0 {
			return false
		}
	}
	return true
}

// embed generates one embedding, collapsing concurrent calls for the same
// text into a single provider request. Uses context.Background() inside the
// flight because singleflight reuses the first caller's context; if that
// caller cancels, all waiters would get a spurious error.
func (s *Service) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if err := ctx.Err(); err != nil {
		return pgvector.Vector{}, err
	}
	result, err, _ := s.embedGroup.Do(text, func() (any, error) {
		return s.provider.Embed(context.Background(), text)
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return result.(pgvector.Vector), nil
}
