package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/datapilot-ai/datapilot/internal/model"
)

const questionColumns = `id, user_id, title, answer, restrictions, latency_seconds,
	 used_tokens, model, liked, folder_id, asked_at`

func scanQuestion(row pgx.Row) (model.Question, error) {
	var q model.Question
	err := row.Scan(
		&q.ID, &q.UserID, &q.Title, &q.Answer, &q.Restrictions, &q.LatencySeconds,
		&q.UsedTokens, &q.Model, &q.Liked, &q.FolderID, &q.AskedAt,
	)
	return q, err
}

// CreateQuestion inserts a question record into a user's history.
func (db *DB) CreateQuestion(ctx context.Context, q model.Question) (model.Question, error) {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.AskedAt.IsZero() {
		q.AskedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO questions (id, user_id, title, answer, restrictions, latency_seconds,
		 used_tokens, model, liked, folder_id, embedding, asked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		q.ID, q.UserID, q.Title, q.Answer, q.Restrictions, q.LatencySeconds,
		q.UsedTokens, q.Model, q.Liked, q.FolderID, q.Embedding, q.AskedAt,
	)
	if err != nil {
		return model.Question{}, fmt.Errorf("storage: create question: %w", err)
	}
	return q, nil
}

// GetQuestion retrieves one question scoped to its owner.
func (db *DB) GetQuestion(ctx context.Context, userID, questionID uuid.UUID) (model.Question, error) {
	q, err := scanQuestion(db.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1 AND user_id = $2`,
		questionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Question{}, ErrNotFound
		}
		return model.Question{}, fmt.Errorf("storage: get question: %w", err)
	}
	return q, nil
}

// ListQuestions returns a user's question history, newest first.
func (db *DB) ListQuestions(ctx context.Context, userID uuid.UUID) ([]model.Question, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE user_id = $1 ORDER BY asked_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteQuestion deletes a question. Scoped to the owner.
func (db *DB) DeleteQuestion(ctx context.Context, userID, questionID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM questions WHERE id = $1 AND user_id = $2`, questionID, userID)
	if err != nil {
		return fmt.Errorf("storage: delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQuestionLiked sets the like flag on a question. Scoped to the owner.
func (db *DB) SetQuestionLiked(ctx context.Context, userID, questionID uuid.UUID, liked bool) (model.Question, error) {
	q, err := scanQuestion(db.pool.QueryRow(ctx,
		`UPDATE questions SET liked = $1 WHERE id = $2 AND user_id = $3
		 RETURNING `+questionColumns,
		liked, questionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Question{}, ErrNotFound
		}
		return model.Question{}, fmt.Errorf("storage: set question liked: %w", err)
	}
	return q, nil
}

// MoveQuestionToFolder assigns a question to a folder, or removes it from
// its folder when folderID is nil. The target folder must belong to the same
// user; the foreign key plus the ownership check below enforce that.
func (db *DB) MoveQuestionToFolder(ctx context.Context, userID, questionID uuid.UUID, folderID *uuid.UUID) (model.Question, error) {
	if folderID != nil {
		var ok bool
		err := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM folders WHERE id = $1 AND user_id = $2)`,
			*folderID, userID).Scan(&ok)
		if err != nil {
			return model.Question{}, fmt.Errorf("storage: check folder ownership: %w", err)
		}
		if !ok {
			return model.Question{}, ErrNotFound
		}
	}

	q, err := scanQuestion(db.pool.QueryRow(ctx,
		`UPDATE questions SET folder_id = $1 WHERE id = $2 AND user_id = $3
		 RETURNING `+questionColumns,
		folderID, questionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Question{}, ErrNotFound
		}
		return model.Question{}, fmt.Errorf("storage: move question: %w", err)
	}
	return q, nil
}

// SimilarQuestion pairs a past question with its cosine distance to a query
// embedding.
type SimilarQuestion struct {
	Question model.Question
	Distance float64
}

// SimilarQuestions returns the user's past questions nearest to the query
// embedding by cosine distance. Questions without an embedding are excluded.
func (db *DB) SimilarQuestions(ctx context.Context, userID uuid.UUID, query pgvector.Vector, limit int) ([]SimilarQuestion, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+questionColumns+`, embedding <=> $2 AS distance
		 FROM questions
		 WHERE user_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: similar questions: %w", err)
	}
	defer rows.Close()

	var out []SimilarQuestion
	for rows.Next() {
		var s SimilarQuestion
		q := &s.Question
		if err := rows.Scan(
			&q.ID, &q.UserID, &q.Title, &q.Answer, &q.Restrictions, &q.LatencySeconds,
			&q.UsedTokens, &q.Model, &q.Liked, &q.FolderID, &q.AskedAt, &s.Distance,
		); err != nil {
			return nil, fmt.Errorf("storage: scan similar question: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
