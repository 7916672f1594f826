package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Field length limits for question records. A question title is the raw user
// question; the answer is a full markdown report, so its bound is generous.
const (
	MaxQuestionTitleLen = 4000
	MaxAnswerLen        = 256 * 1024 // 256 KB
	MaxRestrictionsLen  = 4000
	MaxFolderNameLen    = 120
)

// Question is one entry in a user's question history: the question asked,
// the generated report, and the run metrics recorded alongside it.
type Question struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Title        string  `json:"title"`
	Answer       string  `json:"answer"`
	Restrictions *string `json:"restrictions,omitempty"`

	// Run metrics from the decision engine.
	LatencySeconds *float64 `json:"latency_seconds,omitempty"`
	UsedTokens     *int     `json:"used_tokens,omitempty"`
	Model          *string  `json:"model,omitempty"`

	Liked    bool       `json:"liked"`
	FolderID *uuid.UUID `json:"folder_id,omitempty"`

	// Title embedding used for similar-question lookup. Nil when the
	// embedding provider was unavailable at save time.
	Embedding *pgvector.Vector `json:"-"`

	AskedAt time.Time `json:"asked_at"`
}

// Folder groups questions in a user's history.
type Folder struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateQuestion checks per-field length limits on a question record
// before it is persisted.
func ValidateQuestion(q Question) error {
	if len(q.Title) == 0 {
		return fmt.Errorf("title must not be empty")
	}
	if len(q.Title) > MaxQuestionTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxQuestionTitleLen)
	}
	if len(q.Answer) > MaxAnswerLen {
		return fmt.Errorf("answer exceeds maximum length of %d bytes", MaxAnswerLen)
	}
	if q.Restrictions != nil && len(*q.Restrictions) > MaxRestrictionsLen {
		return fmt.Errorf("restrictions exceeds maximum length of %d characters", MaxRestrictionsLen)
	}
	return nil
}

// ValidateFolderName checks a folder name on create and rename.
func ValidateFolderName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("folder name must not be empty")
	}
	if len(name) > MaxFolderNameLen {
		return fmt.Errorf("folder name must be at most %d characters", MaxFolderNameLen)
	}
	return nil
}
