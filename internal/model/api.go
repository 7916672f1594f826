package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeEngineError   = "ENGINE_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`

	// Optional profile fields, all usable later for report personalization.
	Name           *string `json:"name,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"` // "2006-01-02"
	GenderIdentity *string `json:"gender_identity,omitempty"`
	Preferences    *string `json:"preferences,omitempty"`
}

// LoginRequest is the request body for POST /auth/login.
// Identifier may be a username or an email address.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// AuthTokenResponse is the response for POST /auth/login.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// UpdateProfileRequest is the request body for PATCH /v1/me.
// Nil fields are left unchanged; empty strings clear the field.
type UpdateProfileRequest struct {
	Name           *string `json:"name,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"` // "2006-01-02"
	GenderIdentity *string `json:"gender_identity,omitempty"`
	Preferences    *string `json:"preferences,omitempty"`
}

// CreateFolderRequest is the request body for POST /v1/folders.
type CreateFolderRequest struct {
	Name string `json:"name"`
}

// RenameFolderRequest is the request body for PATCH /v1/folders/{folder_id}.
type RenameFolderRequest struct {
	Name string `json:"name"`
}

// MoveQuestionRequest is the request body for PATCH /v1/questions/{question_id}/folder.
// A null folder_id removes the question from its folder.
type MoveQuestionRequest struct {
	FolderID *uuid.UUID `json:"folder_id"`
}

// LikeQuestionRequest is the request body for PATCH /v1/questions/{question_id}/like.
type LikeQuestionRequest struct {
	Liked bool `json:"liked"`
}

// DiscoverMetadataRequest is the request body for POST /v1/ask/metadata.
type DiscoverMetadataRequest struct {
	Question string   `json:"question"`
	Datasets []string `json:"datasets,omitempty"`
}

// DiscoverMetadataResponse is the response for POST /v1/ask/metadata.
type DiscoverMetadataResponse struct {
	Schema string         `json:"schema"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// AskRequest is the request body for POST /v1/ask.
type AskRequest struct {
	Question     string  `json:"question"`
	Restrictions *string `json:"restrictions,omitempty"`

	// PriorSchema skips the metadata discovery phase when set (the schema
	// text from an earlier /v1/ask/metadata call).
	PriorSchema *string `json:"prior_schema,omitempty"`

	// Model overrides the default LLM model for this request.
	Model *string `json:"model,omitempty"`

	// DeepThink enables the extended pipeline with a second data pass.
	DeepThink bool `json:"deepthink,omitempty"`

	// ExcludeProfile omits the caller's profile from the report prompt.
	ExcludeProfile bool `json:"exclude_profile,omitempty"`

	// SaveToHistory persists the question and answer. Defaults to true.
	SaveToHistory *bool `json:"save_to_history,omitempty"`
}

// AskResponse is the response for POST /v1/ask.
type AskResponse struct {
	Answer         string     `json:"answer"`
	QuestionID     *uuid.UUID `json:"question_id,omitempty"`
	Model          string     `json:"model"`
	LatencySeconds float64    `json:"latency_seconds"`
	UsedTokens     *int       `json:"used_tokens,omitempty"`
}

// SimilarQuestion is one entry in the GET /v1/questions/similar response.
type SimilarQuestion struct {
	Question Question `json:"question"`
	Distance float64  `json:"distance"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Metadata string `json:"metadata"` // Bootstrapper state: "pending" or "ready".
	Uptime   int64  `json:"uptime_seconds"`
}
