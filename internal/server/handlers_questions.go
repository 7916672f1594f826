package server

import (
	"net/http"
	"strings"

	"github.com/datapilot-ai/datapilot/internal/model"
)

// HandleListQuestions handles GET /v1/questions.
func (h *Handlers) HandleListQuestions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	questions, err := h.db.ListQuestions(r.Context(), claims.UserID())
	if err != nil {
		h.writeInternalError(w, r, "failed to list questions", err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, r, http.StatusOK, questions)
}

// HandleGetQuestion handles GET /v1/questions/{question_id}.
func (h *Handlers) HandleGetQuestion(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	questionID, err := pathUUID(r, "question_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	question, err := h.db.GetQuestion(r.Context(), claims.UserID(), questionID)
	if err != nil {
		h.writeStorageError(w, r, "question", err)
		return
	}
	writeJSON(w, r, http.StatusOK, question)
}

// HandleDeleteQuestion handles DELETE /v1/questions/{question_id}.
func (h *Handlers) HandleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	questionID, err := pathUUID(r, "question_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteQuestion(r.Context(), claims.UserID(), questionID); err != nil {
		h.writeStorageError(w, r, "question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLikeQuestion handles PATCH /v1/questions/{question_id}/like.
func (h *Handlers) HandleLikeQuestion(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	questionID, err := pathUUID(r, "question_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.LikeQuestionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	question, err := h.db.SetQuestionLiked(r.Context(), claims.UserID(), questionID, req.Liked)
	if err != nil {
		h.writeStorageError(w, r, "question", err)
		return
	}
	writeJSON(w, r, http.StatusOK, question)
}

// HandleMoveQuestion handles PATCH /v1/questions/{question_id}/folder.
// A null folder_id removes the question from its folder.
func (h *Handlers) HandleMoveQuestion(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	questionID, err := pathUUID(r, "question_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.MoveQuestionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	question, err := h.db.MoveQuestionToFolder(r.Context(), claims.UserID(), questionID, req.FolderID)
	if err != nil {
		h.writeStorageError(w, r, "question or folder", err)
		return
	}
	writeJSON(w, r, http.StatusOK, question)
}

// HandleSimilarQuestions handles GET /v1/questions/similar?q=...&limit=N.
// Returns the caller's past questions semantically closest to q.
func (h *Handlers) HandleSimilarQuestions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "q is required")
		return
	}
	limit := queryLimit(r, 5)

	if h.suggestSvc == nil {
		writeJSON(w, r, http.StatusOK, []model.SimilarQuestion{})
		return
	}

	matches, err := h.suggestSvc.Similar(r.Context(), claims.UserID(), query, limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to search similar questions", err)
		return
	}

	out := make([]model.SimilarQuestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, model.SimilarQuestion{Question: m.Question, Distance: m.Distance})
	}
	writeJSON(w, r, http.StatusOK, out)
}
