package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/datapilot-ai/datapilot/internal/engine"
	"github.com/datapilot-ai/datapilot/internal/model"
)

// HandleDiscoverMetadata handles POST /v1/ask/metadata.
// Runs only the metadata discovery phase so the client can show (and let the
// user refine) the schema before committing to a full run.
func (h *Handlers) HandleDiscoverMetadata(w http.ResponseWriter, r *http.Request) {
	var req model.DiscoverMetadataRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "question is required")
		return
	}
	if len(req.Question) > model.MaxQuestionTitleLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "question is too long")
		return
	}

	result, err := h.engine.DiscoverMetadata(r.Context(), req.Question, req.Datasets)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.DiscoverMetadataResponse{
		Schema: result.Schema,
		Raw:    result.Raw,
	})
}

// HandleAsk handles POST /v1/ask.
// Runs the full pipeline and, unless disabled, records the question and
// report in the caller's history.
func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.AskRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "question is required")
		return
	}
	if len(req.Question) > model.MaxQuestionTitleLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "question is too long")
		return
	}
	if req.Restrictions != nil && len(*req.Restrictions) > model.MaxRestrictionsLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "restrictions is too long")
		return
	}

	// Restrictions narrow metadata discovery to the named datasets or tables;
	// the data and report phases receive the question as asked.
	opts := engine.AnswerOptions{
		DeepThink: req.DeepThink,
		Datasets:  splitRestrictions(req.Restrictions),
	}
	if req.PriorSchema != nil {
		opts.PriorSchema = *req.PriorSchema
	}
	if req.Model != nil {
		opts.Model = *req.Model
	}
	if !req.ExcludeProfile {
		user, err := h.db.GetUser(r.Context(), claims.UserID())
		if err != nil {
			h.writeStorageError(w, r, "user", err)
			return
		}
		opts.Profile = profileFromUser(user)
	}

	result, err := h.engine.Answer(r.Context(), req.Question, opts)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := model.AskResponse{
		Answer:         result.Report,
		Model:          result.Model,
		LatencySeconds: result.Latency.Seconds(),
		UsedTokens:     result.UsedTokens,
	}

	if req.SaveToHistory == nil || *req.SaveToHistory {
		if saved := h.saveQuestion(r, req, result); saved != nil {
			resp.QuestionID = &saved.ID
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// saveQuestion records a completed run in the caller's history. Failures are
// logged, not surfaced: the report was already produced and losing it over a
// history write would be worse.
func (h *Handlers) saveQuestion(r *http.Request, req model.AskRequest, result *engine.Result) *model.Question {
	claims := ClaimsFromContext(r.Context())

	latency := result.Latency.Seconds()
	q := model.Question{
		UserID:         claims.UserID(),
		Title:          req.Question,
		Answer:         result.Report,
		Restrictions:   req.Restrictions,
		LatencySeconds: &latency,
		UsedTokens:     result.UsedTokens,
		Model:          &result.Model,
	}
	if h.suggestSvc != nil {
		q.Embedding = h.suggestSvc.EmbedQuestion(r.Context(), req.Question)
	}

	if err := model.ValidateQuestion(q); err != nil {
		h.logger.Warn("skipping history save, question record invalid", "error", err)
		return nil
	}
	saved, err := h.db.CreateQuestion(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to save question to history",
			"error", err, "request_id", RequestIDFromContext(r.Context()))
		return nil
	}
	return &saved
}

// writeEngineError maps decision engine errors to API responses. Upstream
// faults surface as ENGINE_ERROR with a gateway status, never a bare 500.
func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := RequestIDFromContext(r.Context())
	switch {
	case engine.IsInvalidModel(err):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, engine.ErrEmptySchema):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound,
			"no relevant metadata found for this question")
	case engine.IsUnreachable(err):
		h.logger.Error("ai service unreachable", "error", err, "request_id", reqID)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeEngineError,
			"ai service is unreachable, try again later")
	case engine.IsRemote(err):
		h.logger.Error("ai service returned error", "error", err, "request_id", reqID)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeEngineError,
			"ai service rejected the request")
	case engine.IsFormat(err):
		h.logger.Error("ai service response malformed", "error", err, "request_id", reqID)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeEngineError,
			"ai service returned an unreadable response")
	default:
		h.writeInternalError(w, r, "question pipeline failed", err)
	}
}

// profileFromUser builds the prompt personalization profile from the account
// record. Returns nil when no profile field is set, which omits the profile
// block from the prompt entirely.
func profileFromUser(u model.User) *engine.Profile {
	p := engine.Profile{}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = u.DateOfBirth.Format(dateOfBirthFormat)
	}
	if u.GenderIdentity != nil {
		p.GenderIdentity = *u.GenderIdentity
	}
	if u.Preferences != nil {
		p.Preferences = *u.Preferences
	}
	if p == (engine.Profile{}) {
		return nil
	}
	return &p
}

// splitRestrictions parses a comma-separated dataset list.
func splitRestrictions(restrictions *string) []string {
	if restrictions == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(*restrictions, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
