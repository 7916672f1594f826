package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/datapilot-ai/datapilot/internal/auth"
	"github.com/datapilot-ai/datapilot/internal/model"
	"github.com/datapilot-ai/datapilot/internal/storage"
)

// dateOfBirthFormat is the wire format for the date_of_birth field.
const dateOfBirthFormat = "2006-01-02"

// HandleRegister handles POST /auth/register.
// Creates an account and returns a token immediately, so registration
// doubles as the first login.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateUsername(req.Username); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := model.ValidateEmail(req.Email); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := model.ValidateProfileFields(req.Name, req.GenderIdentity, req.Preferences); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash password", err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), model.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		Name:           req.Name,
		DateOfBirth:    dob,
		GenderIdentity: req.GenderIdentity,
		Preferences:    req.Preferences,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "username or email already taken")
			return
		}
		h.writeInternalError(w, r, "failed to create user", err)
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user.ID, user.Username)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	h.logger.Info("user registered", "user_id", user.ID, "username", user.Username)

	writeJSON(w, r, http.StatusCreated, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// HandleLogin handles POST /auth/login. The identifier may be a username or
// an email address.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "identifier and password are required")
		return
	}

	user, err := h.db.GetUserByIdentifier(r.Context(), req.Identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			auth.DummyVerify()
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.writeInternalError(w, r, "failed to look up user", err)
		return
	}

	valid, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user.ID, user.Username)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// HandleGetMe handles GET /v1/me.
func (h *Handlers) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	user, err := h.db.GetUser(r.Context(), claims.UserID())
	if err != nil {
		h.writeStorageError(w, r, "user", err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// HandleUpdateMe handles PATCH /v1/me.
// Nil fields are left unchanged; empty strings clear the field.
func (h *Handlers) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.UpdateProfileRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateProfileFields(req.Name, req.GenderIdentity, req.Preferences); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	user, err := h.db.GetUser(r.Context(), claims.UserID())
	if err != nil {
		h.writeStorageError(w, r, "user", err)
		return
	}

	name := patchField(user.Name, req.Name)
	genderIdentity := patchField(user.GenderIdentity, req.GenderIdentity)
	preferences := patchField(user.Preferences, req.Preferences)

	dateOfBirth := user.DateOfBirth
	if req.DateOfBirth != nil {
		if *req.DateOfBirth == "" {
			dateOfBirth = nil
		} else {
			dob, err := parseDateOfBirth(req.DateOfBirth)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
				return
			}
			dateOfBirth = dob
		}
	}

	updated, err := h.db.UpdateUserProfile(r.Context(), user.ID, name, dateOfBirth, genderIdentity, preferences)
	if err != nil {
		h.writeStorageError(w, r, "user", err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// patchField applies PATCH semantics to one optional text field: nil leaves
// the current value, empty string clears it.
func patchField(current, patch *string) *string {
	if patch == nil {
		return current
	}
	if *patch == "" {
		return nil
	}
	return patch
}

func parseDateOfBirth(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateOfBirthFormat, *s)
	if err != nil {
		return nil, errors.New("invalid date_of_birth: expected YYYY-MM-DD")
	}
	return &t, nil
}
