package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datapilot-ai/datapilot/internal/auth"
	"github.com/datapilot-ai/datapilot/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	// Generated when absent.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Error("expected a generated request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header %q does not match context value %q", got, seen)
	}

	// Propagated when supplied by the client.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-supplied" {
		t.Errorf("got request ID %q, want client-supplied", seen)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	userID := uuid.New()
	token, _, err := jwtMgr.IssueToken(userID, "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var gotClaims *auth.Claims
	handler := authMiddleware(jwtMgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
	}))

	do := func(path, authHeader string) *httptest.ResponseRecorder {
		gotClaims = nil
		req := httptest.NewRequest("GET", path, nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token", func(t *testing.T) {
		rec := do("/v1/questions", "Bearer "+token)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotClaims == nil || gotClaims.UserID() != userID {
			t.Errorf("claims not populated with user ID")
		}
	})

	t.Run("missing header", func(t *testing.T) {
		rec := do("/v1/questions", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := do("/v1/questions", "Basic abc123")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := do("/v1/questions", "Bearer not.a.jwt")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("public paths skip auth", func(t *testing.T) {
		for _, path := range []string{"/health", "/auth/register", "/auth/login"} {
			if rec := do(path, ""); rec.Code != http.StatusOK {
				t.Errorf("%s: status = %d, want 200", path, rec.Code)
			}
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var apiErr model.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("response is not an error envelope: %v", err)
	}
	if apiErr.Error.Code != model.ErrCodeInternalError {
		t.Errorf("error code = %q, want %q", apiErr.Error.Code, model.ErrCodeInternalError)
	}
}

func TestDecodeJSONLimits(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a","extra":1}`))
		var p payload
		if err := decodeJSON(httptest.NewRecorder(), req, &p, 1024); err == nil {
			t.Error("expected error for unknown field")
		}
	})

	t.Run("over size limit", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
		var p payload
		err := decodeJSON(httptest.NewRecorder(), req, &p, 16)
		if err == nil {
			t.Fatal("expected error for oversized body")
		}
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			t.Errorf("expected MaxBytesError, got %v", err)
		}
	})
}
