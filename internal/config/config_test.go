package config

import (
	"testing"
	"time"
)

func TestEnvStr(t *testing.T) {
	t.Setenv("TEST_STR", "hello")
	if v := envStr("TEST_STR", "fallback"); v != "hello" {
		t.Fatalf("expected hello, got %s", v)
	}
	if v := envStr("TEST_STR_MISSING", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %s", v)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if v := envInt("TEST_INT_MISSING", 99); v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}

	// Unparseable values fall back to the default.
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	if envBool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	if !envBool("TEST_BOOL_MISSING", true) {
		t.Fatal("expected fallback true")
	}
	t.Setenv("TEST_BOOL_BAD", "yep")
	if !envBool("TEST_BOOL_BAD", true) {
		t.Fatal("expected fallback true for unparseable value")
	}
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.5")
	if v := envFloat("TEST_FLOAT", 0); v != 0.5 {
		t.Fatalf("expected 0.5, got %v", v)
	}
	if v := envFloat("TEST_FLOAT_MISSING", 1.5); v != 1.5 {
		t.Fatalf("expected fallback 1.5, got %v", v)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	if v := envDuration("TEST_DUR", 0); v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	if v := envDuration("TEST_DUR_BAD", time.Minute); v != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", v)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", "sales, marketing ,hr")
	got := envList("TEST_LIST", nil)
	if len(got) != 3 || got[0] != "sales" || got[1] != "marketing" || got[2] != "hr" {
		t.Fatalf("unexpected list: %v", got)
	}
	if v := envList("TEST_LIST_MISSING", []string{"default"}); len(v) != 1 || v[0] != "default" {
		t.Fatalf("expected default list, got %v", v)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.AIMaxRetries != 3 {
		t.Fatalf("expected default 3 retries, got %d", cfg.AIMaxRetries)
	}
	if len(cfg.AIDatabases) == 0 {
		t.Fatal("expected default AI databases")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing database url", func(t *testing.T) {
		cfg := base
		cfg.DatabaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty DATABASE_URL")
		}
	})

	t.Run("missing ai base url", func(t *testing.T) {
		cfg := base
		cfg.AIBaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty AI base URL")
		}
	})

	t.Run("non-positive retries", func(t *testing.T) {
		cfg := base
		cfg.AIMaxRetries = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for zero retries")
		}
	})

	t.Run("no ai databases", func(t *testing.T) {
		cfg := base
		cfg.AIDatabases = nil
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty database list")
		}
	})

	t.Run("bad rate limit values", func(t *testing.T) {
		cfg := base
		cfg.RateLimitEnabled = true
		cfg.AskRateRPS = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for zero ask rate")
		}
	})
}
