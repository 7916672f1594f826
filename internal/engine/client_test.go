package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// noSleep records requested delays without waiting.
type noSleep struct {
	delays []time.Duration
}

func (s *noSleep) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestClient(t *testing.T, baseURL string, sleep func(context.Context, time.Duration) error) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL:  baseURL,
		Username: "admin",
		Password: "admin",
		Sleep:    sleep,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClientAnswerQuestion(t *testing.T) {
	var gotPath, gotQuestion string
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuestion = r.URL.Query().Get("question")
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"answer": "42 rows",
			"vql": "SELECT * FROM sales",
			"tokens": {"input_tokens": 100, "output_tokens": 50, "total_tokens": 150}
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	params := url.Values{}
	params.Set("question", "how many rows?")

	resp, err := c.AnswerDataQuestion(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/answerDataQuestion" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotQuestion != "how many rows?" {
		t.Errorf("unexpected question param: %q", gotQuestion)
	}
	if gotUser != "admin" || gotPass != "admin" {
		t.Errorf("expected basic auth admin/admin, got %s/%s", gotUser, gotPass)
	}
	if resp.Answer != "42 rows" {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if resp.VQL != "SELECT * FROM sales" {
		t.Errorf("unexpected vql: %q", resp.VQL)
	}
	if resp.Tokens == nil || resp.Tokens.TotalTokens != 150 {
		t.Errorf("unexpected tokens: %+v", resp.Tokens)
	}
}

func TestClientRetriesConnectionFailure(t *testing.T) {
	// Reserve a port, then close the listener so every attempt is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	sleep := &noSleep{}
	c := newTestClient(t, "http://"+addr, sleep.sleep)

	_, err = c.AnswerMetadataQuestion(context.Background(), url.Values{})
	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableError, got %v", err)
	}
	if unreachable.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", unreachable.Attempts)
	}

	// Two sleeps between three attempts, delays strictly increasing by the
	// backoff factor.
	if len(sleep.delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(sleep.delays))
	}
	if sleep.delays[0] != 1*time.Second {
		t.Errorf("expected first delay 1s, got %v", sleep.delays[0])
	}
	if sleep.delays[1] != 1500*time.Millisecond {
		t.Errorf("expected second delay 1.5s, got %v", sleep.delays[1])
	}
}

// flakyTransport fails the first n round trips at the transport level, then
// delegates to the real transport.
type flakyTransport struct {
	failures int
	calls    int
	inner    http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.inner.RoundTrip(req)
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer": "ok"}`))
	}))
	defer server.Close()

	flaky := &flakyTransport{failures: 2, inner: http.DefaultTransport}
	sleep := &noSleep{}
	c, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Transport: flaky},
		Sleep:      sleep.sleep,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.AnswerDataQuestion(context.Background(), url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "ok" {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 round trips, got %d", flaky.calls)
	}
}

func TestClientDoesNotRetryRequestBuildError(t *testing.T) {
	// A control character in the base URL makes request construction fail
	// before anything touches the network. That is not a transport fault, so
	// there must be exactly one attempt and no unreachable verdict.
	sleep := &noSleep{}
	c := newTestClient(t, "http://127.0.0.1:0/\x01", sleep.sleep)

	_, err := c.AnswerDataQuestion(context.Background(), url.Values{})
	if err == nil {
		t.Fatal("expected request construction to fail")
	}
	if IsUnreachable(err) {
		t.Errorf("request build failure misclassified as unreachable: %v", err)
	}
	if len(sleep.delays) != 0 {
		t.Errorf("expected no retries, got %d backoff sleeps", len(sleep.delays))
	}
}

func TestClientDoesNotRetryRemoteError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	sleep := &noSleep{}
	c := newTestClient(t, server.URL, sleep.sleep)

	_, err := c.AnswerDataQuestion(context.Background(), url.Values{})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.StatusCode != http.StatusInternalServerError {
		t.Errorf("unexpected status: %d", remote.StatusCode)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls)
	}
	if len(sleep.delays) != 0 {
		t.Errorf("expected no backoff sleeps, got %d", len(sleep.delays))
	}
}

func TestClientDoesNotRetryFormatError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`["not", "an", "object"]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	_, err := c.AnswerMetadataQuestion(context.Background(), url.Values{})
	if !IsFormat(err) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls)
	}
}

func TestClientContextCancellation(t *testing.T) {
	t.Run("canceled before request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"answer": "ok"}`))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newTestClient(t, server.URL, nil)
		_, err := c.AnswerDataQuestion(ctx, url.Values{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("canceled during backoff", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		ctx, cancel := context.WithCancel(context.Background())
		c := newTestClient(t, "http://"+addr, func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		})

		_, err = c.AnswerDataQuestion(ctx, url.Values{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestClientLoadMetadata(t *testing.T) {
	t.Run("204 means current", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, nil)
		load, err := c.LoadMetadata(context.Background(), url.Values{})
		if err != nil {
			t.Fatal(err)
		}
		if !load.Current {
			t.Error("expected Current for 204 response")
		}
	})

	t.Run("json body means loaded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/getMetadata" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"views": 12}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, nil)
		load, err := c.LoadMetadata(context.Background(), url.Values{})
		if err != nil {
			t.Fatal(err)
		}
		if load.Current {
			t.Error("expected loaded, got current")
		}
		if load.Raw["views"] != float64(12) {
			t.Errorf("unexpected body: %v", load.Raw)
		}
	})

	t.Run("empty body is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("  "))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, nil)
		_, err := c.LoadMetadata(context.Background(), url.Values{})
		if !IsFormat(err) {
			t.Errorf("expected FormatError for empty body, got %v", err)
		}
	})
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	if err == nil {
		t.Error("expected error for empty BaseURL")
	}
}
