// Package engine implements the multi-phase decision engine that answers
// natural-language questions against a data virtualization platform through
// its AI SDK: metadata discovery, data retrieval, an optional deep-dive pass,
// and report synthesis.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default transport settings for AI service calls.
const (
	defaultTimeout         = 60 * time.Second
	defaultMetadataTimeout = 300 * time.Second
	defaultMaxRetries      = 3
	defaultInitialDelay    = 1 * time.Second
	defaultBackoffFactor   = 1.5
)

// ClientConfig holds the settings needed to construct a Client.
type ClientConfig struct {
	// BaseURL is the root URL of the AI service (e.g. "http://localhost:8008").
	BaseURL string

	// Username and Password are sent as HTTP basic auth on every request.
	Username string
	Password string

	// Timeout bounds each individual question attempt. Defaults to 60s.
	Timeout time.Duration

	// MetadataTimeout bounds each getMetadata attempt, which can be slow
	// while the vector store is being populated. Defaults to 300s.
	MetadataTimeout time.Duration

	// MaxRetries is the total number of attempts on connection failure or
	// timeout. Defaults to 3. Non-2xx responses are never retried.
	MaxRetries int

	// InitialDelay and BackoffFactor control the exponential backoff
	// between attempts. Defaults: 1s, 1.5.
	InitialDelay  time.Duration
	BackoffFactor float64

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Sleep waits between retry attempts. Tests inject a fake; nil uses a
	// context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is the HTTP transport for the AI service's question and metadata
// endpoints. All methods are safe for concurrent use.
type Client struct {
	baseURL         string
	username        string
	password        string
	client          *http.Client
	timeout         time.Duration
	metadataTimeout time.Duration
	maxRetries      int
	initialDelay    time.Duration
	backoffFactor   float64
	sleep           func(ctx context.Context, d time.Duration) error
	logger          *slog.Logger
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("engine: BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MetadataTimeout == 0 {
		cfg.MetadataTimeout = defaultMetadataTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		username:        cfg.Username,
		password:        cfg.Password,
		client:          httpClient,
		timeout:         cfg.Timeout,
		metadataTimeout: cfg.MetadataTimeout,
		maxRetries:      cfg.MaxRetries,
		initialDelay:    cfg.InitialDelay,
		backoffFactor:   cfg.BackoffFactor,
		sleep:           cfg.Sleep,
		logger:          logger,
	}, nil
}

// TokenUsage is the token accounting the AI service reports with a phase
// response, when it reports one at all.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// PhaseResponse is one decoded answer from a question endpoint.
type PhaseResponse struct {
	// Answer is the natural-language answer text. May be empty.
	Answer string

	// VQL is the query the AI service generated and executed, if any.
	VQL string

	// Tokens is the upstream's token accounting, nil when not reported.
	Tokens *TokenUsage

	// Raw is the full decoded response body.
	Raw map[string]any
}

// MetadataLoad is the outcome of one successful getMetadata call.
type MetadataLoad struct {
	// Current is true when the upstream answered 204 No Content, meaning
	// its vector store already holds the latest metadata.
	Current bool

	// Raw is the decoded response body. Nil when Current.
	Raw map[string]any
}

// AnswerMetadataQuestion asks the LLM-only endpoint. It performs no VQL
// execution, so it serves both schema discovery and report synthesis.
func (c *Client) AnswerMetadataQuestion(ctx context.Context, params url.Values) (*PhaseResponse, error) {
	return c.question(ctx, "answerMetadataQuestion", params)
}

// AnswerDataQuestion asks the VQL-generating endpoint: the AI service builds
// a query, executes it, and returns the raw data answer.
func (c *Client) AnswerDataQuestion(ctx context.Context, params url.Values) (*PhaseResponse, error) {
	return c.question(ctx, "answerDataQuestion", params)
}

func (c *Client) question(ctx context.Context, endpoint string, params url.Values) (*PhaseResponse, error) {
	delay := c.initialDelay
	for attempt := 1; ; attempt++ {
		raw, _, err := c.attempt(ctx, endpoint, params, c.timeout)
		if err == nil {
			return decodePhase(raw), nil
		}
		if !retryable(ctx, err) {
			return nil, err
		}
		if attempt >= c.maxRetries {
			return nil, &UnreachableError{Attempts: attempt, Err: err}
		}
		c.logger.Warn("engine: upstream attempt failed, retrying",
			"endpoint", endpoint, "attempt", attempt, "delay", delay, "error", err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
		delay = time.Duration(float64(delay) * c.backoffFactor)
	}
}

// LoadMetadata performs a single getMetadata attempt with the long metadata
// timeout. Retrying is the caller's concern; the bootstrapper has its own
// indefinite retry loop.
func (c *Client) LoadMetadata(ctx context.Context, params url.Values) (*MetadataLoad, error) {
	raw, status, err := c.attempt(ctx, "getMetadata", params, c.metadataTimeout)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return &MetadataLoad{Current: true}, nil
	}
	return &MetadataLoad{Raw: raw}, nil
}

// attempt performs one GET request. A nil error means a 2xx response whose
// body decoded to a JSON object (or a 204 with nil body).
func (c *Client) attempt(ctx context.Context, endpoint string, params url.Values, timeout time.Duration) (map[string]any, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("engine: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// The parent context's cancellation is terminal; a per-attempt
		// timeout or connection failure is retryable.
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("engine: request canceled: %w", ctx.Err())
		}
		return nil, 0, &transientError{err: fmt.Errorf("engine: GET /%s: %w", endpoint, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("engine: request canceled: %w", ctx.Err())
		}
		return nil, 0, &transientError{err: fmt.Errorf("engine: read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &RemoteError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, nil
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, resp.StatusCode, &FormatError{Detail: "empty response body"}
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, resp.StatusCode, &FormatError{Detail: "response is not a JSON object", Err: err}
	}
	return raw, resp.StatusCode, nil
}

// transientError marks a transport-level fault (connection failure, reset
// mid-body, per-attempt timeout) that warrants another attempt. Anything
// else, such as an upstream verdict or a request construction failure, is
// returned as-is and never retried.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *transientError
	return errors.As(err, &te)
}

func decodePhase(raw map[string]any) *PhaseResponse {
	p := &PhaseResponse{Raw: raw}
	if s, ok := raw["answer"].(string); ok {
		p.Answer = s
	}
	if s, ok := raw["vql"].(string); ok {
		p.VQL = s
	}
	if t, ok := raw["tokens"].(map[string]any); ok {
		usage := &TokenUsage{}
		if n, ok := t["input_tokens"].(float64); ok {
			usage.InputTokens = int(n)
		}
		if n, ok := t["output_tokens"].(float64); ok {
			usage.OutputTokens = int(n)
		}
		if n, ok := t["total_tokens"].(float64); ok {
			usage.TotalTokens = int(n)
		}
		p.Tokens = usage
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
