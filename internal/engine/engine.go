package engine

import (
	"context"
	"log/slog"
	"time"
)

// Engine runs the multi-phase question pipeline: metadata discovery, data
// retrieval, an optional deep-dive pass, and report synthesis.
type Engine struct {
	client *Client
	cfg    QueryConfig
	logger *slog.Logger
}

// New creates an Engine using cfg as the base query profile for every call.
func New(client *Client, cfg QueryConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, cfg: cfg, logger: logger}
}

// DiscoveryResult is the outcome of the metadata discovery phase.
type DiscoveryResult struct {
	// Schema is the discovered tables-and-columns description.
	Schema string

	// Raw is the full upstream response body.
	Raw map[string]any
}

// DiscoverMetadata runs phase 1 only: find the tables and columns relevant
// to the question. If datasets is non-empty, discovery is scoped to those
// tables. Returns ErrEmptySchema when the upstream answers with no schema.
func (e *Engine) DiscoverMetadata(ctx context.Context, question string, datasets []string) (*DiscoveryResult, error) {
	scoped := ScopedQuestion(question, datasets)
	resp, err := e.client.AnswerMetadataQuestion(ctx, e.cfg.Values(scoped))
	if err != nil {
		return nil, err
	}
	if resp.Answer == "" {
		return nil, ErrEmptySchema
	}
	return &DiscoveryResult{Schema: resp.Answer, Raw: resp.Raw}, nil
}

// AnswerOptions modify a single Answer call.
type AnswerOptions struct {
	// PriorSchema skips the metadata discovery phase when non-empty,
	// typically the schema from an earlier DiscoverMetadata call.
	PriorSchema string

	// Datasets scopes the metadata discovery phase to the named datasets or
	// tables. The scope directive is applied to the discovery question only;
	// the data and report phases always see the raw question.
	Datasets []string

	// Model overrides the default LLM model. Must be in the allow-list.
	Model string

	// Profile personalizes the report when non-nil.
	Profile *Profile

	// DeepThink runs a second complementary data pass and synthesizes a
	// combined report.
	DeepThink bool
}

// Result is the outcome of a full Answer run.
type Result struct {
	// Report is the final markdown report. When report synthesis produced
	// no text, this is the raw data answer instead.
	Report string

	Schema   string
	Data     *PhaseResponse
	DeepDive *PhaseResponse

	// Model is the LLM model the run used.
	Model string

	// Latency is the wall-clock duration of the whole run.
	Latency time.Duration

	// UsedTokens sums the upstream's token counts across phases. Nil when
	// no phase reported usage.
	UsedTokens *int
}

// Answer runs the full pipeline for one question. The base query profile is
// never mutated: each call works on its own merged copy, so concurrent runs
// with different models cannot observe each other's settings.
func (e *Engine) Answer(ctx context.Context, question string, opts AnswerOptions) (*Result, error) {
	start := time.Now()

	model := opts.Model
	if model == "" {
		model = e.cfg.LLMModel
	} else if !ValidModel(model) {
		return nil, &InvalidModelError{Model: model, Available: AvailableModels()}
	}
	cfg := e.cfg.WithModel(model)

	res := &Result{Model: model}

	// Phase 1: metadata discovery, unless the caller already has a schema.
	if opts.PriorSchema != "" {
		res.Schema = opts.PriorSchema
	} else {
		resp, err := e.client.AnswerMetadataQuestion(ctx, cfg.Values(ScopedQuestion(question, opts.Datasets)))
		if err != nil {
			return nil, err
		}
		if resp.Answer == "" {
			return nil, ErrEmptySchema
		}
		res.Schema = resp.Answer
		addTokens(res, resp)
	}

	// Phase 2: retrieve raw data. The question goes through unmodified so
	// VQL generation stays free of formatting noise.
	data, err := e.client.AnswerDataQuestion(ctx, cfg.ForDataQuestion().Values(question))
	if err != nil {
		return nil, err
	}
	res.Data = data
	addTokens(res, data)

	var report *PhaseResponse
	if opts.DeepThink {
		e.logger.Info("engine: deep think enabled, running second data pass")
		deep, err := e.client.AnswerDataQuestion(ctx,
			cfg.ForDataQuestion().Values(DeepDivePrompt(question, data)))
		if err != nil {
			return nil, err
		}
		res.DeepDive = deep
		addTokens(res, deep)

		report, err = e.client.AnswerMetadataQuestion(ctx,
			cfg.Values(DeepThinkReportPrompt(question, data, deep, opts.Profile)))
		if err != nil {
			return nil, err
		}
	} else {
		report, err = e.client.AnswerMetadataQuestion(ctx,
			cfg.Values(ReportPrompt(question, data, opts.Profile)))
		if err != nil {
			return nil, err
		}
	}
	addTokens(res, report)

	// Fall back to the raw data answer if report synthesis came back empty.
	res.Report = report.Answer
	if res.Report == "" {
		res.Report = data.Answer
	}

	res.Latency = time.Since(start)
	return res, nil
}

func addTokens(res *Result, p *PhaseResponse) {
	if p == nil || p.Tokens == nil {
		return
	}
	total := p.Tokens.TotalTokens
	if total == 0 {
		total = p.Tokens.InputTokens + p.Tokens.OutputTokens
	}
	if total == 0 {
		return
	}
	if res.UsedTokens == nil {
		res.UsedTokens = new(int)
	}
	*res.UsedTokens += total
}
