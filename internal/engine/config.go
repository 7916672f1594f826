package engine

import (
	"net/url"
	"strconv"
	"strings"
)

// availableModels is the allow-list of LLM models the AI service accepts.
var availableModels = []string{
	"gemma-3-27b-it",
	"gemini-2.5-flash",
	"gemini-3-flash-preview",
}

// AvailableModels returns the allow-list of LLM models.
func AvailableModels() []string {
	out := make([]string, len(availableModels))
	copy(out, availableModels)
	return out
}

// ValidModel reports whether model is in the allow-list.
func ValidModel(model string) bool {
	for _, m := range availableModels {
		if m == model {
			return true
		}
	}
	return false
}

// QueryConfig holds the query parameters sent with every AI service call.
// It is a plain value type: ForDataQuestion and WithModel return modified
// copies, so a config shared between concurrent requests is never mutated.
type QueryConfig struct {
	Plot                      bool
	EmbeddingsProvider        string
	EmbeddingsModel           string
	VectorStoreProvider       string
	LLMProvider               string
	LLMModel                  string
	LLMTemperature            float64
	LLMMaxTokens              int
	AllowExternalAssociations bool
	ExpandSetViews            bool
	MarkdownResponse          bool
	VectorSearchK             int
	VectorSearchSampleDataK   int
	VectorSearchTotalLimit    int
	VectorSearchColDescLimit  int
	Disclaimer                bool
	Verbose                   bool
	CheckAmbiguity            bool

	// Row limits apply only to answerDataQuestion calls. Zero means the
	// parameters are omitted.
	VQLExecuteRowsLimit  int
	LLMResponseRowsLimit int
}

// DefaultQueryConfig returns the base profile shared by both question
// endpoints.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Plot:                      false,
		EmbeddingsProvider:        "googleaistudio",
		EmbeddingsModel:           "gemini-embedding-001",
		VectorStoreProvider:       "chroma",
		LLMProvider:               "googleaistudio",
		LLMModel:                  "gemma-3-27b-it",
		LLMTemperature:            0,
		LLMMaxTokens:              8192,
		AllowExternalAssociations: false,
		ExpandSetViews:            true,
		MarkdownResponse:          true,
		VectorSearchK:             5,
		VectorSearchSampleDataK:   3,
		VectorSearchTotalLimit:    20,
		VectorSearchColDescLimit:  200,
		Disclaimer:                false,
		Verbose:                   true,
		CheckAmbiguity:            false,
	}
}

// ForDataQuestion returns a copy with the row limits answerDataQuestion
// expects on top of the base profile.
func (c QueryConfig) ForDataQuestion() QueryConfig {
	c.VQLExecuteRowsLimit = 100
	c.LLMResponseRowsLimit = 100
	return c
}

// WithModel returns a copy using the given LLM model. The receiver is
// unchanged.
func (c QueryConfig) WithModel(model string) QueryConfig {
	c.LLMModel = model
	return c
}

// Values encodes the profile plus the question as URL query parameters.
func (c QueryConfig) Values(question string) url.Values {
	v := url.Values{}
	v.Set("question", question)
	v.Set("plot", strconv.FormatBool(c.Plot))
	v.Set("embeddings_provider", c.EmbeddingsProvider)
	v.Set("embeddings_model", c.EmbeddingsModel)
	v.Set("vector_store_provider", c.VectorStoreProvider)
	v.Set("llm_provider", c.LLMProvider)
	v.Set("llm_model", c.LLMModel)
	v.Set("llm_temperature", strconv.FormatFloat(c.LLMTemperature, 'f', -1, 64))
	v.Set("llm_max_tokens", strconv.Itoa(c.LLMMaxTokens))
	v.Set("allow_external_associations", strconv.FormatBool(c.AllowExternalAssociations))
	v.Set("expand_set_views", strconv.FormatBool(c.ExpandSetViews))
	v.Set("markdown_response", strconv.FormatBool(c.MarkdownResponse))
	v.Set("vector_search_k", strconv.Itoa(c.VectorSearchK))
	v.Set("vector_search_sample_data_k", strconv.Itoa(c.VectorSearchSampleDataK))
	v.Set("vector_search_total_limit", strconv.Itoa(c.VectorSearchTotalLimit))
	v.Set("vector_search_column_description_char_limit", strconv.Itoa(c.VectorSearchColDescLimit))
	v.Set("disclaimer", strconv.FormatBool(c.Disclaimer))
	v.Set("verbose", strconv.FormatBool(c.Verbose))
	v.Set("check_ambiguity", strconv.FormatBool(c.CheckAmbiguity))
	if c.VQLExecuteRowsLimit > 0 {
		v.Set("vql_execute_rows_limit", strconv.Itoa(c.VQLExecuteRowsLimit))
	}
	if c.LLMResponseRowsLimit > 0 {
		v.Set("llm_response_rows_limit", strconv.Itoa(c.LLMResponseRowsLimit))
	}
	return v
}

// MetadataParams builds the query parameters for the startup getMetadata
// call that populates the AI service's vector store from the given virtual
// databases.
func MetadataParams(databases []string) url.Values {
	v := url.Values{}
	v.Set("vdp_database_names", strings.Join(databases, ","))
	v.Set("embeddings_provider", "googleaistudio")
	v.Set("embeddings_model", "gemini-embedding-001")
	v.Set("embeddings_token_limit", "0")
	v.Set("vector_store_provider", "chroma")
	v.Set("rate_limit_rpm", "0")
	v.Set("examples_per_table", "100")
	v.Set("view_descriptions", "true")
	v.Set("column_descriptions", "true")
	v.Set("associations", "true")
	v.Set("insert", "true")
	v.Set("views_per_request", "50")
	v.Set("incremental", "true")
	v.Set("parallel", "true")
	return v
}
