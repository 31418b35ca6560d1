package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = openai.ChatModelGPT4o
)

const classifierSystemPrompt = `You classify business documents for a studio
cost-management system. Documents may be in Hebrew or English. Given the
document text, respond with the document type ("invoice", "quote" or
"generic"), your confidence, short reasoning, and alternative labels you
considered.`

// OpenAIConfig holds configuration for the OpenAI-backed classifier and
// extractor.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	RateLimit  float64       // Requests per second
	MaxRetries int           // SDK transport retries
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements Classifier and Extractor using the official
// OpenAI SDK with JSON-schema constrained outputs.
type OpenAIClient struct {
	model   string
	client  openai.Client
	limiter *RateLimiter
}

// NewOpenAIClient creates a new OpenAI collaborator client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:   cfg.Model,
		client:  openai.NewClient(opts...),
		limiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string { return OpenAIName }

// Classify assigns a document type to the given text.
func (c *OpenAIClient) Classify(ctx context.Context, text string) (*Classification, error) {
	raw, err := c.complete(ctx, classifierSystemPrompt, truncateForPrompt(text),
		"classification", classificationSchema)
	if err != nil {
		return nil, err
	}
	if err := ValidateClassification(raw); err != nil {
		return nil, fmt.Errorf("classifier returned invalid output: %w", err)
	}

	var result Classification
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	return &result, nil
}

// Extract pulls structured line items out of packed chunks.
func (c *OpenAIClient) Extract(ctx context.Context, chunks []Chunk, docType DocType) (*Extraction, error) {
	var sb strings.Builder
	for i, chunk := range chunks {
		if chunk.Title != "" {
			fmt.Fprintf(&sb, "## %s\n", chunk.Title)
		}
		sb.WriteString(chunk.Text)
		if i < len(chunks)-1 {
			sb.WriteString("\n\n")
		}
	}

	raw, err := c.complete(ctx, ExtractionInstructions(docType),
		truncateForPrompt(sb.String()), "extraction", extractionSchema)
	if err != nil {
		return nil, err
	}
	if err := ValidateExtraction(raw); err != nil {
		return nil, fmt.Errorf("extractor returned invalid output: %w", err)
	}

	var result Extraction
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode extraction: %w", err)
	}
	return &result, nil
}

// complete sends a schema-constrained chat completion and returns the raw
// JSON content of the first choice.
func (c *OpenAIClient) complete(ctx context.Context, system, user, schemaName, schemaJSON string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("invalid %s schema: %w", schemaName, err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

// classifyOpenAIError maps SDK errors onto the transient/fatal split.
func classifyOpenAIError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500 {
			return Transient(err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Network-level failures (timeouts, connection resets) are retryable.
	return Transient(err)
}

// maxPromptChars caps prompt size; oversized documents are truncated rather
// than rejected.
const maxPromptChars = 60000

func truncateForPrompt(s string) string {
	if len(s) <= maxPromptChars {
		return s
	}
	return s[:maxPromptChars]
}
