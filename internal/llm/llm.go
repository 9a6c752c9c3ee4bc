// Package llm wraps the Gemini API behind a small Provider interface so
// topic scoring, research, and synthesis can share one retry and timeout
// policy, and tests can substitute a fake.
package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"scout/internal/logger"
)

// callTimeout is the hard ceiling for a single model call.
const callTimeout = 60 * time.Second

// maxAttempts bounds retries for retryable failures.
const maxAttempts = 3

// Options tunes a single generation call.
type Options struct {
	// Model overrides the client default when non-empty.
	Model string
	// Schema requests structured output. Ignored when Grounding is set,
	// since the API rejects the combination; callers get JSON via
	// prompt instruction plus ExtractJSON instead.
	Schema *genai.Schema
	// Grounding enables the Google Search tool.
	Grounding bool
	// Temperature overrides the model default when non-nil.
	Temperature *float32
}

// GroundingSource is one web source the model consulted while grounded.
type GroundingSource struct {
	Title string
	URL   string
}

// Response is the outcome of one generation call.
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Grounding    []GroundingSource
}

// Provider is the generation surface the rest of the system depends on.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (*Response, error)
}

// Client talks to the Gemini API.
type Client struct {
	gClient   *genai.Client
	modelName string
}

// NewClient creates a Gemini-backed client. The model name falls back to
// a sensible default when empty.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{gClient: gClient, modelName: modelName}, nil
}

// Generate runs one model call under the 60 s ceiling, retrying retryable
// failures with backoff. Schema and grounding are mutually exclusive on
// the wire; when both are requested grounding wins and the schema is
// dropped.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = c.modelName
	}

	config := &genai.GenerateContentConfig{}
	if opts.Temperature != nil {
		config.Temperature = opts.Temperature
	}
	if opts.Grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if opts.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = opts.Schema
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var lastErr *LLMError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		resp, err := c.gClient.Models.GenerateContent(callCtx, model, contents, config)
		cancel()

		if err == nil {
			out := buildResponse(resp, model)
			if out.Content == "" {
				return nil, &LLMError{Kind: ErrorKindBadInput, Retryable: false, Err: fmt.Errorf("empty response from model %s", model)}
			}
			return out, nil
		}

		lastErr = classifyError(err)
		if !lastErr.Retryable || ctx.Err() != nil {
			return nil, lastErr
		}
		backoff := time.Duration(attempt) * 2 * time.Second
		logger.Warn("llm call failed, retrying",
			"model", model, "attempt", attempt, "kind", string(lastErr.Kind), "backoff", backoff.String())
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, classifyError(ctx.Err())
		}
	}
	return nil, lastErr
}

func buildResponse(resp *genai.GenerateContentResponse, model string) *Response {
	out := &Response{
		Content: resp.Text(),
		Model:   model,
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			out.Grounding = append(out.Grounding, GroundingSource{
				Title: chunk.Web.Title,
				URL:   chunk.Web.URI,
			})
		}
	}
	return out
}

// GenerateJSON runs Generate and parses the response into dest with the
// lenient extractor, covering both schema mode and grounded prompts that
// wrap JSON in prose.
func GenerateJSON(ctx context.Context, p Provider, prompt string, opts Options, dest any) (*Response, error) {
	resp, err := p.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	if err := ExtractJSON(resp.Content, dest); err != nil {
		return resp, fmt.Errorf("model %s returned unparseable JSON: %w", resp.Model, err)
	}
	return resp, nil
}
