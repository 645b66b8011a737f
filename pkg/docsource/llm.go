package docsource

import (
	"context"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/specwright/takeoff-cli/internal/resilience"
)

const cleanupSystemPrompt = `You are a construction document preprocessor. You receive raw text
extracted from construction specification documents, drawings, schedules, and
submittals. The text may contain OCR artifacts, page headers and footers,
broken table layouts, and hyphenated line breaks.

Rewrite the content as clean plain text:
- Preserve every equipment tag, panel ID, fixture count, dimension, rating,
  and material callout exactly as written.
- Reconstruct schedules and tables as one line per row.
- Drop page numbers, title blocks, and revision stamps.
- Do not summarize, interpret, or omit technical content.

Return only the cleaned text.`

// MessageClient is the LLM operation the cleanup pass needs. The production
// implementation wraps the Anthropic SDK; tests substitute a stub.
type MessageClient interface {
	Clean(ctx context.Context, raw string) (string, Usage, error)
}

// Usage tracks token consumption for a cleanup call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {15.00, 75.00},
}

// EstimateCost computes an estimated cost in USD for a Usage and model ID.
// Returns 0 for unknown models.
func (u Usage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(u.InputTokens)/1e6)*pricing[0] + (float64(u.OutputTokens)/1e6)*pricing[1]
}

// SDKOptions configures the SDK-backed MessageClient.
type SDKOptions struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// sdkClient implements MessageClient using the official anthropic-sdk-go.
type sdkClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewSDKClient creates a MessageClient backed by the Anthropic SDK.
func NewSDKClient(opts SDKOptions) MessageClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(opts.APIKey),
		),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

func (c *sdkClient) Clean(ctx context.Context, raw string) (string, Usage, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: cleanupSystemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(raw)),
		},
	})
	if err != nil {
		return "", Usage{}, eris.Wrap(err, "docsource: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	usage := Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	return sb.String(), usage, nil
}

// LLMSource reads a document from disk and runs the LLM cleanup pass on
// formats the pipeline cannot consume directly. Calls are rate limited.
type LLMSource struct {
	client  MessageClient
	model   string
	limiter *rate.Limiter
}

// NewLLMSource creates an LLMSource. rps bounds the sustained request rate
// against the API; values <= 0 fall back to 1 request per second.
func NewLLMSource(client MessageClient, model string, rps float64) *LLMSource {
	if rps <= 0 {
		rps = 1
	}
	return &LLMSource{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Text loads the document at path, cleaning it through the LLM when the
// format requires it.
func (s *LLMSource) Text(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "docsource: read %s", path)
	}

	if !NeedsCleanup(path) {
		return string(data), nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "docsource: rate limit wait")
	}

	type cleanResult struct {
		text  string
		usage Usage
	}
	res, err := resilience.DoVal(ctx, resilience.RetryConfig{
		OnRetry: resilience.RetryLogger("anthropic", "clean document"),
	}, func(ctx context.Context) (cleanResult, error) {
		text, usage, err := s.client.Clean(ctx, string(data))
		return cleanResult{text: text, usage: usage}, err
	})
	if err != nil {
		return "", eris.Wrapf(err, "docsource: clean %s", path)
	}
	cleaned, usage := res.text, res.usage

	zap.L().Info("document cleaned",
		zap.String("path", path),
		zap.Int("raw_bytes", len(data)),
		zap.Int("cleaned_bytes", len(cleaned)),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", usage.EstimateCost(s.model)),
	)

	return cleaned, nil
}
