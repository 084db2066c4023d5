package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiGenerator calls Google Gemini through the generative-ai-go SDK
type GeminiGenerator struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration

	// generate performs one call; replaced in tests
	generate func(ctx context.Context, prompt string, opts GenerationOptions) (*genai.GenerateContentResponse, error)
}

// NewGeminiGenerator creates a Gemini backend. Each Generate call is bounded by timeout.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	g := &GeminiGenerator{client: client, modelName: modelName, timeout: timeout}
	g.generate = g.callModel
	return g, nil
}

func (g *GeminiGenerator) callModel(ctx context.Context, prompt string, opts GenerationOptions) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(g.modelName)
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(opts.MaxTokens)
	}
	model.SetTemperature(opts.Temperature)
	return model.GenerateContent(ctx, genai.Text(prompt))
}

// Generate sends a single prompt and concatenates the text parts of the first candidate
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.generate(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return b.String(), nil
}

// Close releases the underlying client
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
