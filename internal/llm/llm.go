package llm

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"techdigest/internal/core"
)

const (
	// ScorePromptTemplate asks for a single relevance number. Args: title, excerpt, source name.
	ScorePromptTemplate = `Rate the relevance of this article to the streaming and media technology industry on a scale from 0.0 to 1.0.

Consider:
- Generative AI applied to video, audio or content creation
- Dubbing, localization and translation technology
- Production and post-production tools
- Streaming platform strategy and technology

Title: %s
Content: %s
Source: %s

Scoring guide:
0.9-1.0: directly about streaming technology or AI in content production
0.7-0.8: closely related industry news
0.5-0.6: somewhat related
0.0-0.4: not relevant

Respond with only a number between 0.0 and 1.0.`

	// SummaryPromptTemplate asks for a short summary. Args: title, excerpt.
	SummaryPromptTemplate = `Summarize this article in 2-3 concise sentences for busy streaming industry professionals. Focus on what happened and why it matters.

Title: %s
Content: %s`
)

// GenerationOptions controls a single completion request
type GenerationOptions struct {
	MaxTokens   int32   // Maximum number of tokens to generate
	Temperature float32 // Temperature for randomness (0.0 to 1.0)
}

var (
	scoreOptions   = GenerationOptions{MaxTokens: 10, Temperature: 0.1}
	summaryOptions = GenerationOptions{MaxTokens: 150, Temperature: 0.3}
)

// Generator is a text completion backend
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}

// Oracle scores and summarizes articles
type Oracle interface {
	Score(ctx context.Context, title, excerpt, sourceName string) (float64, error)
	Summarize(ctx context.Context, title, excerpt string) (string, error)
}

// Client turns a Generator into the scoring and summarizer oracles
type Client struct {
	gen Generator
}

// NewClient wraps gen with the newsletter prompts
func NewClient(gen Generator) *Client {
	return &Client{gen: gen}
}

// Score asks the model how relevant an article is. The returned value is already clamped to [0,1].
// A malformed reply yields 0 and an error wrapping core.ErrParse.
func (c *Client) Score(ctx context.Context, title, excerpt, sourceName string) (float64, error) {
	prompt := fmt.Sprintf(ScorePromptTemplate, title, excerpt, sourceName)

	response, err := c.gen.Generate(ctx, prompt, scoreOptions)
	if err != nil {
		return 0, fmt.Errorf("%w: score request failed: %w", core.ErrTransientFetch, err)
	}

	return ParseScore(response)
}

// Summarize asks the model for a short summary
func (c *Client) Summarize(ctx context.Context, title, excerpt string) (string, error) {
	prompt := fmt.Sprintf(SummaryPromptTemplate, title, excerpt)

	response, err := c.gen.Generate(ctx, prompt, summaryOptions)
	if err != nil {
		return "", fmt.Errorf("%w: summary request failed: %w", core.ErrTransientFetch, err)
	}

	summary := strings.TrimSpace(response)
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", core.ErrParse)
	}
	return summary, nil
}

var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// ParseScore reads the first number in response and clamps it to [0,1].
func ParseScore(response string) (float64, error) {
	match := numberPattern.FindString(strings.TrimSpace(response))
	if match == "" {
		return 0, fmt.Errorf("%w: no number in score response %q", core.ErrParse, response)
	}

	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid score %q: %v", core.ErrParse, match, err)
	}

	return Clamp(score), nil
}

// Clamp bounds a score to [0,1]
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
