// Package summary asks a language model for plain-language commentary on a
// city's stored forecast.
package summary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/neexbeast/skycast/internal/forecast"
)

const (
	DefaultModel     = openai.GPT3Dot5Turbo
	requestTimeout   = 30 * time.Second
	maxPromptRecords = 40
	maxTokens        = 300
)

var (
	// ErrNoRecords is returned when there is nothing to summarize.
	ErrNoRecords = errors.New("no forecast records to summarize")
	// ErrEmptyCompletion is returned when the model answers without any choices.
	ErrEmptyCompletion = errors.New("language model returned no choices")
)

const systemPrompt = `You are a friendly local weather presenter.
Given a multi-day forecast in Fahrenheit and miles per hour, write a short commentary:
- 3 to 5 sentences, plain text, no lists
- mention the overall trend and any notable changes
- finish with practical advice on clothing or activities`

// Generator produces forecast commentary through the OpenAI chat completions API.
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator constructs a Generator for the public OpenAI API.
func NewGenerator(apiKey, model string) *Generator {
	return newGenerator(openai.DefaultConfig(apiKey), model)
}

// NewGeneratorWithURL constructs a Generator pointing at a custom base URL (for tests).
func NewGeneratorWithURL(baseURL, apiKey, model string) *Generator {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newGenerator(cfg, model)
}

func newGenerator(cfg openai.ClientConfig, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	return &Generator{client: openai.NewClientWithConfig(cfg), model: model}
}

// BuildPrompt renders records as one line per forecast sample. Records are
// expected in ascending date order; only the newest maxPromptRecords are kept.
func BuildPrompt(records []forecast.Record) string {
	if len(records) == 0 {
		return ""
	}
	records = records[max(0, len(records)-maxPromptRecords):]

	var b strings.Builder
	last := records[len(records)-1]
	fmt.Fprintf(&b, "Forecast for %s, %s:\n", last.City, last.CountryCode)

	for _, r := range records {
		fmt.Fprintf(&b, "%s: %s, %.1f°F (high %.1f, low %.1f, feels like %.1f), humidity %d%%, wind %.1f mph\n",
			r.Date, r.Description, r.Temperature, r.HighTemp, r.LowTemp, r.FeltTemp, r.Humidity, r.WindSpeed)
	}

	return b.String()
}

// Summarize sends the records to the model and returns its text verbatim.
func (g *Generator) Summarize(ctx context.Context, records []forecast.Record) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(records)},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("requesting summary for city %s: %w", records[0].City, err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
