// Package translate translates caption tracks with LLM providers, one batch
// of captions per request.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Item is one caption's text as sent to and returned by a provider.
type Item struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// BatchTranslator translates one batch in a single request. Results must
// carry the same indices as the input.
type BatchTranslator interface {
	TranslateBatch(ctx context.Context, items []Item) ([]Item, error)
	// Name identifies provider and model, e.g. "anthropic/claude-haiku-4-5".
	Name() string
}

// translation service provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported translation provider: %s", s)
	}
}

type Options struct {
	InputLanguage  string
	TargetLanguage string
	Model          string
	Prompt         string
}

// creates a BatchTranslator for provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (BatchTranslator, error) {
	if opts.TargetLanguage == "" {
		return nil, errors.New("target language is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for %s", provider)
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiTranslator(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAITranslator(apiKey, opts), nil
	case ProviderAnthropic:
		return NewAnthropicTranslator(apiKey, opts), nil
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", provider)
	}
}

// BuildPrompt creates the translation prompt shared by all providers.
func BuildPrompt(opts Options, items []Item) string {
	var sb strings.Builder

	if opts.InputLanguage != "" {
		fmt.Fprintf(&sb, "Translate the following %s subtitle texts to %s.\n\n", opts.InputLanguage, opts.TargetLanguage)
	} else {
		fmt.Fprintf(&sb, "Translate the following subtitle texts to %s.\n\n", opts.TargetLanguage)
	}

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. Translate ONLY the text content, preserving the meaning.\n")
	sb.WriteString("2. Keep line breaks in the same positions.\n")
	sb.WriteString("3. Return ONLY a JSON array with the same structure.\n")
	sb.WriteString("4. Each object must have 'index' and 'text' fields.\n")
	sb.WriteString("5. The 'index' values must match the input indices exactly.\n")
	sb.WriteString("6. Do not add any explanation or markdown formatting.\n\n")

	if opts.Prompt != "" {
		fmt.Fprintf(&sb, "Additional instructions: %s\n\n", opts.Prompt)
	}

	sb.WriteString("Input JSON:\n")
	input, _ := json.MarshalIndent(items, "", "  ")
	sb.Write(input)
	sb.WriteString("\n\nOutput the translated JSON array only:")

	return sb.String()
}
