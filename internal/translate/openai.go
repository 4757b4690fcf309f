package translate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-5-mini"

// implements BatchTranslator using OpenAI Chat Completions
type OpenAITranslator struct {
	client  openai.Client
	model   string
	options Options
}

func NewOpenAITranslator(apiKey string, opts Options) *OpenAITranslator {
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAITranslator{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		options: opts,
	}
}

func (t *OpenAITranslator) Name() string {
	return string(ProviderOpenAI) + "/" + t.model
}

func (t *OpenAITranslator) TranslateBatch(ctx context.Context, items []Item) ([]Item, error) {
	completion, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(BuildPrompt(t.options, items)),
		},
		Model: t.model,
	})
	if err != nil {
		return nil, fmt.Errorf("translation failed: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}
	return parseResponse("OpenAI", completion.Choices[0].Message.Content, items)
}
