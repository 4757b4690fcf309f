package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/logging"
)

const defaultOpenAIModel = "whisper-1"

// transcribes segments with the OpenAI audio API
type OpenAITranscriber struct {
	client  openai.Client
	model   string
	options Options
	logger  *logging.Logger
}

// segment from OpenAI Whisper verbose_json response
type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// verbose_json response structure from Whisper
type whisperVerboseResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

func NewOpenAITranscriber(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAITranscriber{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		options: opts,
		logger:  logging.OrNop(opts.Logger),
	}, nil
}

func (t *OpenAITranscriber) Name() string {
	return string(ProviderOpenAI) + "/" + t.model
}

// TranscribeSegment sends the chunk to the transcription endpoint, or the
// translation endpoint when English output was requested.
func (t *OpenAITranscriber) TranscribeSegment(ctx context.Context, req Request) ([]caption.Caption, error) {
	if err := checkChunk(req.Chunk); err != nil {
		return nil, err
	}

	file, err := os.Open(req.Chunk.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio chunk: %w", err)
	}
	defer file.Close()
	req.report(10)

	var raw, text string
	if t.shouldUseTranslation() {
		raw, text, err = t.translate(ctx, file)
	} else {
		raw, text, err = t.transcribe(ctx, file)
	}
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	req.report(90)

	fallback := req.Chunk.Span.Duration()
	captions, err := t.parseVerboseJSONResponse(raw, fallback)
	if err != nil {
		t.logger.Debugw("Falling back to a single caption",
			"segment", req.Chunk.Index,
			"error", err,
		)
		captions = []caption.Caption{{Start: 0, End: fallback, Text: strings.TrimSpace(text)}}
	}
	return toTimeline(captions, req.Chunk), nil
}

func (t *OpenAITranscriber) shouldUseTranslation() bool {
	lang := strings.ToLower(strings.TrimSpace(t.options.TranscriptLanguage))
	return lang == "english" || lang == "en"
}

func (t *OpenAITranscriber) translate(ctx context.Context, file *os.File) (string, string, error) {
	params := openai.AudioTranslationNewParams{
		File:           file,
		Model:          openai.AudioModel(t.model),
		ResponseFormat: openai.AudioTranslationNewParamsResponseFormatVerboseJSON,
	}
	if t.options.Prompt != "" {
		params.Prompt = openai.String(t.options.Prompt)
	}

	resp, err := t.client.Audio.Translations.New(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("translation failed: %w", err)
	}
	return resp.RawJSON(), resp.Text, nil
}

func (t *OpenAITranscriber) transcribe(ctx context.Context, file *os.File) (string, string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if t.options.Language != "" {
		params.Language = openai.String(t.options.Language)
	}
	if t.options.Prompt != "" {
		params.Prompt = openai.String(t.options.Prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.RawJSON(), resp.Text, nil
}

// parseVerboseJSONResponse converts a verbose_json body into chunk-relative
// captions. A body with text but no segments becomes one caption spanning
// the reported (or fallback) duration.
func (t *OpenAITranscriber) parseVerboseJSONResponse(
	rawJSON string,
	fallbackDuration float64,
) ([]caption.Caption, error) {
	if rawJSON == "" {
		return nil, errors.New("empty response")
	}

	var resp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	if len(resp.Segments) == 0 {
		if strings.TrimSpace(resp.Text) == "" {
			return nil, errors.New("no segments or text in response")
		}
		dur := fallbackDuration
		if resp.Duration > 0 {
			dur = resp.Duration
		}
		return []caption.Caption{{Start: 0, End: dur, Text: strings.TrimSpace(resp.Text)}}, nil
	}

	captions := make([]caption.Caption, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		captions = append(captions, caption.Caption{Start: seg.Start, End: seg.End, Text: text})
	}
	return captions, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return err
}
