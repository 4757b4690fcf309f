// Package transcribe sends one segment's audio chunk to an AI provider and
// returns captions on the original timeline.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/logging"
)

// ErrPermanent marks failures that retrying the same request cannot fix,
// such as a missing chunk file or rejected credentials.
var ErrPermanent = errors.New("permanent transcription failure")

// SegmentTranscriber transcribes the audio of a single segment. Calls for
// different segments may run concurrently.
type SegmentTranscriber interface {
	TranscribeSegment(ctx context.Context, req Request) ([]caption.Caption, error)
	// Name identifies provider and model, e.g. "gemini/gemini-2.5-flash".
	Name() string
}

// Request is one segment's transcription job.
type Request struct {
	Chunk audio.Chunk
	// Report receives coarse progress within the call, 0-100. May be nil.
	Report func(percent float64)
}

func (r Request) report(percent float64) {
	if r.Report != nil {
		r.Report(percent)
	}
}

// transcription service provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGemini, ProviderOpenAI:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", s)
	}
}

// transcription options
type Options struct {
	Language           string // source language of audio
	TranscriptLanguage string // output language, "native" keeps the original
	Model              string
	Prompt             string
	Logger             *logging.Logger
}

// creates transcriber based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (SegmentTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", provider)
	}
	switch provider {
	case ProviderGemini:
		return NewGeminiTranscriber(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAITranscriber(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// toTimeline shifts chunk-relative captions onto the original timeline and
// drops empty ones.
func toTimeline(captions []caption.Caption, chunk audio.Chunk) []caption.Caption {
	return caption.Clean(caption.Rebase(captions, chunk.Offset))
}

func checkChunk(chunk audio.Chunk) error {
	if _, err := os.Stat(chunk.Path); err != nil {
		return fmt.Errorf("%w: audio chunk for segment %d: %v", ErrPermanent, chunk.Index, err)
	}
	return nil
}
