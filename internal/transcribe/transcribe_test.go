package transcribe

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/segment"
)

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"gemini", ProviderGemini, false},
		{" OpenAI ", ProviderOpenAI, false},
		{"whisper", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFactoryRequiresKey(t *testing.T) {
	if _, err := Factory(context.Background(), ProviderGemini, "", Options{}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := Factory(context.Background(), Provider("whisper"), "key", Options{}); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestOpenAINameUsesDefaultModel(t *testing.T) {
	tr, err := NewOpenAITranscriber(context.Background(), "key", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Name() != "openai/whisper-1" {
		t.Errorf("Name() = %q", tr.Name())
	}
}

func TestToTimeline(t *testing.T) {
	chunk := audio.Chunk{
		Segment: segment.Segment{TimeRange: segment.TimeRange{Start: 60, End: 120}, Index: 1},
		Offset:  59,
	}
	got := toTimeline([]caption.Caption{
		{Start: 0.5, End: 2, Text: " first "},
		{Start: 2, End: 3, Text: "   "},
		{Start: 10, End: 12.25, Text: "second"},
	}, chunk)

	want := []caption.Caption{
		{Start: 59.5, End: 61, Text: "first"},
		{Start: 69, End: 71.25, Text: "second"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toTimeline() = %+v, want %+v", got, want)
	}
}

func TestMissingChunkIsPermanent(t *testing.T) {
	tr, _ := NewOpenAITranscriber(context.Background(), "key", Options{})
	chunk := audio.Chunk{Path: filepath.Join(t.TempDir(), "missing.mp3")}

	_, err := tr.TranscribeSegment(context.Background(), Request{Chunk: chunk})
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("expected ErrPermanent, got %v", err)
	}
}
