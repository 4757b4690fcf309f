package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/progress"
)

// upperTranslator "translates" by upper-casing, optionally failing a batch.
type upperTranslator struct {
	mu      sync.Mutex
	batches [][]Item
	failOn  int
}

func (u *upperTranslator) Name() string { return "fake/upper" }

func (u *upperTranslator) TranslateBatch(ctx context.Context, items []Item) ([]Item, error) {
	u.mu.Lock()
	u.batches = append(u.batches, items)
	u.mu.Unlock()

	if u.failOn >= 0 && items[0].Index == u.failOn {
		return nil, errors.New("rate limited")
	}
	out := make([]Item, len(items))
	for i := range items {
		// reply in reverse order to exercise index matching
		src := items[len(items)-1-i]
		out[i] = Item{Index: src.Index, Text: strings.ToUpper(src.Text)}
	}
	return matchResults(items, out)
}

func track(n int) []caption.Caption {
	captions := make([]caption.Caption, n)
	for i := range captions {
		captions[i] = caption.Caption{Start: float64(i), End: float64(i) + 0.5, Text: fmt.Sprintf("line %d", i)}
	}
	return captions
}

func TestCaptionsTranslatesInBatches(t *testing.T) {
	var (
		mu    sync.Mutex
		snaps []progress.Snapshot
	)
	tr := &upperTranslator{failOn: -1}
	in := track(7)

	out, err := Captions(context.Background(), tr, in, RunOptions{
		BatchSize:   3,
		Concurrency: 2,
		OnUpdate: func(s progress.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			snaps = append(snaps, s)
		},
	})
	if err != nil {
		t.Fatalf("Captions: %v", err)
	}

	if len(tr.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(tr.batches))
	}
	for i, c := range out {
		if want := fmt.Sprintf("LINE %d", i); c.Text != want {
			t.Errorf("caption %d text = %q, want %q", i, c.Text, want)
		}
		if c.Start != in[i].Start || c.End != in[i].End {
			t.Errorf("caption %d timing changed: %+v", i, c)
		}
	}
	if in[0].Text != "line 0" {
		t.Error("input captions were modified")
	}

	mu.Lock()
	defer mu.Unlock()
	var last progress.Snapshot
	for _, s := range snaps {
		if len(s.PerSegmentStatus) != 3 {
			t.Fatalf("tracker has %d slots, want 3", len(s.PerSegmentStatus))
		}
		if s.Newer(last) {
			last = s
		}
	}
	if last.OverallPercent != 100 {
		t.Errorf("final overall = %v, want 100", last.OverallPercent)
	}
}

func TestCaptionsFailsOnBatchError(t *testing.T) {
	tr := &upperTranslator{failOn: 3}

	_, err := Captions(context.Background(), tr, track(6), RunOptions{BatchSize: 3, Concurrency: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "batch 1 failed") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v", err)
	}
}

func TestCaptionsEmpty(t *testing.T) {
	out, err := Captions(context.Background(), &upperTranslator{failOn: -1}, nil, RunOptions{})
	if err != nil || len(out) != 0 {
		t.Errorf("Captions(nil) = %v, %v", out, err)
	}
}

func TestChunkItems(t *testing.T) {
	items := make([]Item, 7)
	batches := chunkItems(items, 3)
	if len(batches) != 3 || len(batches[0]) != 3 || len(batches[2]) != 1 {
		t.Errorf("batch sizes wrong: %d batches", len(batches))
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"gemini", ProviderGemini, false},
		{" OpenAI ", ProviderOpenAI, false},
		{"anthropic", ProviderAnthropic, false},
		{"deepl", "", true},
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

func TestFactory(t *testing.T) {
	ctx := context.Background()
	opts := Options{TargetLanguage: "Spanish"}

	tests := []struct {
		provider Provider
		wantName string
	}{
		{ProviderGemini, "gemini/gemini-2.5-flash"},
		{ProviderOpenAI, "openai/gpt-5-mini"},
		{ProviderAnthropic, "anthropic/"},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			tr, err := Factory(ctx, tt.provider, "test-key", opts)
			if err != nil {
				t.Fatalf("Factory: %v", err)
			}
			if !strings.HasPrefix(tr.Name(), tt.wantName) {
				t.Errorf("Name() = %q, want prefix %q", tr.Name(), tt.wantName)
			}
		})
	}
}

func TestFactoryErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := Factory(ctx, ProviderOpenAI, "key", Options{}); err == nil {
		t.Error("expected error without target language")
	}
	if _, err := Factory(ctx, ProviderOpenAI, "", Options{TargetLanguage: "French"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := Factory(ctx, Provider("deepl"), "key", Options{TargetLanguage: "French"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(Options{
		InputLanguage:  "English",
		TargetLanguage: "Japanese",
		Prompt:         "keep honorifics",
	}, []Item{{Index: 4, Text: "Hello"}})

	for _, want := range []string{
		"Translate the following English subtitle texts to Japanese.",
		"Additional instructions: keep honorifics",
		`"index": 4`,
		`"text": "Hello"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	bare := BuildPrompt(Options{TargetLanguage: "German"}, nil)
	if !strings.Contains(bare, "Translate the following subtitle texts to German.") {
		t.Errorf("prompt without input language = %q", bare)
	}
}
