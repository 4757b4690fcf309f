package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/mgpai22/captionstitch/internal/config"
)

func TestLoadMissingFileUsesDefaultsAndEnvKeys(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("OPENAI_API_KEY", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "captionstitch", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}
	if cfg.Transcription.GeminiAPIKey != "gem-key" {
		t.Fatalf("expected Gemini key from env, got %q", cfg.Transcription.GeminiAPIKey)
	}
	if cfg.Segmenting.OverlapSeconds != 1 {
		t.Fatalf("overlap = %v, want 1", cfg.Segmenting.OverlapSeconds)
	}
	if want := filepath.Join(tempHome, ".cache", "captionstitch", "segments.db"); cfg.Cache.Path != want {
		t.Fatalf("cache path = %q, want %q", cfg.Cache.Path, want)
	}
	if cfg.Merge.SameSegment != "pass-through" {
		t.Fatalf("same_segment = %q", cfg.Merge.SameSegment)
	}
	if cfg.Progress.Enabled {
		t.Fatal("progress endpoint should be disabled by default")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[segmenting]
max_segment_seconds = 120
concurrency = 8

[transcription]
provider = "OpenAI"
openai_api_key = "from-file"

[merge]
same_segment = "Trim"

[estimate.tiers.openai]
fixed_overhead_per_second = 40
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Segmenting.MaxSegmentSeconds != 120 || cfg.Segmenting.Concurrency != 8 {
		t.Fatalf("segmenting = %+v", cfg.Segmenting)
	}
	if cfg.Segmenting.OverlapSeconds != 1 {
		t.Fatalf("unset overlap should keep default, got %v", cfg.Segmenting.OverlapSeconds)
	}
	if cfg.Transcription.Provider != "openai" {
		t.Fatalf("provider = %q, want normalized openai", cfg.Transcription.Provider)
	}
	if cfg.APIKey("openai") != "from-file" {
		t.Fatalf("APIKey(openai) = %q", cfg.APIKey("openai"))
	}
	if cfg.Merge.SameSegment != "trim" {
		t.Fatalf("same_segment = %q, want trim", cfg.Merge.SameSegment)
	}
	if got := cfg.Estimate.Tiers["openai"].FixedOverheadPerSecond; got != 40 {
		t.Fatalf("openai overhead = %v, want 40", got)
	}
	if _, ok := cfg.Estimate.Tiers["gemini"]; !ok {
		t.Fatal("built-in gemini tier should survive a partial override")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[segmenting]\nmax_chunk = 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"zero max segment", func(c *config.Config) { c.Segmenting.MaxSegmentSeconds = 0 }, "max_segment_seconds"},
		{"overlap too large", func(c *config.Config) { c.Segmenting.OverlapSeconds = 600 }, "overlap_seconds"},
		{"zero concurrency", func(c *config.Config) { c.Segmenting.Concurrency = 0 }, "concurrency"},
		{"unknown provider", func(c *config.Config) { c.Transcription.Provider = "whisperx" }, "transcription.provider"},
		{"zero attempts", func(c *config.Config) { c.Transcription.Attempts = 0 }, "attempts"},
		{"bad policy", func(c *config.Config) { c.Merge.SameSegment = "extend" }, "same_segment"},
		{"bad format", func(c *config.Config) { c.Output.Format = "sub" }, "output.format"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"missing tier", func(c *config.Config) { delete(c.Estimate.Tiers, "gemini") }, "estimate.tiers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path, false); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if parsed.Segmenting.MaxSegmentSeconds != config.Default().Segmenting.MaxSegmentSeconds {
		t.Fatalf("sample max_segment_seconds = %v", parsed.Segmenting.MaxSegmentSeconds)
	}

	if err := config.CreateSample(path, false); err == nil {
		t.Fatal("expected CreateSample to refuse overwriting")
	}
	if err := config.CreateSample(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}
