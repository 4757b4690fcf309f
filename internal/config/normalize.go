package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mgpai22/captionstitch/internal/estimate"
)

func (c *Config) normalize() error {
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeEstimate()
	c.normalizeOutput()
	c.normalizeLogging()

	c.Merge.SameSegment = strings.ToLower(strings.TrimSpace(c.Merge.SameSegment))
	if c.Merge.SameSegment == "" {
		c.Merge.SameSegment = defaultSameSegmentPolicy
	}
	if c.Merge.DuplicateWindowSeconds == 0 {
		c.Merge.DuplicateWindowSeconds = defaultDuplicateWindow
	}

	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = defaultCachePath
	}
	var err error
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}

	c.Progress.Addr = strings.TrimSpace(c.Progress.Addr)
	if c.Progress.Addr == "" {
		c.Progress.Addr = defaultProgressAddr
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
	if t.Provider == "" {
		t.Provider = defaultProvider
	}
	t.Model = strings.TrimSpace(t.Model)
	t.TranscriptLanguage = strings.TrimSpace(t.TranscriptLanguage)
	if t.TranscriptLanguage == "" {
		t.TranscriptLanguage = defaultTranscriptLanguage
	}
	if t.GeminiAPIKey == "" {
		t.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if t.OpenAIAPIKey == "" {
		t.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) normalizeTranslation() {
	t := &c.Translation
	t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
	if t.Provider == "" {
		t.Provider = defaultTranslateProvider
	}
	t.Model = strings.TrimSpace(t.Model)
	if t.AnthropicAPIKey == "" {
		t.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// normalizeEstimate restores built-in tiers a config file did not override,
// and lower-cases tier names so lookups by provider match.
func (c *Config) normalizeEstimate() {
	tiers := make(estimate.CostTable, len(c.Estimate.Tiers))
	for name, tier := range estimate.DefaultTable() {
		tiers[name] = tier
	}
	for name, tier := range c.Estimate.Tiers {
		tiers[strings.ToLower(strings.TrimSpace(name))] = tier
	}
	c.Estimate.Tiers = tiers
}

func (c *Config) normalizeOutput() {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = defaultOutputFormat
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
