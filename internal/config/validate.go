package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/mgpai22/captionstitch/internal/merge"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSegmenting(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateEstimate(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSegmenting() error {
	s := c.Segmenting
	if !(s.MaxSegmentSeconds > 0) || math.IsInf(s.MaxSegmentSeconds, 0) {
		return fmt.Errorf("segmenting.max_segment_seconds must be positive, got %v", s.MaxSegmentSeconds)
	}
	if !(s.OverlapSeconds >= 0) || s.OverlapSeconds >= s.MaxSegmentSeconds {
		return fmt.Errorf("segmenting.overlap_seconds must be within [0, max_segment_seconds), got %v", s.OverlapSeconds)
	}
	if s.Concurrency < 1 {
		return errors.New("segmenting.concurrency must be at least 1")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	switch t.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("transcription.provider %q is not supported (use gemini or openai)", t.Provider)
	}
	if t.Attempts < 1 {
		return errors.New("transcription.attempts must be at least 1")
	}
	if !(t.RetryBackoffSeconds >= 0) {
		return errors.New("transcription.retry_backoff_seconds must not be negative")
	}
	if t.SegmentTimeoutSeconds < 0 {
		return errors.New("transcription.segment_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	t := c.Translation
	switch t.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("translation.provider %q is not supported (use gemini, openai or anthropic)", t.Provider)
	}
	if t.BatchSize < 1 {
		return errors.New("translation.batch_size must be at least 1")
	}
	if t.Workers < 1 {
		return errors.New("translation.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateEstimate() error {
	if _, err := c.Estimate.Tiers.OptionsFor(c.Transcription.Provider, c.Estimate.LowFidelity); err != nil {
		return fmt.Errorf("estimate.tiers: %w", err)
	}
	for name, tier := range c.Estimate.Tiers {
		if tier.SamplingRateHz < 0 || tier.UnitCostLow < 0 || tier.UnitCostHigh < 0 || tier.FixedOverheadPerSecond < 0 {
			return fmt.Errorf("estimate.tiers.%s: values must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateMerge() error {
	if _, err := merge.ParseOverlapPolicy(c.Merge.SameSegment); err != nil {
		return fmt.Errorf("merge.same_segment: %w", err)
	}
	if !(c.Merge.DuplicateWindowSeconds > 0) {
		return errors.New("merge.duplicate_window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Format {
	case "srt", "vtt", "ass":
	default:
		return fmt.Errorf("output.format %q is not supported (use srt, vtt or ass)", c.Output.Format)
	}
	if c.Output.MaxCharsPerLine < 1 || c.Output.MaxLinesPerCaption < 1 {
		return errors.New("output.max_chars_per_line and output.max_lines_per_caption must be at least 1")
	}
	if !(c.Output.MaxCaptionSeconds > 0) {
		return errors.New("output.max_caption_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (use debug, info, warn or error)", c.Logging.Level)
	}
	return nil
}
