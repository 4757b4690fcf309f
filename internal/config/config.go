package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/captionstitch/internal/estimate"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Segmenting controls how a long input is split and how many pieces run at once.
type Segmenting struct {
	MaxSegmentSeconds float64 `toml:"max_segment_seconds"`
	// OverlapSeconds pads each cut chunk on both sides so words on a boundary
	// are heard in full; the merge trims the resulting overlap.
	OverlapSeconds float64 `toml:"overlap_seconds"`
	Concurrency    int     `toml:"concurrency"`
}

// Transcription selects the provider and how each segment call is retried.
type Transcription struct {
	Provider              string  `toml:"provider"`
	Model                 string  `toml:"model"`
	Language              string  `toml:"language"`
	TranscriptLanguage    string  `toml:"transcript_language"`
	Attempts              int     `toml:"attempts"`
	RetryBackoffSeconds   float64 `toml:"retry_backoff_seconds"`
	SegmentTimeoutSeconds int     `toml:"segment_timeout_seconds"`
	GeminiAPIKey          string  `toml:"gemini_api_key"`
	OpenAIAPIKey          string  `toml:"openai_api_key"`
}

// Translation configures the translate command.
type Translation struct {
	Provider        string `toml:"provider"`
	Model           string `toml:"model"`
	BatchSize       int    `toml:"batch_size"`
	Workers         int    `toml:"workers"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
}

// Estimate holds the pre-flight cost calibration per backend.
type Estimate struct {
	LowFidelity bool               `toml:"low_fidelity"`
	Tiers       estimate.CostTable `toml:"tiers"`
}

type Merge struct {
	SameSegment            string  `toml:"same_segment"`
	DuplicateWindowSeconds float64 `toml:"duplicate_window_seconds"`
}

// Cache is the per-segment result cache used to resume partial runs.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Output shapes the written subtitle file.
type Output struct {
	Format             string  `toml:"format"`
	MaxCharsPerLine    int     `toml:"max_chars_per_line"`
	MaxLinesPerCaption int     `toml:"max_lines_per_caption"`
	MaxCaptionSeconds  float64 `toml:"max_caption_seconds"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Progress configures the live progress endpoint.
type Progress struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Config encapsulates all configuration values for captionstitch.
type Config struct {
	Segmenting    Segmenting    `toml:"segmenting"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Estimate      Estimate      `toml:"estimate"`
	Merge         Merge         `toml:"merge"`
	Cache         Cache         `toml:"cache"`
	Output        Output        `toml:"output"`
	Logging       Logging       `toml:"logging"`
	Progress      Progress      `toml:"progress"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/captionstitch/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: defaults are used and exists is false.
func Load(path string) (cfg *Config, resolvedPath string, exists bool, err error) {
	c := Default()

	resolvedPath, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// CreateSample writes a sample configuration file to the specified location.
// It refuses to overwrite an existing file unless force is set.
func CreateSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// APIKey returns the key for a transcription or translation provider.
func (c *Config) APIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return c.Transcription.GeminiAPIKey
	case "openai":
		return c.Transcription.OpenAIAPIKey
	case "anthropic":
		return c.Translation.AnthropicAPIKey
	default:
		return ""
	}
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Transcription.RetryBackoffSeconds * float64(time.Second))
}

func (c *Config) SegmentTimeout() time.Duration {
	return time.Duration(c.Transcription.SegmentTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
