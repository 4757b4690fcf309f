package config

import "github.com/mgpai22/captionstitch/internal/estimate"

const (
	defaultMaxSegmentSeconds   = 600
	defaultOverlapSeconds      = 1
	defaultConcurrency         = 3
	defaultProvider            = "gemini"
	defaultTranscriptLanguage  = "native"
	defaultAttempts            = 3
	defaultRetryBackoffSeconds = 2
	defaultSegmentTimeout      = 600
	defaultTranslateProvider   = "gemini"
	defaultTranslateBatchSize  = 50
	defaultTranslateWorkers    = 3
	defaultSameSegmentPolicy   = "pass-through"
	defaultDuplicateWindow     = 0.1
	defaultCachePath           = "~/.cache/captionstitch/segments.db"
	defaultOutputFormat        = "srt"
	defaultMaxCharsPerLine     = 42
	defaultMaxLinesPerCaption  = 2
	defaultMaxCaptionSeconds   = 7
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultProgressAddr        = "127.0.0.1:7488"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Segmenting: Segmenting{
			MaxSegmentSeconds: defaultMaxSegmentSeconds,
			OverlapSeconds:    defaultOverlapSeconds,
			Concurrency:       defaultConcurrency,
		},
		Transcription: Transcription{
			Provider:              defaultProvider,
			TranscriptLanguage:    defaultTranscriptLanguage,
			Attempts:              defaultAttempts,
			RetryBackoffSeconds:   defaultRetryBackoffSeconds,
			SegmentTimeoutSeconds: defaultSegmentTimeout,
		},
		Translation: Translation{
			Provider:  defaultTranslateProvider,
			BatchSize: defaultTranslateBatchSize,
			Workers:   defaultTranslateWorkers,
		},
		Estimate: Estimate{
			Tiers: estimate.DefaultTable(),
		},
		Merge: Merge{
			SameSegment:            defaultSameSegmentPolicy,
			DuplicateWindowSeconds: defaultDuplicateWindow,
		},
		Cache: Cache{
			Enabled: true,
			Path:    defaultCachePath,
		},
		Output: Output{
			Format:             defaultOutputFormat,
			MaxCharsPerLine:    defaultMaxCharsPerLine,
			MaxLinesPerCaption: defaultMaxLinesPerCaption,
			MaxCaptionSeconds:  defaultMaxCaptionSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Progress: Progress{
			Enabled: false,
			Addr:    defaultProgressAddr,
		},
	}
}
