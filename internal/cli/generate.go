package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/mgpai22/captionstitch/internal/cache"
	"github.com/mgpai22/captionstitch/internal/estimate"
	"github.com/mgpai22/captionstitch/internal/merge"
	"github.com/mgpai22/captionstitch/internal/pipeline"
	"github.com/mgpai22/captionstitch/internal/progress"
	"github.com/mgpai22/captionstitch/internal/progressweb"
	"github.com/mgpai22/captionstitch/internal/segment"
	"github.com/mgpai22/captionstitch/internal/subtitle"
	"github.com/mgpai22/captionstitch/internal/transcribe"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [media_file]",
	Short: "Generate subtitles for an audio or video file",
	Long: `Generate subtitles for the specified audio or video file using AI transcription.

The audio track is extracted, split into segments no longer than the
provider's per-call limit, and the segments are transcribed in parallel.
Their captions are stitched back onto one timeline: boundary overlaps are
trimmed and near-duplicate captions collapsed.

Successful segments are cached, so re-running after a partial failure only
transcribes the segments that failed.

Examples:
  captionstitch generate lecture.mp4
  captionstitch generate podcast.mp3 --format vtt --provider openai
  captionstitch generate movie.mkv --start 10:00 --end 1:10:00
  captionstitch generate talk.mp4 --progress-addr 127.0.0.1:7488`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().
		StringP("api-key", "k", "", "Provider API key (or set GEMINI_API_KEY/OPENAI_API_KEY env var)")
	generateCmd.Flags().
		String("provider", "", "Transcription provider (gemini, openai)")
	generateCmd.Flags().
		String("model", "", "Model to use for transcription (provider default when empty)")
	generateCmd.Flags().
		StringP("format", "f", "", "Output subtitle format (srt, vtt, ass)")
	generateCmd.Flags().
		Float64("max-segment", 0, "Maximum segment length in seconds")
	generateCmd.Flags().
		Float64("overlap", -1, "Seconds of audio padding on each side of a segment")
	generateCmd.Flags().
		Int("concurrency", 0, "Number of parallel transcription workers")
	generateCmd.Flags().
		String("transcript-language", "", "Output language for transcript (e.g., 'english', or 'native' for original language)")
	generateCmd.Flags().
		String("start", "", "Start of the range to transcribe (seconds or H:MM:SS)")
	generateCmd.Flags().
		String("end", "", "End of the range to transcribe (seconds or H:MM:SS)")
	generateCmd.Flags().
		Bool("low-fidelity", false, "Use the low-fidelity unit cost in the work estimate")
	generateCmd.Flags().
		Bool("no-cache", false, "Do not read or write the segment cache")
	generateCmd.Flags().
		Bool("allow-partial", false, "Write subtitles even when some segments failed")
	generateCmd.Flags().
		String("progress-addr", "", "Serve live progress over HTTP/WebSocket on this address")
}

type generateSettings struct {
	mediaPath      string
	outputPath     string
	format         subtitle.Format
	provider       transcribe.Provider
	apiKey         string
	model          string
	language       string
	transcriptLang string
	maxSegment     float64
	overlap        float64
	concurrency    int
	start, end     string
	lowFidelity    bool
	useCache       bool
	allowPartial   bool
	progressAddr   string
}

func generateSettingsFrom(cmd *cobra.Command, mediaPath string) (generateSettings, error) {
	flags := cmd.Flags()
	s := generateSettings{
		mediaPath:      mediaPath,
		model:          cfg.Transcription.Model,
		language:       cfg.Transcription.Language,
		transcriptLang: cfg.Transcription.TranscriptLanguage,
		maxSegment:     cfg.Segmenting.MaxSegmentSeconds,
		overlap:        cfg.Segmenting.OverlapSeconds,
		concurrency:    cfg.Segmenting.Concurrency,
		lowFidelity:    cfg.Estimate.LowFidelity,
		useCache:       cfg.Cache.Enabled,
	}

	providerName := cfg.Transcription.Provider
	if v, _ := flags.GetString("provider"); v != "" {
		providerName = v
	}
	provider, err := transcribe.ParseProvider(providerName)
	if err != nil {
		return s, err
	}
	s.provider = provider

	s.apiKey, _ = flags.GetString("api-key")
	if s.apiKey == "" {
		s.apiKey = cfg.APIKey(string(provider))
	}
	if s.apiKey == "" {
		return s, fmt.Errorf("%s API key is required: use --api-key, the config file, or the %s_API_KEY environment variable",
			provider, strings.ToUpper(string(provider)))
	}

	formatName := cfg.Output.Format
	if v, _ := flags.GetString("format"); v != "" {
		formatName = v
	}
	if s.format, err = subtitle.ParseFormat(formatName); err != nil {
		return s, err
	}

	if v, _ := flags.GetString("model"); v != "" {
		s.model = v
	}
	if v, _ := flags.GetString("language"); v != "" {
		s.language = v
	}
	if v, _ := flags.GetString("transcript-language"); v != "" {
		s.transcriptLang = v
	}
	if v, _ := flags.GetFloat64("max-segment"); v > 0 {
		s.maxSegment = v
	}
	if v, _ := flags.GetFloat64("overlap"); v >= 0 {
		s.overlap = v
	}
	if v, _ := flags.GetInt("concurrency"); v > 0 {
		s.concurrency = v
	}
	if v, _ := flags.GetBool("low-fidelity"); v {
		s.lowFidelity = true
	}
	if v, _ := flags.GetBool("no-cache"); v {
		s.useCache = false
	}
	s.allowPartial, _ = flags.GetBool("allow-partial")
	s.start, _ = flags.GetString("start")
	s.end, _ = flags.GetString("end")

	s.progressAddr, _ = flags.GetString("progress-addr")
	if s.progressAddr == "" && cfg.Progress.Enabled {
		s.progressAddr = cfg.Progress.Addr
	}

	s.outputPath, _ = flags.GetString("output")
	if s.outputPath == "" {
		s.outputPath = outputPathFor(mediaPath, s.format.Extension())
	}
	return s, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	mediaPath := args[0]
	if err := checkMediaFile(mediaPath); err != nil {
		return err
	}

	s, err := generateSettingsFrom(cmd, mediaPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("Starting subtitle generation",
		"input", s.mediaPath,
		"output", s.outputPath,
		"format", s.format,
		"provider", s.provider,
		"max_segment", s.maxSegment,
		"overlap", s.overlap,
		"concurrency", s.concurrency,
	)

	tempDir, err := os.MkdirTemp("", "captionstitch-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	info, err := audio.Probe(ctx, s.mediaPath)
	if err != nil {
		return fmt.Errorf("failed to probe media: %w", err)
	}
	if !info.HasAudio {
		return fmt.Errorf("%s has no audio stream", s.mediaPath)
	}
	logger.Debugw("Probed media",
		"duration", info.Duration.String(),
		"audio_codec", info.AudioCodec,
		"video_codec", info.VideoCodec,
	)

	audioPath := filepath.Join(tempDir, "audio.mp3")
	logger.Infow("Extracting audio for transcription")
	if err := audio.Extract(ctx, s.mediaPath, audioPath, audio.DefaultCompressionOptions()); err != nil {
		return fmt.Errorf("failed to extract audio: %w", err)
	}

	duration, err := audio.GetDuration(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("failed to get audio duration: %w", err)
	}
	logger.Infow("Audio prepared", "duration", duration.String())

	rng, err := requestRange(s.start, s.end, duration.Seconds())
	if err != nil {
		return err
	}
	segs, err := segment.Split(rng, s.maxSegment)
	if err != nil {
		return fmt.Errorf("failed to split range: %w", err)
	}
	logEstimate(segs, string(s.provider), s.lowFidelity)

	chunks, err := audio.CutSegments(ctx, audioPath, segs, filepath.Join(tempDir, "chunks"), audio.CutOptions{
		Overlap:       s.overlap,
		MediaDuration: duration.Seconds(),
		Concurrency:   s.concurrency * 2,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to split audio: %w", err)
	}
	defer func() {
		if err := audio.CleanupChunks(chunks); err != nil {
			logger.Debugw("Failed to remove chunks", "error", err)
		}
	}()

	transcriber, err := transcribe.Factory(ctx, s.provider, s.apiKey, transcribe.Options{
		Language:           s.language,
		TranscriptLanguage: s.transcriptLang,
		Model:              s.model,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}

	policy, err := merge.ParseOverlapPolicy(cfg.Merge.SameSegment)
	if err != nil {
		return err
	}

	display := newConsoleProgress(os.Stderr, "transcribing", logger)
	listeners := []progress.UpdateFunc{display.update}
	if s.progressAddr != "" {
		hub := progressweb.NewHub(logger)
		if _, err := hub.Serve(ctx, s.progressAddr); err != nil {
			return fmt.Errorf("failed to serve progress: %w", err)
		}
		listeners = append(listeners, hub.Listener())
	}

	opts := pipeline.Options{
		Concurrency:    s.concurrency,
		Attempts:       cfg.Transcription.Attempts,
		Backoff:        cfg.RetryBackoff(),
		SegmentTimeout: cfg.SegmentTimeout(),
		Merge: merge.Options{
			SameSegment:     policy,
			DuplicateWindow: cfg.Merge.DuplicateWindowSeconds,
			Slack:           s.overlap,
		},
		Language: s.language + ">" + s.transcriptLang,
		Overlap:  s.overlap,
		OnUpdate: fanOut(listeners...),
		Logger:   logger,
	}

	if s.useCache {
		store, fingerprint, err := openCache(ctx, s.mediaPath)
		if err != nil {
			logger.Warnw("Segment cache unavailable; continuing without it", "error", err)
		} else {
			defer store.Close()
			opts.Cache = store
			opts.Fingerprint = fingerprint
		}
	}

	runner, err := pipeline.NewRunner(transcriber, opts)
	if err != nil {
		return err
	}
	res, runErr := runner.Run(ctx, chunks)
	display.finish()
	if res == nil {
		return fmt.Errorf("transcription failed: %w", runErr)
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcomeTable(res.Outcomes))

	if runErr != nil {
		return fmt.Errorf("transcription interrupted: %w", runErr)
	}
	if len(res.Failed) > 0 && !s.allowPartial {
		return fmt.Errorf("%d of %d segments failed; re-run to retry them (finished segments are cached) or pass --allow-partial",
			len(res.Failed), len(res.Outcomes))
	}

	layout := subtitle.Layout{
		MaxCharsPerLine: cfg.Output.MaxCharsPerLine,
		MaxLines:        cfg.Output.MaxLinesPerCaption,
		MaxDuration:     cfg.Output.MaxCaptionSeconds,
	}
	captions := layout.Apply(res.Merge.Captions)

	encodeOpts := subtitle.DefaultEncodeOptions()
	encodeOpts.Title = strings.TrimSuffix(filepath.Base(s.mediaPath), filepath.Ext(s.mediaPath))
	if err := subtitle.WriteFile(s.outputPath, s.format, captions, encodeOpts); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}

	absOutput, _ := filepath.Abs(s.outputPath)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Subtitles generated successfully: %s\n", absOutput)
	fmt.Fprintf(out, "  Captions: %d\n", len(captions))
	fmt.Fprintf(out, "  Segments: %d (%d cached, %d failed)\n", len(res.Outcomes), res.CacheHits, len(res.Failed))
	fmt.Fprintf(out, "  Duration: %s\n", time.Duration(rng.Duration()*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", res.Elapsed.Round(time.Second))
	return nil
}

// logEstimate reports the expected work units. A missing tier only skips the
// estimate; it never blocks the run.
func logEstimate(segs []segment.Segment, backend string, lowFidelity bool) {
	opts, err := cfg.Estimate.Tiers.OptionsFor(backend, lowFidelity)
	if err != nil {
		logger.Warnw("Skipping work estimate", "error", err)
		return
	}
	report, err := estimate.Estimate(segs, opts)
	if err != nil {
		logger.Warnw("Skipping work estimate", "error", err)
		return
	}
	logger.Infow("Estimated work",
		"segments", len(segs),
		"parallel", len(segs) > 1,
		"total_units", report.TotalUnits,
		"average_units", fmt.Sprintf("%.0f", report.AverageUnits),
		"max_units", report.MaxUnits,
	)
}

func openCache(ctx context.Context, mediaPath string) (*cache.Store, string, error) {
	fingerprint, err := cache.Fingerprint(mediaPath)
	if err != nil {
		return nil, "", err
	}
	store, err := cache.Open(ctx, cfg.Cache.Path)
	if err != nil {
		return nil, "", err
	}
	return store, fingerprint, nil
}
