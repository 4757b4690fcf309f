package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/subtitle"
	"github.com/mgpai22/captionstitch/internal/translate"
	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate [subtitle_file]",
	Short: "Translate subtitles to another language using AI",
	Long: `Translate an existing subtitle file to another language using AI.

Reads SRT, VTT and ASS/SSA files. Timing is kept and only the caption text
is translated. ASS styling is not preserved; dialogue is written with the
default style.

The --overlay flag creates bilingual subtitles with the translated text
first, followed by the original text on the next line.

Examples:
  captionstitch translate video.srt --target-language japanese
  captionstitch translate video.ass --target-language ja --overlay
  captionstitch translate video.vtt -l english --target-language spanish -o translated.srt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().
		StringP("target-language", "t", "", "Target language for translation (required)")
	translateCmd.Flags().
		Bool("overlay", false, "Overlay translated text with original (bilingual subtitles)")
	translateCmd.Flags().
		StringP("api-key", "k", "", "API key (or set GEMINI_API_KEY/OPENAI_API_KEY/ANTHROPIC_API_KEY env var)")
	translateCmd.Flags().
		String("model", "", "Model to use for translation (provider default when empty)")
	translateCmd.Flags().
		String("provider", "", "Translation provider (gemini, openai, anthropic)")
	translateCmd.Flags().
		Int("concurrency", 0, "Number of parallel translation workers")
	translateCmd.Flags().
		Int("batch-size", 0, "Number of subtitle entries per API request")

	_ = translateCmd.MarkFlagRequired("target-language")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	subtitlePath := args[0]
	flags := cmd.Flags()

	targetLang, _ := flags.GetString("target-language")
	overlay, _ := flags.GetBool("overlay")
	apiKey, _ := flags.GetString("api-key")
	outputPath, _ := flags.GetString("output")
	inputLang, _ := flags.GetString("language")

	model := cfg.Translation.Model
	if v, _ := flags.GetString("model"); v != "" {
		model = v
	}
	providerName := cfg.Translation.Provider
	if v, _ := flags.GetString("provider"); v != "" {
		providerName = v
	}
	concurrency := cfg.Translation.Workers
	if v, _ := flags.GetInt("concurrency"); v > 0 {
		concurrency = v
	}
	batchSize := cfg.Translation.BatchSize
	if v, _ := flags.GetInt("batch-size"); v > 0 {
		batchSize = v
	}

	if _, err := os.Stat(subtitlePath); os.IsNotExist(err) {
		return fmt.Errorf("subtitle file not found: %s", subtitlePath)
	}
	inFormat, err := subtitle.FormatFromPath(subtitlePath)
	if err != nil {
		return err
	}

	targetLang = strings.TrimSpace(targetLang)
	if targetLang == "" {
		return fmt.Errorf("target language is required")
	}
	if inputLang != "" && strings.EqualFold(strings.TrimSpace(inputLang), targetLang) {
		return fmt.Errorf("input language %q and target language %q cannot be the same", inputLang, targetLang)
	}

	provider, err := translate.ParseProvider(providerName)
	if err != nil {
		return err
	}
	if apiKey == "" {
		apiKey = cfg.APIKey(string(provider))
	}
	if apiKey == "" {
		return fmt.Errorf("API key is required: use --api-key flag or set %s_API_KEY environment variable",
			strings.ToUpper(string(provider)))
	}

	if outputPath == "" {
		outputPath = translatedPath(subtitlePath, targetLang, overlay, inFormat)
	}
	outFormat, err := subtitle.FormatFromPath(outputPath)
	if err != nil {
		return err
	}

	logger.Infow("Starting subtitle translation",
		"input", subtitlePath,
		"output", outputPath,
		"target_language", targetLang,
		"input_language", inputLang,
		"provider", provider,
		"overlay", overlay,
	)

	track, err := subtitle.ReadFile(subtitlePath)
	if err != nil {
		return fmt.Errorf("failed to parse subtitle file: %w", err)
	}
	if len(track.Captions) == 0 {
		return fmt.Errorf("subtitle file contains no entries")
	}
	logger.Infow("Parsed subtitle file", "entries", len(track.Captions), "format", track.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	translator, err := translate.Factory(ctx, provider, apiKey, translate.Options{
		InputLanguage:  inputLang,
		TargetLanguage: targetLang,
		Model:          model,
	})
	if err != nil {
		return fmt.Errorf("failed to create translator: %w", err)
	}

	display := newConsoleProgress(os.Stderr, "translating", logger)
	translated, err := translate.Captions(ctx, translator, track.Captions, translate.RunOptions{
		BatchSize:   batchSize,
		Concurrency: concurrency,
		OnUpdate:    display.update,
		Logger:      logger,
	})
	display.finish()
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}

	if overlay {
		translated = overlayCaptions(translated, track.Captions)
	}

	encodeOpts := subtitle.DefaultEncodeOptions()
	encodeOpts.Title = strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	if err := subtitle.WriteFile(outputPath, outFormat, translated, encodeOpts); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Subtitles translated successfully: %s\n", absOutput)
	fmt.Fprintf(out, "  Entries: %d\n", len(translated))
	fmt.Fprintf(out, "  Target language: %s\n", targetLang)
	if overlay {
		fmt.Fprintf(out, "  Mode: bilingual overlay\n")
	}
	return nil
}

// translatedPath derives "<base>.<lang>[.overlay]<ext>" next to the input.
func translatedPath(input, targetLang string, overlay bool, format subtitle.Format) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	suffix := "." + targetLang
	if overlay {
		suffix += ".overlay"
	}
	return base + suffix + format.Extension()
}

// overlayCaptions puts the translation above the original text.
func overlayCaptions(translated, original []caption.Caption) []caption.Caption {
	out := make([]caption.Caption, len(translated))
	for i, c := range translated {
		if i < len(original) && original[i].Text != "" {
			c.Text = c.Text + "\n" + original[i].Text
		}
		out[i] = c
	}
	return out
}
