package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mgpai22/captionstitch/internal/audio"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [media_file]",
	Short: "Extract the audio track from a video or audio file",
	Long: `Extract the audio track from a media file and save it as a separate audio file.

Supports multiple output formats: wav, mp3, aac, flac.

Examples:
  captionstitch extract video.mp4
  captionstitch extract video.mp4 -o audio.mp3 -f mp3
  captionstitch extract video.mp4 --format wav --sample-rate 44100 --channels 2`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE:        runExtract,
}

var extractFormats = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"aac":  true,
	"flac": true,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().
		StringP("format", "f", "wav", "Output audio format (wav, mp3, aac, flac)")
	extractCmd.Flags().
		IntP("sample-rate", "r", 16000, "Sample rate in Hz (e.g., 16000, 44100, 48000)")
	extractCmd.Flags().
		Int("channels", 1, "Number of audio channels (1=mono, 2=stereo)")
	extractCmd.Flags().
		StringP("bitrate", "b", "", "Bitrate for lossy formats (e.g., 128k, 320k)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	if err := checkMediaFile(inputPath); err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	sampleRate, _ := cmd.Flags().GetInt("sample-rate")
	channels, _ := cmd.Flags().GetInt("channels")
	bitrate, _ := cmd.Flags().GetString("bitrate")
	outputPath, _ := cmd.Flags().GetString("output")

	if !extractFormats[format] {
		return fmt.Errorf("invalid format %q: supported formats are wav, mp3, aac, flac", format)
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("sample rate and channels must be positive")
	}
	if outputPath == "" {
		outputPath = outputPathFor(inputPath, format)
	}
	if abs, _ := filepath.Abs(outputPath); abs != "" {
		if in, _ := filepath.Abs(inputPath); in == abs {
			return fmt.Errorf("output path %s would overwrite the input", outputPath)
		}
	}

	logger.Infow("Extracting audio",
		"input", inputPath,
		"output", outputPath,
		"format", format,
		"sample_rate", sampleRate,
		"channels", channels,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := audio.CompressionOptions{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   channels,
		Bitrate:    bitrate,
	}
	if err := audio.Extract(ctx, inputPath, outputPath, opts); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Audio extracted successfully: %s\n", absOutput)
	return nil
}
