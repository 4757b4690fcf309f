package cli

import (
	"fmt"

	"github.com/mgpai22/captionstitch/internal/config"
	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/spf13/cobra"
)

const skipConfigAnnotation = "skipConfigLoad"

var (
	verbose    bool
	configPath string
	logger     *logging.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "captionstitch",
	Short: "Parallel AI subtitle generation for long recordings",
	Long: `captionstitch splits long audio or video into segments, transcribes
them in parallel with an AI provider, and stitches the results into one
subtitle file.

It supports Gemini and OpenAI for transcription, Gemini, OpenAI and
Anthropic for translation, and SRT, VTT and ASS output.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if shouldSkipConfig(cmd) {
			logger = logging.NewLogger(verbose)
			return nil
		}

		loaded, resolved, exists, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(logging.Options{
			Verbose: verbose,
			Format:  cfg.Logging.Format,
			Level:   level,
		})
		logger.Debugw("Configuration loaded", "path", resolved, "exists", exists)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "Configuration file path (default ~/.config/captionstitch/config.toml)")
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().
		StringP("language", "l", "", "Language code (e.g., en, es, fr)")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
